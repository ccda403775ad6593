// Package logging provides safe file operations and utilities for the logging framework.
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/privgate/privgate/internal/safefileio"
)

// Common errors
var (
	ErrEmptyLogDirectory = errors.New("log directory cannot be empty")
)

// File permissions constants
var (
	logDirPerm  os.FileMode = 0o750
	logFilePerm os.FileMode = 0o600
)

// SafeFileOpener handles safe log file creation with symlink protection.
// An attacker who can plant a symlink in the log directory must not be able
// to make a privilege-managing process write through it.
type SafeFileOpener struct{}

// NewSafeFileOpener creates a new SafeFileOpener
func NewSafeFileOpener() *SafeFileOpener {
	return &SafeFileOpener{}
}

// OpenFile safely opens a log file, refusing symlinks anywhere on the path
func (s *SafeFileOpener) OpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, logDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := safefileio.SafeOpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s safely: %w", path, err)
	}

	return file, nil
}

// GenerateLogFilename generates a unique per-run log filename inside dir
func (s *SafeFileOpener) GenerateLogFilename(dir, runID string) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	timestamp := time.Now().Format("20060102T150405Z")

	filename := fmt.Sprintf("%s_%s_%s.json", hostname, timestamp, runID)
	return filepath.Join(dir, filename)
}

// GenerateRunID generates a new UUID v4 for run identification
func GenerateRunID() string {
	return uuid.New().String()
}

// GetBuildInfo returns build information for logging
func GetBuildInfo() (gitCommit, buildVersion string) {
	// These would typically be set via build flags
	gitCommit = os.Getenv("GIT_COMMIT")
	if gitCommit == "" {
		gitCommit = "unknown"
	}

	buildVersion = os.Getenv("BUILD_VERSION")
	if buildVersion == "" {
		buildVersion = "dev"
	}

	return gitCommit, buildVersion
}

// ValidateLogDir ensures the log directory is safe and accessible
func ValidateLogDir(dir string) error {
	if dir == "" {
		return ErrEmptyLogDirectory
	}

	// Check if directory exists or can be created
	if err := os.MkdirAll(dir, logDirPerm); err != nil {
		return fmt.Errorf("cannot create log directory %s: %w", dir, err)
	}

	// Check if we can write to the directory
	testFile := filepath.Join(dir, ".write_test")
	f, err := safefileio.SafeOpenFile(testFile, os.O_CREATE|os.O_WRONLY|os.O_EXCL, logFilePerm)
	if err != nil {
		return fmt.Errorf("cannot write to log directory %s: %w", dir, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close test file: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return fmt.Errorf("failed to remove test file: %w", err)
	}

	return nil
}
