// Package safefileio provides secure file I/O operations with protection against
// common security vulnerabilities like symlink attacks and TOCTOU race conditions.
// privgate uses it wherever the process touches files it must trust (log and
// audit output, the deployment config): a process that can hold root
// credentials must never read or write through a planted symlink.
package safefileio

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// SafeOpenFile opens a file after validating the path and checking file
// properties. It refuses to follow a symlink in the final component via
// O_NOFOLLOW and then verifies every directory component, so the check happens
// after the open and a swapped path cannot win the race.
func SafeOpenFile(filePath string, flag int, perm os.FileMode) (*os.File, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilePath, err)
	}

	// #nosec G304 - absPath is cleaned above and opened with O_NOFOLLOW
	file, err := os.OpenFile(absPath, flag|syscall.O_NOFOLLOW, perm)
	if err != nil {
		switch {
		case os.IsExist(err):
			return nil, ErrFileExists
		case isNoFollowError(err):
			return nil, ErrIsSymlink
		default:
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
	}

	// Now verify the directory components to prevent TOCTOU
	if err := verifyPathComponents(absPath); err != nil {
		closeErr := file.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close: %v)", err, closeErr)
		}
		return nil, err
	}

	// Validate the file is a regular file (not a device, pipe, etc.)
	if err := validateRegularFile(file, absPath); err != nil {
		closeErr := file.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close: %v)", err, closeErr)
		}
		return nil, err
	}

	return file, nil
}

// verifyPathComponents checks if any component of the path is a symlink.
// This is called after opening the file to prevent TOCTOU attacks.
func verifyPathComponents(absPath string) error {
	dir := filepath.Dir(absPath)
	if dir == "." {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Check each directory component
	current := dir
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break // Reached root directory
		}

		// os.Lstat does not follow symlinks, so this check is safe
		fi, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return nil // Directory doesn't exist, we can stop checking
			}
			return fmt.Errorf("failed to stat %s: %w", current, err)
		}

		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrIsSymlink, current)
		}

		current = parent
	}

	return nil
}

// validateRegularFile checks that the opened file is a regular file.
// To prevent TOCTOU attacks the check uses the file descriptor, not the path.
func validateRegularFile(file *os.File, filePath string) error {
	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file: %s", ErrInvalidFilePath, filePath)
	}

	return nil
}
