package hostenv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/privgate/privgate/internal/common"
)

// DefaultLoadAvgPath is where Linux exposes the load averages.
const DefaultLoadAvgPath = "/proc/loadavg"

// DefaultHighSecurityMarker is the marker file an operator creates to declare
// a hardened deployment. Its presence clamps grace windows.
const DefaultHighSecurityMarker = "/etc/privgate/high-security"

// ErrMalformedLoadAvg indicates /proc/loadavg did not have the expected shape.
var ErrMalformedLoadAvg = errors.New("malformed loadavg data")

// SysInfo answers the host-state questions grace-period tuning asks:
// how busy is the machine, and has the operator marked this deployment
// as high security.
type SysInfo struct {
	fs          common.FileSystem
	loadAvgPath string
}

// NewSysInfo creates a SysInfo reading through the given filesystem.
func NewSysInfo(fs common.FileSystem) *SysInfo {
	return &SysInfo{
		fs:          fs,
		loadAvgPath: DefaultLoadAvgPath,
	}
}

// NewSysInfoWithLoadAvgPath creates a SysInfo reading load data from a
// non-default location (tests and unusual proc mounts).
func NewSysInfoWithLoadAvgPath(fs common.FileSystem, loadAvgPath string) *SysInfo {
	return &SysInfo{
		fs:          fs,
		loadAvgPath: loadAvgPath,
	}
}

// LoadAverage returns the 1-minute load average.
func (s *SysInfo) LoadAverage() (float64, error) {
	content, err := s.fs.ReadFile(s.loadAvgPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", s.loadAvgPath, err)
	}

	// Format: "0.52 0.58 0.59 1/1234 56789" - first field is the 1-minute average
	fields := strings.Fields(string(content))
	if len(fields) < 1 {
		return 0, ErrMalformedLoadAvg
	}

	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedLoadAvg, err)
	}

	return load, nil
}

// MarkerFilePresent reports whether the given marker file exists.
// A present high-security marker tells policy code to clamp grace periods.
func (s *SysInfo) MarkerFilePresent(path string) bool {
	if path == "" {
		return false
	}
	exists, err := s.fs.FileExists(path)
	if err != nil {
		// Unreadable marker state counts as absent; tuning stays conservative
		// (shorter windows) only when the marker is positively present.
		return false
	}
	return exists
}
