package execute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEnvironment_FixedBase(t *testing.T) {
	env := BuildEnvironment()

	assert.Equal(t, []string{
		"LANG=C",
		"LC_ALL=C",
		"PATH=" + SafeChildPath,
	}, env, "child environment must be exactly the fixed base, never inherited")
}

func TestBuildEnvironment_ExtraAdmission(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		admitted bool
	}{
		{"plain upper-case identifier", "CLAMD_SOCKET", "/run/clamav/clamd.ctl", true},
		{"underscore prefix", "_STAGING", "1", true},
		{"lower-case name", "http_proxy", "http://proxy:3128", false},
		{"mixed-case name", "HttpProxy", "x", false},
		{"digit-leading name", "1VAR", "x", false},
		{"loader preload", "LD_PRELOAD", "/tmp/hook.so", false},
		{"any LD_ prefixed name", "LD_SOMETHING_NEW", "x", false},
		{"glibc gconv override", "GCONV_PATH", "/tmp/g", false},
		{"ifs override", "IFS", ":", false},
		{"path override rejected", "PATH", "/tmp/bin", false},
		{"locale override rejected", "LC_ALL", "en_US.UTF-8", false},
		{"traversal in value", "SCAN_DIR", "/var/lib/../../etc", false},
		{"control char in value", "NOTE", "a\nb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := BuildEnvironment(map[string]string{tt.key: tt.value})

			entry := tt.key + "=" + tt.value
			if tt.admitted {
				assert.Contains(t, env, entry)
			} else {
				assert.NotContains(t, env, entry)
				// The fixed base always survives an attempted override.
				assert.Contains(t, env, "PATH="+SafeChildPath)
				assert.Contains(t, env, "LC_ALL=C")
			}
		})
	}
}

func TestBuildEnvironment_LaterMapWins(t *testing.T) {
	env := BuildEnvironment(
		map[string]string{"SCAN_PROFILE": "weekly"},
		map[string]string{"SCAN_PROFILE": "manual"},
	)

	assert.Contains(t, env, "SCAN_PROFILE=manual")
	assert.NotContains(t, env, "SCAN_PROFILE=weekly")
}
