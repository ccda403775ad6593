package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckArgumentText(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		wantErr bool
	}{
		// Safe arguments
		{"plain flag", "--check", false},
		{"flag with inline value", "--configfile=/etc/rkhunter.conf", false},
		{"absolute path", "/var/lib/clamav", false},
		{"unit name", "clamav-daemon.service", false},
		{"comma list", "rootkits,malware", false},
		{"decimal pid", "4321", false},
		{"double dot inside name", "archive..zip", false},

		// Shell metacharacters
		{"semicolon chain", "; rm -rf /", true},
		{"ampersand", "foo&bar", true},
		{"pipe", "foo|bar", true},
		{"dollar expansion", "$HOME", true},
		{"backtick substitution", "`id`", true},
		{"subshell parens", "(id)", true},
		{"brace expansion", "{a,b}", true},
		{"redirect out", "foo>bar", true},
		{"redirect in", "foo<bar", true},

		// Glob wildcards
		{"star glob", "/etc/*", true},
		{"question glob", "file?.log", true},
		{"bracket glob", "file[0-9]", true},

		// Traversal and restricted trees
		{"dotdot traversal", "../../etc/shadow", true},
		{"embedded traversal", "/var/log/../../etc/shadow", true},
		{"proc path", "/proc/1/mem", true},
		{"bare proc", "/proc", true},
		{"dev path", "/dev/sda", true},
		{"sys path", "/sys/kernel/debug", true},

		// Encoded escapes
		{"hex escape", `\x2f\x65tc`, true},
		{"url escape", "%2e%2e/etc", true},

		// Degenerate arguments
		{"empty string", "", true},
		{"whitespace only", "   ", true},
		{"newline", "foo\nbar", true},
		{"carriage return", "foo\rbar", true},
		{"nul byte", "foo\x00bar", true},
		{"escape sequence", "\x1b[31mred", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkArgumentText(tt.arg)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDangerousArgument, "argument %q must be rejected", tt.arg)
			} else {
				assert.NoError(t, err, "argument %q must be accepted", tt.arg)
			}
		})
	}
}

func TestValidator_Validate_InjectionRejectsWholeCommand(t *testing.T) {
	validator, _ := newTestValidator(t)

	// The first element is allowlisted; a single bad argument must still
	// reject the whole command.
	tests := [][]string{
		{"/usr/bin/rkhunter", "--check", "; rm -rf /"},
		{"/usr/bin/clamscan", "-r", "/home", "|", "tee"},
		{"/usr/bin/clamscan", "/home/user/../../etc"},
		{"/usr/bin/systemctl", "stop", "`reboot`"},
		{"/bin/kill", "-TERM", "123\x00"},
	}

	for _, argv := range tests {
		cmd, verdict := validator.Validate(argv)

		assert.False(t, verdict.Admitted, "argv %v must be rejected", argv)
		assert.Nil(t, cmd)
	}
}
