// Package redaction keeps credential material out of privgate log output.
package redaction

import (
	"regexp"
	"strings"
)

// SensitivePatterns contains compiled patterns for detecting sensitive information
type SensitivePatterns struct {
	// CredentialPatterns contains regex patterns to match credentials in log keys and values
	CredentialPatterns []*regexp.Regexp
	// EnvVarPatterns contains regex patterns to match sensitive environment variable names
	EnvVarPatterns []*regexp.Regexp
	// AllowedEnvVars contains environment variable names that are safe to log
	AllowedEnvVars map[string]bool
}

// DefaultSensitivePatterns returns a default set of sensitive patterns.
// The credential set is tuned for what flows through privilege escalation:
// authentication prompt responses, askpass material, and generic secrets.
func DefaultSensitivePatterns() *SensitivePatterns {
	credentialPatterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)(password|passphrase|passwd|token|secret|api_key)`),
		regexp.MustCompile(`(?i)askpass_response`),
		regexp.MustCompile(`(?i)sudo_askpass`),
		regexp.MustCompile(`(?i)credential`),
		regexp.MustCompile(`(?i)bearer`),
		regexp.MustCompile(`(?i)authorization`),
	}

	// Environment variable patterns (for child env admission logging)
	envVarPatterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i).*PASSWORD.*`),
		regexp.MustCompile(`(?i).*PASSPHRASE.*`),
		regexp.MustCompile(`(?i).*SECRET.*`),
		regexp.MustCompile(`(?i).*TOKEN.*`),
		regexp.MustCompile(`(?i).*CREDENTIAL.*`),
		regexp.MustCompile(`(?i).*AUTH.*`),
	}

	// Common safe environment variables
	allowedEnvVars := map[string]bool{
		"PATH":            true,
		"HOME":            true,
		"USER":            true,
		"LANG":            true,
		"LC_ALL":          true,
		"SHELL":           true,
		"TERM":            true,
		"PWD":             true,
		"HOSTNAME":        true,
		"LOGNAME":         true,
		"TZ":              true,
		"DISPLAY":         true,
		"WAYLAND_DISPLAY": true,
		"TMPDIR":          true,
	}

	return &SensitivePatterns{
		CredentialPatterns: credentialPatterns,
		EnvVarPatterns:     envVarPatterns,
		AllowedEnvVars:     allowedEnvVars,
	}
}

// IsSensitiveKey checks if a key (e.g., log attribute key) contains sensitive information
func (sp *SensitivePatterns) IsSensitiveKey(key string) bool {
	for _, pattern := range sp.CredentialPatterns {
		if pattern.MatchString(key) {
			return true
		}
	}
	return false
}

// IsSensitiveValue checks if a value contains sensitive information
func (sp *SensitivePatterns) IsSensitiveValue(value string) bool {
	for _, pattern := range sp.CredentialPatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// IsSensitiveEnvVar checks if an environment variable name is sensitive
func (sp *SensitivePatterns) IsSensitiveEnvVar(name string) bool {
	// Check if it's explicitly allowed
	if sp.AllowedEnvVars[strings.ToUpper(name)] {
		return false
	}

	upperName := strings.ToUpper(name)
	for _, pattern := range sp.EnvVarPatterns {
		if pattern.MatchString(upperName) {
			return true
		}
	}
	return false
}

// DefaultKeyValuePatterns returns default keys for key=value redaction
func DefaultKeyValuePatterns() []string {
	return []string{
		"password",
		"passphrase",
		"token",
		"secret",

		// Environment variable assignments that might carry secrets
		"_PASSWORD",
		"_TOKEN",
		"_SECRET",

		// Header/scheme patterns (colon redaction handles both with/without space)
		"Bearer ",
		"Authorization: ",
	}
}
