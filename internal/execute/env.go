package execute

import (
	"fmt"
	"sort"
	"strings"

	"github.com/privgate/privgate/internal/common"
)

// SafeChildPath is the fixed PATH handed to every child process.
const SafeChildPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// loaderEnvVars are environment variables that influence the dynamic loader
// or libc lookup paths. They are stripped unconditionally: a privileged child
// must never load caller-controlled code.
var loaderEnvVars = map[string]struct{}{
	"LD_AUDIT":         {},
	"LD_BIND_NOT":      {},
	"LD_BIND_NOW":      {},
	"LD_DEBUG":         {},
	"LD_DEBUG_OUTPUT":  {},
	"LD_DYNAMIC_WEAK":  {},
	"LD_LIBRARY_PATH":  {},
	"LD_ORIGIN_PATH":   {},
	"LD_PRELOAD":       {},
	"LD_PROFILE":       {},
	"LD_SHOW_AUXV":     {},
	"LD_USE_LOAD_BIAS": {},
	"GCONV_PATH":       {},
	"GETCONF_DIR":      {},
	"HOSTALIASES":      {},
	"IFS":              {},
	"LOCALDOMAIN":      {},
	"LOCPATH":          {},
	"MALLOC_TRACE":     {},
	"NIS_PATH":         {},
	"NLSPATH":          {},
	"RESOLV_HOST_CONF": {},
	"RES_OPTIONS":      {},
	"TMPDIR":           {},
	"TZDIR":            {},
}

// fixedEnv is the base environment every child starts from. The parent's
// environment is never inherited.
var fixedEnv = map[string]string{
	"PATH":   SafeChildPath,
	"LC_ALL": "C",
	"LANG":   "C",
}

// admissibleEnvVar decides whether a caller-supplied variable may be merged
// into the child environment: the name must be an upper-case identifier
// outside the loader set, must not shadow the fixed base, and the value must
// be free of traversal sequences and control characters.
func admissibleEnvVar(name, value string) bool {
	if !common.IsValidEnvName(name) {
		return false
	}
	if _, fixed := fixedEnv[name]; fixed {
		return false
	}
	if strings.HasPrefix(name, "LD_") {
		return false
	}
	if _, loader := loaderEnvVars[name]; loader {
		return false
	}
	if common.ContainsPathTraversalSegment(value) || common.ContainsControlChars(value) {
		return false
	}
	return true
}

// BuildEnvironment returns the wholesale-replaced child environment: the
// fixed base plus any admissible extras. Later maps override earlier ones.
// The output is sorted so environments are stable across runs.
func BuildEnvironment(extras ...map[string]string) []string {
	merged := make(map[string]string, len(fixedEnv))
	for k, v := range fixedEnv {
		merged[k] = v
	}
	for _, extra := range extras {
		for k, v := range extra {
			if admissibleEnvVar(k, v) {
				merged[k] = v
			}
		}
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)
	return env
}
