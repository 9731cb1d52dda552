package executor

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultSecretPatterns match environment variable names that never reach a
// sandboxed script. Matching is case-insensitive.
var DefaultSecretPatterns = []string{
	"*SECRET*",
	"*TOKEN*",
	"*PASSWORD*",
	"*PASSWD*",
	"*KEY*",
	"*CREDENTIAL*",
	"*DATABASE_URL*",
	"*DSN*",
}

// ProcessSnapshot returns the process description handed to scripts, with
// environment variables whose names match one of secretPatterns removed.
func ProcessSnapshot(secretPatterns []string) (map[string]any, error) {
	matchers := make([]glob.Glob, 0, len(secretPatterns))
	for _, p := range secretPatterns {
		g, err := glob.Compile(strings.ToUpper(p))
		if err != nil {
			return nil, fmt.Errorf("secret pattern %q: %w", p, err)
		}
		matchers = append(matchers, g)
	}

	env := make(map[string]any)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" || isSecret(matchers, name) {
			continue
		}
		env[name] = value
	}

	argv := make([]any, 0, len(os.Args))
	for _, a := range os.Args {
		argv = append(argv, a)
	}

	return map[string]any{
		"env":      env,
		"argv":     argv,
		"pid":      os.Getpid(),
		"platform": runtime.GOOS,
		"arch":     runtime.GOARCH,
		"version":  runtime.Version(),
	}, nil
}

func isSecret(matchers []glob.Glob, name string) bool {
	upper := strings.ToUpper(name)
	for _, m := range matchers {
		if m.Match(upper) {
			return true
		}
	}
	return false
}
