// Package interpolation expands environment variable references in config values.
package interpolation

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// ErrUndefinedVar is returned for a reference without default to an unset variable.
var ErrUndefinedVar = errors.New("environment variable not defined")

// envVarPattern matches ${NAME} and ${NAME:default}; the colon is captured so
// that ${NAME:} yields an empty default.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:)?([^}]*)\}`)

// ExpandEnvVars expands ${VAR} and ${VAR:default} references in input.
//
// A set variable always wins over the default. A missing variable without a
// default is left unexpanded and reported; all missing variables are joined
// into the returned error.
func ExpandEnvVars(input string) (string, error) {
	if input == "" {
		return "", nil
	}

	var missing []error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, def := m[1], m[2] == ":", m[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return def
		}
		missing = append(missing, fmt.Errorf("%w: %s", ErrUndefinedVar, name))
		return match
	})
	return out, errors.Join(missing...)
}
