package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var envRef = regexp.MustCompile(`^(?:env/(.+)|\$\{([^}]+)\})$`)

// MissingCredentialsError lists provider settings that reference unset
// environment variables, keyed by variable name.
type MissingCredentialsError struct {
	Missing map[string]string
}

func (e *MissingCredentialsError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for n := range e.Missing {
		names = append(names, n)
	}
	slices.Sort(names)

	lines := []string{"Missing API credentials:"}
	for _, n := range names {
		lines = append(lines, fmt.Sprintf("  - %s (provider: %s)", n, e.Missing[n]))
	}
	lines = append(lines, "", "Set these environment variables or put the values in the provider settings")
	return strings.Join(lines, "\n")
}

// ResolveCredentials replaces provider settings of the form env/NAME or
// ${NAME} with the value of the environment variable.
func (c *Config) ResolveCredentials() error {
	return c.resolveCredentials(os.LookupEnv)
}

func (c *Config) resolveCredentials(lookup func(string) (string, bool)) error {
	missing := make(map[string]string)
	for name, p := range c.Providers {
		for key, value := range p.Settings {
			m := envRef.FindStringSubmatch(strings.TrimSpace(value))
			if m == nil {
				continue
			}
			env := m[1] + m[2]
			v, ok := lookup(env)
			if !ok || v == "" {
				missing[env] = name
				continue
			}
			p.Settings[key] = v
		}
	}
	if len(missing) > 0 {
		return &MissingCredentialsError{Missing: missing}
	}
	return nil
}
