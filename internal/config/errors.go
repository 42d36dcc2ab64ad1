package config

import "strings"

// ValidationErrors aggregates every problem found while resolving a
// Document, rather than failing fast on the first one.
type ValidationErrors []string

func (e ValidationErrors) Error() string {
	return "config validation failed:\n  - " + strings.Join(e, "\n  - ")
}

// HasErrors reports whether any problems were collected.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }
