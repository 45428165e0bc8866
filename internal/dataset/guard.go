// internal/dataset/guard.go
package dataset

import (
	"fmt"
	"strings"

	"research-agent/internal/common/errors"
)

// Statements that mutate state or reach outside the loaded table are
// rejected before execution. The model only ever needs SELECT.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"truncate", "attach", "detach", "copy", "export", "install",
	"load", "pragma", "set", "call",
}

// ValidateReadOnly rejects any generated SQL that is not a single
// SELECT statement.
func ValidateReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return errors.NewSQLRejectedError("empty query")
	}

	// A single trailing semicolon is harmless, anything beyond that
	// indicates multiple statements.
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(trimmed, ";") {
		return errors.NewSQLRejectedError("multiple statements are not allowed")
	}

	lowered := strings.ToLower(trimmed)
	if !strings.HasPrefix(lowered, "select") && !strings.HasPrefix(lowered, "with") {
		return errors.NewSQLRejectedError("only SELECT queries are allowed")
	}

	for _, word := range tokenize(lowered) {
		for _, forbidden := range forbiddenKeywords {
			if word == forbidden {
				return errors.NewSQLRejectedError(fmt.Sprintf("forbidden keyword %q", forbidden))
			}
		}
	}

	return nil
}

// tokenize splits the query into bare words, ignoring string literals so
// that data values containing keywords do not trip the guard.
func tokenize(query string) []string {
	var words []string
	var current strings.Builder
	inString := false

	for _, r := range query {
		switch {
		case r == '\'':
			inString = !inString
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		case inString:
			// skip literal contents
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			current.WriteRune(r)
		default:
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}
