package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeIdentifier folds a user-supplied identifier (username, email) to
// NFKC, trims it and lower-cases it so equivalent spellings compare equal.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}
