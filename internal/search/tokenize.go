package search

import (
	"strings"
	"unicode"
)

// Tokenize splits s on non-alphanumeric boundaries and on camelCase
// boundaries, lowercasing every token, per spec §4.5. The same analyzer
// is used to build the index and to parse queries so scores are
// comparable.
func Tokenize(s string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
				flush() // camelCase boundary: "Commit" in "gitCommit"
			}
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
