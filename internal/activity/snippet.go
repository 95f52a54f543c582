// Package activity stores sender activity and the forwarded-message log.
package activity

import (
	"strings"
	"unicode/utf8"
)

// DefaultSnippetLength is the maximum snippet length in runes.
const DefaultSnippetLength = 100

// Truncate bounds s to max runes, collapsing whitespace first. The result
// never splits a multi-byte character.
func Truncate(s string, max int) string {
	if max <= 0 {
		max = DefaultSnippetLength
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
