// Package qa turns extracted document text into question/answer pairs
// using ordered regex strategies, an optional language-model pass and a
// paragraph fallback.
package qa

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	sentenceBreak     = regexp.MustCompile(`([^\d\s][.!?]) ?([A-Z])`)
	listItemBreak     = regexp.MustCompile(`(^|\s)(\d{1,3}[.)]) ?([A-Z])`)
)

// Normalize collapses whitespace, removes control characters and restores
// line breaks at sentence ends and before numbered list items.
func Normalize(text string) string {
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))

	text = sentenceBreak.ReplaceAllString(text, "$1\n$2")
	text = listItemBreak.ReplaceAllString(text, "\n$2 $3")
	return strings.TrimSpace(text)
}
