package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const ellipsis = "..."

// TruncateText shortens content to at most maxLength runes, ellipsis
// included. The cut moves back to a sentence end, a line break or a space
// when one exists in the second half of the kept text.
func TruncateText(content string, maxLength int) string {
	runes := []rune(content)
	if len(runes) <= maxLength {
		return content
	}
	if maxLength <= len(ellipsis) {
		return string(runes[:maxLength])
	}

	head := cutAtBoundary(string(runes[:maxLength-len(ellipsis)]))
	return strings.TrimRightFunc(head, unicode.IsSpace) + ellipsis
}

func cutAtBoundary(s string) string {
	floor := utf8.RuneCountInString(s) / 2
	for _, sep := range []string{". ", "\n", " "} {
		i := strings.LastIndex(s, sep)
		if i < 0 || utf8.RuneCountInString(s[:i]) <= floor {
			continue
		}
		if sep == ". " {
			// keep the period
			i++
		}
		return s[:i]
	}
	return s
}
