package tgui

import (
	"html"
	"strings"
	"unicode/utf8"
)

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	// Single pass: remember the byte index after the (n-1)-th rune so the
	// ellipsis keeps the result at n runes.
	count := 0
	cut := 0
	for i := range s {
		if count == n-1 {
			cut = i
		}
		count++
		if count > n {
			return s[:cut] + "…"
		}
	}
	return s
}

// TruncEscaped shortens plain text s so that its escaped form fits in budget
// runes, ending with an ellipsis. The result is still plain text.
func TruncEscaped(s string, budget int) string {
	if budget <= 1 {
		return ""
	}
	n := 0
	for i, r := range s {
		w := utf8.RuneCountInString(html.EscapeString(string(r)))
		if n+w > budget-1 {
			return strings.TrimRight(s[:i], " ") + "…"
		}
		n += w
	}
	return s
}

// RuneLen is utf8.RuneCountInString.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }
