package adapter

import "strings"

const (
	textLimit    = 4000
	captionLimit = 1024
)

// splitMessage cuts s into parts of at most limit runes. A part ends on the
// last newline in its window unless that would leave it under a third full.
// With html set, a part never ends inside a tag.
func splitMessage(s string, limit int, html bool) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rest := []rune(s)
	if len(rest) <= limit {
		return []string{s}
	}
	var parts []string
	for len(rest) > 0 {
		n := len(rest)
		if n > limit {
			n = cutPoint(rest[:limit], html)
		}
		parts = append(parts, strings.TrimRight(string(rest[:n]), "\n"))
		rest = rest[n:]
		for len(rest) > 0 && rest[0] == '\n' {
			rest = rest[1:]
		}
	}
	return parts
}

func cutPoint(window []rune, html bool) int {
	end := len(window)
	if i := lastRune(window, '\n'); i > 0 && i >= len(window)/3 {
		end = i + 1
	}
	if html {
		if open := lastRune(window[:end], '<'); open > 1 && open > lastRune(window[:end], '>') {
			end = open
		}
	}
	return end
}

func lastRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
