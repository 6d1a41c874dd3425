package enrich

import (
	"strings"
	"unicode"
)

// Slug derives a watch-activity slug from a title: lowercase, strip ':' ','
// and '.', whitespace runs become '-', repeated '-' collapse and edge '-'
// are trimmed. Slug(Slug(s)) == Slug(s).
func Slug(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r == ':' || r == ',' || r == '.':
			continue
		case unicode.IsSpace(r) || r == '-':
			dash = true
			continue
		}
		if dash && b.Len() > 0 {
			b.WriteByte('-')
		}
		dash = false
		b.WriteRune(r)
	}
	return b.String()
}
