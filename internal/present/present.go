// Package present turns media items into platform-neutral display cards.
// Rendering is pure: no I/O and no failure mode beyond "N/A" substitution.
package present

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"trendbot/internal/media"
)

const (
	NotAvailable  = "N/A"
	NoDescription = "No description available."

	DefaultImageBase = "https://image.tmdb.org/t/p/w500"

	AccentMovie = 0x3498DB
	AccentShow  = 0x2ECC71
	AccentAnime = 0xE67E22

	maxSummary = 350
)

// Line is one "Label: value" row of a card.
type Line struct {
	Label string
	Value string
}

// DisplayCard is a rendered item. Transports map it to embeds, photo
// captions or plain text.
type DisplayCard struct {
	Kind     media.Kind
	Heading  string
	Summary  string
	Body     string
	Lines    []Line
	ImageURL string
	Accent   int
}

type Presenter struct {
	imageBase string
}

// New returns a presenter joining TMDB path fragments to imageBase
// (DefaultImageBase when empty).
func New(imageBase string) Presenter {
	imageBase = strings.TrimRight(strings.TrimSpace(imageBase), "/")
	if imageBase == "" {
		imageBase = DefaultImageBase
	}
	return Presenter{imageBase: imageBase}
}

// Heading is the group heading posted before a kind's cards.
func Heading(kind media.Kind) string {
	switch kind {
	case media.KindMovie:
		return "🎥 Trending Movies"
	case media.KindShow:
		return "📺 Trending TV Shows"
	case media.KindAnime:
		return "🌸 Current Season Anime"
	}
	return "Trending"
}

// Accent returns the fixed card color of a kind.
func Accent(kind media.Kind) int {
	switch kind {
	case media.KindMovie:
		return AccentMovie
	case media.KindShow:
		return AccentShow
	case media.KindAnime:
		return AccentAnime
	}
	return 0
}

func (p Presenter) Render(it media.Item) DisplayCard {
	card := DisplayCard{
		Kind:     it.Kind,
		Heading:  orNA(it.Title),
		Summary:  summary(it.Overview),
		ImageURL: p.ImageURL(it.ImageRef),
		Accent:   Accent(it.Kind),
	}

	switch it.Kind {
	case media.KindMovie:
		card.Lines = []Line{
			{"Rating", rating(it)},
			{"Watching now", watchers(it)},
			{"Genre", genres(it.Raw)},
			{"Runtime", runtime(it.Raw)},
			{"Released", rawText(it.Raw, "release_date")},
		}
	case media.KindShow:
		card.Lines = []Line{
			{"Rating", rating(it)},
			{"Watching now", watchers(it)},
			{"Genre", genres(it.Raw)},
			{"Runtime", runtime(it.Raw)},
			{"Seasons", rawInt(it.Raw, "number_of_seasons")},
			{"Status", rawText(it.Raw, "status")},
		}
	case media.KindAnime:
		card.Lines = []Line{
			{"Score", rating(it)},
			{"Genre", genres(it.Raw)},
			{"Episodes", rawInt(it.Raw, "episodes")},
			{"Status", status(it.Raw)},
		}
	default:
		card.Lines = []Line{{"Rating", rating(it)}}
	}

	var b strings.Builder
	b.WriteString(card.Summary)
	if tag, ok := it.Raw.String("tagline"); ok {
		b.WriteString("\n_" + tag + "_")
	}
	for _, l := range card.Lines {
		b.WriteString("\n" + l.Label + ": " + l.Value)
	}
	card.Body = b.String()
	return card
}

// ImageURL resolves an image ref: absolute URLs pass through, path fragments
// join the image base, empty stays empty.
func (p Presenter) ImageURL(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	}
	base := p.imageBase
	if base == "" {
		base = DefaultImageBase
	}
	return base + "/" + strings.TrimLeft(ref, "/")
}

func rating(it media.Item) string {
	if it.Score == nil {
		return NotAvailable
	}
	if it.Kind == media.KindAnime {
		return fmt.Sprintf("%d/100", int(*it.Score+0.5))
	}
	votes := NotAvailable
	if it.VoteCount != nil {
		votes = strconv.Itoa(*it.VoteCount)
	}
	return fmt.Sprintf("%.1f/10 (%s votes)", *it.Score, votes)
}

func watchers(it media.Item) string {
	if it.Watchers == nil {
		return "0"
	}
	return strconv.Itoa(*it.Watchers)
}

func genres(raw media.Raw) string {
	gs, ok := raw.Strings("genres")
	if !ok {
		return NotAvailable
	}
	if len(gs) > 3 {
		gs = gs[:3]
	}
	return strings.Join(gs, ", ")
}

func runtime(raw media.Raw) string {
	n, ok := raw.Int("runtime")
	if !ok || n <= 0 {
		return NotAvailable
	}
	if n < 60 {
		return fmt.Sprintf("%d min", n)
	}
	return fmt.Sprintf("%dh %02dm", n/60, n%60)
}

func status(raw media.Raw) string {
	s, ok := raw.String("status")
	if !ok {
		return NotAvailable
	}
	// AniList statuses are SHOUTY_SNAKE
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return NotAvailable
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func rawText(raw media.Raw, key string) string {
	s, ok := raw.String(key)
	if !ok {
		return NotAvailable
	}
	return s
}

func rawInt(raw media.Raw, key string) string {
	n, ok := raw.Int(key)
	if !ok {
		return NotAvailable
	}
	return strconv.Itoa(n)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

func summary(overview string) string {
	overview = strings.TrimSpace(overview)
	if overview == "" {
		return NoDescription
	}
	rs := []rune(overview)
	if len(rs) <= maxSummary {
		return overview
	}
	cut := string(rs[:maxSummary])
	if i := strings.LastIndexByte(cut, ' '); i > maxSummary/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
