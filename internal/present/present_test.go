package present

import (
	"strings"
	"testing"
	"unicode/utf8"

	"trendbot/internal/media"
)

func lineValue(t *testing.T, c DisplayCard, label string) string {
	t.Helper()
	for _, l := range c.Lines {
		if l.Label == label {
			return l.Value
		}
	}
	t.Fatalf("card has no %q line: %+v", label, c.Lines)
	return ""
}

func TestRenderDuneWithFailedLookups(t *testing.T) {
	t.Parallel()
	raw := media.Raw{"title": "Dune", "vote_average": 8.0, "vote_count": float64(1000), "poster_path": "/x.jpg"}
	it := media.NewItem(media.KindMovie, "438631", "Dune", raw)
	it.Score = media.Float(8.0)
	it.VoteCount = media.Int(1000)
	it.ImageRef = "/x.jpg"

	c := New("").Render(it)
	if c.Heading != "Dune" {
		t.Fatalf("heading = %q", c.Heading)
	}
	if got := lineValue(t, c, "Rating"); got != "8.0/10 (1000 votes)" {
		t.Fatalf("rating = %q", got)
	}
	if got := lineValue(t, c, "Watching now"); got != "0" {
		t.Fatalf("watchers = %q", got)
	}
	if lineValue(t, c, "Genre") != NotAvailable || lineValue(t, c, "Runtime") != NotAvailable {
		t.Fatalf("genre/runtime should be N/A: %+v", c.Lines)
	}
	if c.ImageURL != "https://image.tmdb.org/t/p/w500/x.jpg" || c.Accent != AccentMovie {
		t.Fatalf("image/accent = %q %x", c.ImageURL, c.Accent)
	}
	for _, want := range []string{"Rating: 8.0/10 (1000 votes)", "Watching now: 0", "Genre: N/A", "Runtime: N/A", NoDescription} {
		if !strings.Contains(c.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, c.Body)
		}
	}
}

func TestRenderNeverPanicsOnEmptyItems(t *testing.T) {
	t.Parallel()
	p := New("")
	for _, k := range []media.Kind{media.KindMovie, media.KindShow, media.KindAnime, media.Kind(0)} {
		c := p.Render(media.Item{Kind: k})
		if c.Heading != NotAvailable || c.ImageURL != "" {
			t.Fatalf("kind %v: %+v", k, c)
		}
		for _, l := range c.Lines {
			if l.Value == "" {
				t.Fatalf("kind %v: empty value for %s", k, l.Label)
			}
		}
	}
}

func TestRating(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		item media.Item
		want string
	}{
		{"movie", media.Item{Kind: media.KindMovie, Score: media.Float(7.25), VoteCount: media.Int(12)}, "7.2/10 (12 votes)"},
		{"show no votes", media.Item{Kind: media.KindShow, Score: media.Float(6)}, "6.0/10 (N/A votes)"},
		{"nil score", media.Item{Kind: media.KindMovie, VoteCount: media.Int(3)}, NotAvailable},
		{"anime", media.Item{Kind: media.KindAnime, Score: media.Float(87)}, "87/100"},
		{"anime nil", media.Item{Kind: media.KindAnime}, NotAvailable},
	}
	for _, tt := range tests {
		if got := rating(tt.item); got != tt.want {
			t.Fatalf("%s: rating = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRenderEnrichedShowAndAnime(t *testing.T) {
	t.Parallel()
	p := New("https://img.example/w300/")
	show := media.NewItem(media.KindShow, "1", "Severance", media.Raw{
		"genres": []string{"Drama", "Mystery", "Sci-Fi", "Thriller"}, "runtime": 55, "number_of_seasons": 2, "status": "Returning Series",
	}).WithWatchers(812)
	c := p.Render(show)
	if lineValue(t, c, "Genre") != "Drama, Mystery, Sci-Fi" || lineValue(t, c, "Runtime") != "55 min" ||
		lineValue(t, c, "Seasons") != "2" || lineValue(t, c, "Watching now") != "812" {
		t.Fatalf("show lines = %+v", c.Lines)
	}
	if c.Accent != AccentShow {
		t.Fatalf("accent = %x", c.Accent)
	}

	anime := media.NewItem(media.KindAnime, "2", "Frieren", media.Raw{"episodes": float64(28), "status": "NOT_YET_RELEASED"})
	anime.ImageRef = "https://s4.anilist.co/c.jpg"
	c = p.Render(anime)
	if lineValue(t, c, "Status") != "Not yet released" || lineValue(t, c, "Episodes") != "28" || lineValue(t, c, "Score") != NotAvailable {
		t.Fatalf("anime lines = %+v", c.Lines)
	}
	if c.ImageURL != anime.ImageRef || c.Accent != AccentAnime {
		t.Fatalf("anime image/accent = %q %x", c.ImageURL, c.Accent)
	}
	if got := p.ImageURL("abc.jpg"); got != "https://img.example/w300/abc.jpg" {
		t.Fatalf("ImageURL = %q", got)
	}
}

func TestRuntimeAndSummary(t *testing.T) {
	t.Parallel()
	if got := runtime(media.Raw{"runtime": 155}); got != "2h 35m" {
		t.Fatalf("runtime = %q", got)
	}
	long := strings.Repeat("word ", 200)
	s := summary(long)
	if len([]rune(s)) > maxSummary+1 || !strings.HasSuffix(s, "…") {
		t.Fatalf("summary not truncated: %d %q", len(s), s[len(s)-10:])
	}
	if Heading(media.KindShow) != "📺 Trending TV Shows" {
		t.Fatalf("heading = %q", Heading(media.KindShow))
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"RELEASING", "Releasing"},
		{"NOT_YET_RELEASED", "Not yet released"},
		{"été", "Été"},
		{"ÉTÉ_PROCHAIN", "Été prochain"},
		{"終了", "終了"},
	}
	for _, tt := range tests {
		got := status(media.Raw{"status": tt.in})
		if got != tt.want || !utf8.ValidString(got) {
			t.Fatalf("status(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
