package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"trendbot/internal/media"
)

type TraktOptions struct {
	APIKey     string
	BaseURL    string
	RatePerSec int
}

// Trakt serves watcher counts and, optionally, its own trending lists.
type Trakt struct {
	c    *Client
	key  string
	base string
	lim  *rate.Limiter
}

func NewTrakt(c *Client, opts TraktOptions) *Trakt {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = "https://api.trakt.tv"
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Trakt{
		c:    c,
		key:  strings.TrimSpace(opts.APIKey),
		base: base,
		lim:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (t *Trakt) header() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("trakt-api-version", "2")
	h.Set("trakt-api-key", t.key)
	return h
}

func (t *Trakt) get(ctx context.Context, rawURL string, out any) error {
	if err := t.lim.Wait(ctx); err != nil {
		return err
	}
	return t.c.GetJSON(ctx, rawURL, t.header(), out)
}

func traktSegment(kind media.Kind) (string, error) {
	switch kind {
	case media.KindMovie:
		return "movies", nil
	case media.KindShow:
		return "shows", nil
	case media.KindAnime:
		return "", fmt.Errorf("trakt: no lookup for %s", kind)
	}
	return "", fmt.Errorf("trakt: unknown kind %d", kind)
}

// Watching returns how many users are watching the title right now.
// An unknown slug (404) counts as zero watchers.
func (t *Trakt) Watching(ctx context.Context, kind media.Kind, slug string) (int, error) {
	seg, err := traktSegment(kind)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(slug) == "" {
		return 0, nil
	}
	var users []any
	err = t.get(ctx, joinURL(t.base, seg, slug, "watching"), &users)
	var se *HTTPStatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// TrendingMovies is the optional Trakt movie trending adapter.
func (t *Trakt) TrendingMovies() Source { return &traktTrending{trakt: t, kind: media.KindMovie} }

// TrendingShows is the optional Trakt show trending adapter.
func (t *Trakt) TrendingShows() Source { return &traktTrending{trakt: t, kind: media.KindShow} }

type traktTrending struct {
	trakt *Trakt
	kind  media.Kind
}

func (s *traktTrending) Name() string     { return "trakt" }
func (s *traktTrending) Kind() media.Kind { return s.kind }

func (s *traktTrending) Fetch(ctx context.Context, limit int) ([]media.Item, error) {
	seg, err := traktSegment(s.kind)
	if err != nil {
		return nil, media.Unavailable(s.Name(), s.kind, err)
	}
	limit = normLimit(limit)
	u := joinURL(s.trakt.base, seg, "trending") + "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()

	var rows []media.Raw
	if err := s.trakt.get(ctx, u, &rows); err != nil {
		return nil, media.Unavailable(s.Name(), s.kind, err)
	}
	entity := strings.TrimSuffix(seg, "s")

	items := make([]media.Item, 0, min(len(rows), limit))
	for _, row := range rows {
		if it, ok := traktItem(s.kind, entity, row); ok {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, media.Empty(s.Name(), s.kind)
	}
	return capItems(items, limit), nil
}

// traktItem maps {"watchers":n,"movie":{...,"ids":{...}}}. The TMDB id becomes
// the item id so detail lookups still work.
func traktItem(kind media.Kind, entity string, row media.Raw) (media.Item, bool) {
	inner, ok := row[entity].(map[string]any)
	if !ok {
		return media.Item{}, false
	}
	raw := media.Raw(inner)
	ids, _ := raw["ids"].(map[string]any)
	idRaw := media.Raw(ids)

	id := ""
	if n, ok := idRaw.Int("tmdb"); ok && n > 0 {
		id = strconv.Itoa(n)
	} else if n, ok := idRaw.Int("trakt"); ok && n > 0 {
		id = "trakt:" + strconv.Itoa(n)
	}
	if id == "" {
		return media.Item{}, false
	}

	extra := media.Raw{"source": "trakt"}
	if slug, ok := idRaw.String("slug"); ok {
		extra["trakt_slug"] = slug
	}
	it := media.NewItem(kind, id, firstString(raw, "title"), raw).WithRaw(extra)
	if w, ok := row.Int("watchers"); ok {
		it = it.WithWatchers(w)
	}
	return it, true
}
