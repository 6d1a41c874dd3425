package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trendbot/internal/media"
)

type TMDBOptions struct {
	APIKey  string
	BaseURL string
	// Window is "day" or "week".
	Window string
}

// TMDB talks to The Movie Database v3 API.
type TMDB struct {
	c      *Client
	key    string
	base   string
	window string
}

func NewTMDB(c *Client, opts TMDBOptions) *TMDB {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = "https://api.themoviedb.org/3"
	}
	window := strings.TrimSpace(opts.Window)
	if window != "day" {
		window = "week"
	}
	return &TMDB{c: c, key: strings.TrimSpace(opts.APIKey), base: base, window: window}
}

// TrendingMovies is the movie group adapter.
func (t *TMDB) TrendingMovies() Source { return &tmdbTrending{tmdb: t, kind: media.KindMovie} }

// TrendingShows is the TV group adapter.
func (t *TMDB) TrendingShows() Source { return &tmdbTrending{tmdb: t, kind: media.KindShow} }

// Details fetches the full record of a movie or show by id.
func (t *TMDB) Details(ctx context.Context, kind media.Kind, id string) (media.Raw, error) {
	seg, err := tmdbSegment(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("tmdb details: empty id")
	}
	var out media.Raw
	if err := t.get(ctx, &out, seg, id); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TMDB) get(ctx context.Context, out any, segments ...string) error {
	u := joinURL(t.base, segments...)
	header := http.Header{}
	// v4 read access tokens are JWTs; v3 keys are short hex strings.
	if isBearerToken(t.key) {
		header.Set("Authorization", "Bearer "+t.key)
	} else if t.key != "" {
		u += "?" + url.Values{"api_key": {t.key}}.Encode()
	}
	return t.c.GetJSON(ctx, u, header, out)
}

func isBearerToken(key string) bool {
	return strings.HasPrefix(key, "eyJ") && strings.Count(key, ".") == 2
}

func tmdbSegment(kind media.Kind) (string, error) {
	switch kind {
	case media.KindMovie:
		return "movie", nil
	case media.KindShow:
		return "tv", nil
	case media.KindAnime:
		return "", fmt.Errorf("tmdb: no lookup for %s", kind)
	}
	return "", fmt.Errorf("tmdb: unknown kind %d", kind)
}

type tmdbTrending struct {
	tmdb *TMDB
	kind media.Kind
}

func (s *tmdbTrending) Name() string     { return "tmdb" }
func (s *tmdbTrending) Kind() media.Kind { return s.kind }

func (s *tmdbTrending) Fetch(ctx context.Context, limit int) ([]media.Item, error) {
	seg, err := tmdbSegment(s.kind)
	if err != nil {
		return nil, media.Unavailable(s.Name(), s.kind, err)
	}
	var page struct {
		Results []media.Raw `json:"results"`
	}
	if err := s.tmdb.get(ctx, &page, "trending", seg, s.tmdb.window); err != nil {
		return nil, media.Unavailable(s.Name(), s.kind, err)
	}

	items := make([]media.Item, 0, min(len(page.Results), normLimit(limit)))
	for _, raw := range page.Results {
		if it, ok := tmdbItem(s.kind, raw); ok {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, media.Empty(s.Name(), s.kind)
	}
	return capItems(items, limit), nil
}

// tmdbItem maps a trending result. Results without an id cannot be enriched
// and are dropped.
func tmdbItem(kind media.Kind, raw media.Raw) (media.Item, bool) {
	id, ok := raw.Int("id")
	if !ok || id <= 0 {
		return media.Item{}, false
	}
	title := firstString(raw, "title", "name", "original_title", "original_name")
	it := media.NewItem(kind, strconv.Itoa(id), title, raw)
	if v, ok := raw.Float("vote_average"); ok {
		it.Score = media.Float(v)
	}
	if n, ok := raw.Int("vote_count"); ok {
		it.VoteCount = media.Int(n)
	}
	it.ImageRef, _ = raw.String("poster_path")
	it.Overview, _ = raw.String("overview")
	return it, true
}

func firstString(raw media.Raw, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw.String(k); ok {
			return s
		}
	}
	return ""
}
