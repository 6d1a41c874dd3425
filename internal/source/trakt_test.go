package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"trendbot/internal/media"
)

func TestTraktWatching(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("trakt-api-version") != "2" || r.Header.Get("trakt-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/movies/dune-2021/watching":
			_, _ = w.Write([]byte(`[{"username":"a"},{"username":"b"},{"username":"c"}]`))
		case "/shows/broken/watching":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tr := NewTrakt(NewClientWith(srv.Client()), TraktOptions{APIKey: "key", BaseURL: srv.URL, RatePerSec: 100})
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    media.Kind
		slug    string
		want    int
		wantErr bool
	}{
		{name: "counted", kind: media.KindMovie, slug: "dune-2021", want: 3},
		{name: "unknown slug is zero", kind: media.KindMovie, slug: "nope"},
		{name: "empty slug is zero", kind: media.KindShow, slug: ""},
		{name: "upstream failure", kind: media.KindShow, slug: "broken", wantErr: true},
		{name: "anime unsupported", kind: media.KindAnime, slug: "x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := tr.Watching(ctx, tt.kind, tt.slug)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: Watching = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestTraktTrending(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shows/trending" || r.URL.Query().Get("limit") != "2" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"watchers":120,"show":{"title":"Severance","year":2022,"ids":{"trakt":1,"slug":"severance","tmdb":95396}}},
			{"watchers":50,"show":{"title":"No TMDB","ids":{"trakt":7,"slug":"no-tmdb"}}},
			{"watchers":1,"show":{"title":"Third","ids":{"trakt":9,"tmdb":3}}}
		]`))
	}))
	defer srv.Close()

	items, err := NewTrakt(NewClientWith(srv.Client()), TraktOptions{BaseURL: srv.URL, RatePerSec: 100}).TrendingShows().Fetch(context.Background(), 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	first := items[0]
	if first.ID != "95396" || first.Title != "Severance" || first.Watchers == nil || *first.Watchers != 120 {
		t.Fatalf("first = %+v", first)
	}
	if slug, _ := first.Raw.String("trakt_slug"); slug != "severance" {
		t.Fatalf("trakt_slug = %q", slug)
	}
	if items[1].ID != "trakt:7" {
		t.Fatalf("fallback id = %q", items[1].ID)
	}
}

func TestTraktTrendingUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewTrakt(NewClientWith(srv.Client()), TraktOptions{BaseURL: srv.URL}).TrendingMovies().Fetch(context.Background(), 5)
	var se *HTTPStatusError
	if !errors.Is(err, media.ErrSourceUnavailable) || !errors.As(err, &se) || se.StatusCode != 500 {
		t.Fatalf("err = %v", err)
	}
}
