package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trendbot/internal/media"
)

func trendingBody(n int) string {
	rows := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, fmt.Sprintf(`{"id":%d,"title":"Movie %d","vote_average":7.5,"vote_count":%d,"poster_path":"/p%d.jpg","overview":"o"}`, i, i, i*10, i))
	}
	return `{"page":1,"results":[` + strings.Join(rows, ",") + `]}`
}

func TestTMDBFetchTruncatesInOrder(t *testing.T) {
	t.Parallel()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trending/movie/week" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("api_key")
		_, _ = w.Write([]byte(trendingBody(12)))
	}))
	defer srv.Close()

	tm := NewTMDB(NewClientWith(srv.Client()), TMDBOptions{APIKey: "abc123", BaseURL: srv.URL})
	src := tm.TrendingMovies()
	if src.Name() != "tmdb" || src.Kind() != media.KindMovie {
		t.Fatalf("identity = %s/%s", src.Name(), src.Kind())
	}

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 3, want: 3},
		{limit: 0, want: DefaultLimit},
		{limit: 50, want: 12},
	}
	for _, tt := range tests {
		items, err := src.Fetch(context.Background(), tt.limit)
		if err != nil {
			t.Fatalf("Fetch(%d): %v", tt.limit, err)
		}
		if len(items) != tt.want {
			t.Fatalf("Fetch(%d) len = %d, want %d", tt.limit, len(items), tt.want)
		}
		for i, it := range items {
			if want := fmt.Sprintf("%d", i+1); it.ID != want {
				t.Fatalf("Fetch(%d)[%d].ID = %s, want %s (order lost)", tt.limit, i, it.ID, want)
			}
		}
	}
	if gotQuery != "abc123" {
		t.Fatalf("api_key query = %q", gotQuery)
	}
}

func TestTMDBItemMapping(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"id":1,"name":"Show One","vote_average":8.2,"vote_count":50},
			{"name":"no id"},
			{"id":2}
		]}`))
	}))
	defer srv.Close()

	items, err := NewTMDB(NewClientWith(srv.Client()), TMDBOptions{BaseURL: srv.URL}).TrendingShows().Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2 (id-less row dropped)", len(items))
	}
	first := items[0]
	if first.Title != "Show One" || first.Kind != media.KindShow || *first.Score != 8.2 || *first.VoteCount != 50 {
		t.Fatalf("first = %+v", first)
	}
	if first.ImageRef != "" {
		t.Fatalf("missing poster should give empty ImageRef, got %q", first.ImageRef)
	}
	if items[1].Title != media.UntitledPlaceholder || items[1].Score != nil {
		t.Fatalf("second = %+v", items[1])
	}
}

func TestTMDBErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: 503, body: `oops`, wantErr: media.ErrSourceUnavailable},
		{name: "bad json", status: 200, body: `{"results":[`, wantErr: media.ErrSourceUnavailable},
		{name: "empty", status: 200, body: `{"results":[]}`, wantErr: media.ErrSourceEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewTMDB(NewClientWith(srv.Client()), TMDBOptions{APIKey: "secret", BaseURL: srv.URL}).TrendingMovies().Fetch(context.Background(), 5)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var se *media.SourceError
			if !errors.As(err, &se) || se.Source != "tmdb" || se.Kind != media.KindMovie {
				t.Fatalf("err not a tmdb SourceError: %#v", err)
			}
			if strings.Contains(err.Error(), "secret") {
				t.Fatalf("api key leaked into error: %v", err)
			}
		})
	}
}

func TestTMDBBearerAndDetails(t *testing.T) {
	t.Parallel()
	const token = "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.sig"
	var auth, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		query = r.URL.RawQuery
		if r.URL.Path != "/movie/42" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":42,"runtime":155,"genres":[{"id":1,"name":"Sci-Fi"}]}`))
	}))
	defer srv.Close()

	raw, err := NewTMDB(NewClientWith(srv.Client()), TMDBOptions{APIKey: token, BaseURL: srv.URL}).Details(context.Background(), media.KindMovie, "42")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if auth != "Bearer "+token || query != "" {
		t.Fatalf("auth = %q query = %q", auth, query)
	}
	if n, _ := raw.Int("runtime"); n != 155 {
		t.Fatalf("runtime = %v", raw["runtime"])
	}
	if _, err := NewTMDB(NewClientWith(srv.Client()), TMDBOptions{BaseURL: srv.URL}).Details(context.Background(), media.KindAnime, "1"); err == nil {
		t.Fatal("anime details should fail")
	}
}
