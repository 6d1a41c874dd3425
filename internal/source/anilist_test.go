package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"trendbot/internal/media"
)

func TestSeasonFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		date   string
		season string
		year   int
	}{
		{"2024-01-15", "WINTER", 2024},
		{"2024-02-29", "WINTER", 2024},
		{"2024-03-01", "SPRING", 2024},
		{"2024-05-31", "SPRING", 2024},
		{"2024-06-01", "SUMMER", 2024},
		{"2024-08-31", "SUMMER", 2024},
		{"2024-09-01", "FALL", 2024},
		{"2024-11-30", "FALL", 2024},
		{"2024-12-01", "WINTER", 2025},
	}
	for _, tt := range tests {
		d, _ := time.Parse("2006-01-02", tt.date)
		season, year := SeasonFor(d)
		if season != tt.season || year != tt.year {
			t.Fatalf("SeasonFor(%s) = %s %d, want %s %d", tt.date, season, year, tt.season, tt.year)
		}
	}
}

func TestAniListFetch(t *testing.T) {
	t.Parallel()
	var vars map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		_ = json.Unmarshal(b, &req)
		vars = req.Variables
		_, _ = w.Write([]byte(`{"data":{"Page":{"media":[
			{"id":1,"title":{"romaji":"Sousou no Frieren","english":"Frieren"},"averageScore":91,"genres":["Adventure","Drama"],
			 "coverImage":{"large":"https://img.anili.st/1.jpg"},"description":"An elf<br><br>and her <i>journey</i>.","episodes":28,"status":"RELEASING"},
			{"id":2,"title":{"romaji":null,"english":"English Only"}},
			{"id":3,"title":{}}
		]}}}`))
	}))
	defer srv.Close()

	now := func() time.Time { return time.Date(2023, time.December, 5, 0, 0, 0, 0, time.UTC) }
	a := NewAniList(NewClientWith(srv.Client()), AniListOptions{Endpoint: srv.URL, Now: now})
	items, err := a.Fetch(context.Background(), 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if vars["season"] != "WINTER" || vars["seasonYear"] != float64(2024) || vars["perPage"] != float64(10) {
		t.Fatalf("variables = %v", vars)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	f := items[0]
	if f.Kind != media.KindAnime || f.Title != "Sousou no Frieren" || *f.Score != 91 || f.ImageRef != "https://img.anili.st/1.jpg" {
		t.Fatalf("first = %+v", f)
	}
	if f.Overview != "An elf\n\nand her journey." {
		t.Fatalf("overview = %q", f.Overview)
	}
	if items[1].Title != "English Only" || items[1].Score != nil {
		t.Fatalf("second = %+v", items[1])
	}
}

func TestAniListPinnedSeasonAndErrors(t *testing.T) {
	t.Parallel()
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"Too Many Requests."}]}`))
	}))
	defer srv.Close()

	a := NewAniList(NewClientWith(srv.Client()), AniListOptions{Endpoint: srv.URL, Season: "summer", SeasonYear: 2022})
	_, err := a.Fetch(context.Background(), 10)
	if !errors.Is(err, media.ErrSourceUnavailable) || !strings.Contains(err.Error(), "Too Many Requests") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(body, `"season":"SUMMER"`) || !strings.Contains(body, `"seasonYear":2022`) {
		t.Fatalf("request body = %s", body)
	}
}
