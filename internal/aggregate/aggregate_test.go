package aggregate

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"trendbot/internal/media"
	"trendbot/internal/source"
	logx "trendbot/pkg/logx"
)

type fakeSource struct {
	name  string
	kind  media.Kind
	items int
	err   error
}

func (f fakeSource) Name() string     { return f.name }
func (f fakeSource) Kind() media.Kind { return f.kind }
func (f fakeSource) Fetch(_ context.Context, limit int) ([]media.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]media.Item, 0, f.items)
	for i := 0; i < f.items && i < limit; i++ {
		out = append(out, media.NewItem(f.kind, f.name+"-"+strconv.Itoa(i), "T", nil))
	}
	return out, nil
}

type countingEnricher struct {
	calls atomic.Int32
	fail  int
}

func (c *countingEnricher) EnrichAll(_ context.Context, items []media.Item) ([]media.Item, []error) {
	c.calls.Add(1)
	out := make([]media.Item, len(items))
	for i, it := range items {
		out[i] = it.WithWatchers(i)
	}
	diags := make([]error, 0, c.fail)
	for i := 0; i < c.fail; i++ {
		diags = append(diags, &media.EnrichError{Concern: "watchers", Err: errors.New("x")})
	}
	return out, diags
}

func TestRunCycleIsolatesFailingSource(t *testing.T) {
	t.Parallel()
	down := media.Unavailable("tmdb", media.KindMovie, errors.New("503"))
	sources := []source.Source{
		fakeSource{name: "tmdb", kind: media.KindMovie, err: down},
		fakeSource{name: "tmdb", kind: media.KindShow, items: 4},
		fakeSource{name: "anilist", kind: media.KindAnime, items: 2},
	}
	enr := &countingEnricher{fail: 1}
	res := New(enr, 10, logx.Nop()).RunCycle(context.Background(), sources, true)

	movies := res[media.KindMovie]
	if !errors.Is(movies.Err, media.ErrSourceUnavailable) || len(movies.Items) != 0 {
		t.Fatalf("movie group = %+v", movies)
	}
	shows := res[media.KindShow]
	if shows.Err != nil || len(shows.Items) != 4 || shows.EnrichFailures != 1 {
		t.Fatalf("show group = %+v", shows)
	}
	if shows.Items[3].Watchers == nil {
		t.Fatal("show items were not enriched")
	}
	if anime := res[media.KindAnime]; anime.Err != nil || len(anime.Items) != 2 {
		t.Fatalf("anime group = %+v", anime)
	}
	// failed group is not enriched
	if got := enr.calls.Load(); got != 2 {
		t.Fatalf("EnrichAll calls = %d, want 2", got)
	}
	if got := res.Ordered(); len(got) != 3 || got[0] != media.KindMovie || got[2] != media.KindAnime {
		t.Fatalf("Ordered = %v", got)
	}
}

func TestRunCycleConcatenatesSameKind(t *testing.T) {
	t.Parallel()
	sources := []source.Source{
		fakeSource{name: "tmdb", kind: media.KindMovie, items: 2},
		fakeSource{name: "trakt", kind: media.KindMovie, items: 2},
		fakeSource{name: "broken", kind: media.KindMovie, err: media.Empty("broken", media.KindMovie)},
	}
	res := New(nil, 5, logx.Nop()).RunCycle(context.Background(), sources, false)
	grp := res[media.KindMovie]
	want := []string{"tmdb-0", "tmdb-1", "trakt-0", "trakt-1"}
	if len(grp.Items) != len(want) {
		t.Fatalf("items = %d, want %d", len(grp.Items), len(want))
	}
	for i, id := range want {
		if grp.Items[i].ID != id {
			t.Fatalf("items[%d] = %s, want %s", i, grp.Items[i].ID, id)
		}
	}
	if !errors.Is(grp.Err, media.ErrSourceEmpty) {
		t.Fatalf("joined err = %v", grp.Err)
	}
	if _, ok := res[media.KindShow]; ok {
		t.Fatal("kinds without sources must be absent")
	}
}
