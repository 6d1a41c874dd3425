// Package enrich adds secondary lookups (provider details and "watching now"
// counts) to fetched items. Enrichment never fails: every concern degrades on
// its own and leaves a diagnostic.
package enrich

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"trendbot/internal/media"
	"trendbot/internal/metrics"
	logx "trendbot/pkg/logx"
)

const (
	ConcernDetails  = "details"
	ConcernWatchers = "watchers"
)

// DetailLookup returns the full provider record for an item id.
type DetailLookup interface {
	Details(ctx context.Context, kind media.Kind, id string) (media.Raw, error)
}

// WatcherCounter returns the current watcher count for a slug. An unknown slug
// is (0, nil).
type WatcherCounter interface {
	Watching(ctx context.Context, kind media.Kind, slug string) (int, error)
}

type Options struct {
	Details  DetailLookup
	Watchers WatcherCounter
	// Cache is optional.
	Cache       Cache
	DetailsTTL  time.Duration
	WatchersTTL time.Duration
	// Concurrency bounds EnrichAll fan-out. Default 4.
	Concurrency int
	Log         logx.Logger
}

type Enricher struct {
	details     DetailLookup
	watchers    WatcherCounter
	cache       Cache
	detailsTTL  time.Duration
	watchersTTL time.Duration
	limit       int
	log         logx.Logger
}

func New(opts Options) *Enricher {
	e := &Enricher{
		details:     opts.Details,
		watchers:    opts.Watchers,
		cache:       opts.Cache,
		detailsTTL:  opts.DetailsTTL,
		watchersTTL: opts.WatchersTTL,
		limit:       opts.Concurrency,
		log:         opts.Log,
	}
	if e.detailsTTL <= 0 {
		e.detailsTTL = 6 * time.Hour
	}
	if e.watchersTTL <= 0 {
		e.watchersTTL = 10 * time.Minute
	}
	if e.limit <= 0 {
		e.limit = 4
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	return e
}

// Enrich returns item with whatever lookups succeeded.
func (e *Enricher) Enrich(ctx context.Context, item media.Item) media.Item {
	out, _ := e.EnrichItem(ctx, item)
	return out
}

// EnrichItem is Enrich plus the per-concern diagnostics (*media.EnrichError).
func (e *Enricher) EnrichItem(ctx context.Context, item media.Item) (media.Item, []error) {
	switch item.Kind {
	case media.KindMovie, media.KindShow:
	case media.KindAnime:
		// no secondary lookups for anime
		return item, nil
	default:
		return item, nil
	}

	var diags []error
	fail := func(concern string, err error) {
		d := &media.EnrichError{ItemID: item.ID, Kind: item.Kind, Concern: concern, Err: err}
		diags = append(diags, d)
		metrics.EnrichFailures.WithLabelValues(item.Kind.String(), concern).Inc()
		e.log.Debug("enrichment degraded",
			logx.String("id", item.ID),
			logx.Kind(item.Kind),
			logx.String("concern", concern),
			logx.Err(err),
		)
	}

	out := item
	if e.details != nil && detailID(item) != "" {
		raw, err := e.lookupDetails(ctx, item.Kind, detailID(item))
		if err != nil {
			fail(ConcernDetails, err)
		} else {
			out = mergeDetails(out, raw)
		}
	}

	if e.watchers != nil && item.Watchers == nil {
		n, err := e.lookupWatchers(ctx, item.Kind, slugFor(item))
		if err != nil {
			fail(ConcernWatchers, err)
		} else {
			out = out.WithWatchers(n)
		}
	}
	return out, diags
}

// EnrichAll enriches items concurrently, bounded by the configured limit,
// and returns them in input order together with every diagnostic.
func (e *Enricher) EnrichAll(ctx context.Context, items []media.Item) ([]media.Item, []error) {
	out := make([]media.Item, len(items))
	diags := make([][]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, it := range items {
		g.Go(func() error {
			out[i], diags[i] = e.EnrichItem(gctx, it)
			return nil
		})
	}
	_ = g.Wait()

	var all []error
	for _, d := range diags {
		all = append(all, d...)
	}
	return out, all
}

// detailID is empty for items that have no TMDB id (Trakt-only rows).
func detailID(it media.Item) string {
	if strings.HasPrefix(it.ID, "trakt:") {
		return ""
	}
	return it.ID
}

func slugFor(it media.Item) string {
	if s, ok := it.Raw.String("trakt_slug"); ok {
		return s
	}
	return Slug(it.Title)
}

func (e *Enricher) lookupDetails(ctx context.Context, kind media.Kind, id string) (media.Raw, error) {
	key := "details:" + kind.String() + ":" + id
	if b, ok := e.cacheGet(ctx, ConcernDetails, key); ok {
		var raw media.Raw
		if err := json.Unmarshal(b, &raw); err == nil {
			return raw, nil
		}
	}
	raw, err := e.details.Details(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("empty detail record")
	}
	if b, err := json.Marshal(raw); err == nil {
		e.cacheSet(ctx, key, b, e.detailsTTL)
	}
	return raw, nil
}

func (e *Enricher) lookupWatchers(ctx context.Context, kind media.Kind, slug string) (int, error) {
	if slug == "" {
		return 0, nil
	}
	key := "watchers:" + kind.String() + ":" + slug
	if b, ok := e.cacheGet(ctx, ConcernWatchers, key); ok {
		if n, err := strconv.Atoi(string(b)); err == nil {
			return n, nil
		}
	}
	n, err := e.watchers.Watching(ctx, kind, slug)
	if err != nil {
		return 0, err
	}
	e.cacheSet(ctx, key, []byte(strconv.Itoa(n)), e.watchersTTL)
	return n, nil
}

// cache failures only cost a lookup
func (e *Enricher) cacheGet(ctx context.Context, concern, key string) ([]byte, bool) {
	if e.cache == nil {
		return nil, false
	}
	b, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Debug("cache read failed", logx.String("key", key), logx.Err(err))
		return nil, false
	}
	if ok {
		metrics.CacheLookups.WithLabelValues(concern, metrics.ResultHit).Inc()
	} else {
		metrics.CacheLookups.WithLabelValues(concern, metrics.ResultMiss).Inc()
	}
	return b, ok
}

func (e *Enricher) cacheSet(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, val, ttl); err != nil {
		e.log.Debug("cache write failed", logx.String("key", key), logx.Err(err))
	}
}

// mergeDetails copies the presentation fields of a detail record into a copy
// of it. Missing fields are simply not copied.
func mergeDetails(it media.Item, d media.Raw) media.Item {
	extra := media.Raw{}
	if genres, ok := d.Strings("genres"); ok {
		extra["genres"] = genres
	}
	if n, ok := d.Int("runtime"); ok && n > 0 {
		extra["runtime"] = n
	} else if rts, ok := d.Ints("episode_run_time"); ok && rts[0] > 0 {
		extra["runtime"] = rts[0]
	}
	for _, k := range []string{"tagline", "release_date", "first_air_date", "status"} {
		if s, ok := d.String(k); ok {
			extra[k] = s
		}
	}
	if n, ok := d.Int("number_of_seasons"); ok {
		extra["number_of_seasons"] = n
	}

	out := it.WithRaw(extra)
	if p, ok := d.String("poster_path"); ok {
		out = out.WithImage(p)
	}
	if out.Score == nil {
		if v, ok := d.Float("vote_average"); ok {
			out.Score = media.Float(v)
		}
	}
	if out.VoteCount == nil {
		if n, ok := d.Int("vote_count"); ok {
			out.VoteCount = media.Int(n)
		}
	}
	if out.Overview == "" {
		out.Overview, _ = d.String("overview")
	}
	return out
}
