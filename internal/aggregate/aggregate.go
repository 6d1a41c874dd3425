// Package aggregate fans out to every source, isolates their failures and
// groups the (optionally enriched) results by media kind.
package aggregate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"trendbot/internal/media"
	"trendbot/internal/metrics"
	"trendbot/internal/source"
	logx "trendbot/pkg/logx"
)

// Group is one kind's share of a cycle. Err is set only by source failures.
type Group struct {
	Items          []media.Item
	Err            error
	EnrichFailures int
}

// Result maps each kind that had at least one source to its group.
type Result map[media.Kind]Group

// Enricher is the subset of *enrich.Enricher the aggregator needs.
type Enricher interface {
	EnrichAll(ctx context.Context, items []media.Item) ([]media.Item, []error)
}

type Aggregator struct {
	enricher Enricher
	limit    int
	log      logx.Logger
}

// New returns an aggregator. enricher may be nil; limit <= 0 uses the
// source default.
func New(enricher Enricher, limit int, log logx.Logger) *Aggregator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{enricher: enricher, limit: limit, log: log}
}

type fetchResult struct {
	items []media.Item
	err   error
}

// RunCycle fetches all sources concurrently. A failing source contributes no
// items and its error; it never aborts the cycle. Sources sharing a kind are
// concatenated in registration order.
func (a *Aggregator) RunCycle(ctx context.Context, sources []source.Source, enrich bool) Result {
	results := make([]fetchResult, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i] = a.fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	out := Result{}
	errs := map[media.Kind][]error{}
	for i, src := range sources {
		k := src.Kind()
		grp := out[k]
		grp.Items = append(grp.Items, results[i].items...)
		out[k] = grp
		if results[i].err != nil {
			errs[k] = append(errs[k], results[i].err)
		}
	}

	for k, grp := range out {
		grp.Err = errors.Join(errs[k]...)
		if enrich && a.enricher != nil && len(grp.Items) > 0 {
			items, diags := a.enricher.EnrichAll(ctx, grp.Items)
			grp.Items = items
			grp.EnrichFailures = len(diags)
			if len(diags) > 0 {
				a.log.Warn("enrichment degraded",
					logx.Kind(k),
					logx.Int("failures", len(diags)),
					logx.Int("items", len(items)),
				)
			}
		}
		out[k] = grp
	}
	return out
}

func (a *Aggregator) fetch(ctx context.Context, src source.Source) fetchResult {
	name := src.Name() + "." + src.Kind().String()
	start := time.Now()
	items, err := src.Fetch(ctx, a.limit)
	metrics.SourceLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.SourceFetches.WithLabelValues(name, metrics.ResultOK).Inc()
		metrics.SourceItems.WithLabelValues(name).Set(float64(len(items)))
		a.log.Debug("source fetched", logx.Source(name), logx.Int("items", len(items)))
		return fetchResult{items: items}
	case errors.Is(err, media.ErrSourceEmpty):
		metrics.SourceFetches.WithLabelValues(name, metrics.ResultEmpty).Inc()
		metrics.SourceItems.WithLabelValues(name).Set(0)
		a.log.Info("source returned no items", logx.Source(name))
	default:
		metrics.SourceFetches.WithLabelValues(name, metrics.ResultUnavailable).Inc()
		a.log.Warn("source unavailable", logx.Source(name), logx.Err(err))
	}
	return fetchResult{err: err}
}

// Ordered returns the kinds present in r in the stable group order.
func (r Result) Ordered() []media.Kind {
	out := make([]media.Kind, 0, len(r))
	for _, k := range media.Kinds {
		if _, ok := r[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
