package source

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"trendbot/internal/media"
	"trendbot/internal/metrics"
	logx "trendbot/pkg/logx"
)

type BreakerOptions struct {
	// Failures is the consecutive failure count that opens the breaker.
	Failures    uint32
	OpenTimeout time.Duration
	Log         logx.Logger
}

type breakerSource struct {
	Source
	cb *gobreaker.CircuitBreaker[[]media.Item]
}

// WithBreaker wraps src with a circuit breaker. Empty results and caller
// cancellation are not failures. An open breaker yields ErrSourceUnavailable.
func WithBreaker(src Source, opts BreakerOptions) Source {
	if opts.Failures == 0 {
		opts.Failures = 3
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 2 * time.Minute
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	label := src.Name() + "." + src.Kind().String()

	settings := gobreaker.Settings{
		Name:        label,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, media.ErrSourceEmpty) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(breakerGauge(to))
			log.Warn("source breaker state changed",
				logx.Source(name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	}
	metrics.BreakerState.WithLabelValues(label).Set(0)
	return &breakerSource{Source: src, cb: gobreaker.NewCircuitBreaker[[]media.Item](settings)}
}

func (b *breakerSource) Fetch(ctx context.Context, limit int) ([]media.Item, error) {
	items, err := b.cb.Execute(func() ([]media.Item, error) {
		return b.Source.Fetch(ctx, limit)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, media.Unavailable(b.Name(), b.Kind(), err)
	}
	return items, err
}

// State reports the breaker state for status pages.
func (b *breakerSource) State() string { return b.cb.State().String() }

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
