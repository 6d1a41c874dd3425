// Package publish delivers rendered cards to a destination in bounded,
// rate-limited chunks.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trendbot/internal/media"
	"trendbot/internal/metrics"
	"trendbot/internal/present"
	logx "trendbot/pkg/logx"
)

const (
	// MaxCardsPerCall is the hard per-call payload cap of every destination.
	MaxCardsPerCall = 10
	DefaultInterval = time.Second
)

// Destination is a chat channel able to receive headings and card batches.
type Destination interface {
	Name() string
	// Check verifies the destination is configured and reachable.
	Check(ctx context.Context) error
	SendHeading(ctx context.Context, text string) error
	// SendCards delivers at most MaxCardsPerCall cards in one call.
	SendCards(ctx context.Context, cards []present.DisplayCard) error
}

// PartialError is returned by SendCards when a destination needed several
// calls for one chunk and only the first Delivered cards went out.
type PartialError struct {
	Delivered int
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%d cards delivered before failure: %v", e.Delivered, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// Chunk splits cards into ordered chunks of at most n (1..MaxCardsPerCall).
func Chunk(cards []present.DisplayCard, n int) [][]present.DisplayCard {
	n = clampChunk(n)
	if len(cards) == 0 {
		return nil
	}
	out := make([][]present.DisplayCard, 0, (len(cards)+n-1)/n)
	for start := 0; start < len(cards); start += n {
		end := min(start+n, len(cards))
		out = append(out, cards[start:end:end])
	}
	return out
}

func clampChunk(n int) int {
	if n <= 0 || n > MaxCardsPerCall {
		return MaxCardsPerCall
	}
	return n
}

type Options struct {
	ChunkSize int
	// Interval spaces consecutive delivery calls.
	Interval time.Duration
	Log      logx.Logger
}

// Stats summarizes one Publish call.
type Stats struct {
	Cards        int
	Chunks       int
	Delivered    int
	FailedChunks int
	HeadingErr   bool
}

type Publisher struct {
	dest Destination

	mu      sync.Mutex
	chunk   int
	limiter *rate.Limiter
	log     logx.Logger
}

func New(dest Destination, opts Options) *Publisher {
	p := &Publisher{dest: dest, log: opts.Log}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	p.Apply(opts.ChunkSize, opts.Interval)
	return p
}

// Apply updates chunk size and spacing. Safe while publishing; the next call
// picks up the change.
func (p *Publisher) Apply(chunkSize int, interval time.Duration) {
	if interval < 0 {
		interval = 0
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		lim = rate.NewLimiter(rate.Every(interval), 1)
	}
	p.mu.Lock()
	p.chunk = clampChunk(chunkSize)
	p.limiter = lim
	p.mu.Unlock()
}

func (p *Publisher) Destination() Destination { return p.dest }

func (p *Publisher) settings() (int, *rate.Limiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunk, p.limiter
}

// Publish sends heading once and then every chunk in order. Failed parts are
// not retried and do not stop the remaining chunks. The returned error joins
// every *media.DeliveryError.
func (p *Publisher) Publish(ctx context.Context, heading string, cards []present.DisplayCard) (Stats, error) {
	size, lim := p.settings()
	chunks := Chunk(cards, size)
	st := Stats{Cards: len(cards), Chunks: len(chunks)}
	name := p.dest.Name()

	var errs []error
	deliver := func(part string, chunkIdx, n int, send func() error) bool {
		if err := lim.Wait(ctx); err != nil {
			errs = append(errs, &media.DeliveryError{Destination: name, Heading: heading, Chunk: chunkIdx, Size: n, Err: err})
			return false
		}
		if err := send(); err != nil {
			metrics.DeliveryCalls.WithLabelValues(name, part, metrics.ResultFailed).Inc()
			errs = append(errs, &media.DeliveryError{Destination: name, Heading: heading, Chunk: chunkIdx, Size: n, Err: err})
			p.log.Warn("delivery failed",
				logx.String("destination", name),
				logx.String("heading", heading),
				logx.Int("chunk", chunkIdx),
				logx.Int("size", n),
				logx.Err(err),
			)
			return false
		}
		metrics.DeliveryCalls.WithLabelValues(name, part, metrics.ResultOK).Inc()
		return true
	}

	if heading != "" {
		if !deliver("heading", -1, 0, func() error { return p.dest.SendHeading(ctx, heading) }) {
			st.HeadingErr = true
		}
	}
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			errs = append(errs, &media.DeliveryError{Destination: name, Heading: heading, Chunk: i, Size: len(chunk), Err: ctx.Err()})
			st.FailedChunks++
			continue
		}
		var sendErr error
		if deliver("chunk", i, len(chunk), func() error { sendErr = p.dest.SendCards(ctx, chunk); return sendErr }) {
			st.Delivered += len(chunk)
			continue
		}
		st.FailedChunks++
		if pe := (*PartialError)(nil); errors.As(sendErr, &pe) {
			st.Delivered += min(max(pe.Delivered, 0), len(chunk))
		}
	}
	return st, errors.Join(errs...)
}
