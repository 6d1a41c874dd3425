package source

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"trendbot/internal/media"
)

type stubSource struct {
	name  string
	kind  media.Kind
	calls int
	fn    func(limit int) ([]media.Item, error)
}

func (s *stubSource) Name() string     { return s.name }
func (s *stubSource) Kind() media.Kind { return s.kind }
func (s *stubSource) Fetch(_ context.Context, limit int) ([]media.Item, error) {
	s.calls++
	return s.fn(limit)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()
	stub := &stubSource{name: "flaky", kind: media.KindMovie, fn: func(int) ([]media.Item, error) {
		return nil, media.Unavailable("flaky", media.KindMovie, errors.New("down"))
	}}
	src := WithBreaker(stub, BreakerOptions{Failures: 2, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := src.Fetch(context.Background(), 5); !errors.Is(err, media.ErrSourceUnavailable) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	_, err := src.Fetch(context.Background(), 5)
	if !errors.Is(err, media.ErrSourceUnavailable) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("open breaker err = %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("upstream calls = %d, want 2", stub.calls)
	}
}

func TestBreakerIgnoresEmpty(t *testing.T) {
	t.Parallel()
	stub := &stubSource{name: "quiet", kind: media.KindAnime, fn: func(int) ([]media.Item, error) {
		return nil, media.Empty("quiet", media.KindAnime)
	}}
	src := WithBreaker(stub, BreakerOptions{Failures: 1, OpenTimeout: time.Hour})
	for i := 0; i < 3; i++ {
		if _, err := src.Fetch(context.Background(), 5); !errors.Is(err, media.ErrSourceEmpty) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if stub.calls != 3 {
		t.Fatalf("empty results must not trip the breaker; calls = %d", stub.calls)
	}
}
