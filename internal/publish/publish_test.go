package publish

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"trendbot/internal/media"
	"trendbot/internal/present"
)

type recordingDest struct {
	mu       sync.Mutex
	calls    []string
	sizes    []int
	failCall map[int]bool // chunk index -> fail
	partial  map[int]int  // chunk index -> cards sent before failing
	failHead bool
}

func (d *recordingDest) Name() string                { return "recorder" }
func (d *recordingDest) Check(context.Context) error { return nil }
func (d *recordingDest) SendHeading(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "heading:"+text)
	if d.failHead {
		return errors.New("heading rejected")
	}
	return nil
}

func (d *recordingDest) SendCards(_ context.Context, cards []present.DisplayCard) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := len(d.sizes)
	d.sizes = append(d.sizes, len(cards))
	d.calls = append(d.calls, "cards:"+cards[0].Heading)
	if n, ok := d.partial[idx]; ok {
		return &PartialError{Delivered: n, Err: errors.New("album rejected")}
	}
	if d.failCall[idx] {
		return errors.New("chunk rejected")
	}
	return nil
}

func cards(n int) []present.DisplayCard {
	out := make([]present.DisplayCard, n)
	for i := range out {
		out[i] = present.DisplayCard{Heading: strconv.Itoa(i)}
	}
	return out
}

func TestChunk(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n, size int
		want    []int
	}{
		{23, 10, []int{10, 10, 3}},
		{20, 10, []int{10, 10}},
		{3, 10, []int{3}},
		{0, 10, nil},
		{5, 2, []int{2, 2, 1}},
		{12, 0, []int{10, 2}},
		{12, 50, []int{10, 2}},
	}
	for _, tt := range tests {
		got := Chunk(cards(tt.n), tt.size)
		if len(got) != len(tt.want) {
			t.Fatalf("Chunk(%d,%d) = %d chunks, want %v", tt.n, tt.size, len(got), tt.want)
		}
		next := 0
		for i, c := range got {
			if len(c) != tt.want[i] {
				t.Fatalf("Chunk(%d,%d)[%d] = %d, want %d", tt.n, tt.size, i, len(c), tt.want[i])
			}
			for _, card := range c {
				if card.Heading != strconv.Itoa(next) {
					t.Fatalf("Chunk(%d,%d) order broken at %s", tt.n, tt.size, card.Heading)
				}
				next++
			}
		}
	}
}

func TestPublishSendsHeadingThenThreeChunks(t *testing.T) {
	t.Parallel()
	dest := &recordingDest{}
	p := New(dest, Options{ChunkSize: 10, Interval: 0})

	st, err := p.Publish(context.Background(), "🎥 Trending Movies", cards(23))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(dest.sizes) != 3 || dest.sizes[0] != 10 || dest.sizes[1] != 10 || dest.sizes[2] != 3 {
		t.Fatalf("chunk sizes = %v, want [10 10 3]", dest.sizes)
	}
	want := []string{"heading:🎥 Trending Movies", "cards:0", "cards:10", "cards:20"}
	for i, w := range want {
		if dest.calls[i] != w {
			t.Fatalf("call %d = %q, want %q", i, dest.calls[i], w)
		}
	}
	if st.Delivered != 23 || st.Chunks != 3 || st.FailedChunks != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPublishContinuesAfterFailures(t *testing.T) {
	t.Parallel()
	dest := &recordingDest{failHead: true, failCall: map[int]bool{1: true}}
	p := New(dest, Options{ChunkSize: 10})

	st, err := p.Publish(context.Background(), "h", cards(23))
	if !errors.Is(err, media.ErrDelivery) {
		t.Fatalf("err = %v", err)
	}
	if len(dest.sizes) != 3 {
		t.Fatalf("remaining chunks not attempted: %v", dest.sizes)
	}
	var failed []int
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var de *media.DeliveryError
		if errors.As(e, &de) {
			failed = append(failed, de.Chunk)
		}
	}
	if len(failed) != 2 || failed[0] != -1 || failed[1] != 1 {
		t.Fatalf("failed parts = %v, want [-1 1]", failed)
	}
	if st.Delivered != 13 || st.FailedChunks != 1 || !st.HeadingErr {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPublishCanceledContext(t *testing.T) {
	t.Parallel()
	dest := &recordingDest{}
	p := New(dest, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := p.Publish(ctx, "", cards(3))
	if !errors.Is(err, context.Canceled) || len(dest.calls) != 0 || st.FailedChunks != 1 {
		t.Fatalf("err=%v calls=%v stats=%+v", err, dest.calls, st)
	}
}

func TestPublishCountsPartialChunks(t *testing.T) {
	t.Parallel()
	dest := &recordingDest{partial: map[int]int{0: 4, 2: 99}}
	p := New(dest, Options{ChunkSize: 10})

	st, err := p.Publish(context.Background(), "", cards(23))
	var pe *PartialError
	if !errors.Is(err, media.ErrDelivery) || !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	// 4 of chunk 0, all of chunk 1, chunk 2 capped at its size.
	if st.Delivered != 4+10+3 || st.FailedChunks != 2 {
		t.Fatalf("stats = %+v", st)
	}
}
