package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	finished, unsub := b.Subscribe(4, CycleFinished)
	defer unsub()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: CycleStarted})
	b.Publish(Event{Type: CycleFinished, Data: "r1"})

	if got := len(finished); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	if e := <-finished; e.Data != "r1" || e.Time.IsZero() {
		t.Fatalf("event = %+v", e)
	}
	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "x"})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "x"}) // no subscribers, no panic
}
