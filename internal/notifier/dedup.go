package notifier

import (
	"context"
	"sync"
	"time"

	rtsup "trendbot/internal/runtime/supervisor"
	"trendbot/internal/storage"
)

// dedupTable suppresses repeat alerts for a window. With a store attached the
// table is read through on a miss and written behind, so a restart does not
// re-alert.
type dedupTable struct {
	store storage.Store

	mu    sync.Mutex
	until map[string]time.Time
	out   chan dedupWrite // nil unless persisting
}

type dedupWrite struct {
	key   string
	until time.Time
}

func newDedupTable(store storage.Store) *dedupTable {
	return &dedupTable{store: store, until: map[string]time.Time{}}
}

// claim reports whether key may alert now and, if so, holds it for window.
func (d *dedupTable) claim(ctx context.Context, key string, window time.Duration, maxEntries int, persist bool) bool {
	now := time.Now()
	if d.held(key, now) {
		return false
	}
	if persist && d.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		until, ok, err := d.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			d.mu.Lock()
			d.until[key] = until
			d.mu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	d.mu.Lock()
	d.until[key] = until
	d.evict(now, maxEntries)
	out := d.out
	d.mu.Unlock()

	if out != nil {
		select {
		case out <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

func (d *dedupTable) held(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.until[key]
	return ok && now.Before(until)
}

// evict drops expired keys, then the soonest-expiring ones past maxEntries.
// Caller holds d.mu.
func (d *dedupTable) evict(now time.Time, maxEntries int) {
	for k, u := range d.until {
		if !now.Before(u) {
			delete(d.until, k)
		}
	}
	for len(d.until) > maxEntries {
		var oldest string
		for k, u := range d.until {
			if oldest == "" || u.Before(d.until[oldest]) {
				oldest = k
			}
		}
		delete(d.until, oldest)
	}
}

// startPersist writes claims to the store from a supervised task.
func (d *dedupTable) startPersist(sup *rtsup.Supervisor) {
	if d.store == nil {
		return
	}
	out := make(chan dedupWrite, 256)
	d.mu.Lock()
	d.out = out
	d.mu.Unlock()

	sup.Go0("dedup.persist", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case w, ok := <-out:
				if !ok {
					return
				}
				cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
				_ = d.store.PutDedup(cctx, w.key, w.until)
				cancel()
			}
		}
	})
}

// stopPersist closes the write-behind channel. Claims made afterwards stay
// in memory only.
func (d *dedupTable) stopPersist() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out != nil {
		close(d.out)
		d.out = nil
	}
}
