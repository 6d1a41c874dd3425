package notifier

import (
	"time"

	kit "trendbot/internal/transport"
)

// Config controls the async alert pipeline.
type Config struct {
	Enabled         bool
	Target          kit.ChatTarget
	Workers         int
	QueueSize       int
	RatePerMin      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RatePerMin <= 0 {
		c.RatePerMin = 6
	}
	c.RetryMax = max(c.RetryMax, 0)
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	c.DedupWindow = max(c.DedupWindow, 0)
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 1000
	}
	return c
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Key   string    `json:"key"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

// Event types published by the notifier.
const (
	EventSent    = "notifier.sent"
	EventDeduped = "notifier.deduped"
	EventDropped = "notifier.dropped"
	EventFailed  = "notifier.failed"
)
