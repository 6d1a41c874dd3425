package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": jsonl journal + dedup snapshot next to Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CycleRecord is one journal row. Keep it compact and schema-stable.
type CycleRecord struct {
	ID         string        `json:"id"`
	Trigger    string        `json:"trigger"`
	Outcome    string        `json:"outcome"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Groups     []GroupRecord `json:"groups,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// GroupRecord is the per-kind share of a cycle.
type GroupRecord struct {
	Kind             string `json:"kind"`
	Fetched          int    `json:"fetched"`
	Published        int    `json:"published"`
	EnrichFailures   int    `json:"enrich_failures,omitempty"`
	DeliveryFailures int    `json:"delivery_failures,omitempty"`
	Error            string `json:"error,omitempty"`
}

func (r CycleRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
