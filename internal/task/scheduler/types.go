package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "trendbot/pkg/logx"
)

// Config controls the daily trigger.
type Config struct {
	Enabled  bool
	PostTime string // HH:MM, wall clock in Timezone
	Timezone string // IANA TZ or "local"
}

// Job is the work fired at post time.
type Job func(ctx context.Context) error

type State int32

const (
	StateIdle State = iota
	StateTriggering
)

func (s State) String() string {
	if s == StateTriggering {
		return "triggering"
	}
	return "idle"
}

const minuteSpec = "* * * * *"

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	hour, minute int
	postOK       bool

	job Job
	ctx context.Context

	c       *cron.Cron
	entryID cron.EntryID

	// lastKey is the minute key ("2006-01-02 15:04") that last fired.
	lastKey   string
	lastFired time.Time
	lastErr   error

	state atomic.Int32
	fired atomic.Uint64
}

type Snapshot struct {
	Enabled   bool
	PostTime  string
	Timezone  string
	State     State
	NextPost  time.Time
	NextTick  time.Time
	LastFired time.Time
	LastErr   string
	Fired     uint64
}
