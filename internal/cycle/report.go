package cycle

import (
	"fmt"
	"strings"
	"time"

	"trendbot/internal/media"
	"trendbot/internal/present"
	"trendbot/internal/storage"
)

// Trigger names.
const (
	TriggerSchedule = "schedule"
	TriggerTelegram = "telegram"
	TriggerDiscord  = "discord"
	TriggerHTTP     = "http"
)

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// GroupReport is one kind's share of a cycle.
type GroupReport struct {
	Kind             media.Kind
	Fetched          int
	Published        int
	EnrichFailures   int
	DeliveryFailures int
	// SourceErr is set when at least one source of the kind failed.
	SourceErr   error
	DeliveryErr error
}

func (g GroupReport) failed() bool { return g.SourceErr != nil || g.DeliveryErr != nil }

type Report struct {
	ID         string
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Groups     []GroupReport
	Outcome    Outcome
	// Err is the reason a cycle was skipped or failed as a whole.
	Err error
}

func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Report) Published() int {
	n := 0
	for _, g := range r.Groups {
		n += g.Published
	}
	return n
}

func outcomeOf(groups []GroupReport) Outcome {
	if len(groups) == 0 {
		return OutcomeFailed
	}
	published, failed := 0, false
	for _, g := range groups {
		published += g.Published
		if g.failed() || g.Published < g.Fetched {
			failed = true
		}
	}
	switch {
	case published == 0:
		return OutcomeFailed
	case failed:
		return OutcomePartial
	}
	return OutcomeOK
}

var outcomeIcon = map[Outcome]string{
	OutcomeOK:      "✅",
	OutcomePartial: "⚠️",
	OutcomeSkipped: "⏭",
	OutcomeFailed:  "❌",
}

// Summary renders the text sent back to whoever triggered the cycle.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Trending cycle %s", outcomeIcon[r.Outcome], r.Outcome)
	if r.Trigger != "" {
		fmt.Fprintf(&b, " (%s", r.Trigger)
		if d := r.Duration(); d > 0 {
			fmt.Fprintf(&b, ", %s", d.Round(100*time.Millisecond))
		}
		b.WriteString(")")
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "\n%s", r.Err)
	}
	for _, g := range r.Groups {
		fmt.Fprintf(&b, "\n%s: %d/%d published", present.Heading(g.Kind), g.Published, g.Fetched)
		if g.EnrichFailures > 0 {
			fmt.Fprintf(&b, ", %d lookups failed", g.EnrichFailures)
		}
		if g.DeliveryFailures > 0 {
			fmt.Fprintf(&b, ", %d chunks failed", g.DeliveryFailures)
		}
		if g.SourceErr != nil {
			fmt.Fprintf(&b, "\n  source: %s", firstLine(g.SourceErr.Error()))
		}
	}
	return b.String()
}

// Record converts the report into a journal row.
func (r Report) Record() storage.CycleRecord {
	rec := storage.CycleRecord{
		ID:         r.ID,
		Trigger:    r.Trigger,
		Outcome:    string(r.Outcome),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	for _, g := range r.Groups {
		gr := storage.GroupRecord{
			Kind:             g.Kind.String(),
			Fetched:          g.Fetched,
			Published:        g.Published,
			EnrichFailures:   g.EnrichFailures,
			DeliveryFailures: g.DeliveryFailures,
		}
		var msgs []string
		for _, err := range []error{g.SourceErr, g.DeliveryErr} {
			if err != nil {
				msgs = append(msgs, err.Error())
			}
		}
		gr.Error = strings.Join(msgs, "; ")
		rec.Groups = append(rec.Groups, gr)
	}
	return rec
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " (+more)"
	}
	return s
}
