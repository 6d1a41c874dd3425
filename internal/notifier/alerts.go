package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"trendbot/internal/cycle"
	"trendbot/internal/eventbus"
	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

// watchCycles turns every cycle that did not finish cleanly into an alert.
func (s *Service) watchCycles(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			rep, ok := ev.Data.(cycle.Report)
			if !ok || rep.Outcome == cycle.OutcomeOK {
				continue
			}
			s.mu.Lock()
			target := s.cfg.Target
			s.mu.Unlock()
			if target.IsZero() {
				continue
			}
			n := kit.Notification{Priority: alertPriority(rep.Outcome), Target: target, Text: cycleAlertText(rep)}
			if err := s.enqueue(ctx, n, cycleKey(rep)); err != nil && !errors.Is(err, ErrStopped) {
				s.log.Debug("cycle alert not queued", logx.Cycle(rep.ID), logx.Err(err))
			}
		}
	}
}

func alertPriority(o cycle.Outcome) int {
	if o == cycle.OutcomeFailed {
		return 9
	}
	return 7
}

func cycleAlertText(rep cycle.Report) string {
	id := rep.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Trending cycle %s did not finish cleanly\n%s", id, rep.Summary())
}

// cycleKey groups reports by outcome and error text so a recurring outage
// alerts once per window.
func cycleKey(rep cycle.Report) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "cycle|%s|", rep.Outcome)
	if rep.Err != nil {
		fmt.Fprint(h, rep.Err.Error())
	}
	for _, g := range rep.Groups {
		for _, err := range []error{g.SourceErr, g.DeliveryErr} {
			if err != nil {
				fmt.Fprintf(h, "|%s:%s", g.Kind, err)
			}
		}
	}
	return fmt.Sprintf("%x", h.Sum64())
}
