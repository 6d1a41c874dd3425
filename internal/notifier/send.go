package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"trendbot/internal/metrics"
	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

func (s *Service) work(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

// deliver sends one alert, retrying with backoff under the rate limit.
func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()
	if s.adapter == nil {
		return
	}
	text := priorityPrefix(j.n.Priority) + j.n.Text
	if strings.TrimSpace(text) == "" {
		return
	}

	attempts := 1 + cfg.RetryMax
	var err error
	for attempt := 1; ; attempt++ {
		if lim.Wait(ctx) != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = s.adapter.SendText(callCtx, j.n.Target, text, j.n.Options)
		cancel()
		if err == nil {
			s.remember(text)
			metrics.AlertsSent.WithLabelValues("sent").Inc()
			s.publish(EventSent, j.key, nil)
			return
		}
		// Debug only: a warn here would loop back through the chat sink.
		s.log.Debug("alert send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt >= attempts {
			break
		}
		t := time.NewTimer(cfg.backoff(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	metrics.AlertsSent.WithLabelValues(metrics.ResultFailed).Inc()
	s.publish(EventFailed, j.key, err)
}

// backoff doubles RetryBase per attempt up to RetryMaxDelay, with ±30% jitter.
func (c Config) backoff(attempt int) time.Duration {
	d := c.RetryBase
	for i := 1; i < attempt && d < c.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, c.RetryMaxDelay)) * (0.7 + 0.6*rand.Float64()))
	return min(d, c.RetryMaxDelay)
}

func priorityPrefix(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	}
	return ""
}

// notificationKey identifies repeats of the same text to the same chat at
// the same priority.
func notificationKey(n kit.Notification) string {
	if n.Target.IsZero() {
		return ""
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", n.Target, n.Priority, n.Text)
	return fmt.Sprintf("%x", h.Sum64())
}
