package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	loc := s.locLocked()
	c, id := s.c, s.entryID
	last, lastErr := s.lastFired, s.lastErr
	s.mu.Unlock()

	snap := Snapshot{
		Enabled:   cfg.Enabled,
		PostTime:  cfg.PostTime,
		Timezone:  loc.String(),
		State:     s.State(),
		NextPost:  s.NextPost(time.Now()),
		LastFired: last,
		Fired:     s.fired.Load(),
	}
	if lastErr != nil {
		snap.LastErr = lastErr.Error()
	}
	if c != nil && id != 0 {
		snap.NextTick = c.Entry(id).Next
	}
	return snap
}
