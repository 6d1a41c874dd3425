package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "trendbot/pkg/logx"
)

const (
	// settle lets an editor finish its burst of writes before a reload.
	settle = 250 * time.Millisecond

	rewatchMin = 250 * time.Millisecond
	rewatchMax = 5 * time.Second
)

var errWatcherBroken = errors.New("config watcher stopped")

// Watch reloads on file changes until ctx ends. Without a config path it
// just waits for ctx. A broken watcher is recreated with backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	dir := filepath.Dir(m.path)
	wait := rewatchMin
	for {
		err := m.watchOnce(ctx, dir)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher restarting", logx.String("dir", dir), logx.Err(err))

		// jitter up to half the wait
		t := time.NewTimer(wait + rand.N(wait/2+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		wait = min(wait*2, rewatchMax)
	}
}

// watchOnce watches dir for events on the config file until the watcher
// fails or ctx ends. Events are coalesced into one Reload per settle period.
func (m *ConfigManager) watchOnce(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	file := filepath.Base(m.path)
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	settled := time.NewTimer(settle)
	settled.Stop()
	defer settled.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-settled.C:
			if _, err := m.Reload(ctx); err != nil {
				m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
			}
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherBroken
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				settled.Reset(settle)
			}
		case err, ok := <-w.Errors:
			switch {
			case !ok:
				return errWatcherBroken
			case errors.Is(err, fsnotify.ErrEventOverflow):
				// events may have been missed
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				settled.Reset(settle)
			case err != nil:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
