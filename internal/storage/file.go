package storage

import (
	"bufio"
	"context"
	"errors"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	logx "trendbot/pkg/logx"
)

// compactEvery is how many dedup writes go to the journal before it is
// folded into the snapshot.
const compactEvery = 1000

var errClosed = errors.New("storage closed")

// fileStore keeps state in plain files next to cfg.Path:
//
//	<name>.cycles.jsonl         cycle journal, append-only
//	<name>.dedup.snapshot.json  alert dedup table as of the last compaction
//	<name>.dedup.journal.jsonl  dedup writes since that compaction
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	cycles  *jsonl
	journal *jsonl
	snap    string

	dedup   map[string]int64 // key -> until, unix milli
	pending int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

// jsonl is an append-only JSON Lines file.
type jsonl struct {
	path string
	f    *os.File
}

func openJSONL(path string) (*jsonl, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	return &jsonl{path: path, f: f}, nil
}

func (j *jsonl) append(v any) error {
	if j == nil || j.f == nil {
		return errClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = j.f.Write(append(b, '\n'))
	return err
}

// each calls fn for every line until fn returns false. A missing file has
// no lines.
func (j *jsonl) each(fn func(line []byte) bool) error {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if !fn(sc.Bytes()) {
			break
		}
	}
	return sc.Err()
}

func (j *jsonl) reset() error {
	if err := j.f.Truncate(0); err != nil {
		return err
	}
	_, err := j.f.Seek(0, io.SeekEnd)
	return err
}

func (j *jsonl) close() error {
	if j == nil || j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	s := &fileStore{log: log, snap: name + ".dedup.snapshot.json", dedup: map[string]int64{}}
	var err error
	if s.cycles, err = openJSONL(name + ".cycles.jsonl"); err != nil {
		return nil, err
	}
	if s.journal, err = openJSONL(name + ".dedup.journal.jsonl"); err != nil {
		_ = s.cycles.close()
		return nil, err
	}
	if err := s.loadDedup(); err != nil {
		log.Warn("dedup state partially restored", logx.Err(err))
	}
	return s, nil
}

// loadDedup rebuilds the table from the snapshot then the journal.
func (s *fileStore) loadDedup() error {
	var errs []error
	if b, err := os.ReadFile(s.snap); err == nil {
		if err := json.Unmarshal(b, &s.dedup); err != nil {
			errs = append(errs, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	errs = append(errs, s.journal.each(func(line []byte) bool {
		var r dedupRecord
		if json.Unmarshal(line, &r) == nil && r.Key != "" {
			s.dedup[r.Key] = r.Until
		}
		return true
	}))
	dropExpired(s.dedup, time.Now())
	return errors.Join(errs...)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.cycles.close(), s.journal.close())
}

func (s *fileStore) AppendCycle(_ context.Context, r CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles.append(r)
}

func (s *fileStore) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	limit = normLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	// keep the tail in a ring; the journal is oldest first
	ring := make([]CycleRecord, limit)
	n := 0
	var ctxErr error
	err := s.cycles.each(func(line []byte) bool {
		if ctxErr = ctx.Err(); ctxErr != nil {
			return false
		}
		var r CycleRecord
		if json.Unmarshal(line, &r) == nil && r.ID != "" {
			ring[n%limit] = r
			n++
		}
		return true
	})
	if err = errors.Join(ctxErr, err); err != nil {
		return nil, err
	}

	out := make([]CycleRecord, 0, min(n, limit))
	for i := n - 1; i >= 0 && i >= n-limit; i-- {
		out = append(out, ring[i%limit])
	}
	return out, nil
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	rec := dedupRecord{Key: key, Until: until.UnixMilli()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.journal.append(rec); err != nil {
		return err
	}
	s.dedup[key] = rec.Until
	if s.pending++; s.pending >= compactEvery {
		if err := s.compact(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// compact writes a fresh snapshot atomically and empties the journal.
// Caller holds s.mu.
func (s *fileStore) compact() error {
	dropExpired(s.dedup, time.Now())
	b, err := json.Marshal(s.dedup)
	if err != nil {
		return err
	}
	tmp := s.snap + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snap); err != nil {
		return err
	}
	s.pending = 0
	return s.journal.reset()
}

func dropExpired(m map[string]int64, now time.Time) {
	cut := now.UnixMilli()
	maps.DeleteFunc(m, func(_ string, until int64) bool { return until < cut })
}
