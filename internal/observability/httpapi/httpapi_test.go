package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"trendbot/internal/cycle"
	"trendbot/internal/media"
	"trendbot/internal/storage"
	"trendbot/internal/task/scheduler"
	logx "trendbot/pkg/logx"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	manual  int
	last    *cycle.Report
	recent  []storage.CycleRecord
	limit   int
}

func (f *fakeRunner) Running() bool { return f.running }

func (f *fakeRunner) Last() (cycle.Report, bool) {
	if f.last == nil {
		return cycle.Report{}, false
	}
	return *f.last, true
}

func (f *fakeRunner) Manual(ctx context.Context, trigger string, rep cycle.Reporter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return cycle.ErrCycleRunning
	}
	f.manual++
	return rep.Acknowledge(ctx)
}

func (f *fakeRunner) Recent(_ context.Context, limit int) ([]storage.CycleRecord, error) {
	f.limit = limit
	return f.recent, nil
}

type fakeSchedule struct{ snap scheduler.Snapshot }

func (f fakeSchedule) Snapshot() scheduler.Snapshot { return f.snap }

func do(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	t.Parallel()
	started := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	run := &fakeRunner{
		last: &cycle.Report{
			ID: "c1", Trigger: cycle.TriggerSchedule, Outcome: cycle.OutcomePartial, StartedAt: started,
			Groups: []cycle.GroupReport{{Kind: media.KindShow, Fetched: 10, Published: 7}},
		},
		recent: []storage.CycleRecord{{ID: "c1"}, {ID: "c0"}},
	}
	sched := fakeSchedule{scheduler.Snapshot{Enabled: true, PostTime: "12:00", Timezone: "UTC", NextPost: started.Add(24 * time.Hour)}}
	h := NewRouter(Config{Token: "s3cret", Pprof: true}, Deps{Runner: run, Schedule: sched, Tasks: func() []string { return []string{"scheduler"} }}, logx.Nop())

	tests := []struct {
		name   string
		method string
		target string
		token  string
		code   int
		body   string
	}{
		{"healthz is open", http.MethodGet, "/healthz", "", http.StatusOK, "ok"},
		{"status needs token", http.MethodGet, "/status", "", http.StatusUnauthorized, "unauthorized"},
		{"status", http.MethodGet, "/status", "s3cret", http.StatusOK, `"outcome":"partial"`},
		{"query token", http.MethodGet, "/status?token=s3cret", "", http.StatusOK, `"post_time":"12:00"`},
		{"status tasks", http.MethodGet, "/status", "s3cret", http.StatusOK, `"tasks":["scheduler"]`},
		{"cycles", http.MethodGet, "/cycles?limit=2", "s3cret", http.StatusOK, `"id":"c0"`},
		{"cycles bad limit", http.MethodGet, "/cycles?limit=x", "s3cret", http.StatusBadRequest, "limit"},
		{"metrics", http.MethodGet, "/metrics", "s3cret", http.StatusOK, "go_goroutines"},
		{"pprof", http.MethodGet, "/debug/pprof/cmdline", "s3cret", http.StatusOK, ""},
		{"trigger", http.MethodPost, "/trigger", "s3cret", http.StatusAccepted, "accepted"},
		{"trigger is post only", http.MethodGet, "/trigger", "s3cret", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.target, tt.token)
		if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.body) {
			t.Fatalf("%s: %d %s", tt.name, rec.Code, rec.Body.String())
		}
	}
	if run.limit != 2 || run.manual != 1 {
		t.Fatalf("limit=%d manual=%d", run.limit, run.manual)
	}
}

func TestTriggerConflictWhileRunning(t *testing.T) {
	t.Parallel()
	run := &fakeRunner{running: true}
	h := NewRouter(Config{}, Deps{Runner: run}, logx.Nop())

	rec := do(t, h, http.MethodPost, "/trigger", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("code = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/status", "")
	var st statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Running || st.Last != nil || st.Schedule != nil {
		t.Fatalf("status = %+v", st)
	}
}

func TestPprofDisabledByDefault(t *testing.T) {
	t.Parallel()
	h := NewRouter(Config{}, Deps{}, logx.Nop())
	if rec := do(t, h, http.MethodGet, "/debug/pprof/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{Runner: &fakeRunner{}}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if s.Supervisor() != nil || s.Addr() != "" {
		t.Fatal("server still running after disable")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:8089": true,
		"localhost:80":   true,
		"[::1]:9000":     true,
		":8089":          false,
		"0.0.0.0:8089":   false,
		"10.0.0.5:8089":  false,
		"nonsense":       false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}
