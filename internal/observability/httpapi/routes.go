package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trendbot/internal/cycle"
	"trendbot/internal/storage"
	"trendbot/internal/task/scheduler"
	logx "trendbot/pkg/logx"
)

// Runner is the part of cycle.Runner exposed over HTTP.
type Runner interface {
	Running() bool
	Last() (cycle.Report, bool)
	Manual(ctx context.Context, trigger string, rep cycle.Reporter) error
	Recent(ctx context.Context, limit int) ([]storage.CycleRecord, error)
}

// Schedule reports the daily post state.
type Schedule interface {
	Snapshot() scheduler.Snapshot
}

type Deps struct {
	Runner   Runner
	Schedule Schedule
	// Tasks lists the app's live background tasks; optional.
	Tasks    func() []string
}

// NewRouter builds the ops handler. /healthz stays open; everything else
// sits behind the token when one is set.
func NewRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	h := &handlers{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)

	r.Group(func(r chi.Router) {
		if cfg.RatePerMin > 0 {
			r.Use(httprate.LimitByIP(cfg.RatePerMin, time.Minute))
		}
		r.Use(tokenAuth(cfg.Token))

		r.Handle("/metrics", promhttp.Handler())
		r.Get("/status", h.status)
		r.Get("/cycles", h.cycles)
		r.Post("/trigger", h.trigger)
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

type handlers struct {
	deps Deps
	log  logx.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type scheduleStatus struct {
	Enabled   bool      `json:"enabled"`
	PostTime  string    `json:"post_time"`
	Timezone  string    `json:"timezone"`
	State     string    `json:"state"`
	NextPost  time.Time `json:"next_post"`
	LastFired time.Time `json:"last_fired"`
	LastError string    `json:"last_error,omitempty"`
	Fired     uint64    `json:"fired"`
}

type statusResponse struct {
	Running  bool                 `json:"running"`
	Last     *storage.CycleRecord `json:"last,omitempty"`
	Schedule *scheduleStatus      `json:"schedule,omitempty"`
	Tasks    []string             `json:"tasks,omitempty"`
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	var resp statusResponse
	if run := h.deps.Runner; run != nil {
		resp.Running = run.Running()
		if last, ok := run.Last(); ok {
			rec := last.Record()
			resp.Last = &rec
		}
	}
	if sc := h.deps.Schedule; sc != nil {
		snap := sc.Snapshot()
		resp.Schedule = &scheduleStatus{
			Enabled:   snap.Enabled,
			PostTime:  snap.PostTime,
			Timezone:  snap.Timezone,
			State:     snap.State.String(),
			NextPost:  snap.NextPost,
			LastFired: snap.LastFired,
			LastError: snap.LastErr,
			Fired:     snap.Fired,
		}
	}
	if h.deps.Tasks != nil {
		resp.Tasks = h.deps.Tasks()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) cycles(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not configured")
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := h.deps.Runner.Recent(r.Context(), limit)
	if err != nil {
		h.log.Warn("journal read failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	if recs == nil {
		recs = []storage.CycleRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": recs})
}

// trigger starts a manual cycle. The outcome is read later from /status.
func (h *handlers) trigger(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not configured")
		return
	}
	err := h.deps.Runner.Manual(r.Context(), cycle.TriggerHTTP, logReporter{log: h.log})
	switch {
	case errors.Is(err, cycle.ErrCycleRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

// logReporter records the manual cycle outcome in the log; HTTP callers poll.
type logReporter struct{ log logx.Logger }

func (logReporter) Acknowledge(context.Context) error { return nil }

func (r logReporter) Report(_ context.Context, rep cycle.Report) error {
	r.log.Info("http-triggered cycle finished", logx.Cycle(rep.ID), logx.String("outcome", string(rep.Outcome)))
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// tokenAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func tokenAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			}
			if got != tok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
