// Package httpapi serves the ops HTTP surface: health, metrics, cycle status,
// the cycle journal, a manual trigger and optional pprof.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "trendbot/internal/runtime/supervisor"
	logx "trendbot/pkg/logx"
)

// Config controls the ops HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
	RatePerMin    int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const DefaultAddr = "127.0.0.1:8089"

var errInsecureBind = errors.New("ops http refused to start: insecure bind")

// Service owns the ops server. Each Start creates a fresh instance so a
// reload never races a half-stopped listener.
type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	deps Deps
	cur  *instance
}

type instance struct {
	sup *rtsup.Supervisor

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func (in *instance) bind(ln net.Listener, srv *http.Server) {
	in.mu.Lock()
	in.ln, in.srv = ln, srv
	in.mu.Unlock()
}

func (in *instance) addr() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ln == nil {
		return ""
	}
	return in.ln.Addr().String()
}

func (in *instance) shutdown(ctx context.Context) {
	in.sup.Cancel()
	in.mu.Lock()
	srv := in.srv
	in.mu.Unlock()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	_ = in.sup.Wait(ctx)
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "httpapi"))}
}

// Supervisor returns the running instance's supervisor, nil when stopped.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.sup
}

// Addr is the bound listen address, empty when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	in := s.cur
	s.mu.Unlock()
	if in == nil {
		return ""
	}
	return in.addr()
}

// Reconfigure applies cfg, starting, stopping or restarting the server.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	changed := s.cfg != cfg
	running := s.cur != nil
	s.cfg = cfg
	s.mu.Unlock()

	if running && (changed || !cfg.Enabled) {
		s.Stop(ctx)
	}
	s.Start(ctx)
}

// Start is a no-op when disabled or already serving.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cur != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	in := &instance{sup: rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))}
	s.cur = in
	s.mu.Unlock()

	in.sup.GoRestart("http.serve", func(c context.Context) error { return s.serve(c, in, cfg) },
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Stop shuts the current instance down within ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	in := s.cur
	s.cur = nil
	s.mu.Unlock()
	if in == nil {
		return
	}
	in.shutdown(ctx)
	s.log.Info("ops http stopped")
}

func (s *Service) serve(ctx context.Context, in *instance, cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			s.log.Error("ops http refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errInsecureBind
		}
		s.log.Warn("ops http running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("ops http listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:      NewRouter(cfg, s.deps, s.log),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	in.bind(ln, srv)
	defer in.bind(nil, nil)

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	s.log.Info("ops http started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""), logx.Bool("pprof", cfg.Pprof))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops http server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
