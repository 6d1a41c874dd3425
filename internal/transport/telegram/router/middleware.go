package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"trendbot/internal/metrics"
	logx "trendbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// slowCommand promotes the success line from debug to info.
const slowCommand = 750 * time.Millisecond

// Chain wraps h so the first middleware runs outermost.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func loggerFor(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

func commandName(req *Request) string {
	if req == nil || req.Command == "" {
		return "unknown"
	}
	return req.Command
}

// MWTimeout bounds a handler. Zero leaves the context alone.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error and counts it.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				metrics.CommandsHandled.WithLabelValues(commandName(req), metrics.ResultPanic).Inc()
				loggerFor(log, req).Error("command panicked",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs and counts every handled command.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			began := time.Now()
			err := next(ctx, req)
			took := logx.Duration("dur", time.Since(began))
			l := loggerFor(log, req)

			switch {
			case err != nil:
				metrics.CommandsHandled.WithLabelValues(commandName(req), metrics.ResultFailed).Inc()
				l.Warn("command failed", took, logx.Err(err))
			case time.Since(began) >= slowCommand:
				metrics.CommandsHandled.WithLabelValues(commandName(req), metrics.ResultOK).Inc()
				l.Info("command ok (slow)", took)
			default:
				metrics.CommandsHandled.WithLabelValues(commandName(req), metrics.ResultOK).Inc()
				l.Debug("command ok", took)
			}
			return err
		}
	}
}
