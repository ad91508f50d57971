package blit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler drops every record. Enabled reports false, so disabled log
// calls never build their attributes.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

// devices are the logging devices driven by live executors. SetLogger
// passes the new logger on to each of them.
var (
	devicesMu sync.RWMutex
	devices   = map[*Executor]loggerSetter{}
)

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger sets the logger used by blit and its sub-packages (softhw, vm,
// queue), including devices already driven by an executor. Nothing is
// logged until it is called. Passing nil silences logging again. It is
// safe to call while jobs are running.
//
// Levels:
//   - [slog.LevelDebug]: per-job detail (reductions, bindings, prefetch,
//     register dumps)
//   - [slog.LevelInfo]: executor start/stop and hardware resets
//   - [slog.LevelWarn]: software fallback, timeouts, missed interrupts
//
// Example:
//
//	blit.SetLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)

	devicesMu.RLock()
	defer devicesMu.RUnlock()
	for _, ls := range devices {
		ls.SetLogger(l)
	}
}

// Logger returns the current logger. It is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that log on their own.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// registerDevice hands dev the current logger and keeps it up to date
// until e is closed.
func registerDevice(e *Executor, dev Device) {
	ls, ok := dev.(loggerSetter)
	if !ok {
		return
	}
	devicesMu.Lock()
	defer devicesMu.Unlock()
	devices[e] = ls
	ls.SetLogger(Logger())
}

func unregisterDevice(e *Executor) {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	delete(devices, e)
}
