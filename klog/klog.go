// Package klog provides the kernel's structured logging surface.
//
// It is deliberately thin: a category-scoped wrapper around a
// logiface.Logger[*stumpy.Event], modeled on the eventloop
// package's logging.go (Logger/LogEntry/LevelDebug.../IsEnabled lazy-gate
// design), but backed by the real logiface + stumpy pairing instead of a
// hand-rolled JSON/pretty-printer, since that pairing is exactly what the
// wider eventloop-adjacent stack ships for this concern (see logiface-stumpy).
//
// Every call site is expected to check Enabled-style gating implicitly by
// virtue of logiface's own Builder chain being a no-op below the
// configured level, so kernel code may unconditionally write
// klog.L.Sched().Str(...).Log(...) from hot paths (ready-queue
// insert/remove, context switch) without a manual "if enabled" branch —
// matching spec.md §6's "debug logging enable" compile-time switch, which
// this package honors via the configured logiface.Level at construction.
package klog

import (
	"io"
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Category names used as the "cat" field on every kernel log line.
const (
	CatSched  = "sched"
	CatTimer  = "timer"
	CatThread = "thread"
	CatIPC    = "ipc"
	CatAlloc  = "alloc"
)

// Logger is the kernel's structured logger. The zero value logs nothing
// (its base logger is nil), matching eventloop's NoOpLogger
// default-safety behavior.
type Logger struct {
	mu   sync.RWMutex
	base *logiface.Logger[*stumpy.Event]
}

// L is the package-level default logger, analogous to eventloop's
// package-level globalLogger. All kernel packages log through L; it starts
// disabled, and kernel.New does not reconfigure it (callers enable it with
// L.SetLevel).
var L = New(io.Discard, logiface.LevelDisabled)

// New constructs a Logger writing newline-delimited JSON events to w, at
// or above the given minimum level. Pass logiface.LevelDisabled to turn
// logging off entirely (the default for L).
func New(w io.Writer, level logiface.Level) *Logger {
	return &Logger{
		base: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
			stumpy.L.WithLevel(level),
		),
	}
}

// NewStderr is a convenience constructor matching eventloop's
// NewDefaultLogger(level), writing to os.Stderr.
func NewStderr(level logiface.Level) *Logger {
	return New(os.Stderr, level)
}

// SetLevel reconfigures the minimum level at which events are emitted.
func (l *Logger) SetLevel(w io.Writer, level logiface.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base = stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

func (l *Logger) logger() *logiface.Logger[*stumpy.Event] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

// Sched returns a debug-level builder scoped to the scheduler category.
func (l *Logger) Sched() *logiface.Builder[*stumpy.Event] {
	return l.logger().Debug().Str("cat", CatSched)
}

// Timer returns a debug-level builder scoped to the timer category.
func (l *Logger) Timer() *logiface.Builder[*stumpy.Event] {
	return l.logger().Debug().Str("cat", CatTimer)
}

// Thread returns a debug-level builder scoped to the thread category.
func (l *Logger) Thread() *logiface.Builder[*stumpy.Event] {
	return l.logger().Debug().Str("cat", CatThread)
}

// IPC returns a debug-level builder scoped to the IPC category.
func (l *Logger) IPC() *logiface.Builder[*stumpy.Event] {
	return l.logger().Debug().Str("cat", CatIPC)
}

// Alloc returns a debug-level builder scoped to the allocator category.
func (l *Logger) Alloc() *logiface.Builder[*stumpy.Event] {
	return l.logger().Debug().Str("cat", CatAlloc)
}

// Warn returns a warning-level builder scoped to an arbitrary category,
// for conditions worth surfacing regardless of the debug-logging switch
// (e.g. queue-full, mutex-acquire-by-non-owner release attempts).
func (l *Logger) Warn(category string) *logiface.Builder[*stumpy.Event] {
	return l.logger().Warning().Str("cat", category)
}
