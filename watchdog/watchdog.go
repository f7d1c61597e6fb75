// Package watchdog implements a heartbeat-monitored liveness guard: a
// background monitor that wakes at timeout/2 and, if the control loop has
// stopped feeding it, invokes an on-timeout handler. Grounded on the
// original watchdog.py's monitor-goroutine/on_timeout shape, expressed as
// a struct whose monitor is started with Run(ctx) and stops when the
// caller's ctx is cancelled, the way controller.Controller.Run and
// modo.Client.Run are.
package watchdog

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultTimeout matches the original watchdog.py's default.
const DefaultTimeout = 30 * time.Second

// Handler is invoked when the watchdog times out. The default, fatalHandler,
// terminates the process so a supervisor can restart it.
type Handler func()

func fatalHandler() {
	slog.Error("watchdog timeout: no heartbeat received, terminating")
	os.Exit(1)
}

// Watchdog tracks the time of the last heartbeat and fires Handler if too
// much time elapses between them.
type Watchdog struct {
	timeout time.Duration
	onTimeout Handler
	logger  *slog.Logger

	mu           sync.Mutex
	lastHeartbeat time.Time
}

// New creates a Watchdog with the given timeout. A nil handler defaults to
// terminating the process.
func New(timeout time.Duration, onTimeout Handler) *Watchdog {
	if onTimeout == nil {
		onTimeout = fatalHandler
	}
	return &Watchdog{
		timeout:   timeout,
		onTimeout: onTimeout,
		logger:    slog.Default().With("component", "watchdog"),
	}
}

// Heartbeat records that the monitored loop is alive. Safe to call from any
// goroutine.
func (w *Watchdog) Heartbeat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastHeartbeat = time.Now()
}

func (w *Watchdog) elapsedSinceHeartbeat() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastHeartbeat.IsZero() {
		return 0
	}
	return time.Since(w.lastHeartbeat)
}

// Run starts the monitor loop, waking at timeout/2 to check for a stale
// heartbeat. It blocks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	w.Heartbeat() // count startup as the first beat

	ticker := time.NewTicker(w.timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if elapsed := w.elapsedSinceHeartbeat(); elapsed > w.timeout {
				w.logger.Error("no heartbeat within timeout", "elapsed", elapsed, "timeout", w.timeout)
				w.onTimeout()
				return
			}
		}
	}
}
