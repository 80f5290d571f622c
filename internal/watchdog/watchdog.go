// Package watchdog detects a stalled control loop. The loop kicks the
// watchdog every tick; a separate goroutine fires once the kicks stop for
// longer than the timeout. What happens then is up to the caller (the daemon
// exits and lets systemd restart it).
package watchdog

import (
	"context"
	"sync/atomic"
	"time"
)

// Watchdog tracks the time of the last kick.
type Watchdog struct {
	timeout time.Duration
	now     func() time.Time
	last    atomic.Int64 // unix nanoseconds
}

// New creates a watchdog that considers the loop stalled after timeout
// without a kick. The clock starts at creation.
func New(timeout time.Duration, now func() time.Time) *Watchdog {
	if now == nil {
		now = time.Now
	}
	w := &Watchdog{timeout: timeout, now: now}
	w.Kick()
	return w
}

// Kick records that the loop is alive. Safe for concurrent use.
func (w *Watchdog) Kick() {
	w.last.Store(w.now().UnixNano())
}

// Stalled reports how long it has been since the last kick and whether that
// exceeds the timeout.
func (w *Watchdog) Stalled() (time.Duration, bool) {
	since := w.now().Sub(time.Unix(0, w.last.Load()))
	return since, since > w.timeout
}

// Run checks the watchdog every interval until ctx is done. On the first
// stall it calls onTimeout once and returns.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration, onTimeout func(stalled time.Duration)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if since, stalled := w.Stalled(); stalled {
				onTimeout(since)
				return
			}
		}
	}
}
