package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/shared"
)

// RuntimeLedger reports how much Active time was spent in a window. Implemented by repositories.SessionRepository.
type RuntimeLedger interface {
	RuntimeSince(since, now time.Time) (time.Duration, error)
}

// WatchdogOptions configures a [Watchdog].
type WatchdogOptions struct {
	Budget    time.Duration // cumulative Active time allowed per Window
	Window    time.Duration // rolling window, e.g. 24h
	Grace     time.Duration // time allowed for cleanup after the timeout is delivered
	Interval  time.Duration // how often the budget is checked
	Ledger    RuntimeLedger // optional; without it only the current session counts
	Terminate func(error)   // called with [shared.ErrForcedTermination] when cleanup misses the grace window
	Logger    *log.Logger
	Now       func() time.Time
}

// Watchdog plays the platform's part: it enforces the cumulative background runtime budget by delivering a
// platform timeout to the coordinator and terminating the process if cleanup does not finish in time.
type Watchdog struct {
	coord *Coordinator
	opts  WatchdogOptions
}

// NewWatchdog creates a watchdog for coord.
func NewWatchdog(coord *Coordinator, opts WatchdogOptions) *Watchdog {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Budget <= 0 {
		opts.Budget = 6 * time.Hour
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Terminate == nil {
		opts.Terminate = func(error) {}
	}
	opts.Logger = shared.WithLogger(opts.Logger, "component", "watchdog")
	return &Watchdog{coord: coord, opts: opts}
}

// Run checks the budget every Interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil {
				w.opts.Logger.Error("budget check failed", "error", err)
			}
		}
	}
}

// Used returns the Active time spent in the current window, including the running job.
func (w *Watchdog) Used() (time.Duration, error) {
	now := w.opts.Now()
	if w.opts.Ledger != nil {
		return w.opts.Ledger.RuntimeSince(now.Add(-w.opts.Window), now)
	}

	state, _ := w.coord.Snapshot()
	if !state.Running || state.StartedAt.IsZero() {
		return 0, nil
	}
	return now.Sub(state.StartedAt), nil
}

// Check evaluates the budget once. When a running job has spent it, Check delivers the platform timeout and
// waits up to Grace for cleanup; if cleanup is late it calls Terminate. It reports whether a timeout was delivered.
func (w *Watchdog) Check(ctx context.Context) (bool, error) {
	state, _ := w.coord.Snapshot()
	if !state.Running {
		return false, nil
	}

	used, err := w.Used()
	if err != nil {
		return false, err
	}
	if used < w.opts.Budget {
		return false, nil
	}

	w.opts.Logger.Warn("runtime budget exhausted", "used", used.Round(time.Second), "budget", w.opts.Budget)
	return true, w.expire(ctx)
}

func (w *Watchdog) expire(ctx context.Context) error {
	grace := time.NewTimer(w.opts.Grace)
	defer grace.Stop()

	sendCtx, cancel := context.WithTimeout(ctx, w.opts.Grace)
	defer cancel()

	ack, err := w.coord.PlatformTimeout(sendCtx)
	if err != nil {
		w.opts.Terminate(shared.ErrForcedTermination)
		return fmt.Errorf("%w: timeout not delivered: %v", shared.ErrForcedTermination, err)
	}

	select {
	case <-ack:
		w.opts.Logger.Info("job stopped within grace window")
		return nil
	case <-grace.C:
		w.opts.Terminate(shared.ErrForcedTermination)
		return fmt.Errorf("%w: cleanup exceeded %v", shared.ErrForcedTermination, w.opts.Grace)
	case <-ctx.Done():
		return ctx.Err()
	}
}
