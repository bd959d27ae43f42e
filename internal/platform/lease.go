package platform

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/shared"
)

// TimedWakeLock is a wake lease that expires on its own after the duration it was acquired for.
// At most one lease is held at a time.
type TimedWakeLock struct {
	mu       sync.Mutex
	held     bool
	gen      int
	timer    *time.Timer
	onExpire func()
	logger   *log.Logger
	afterFn  func(time.Duration, func()) *time.Timer
}

// NewTimedWakeLock creates an unheld lock. onExpire, if set, runs when a lease times out before release.
func NewTimedWakeLock(logger *log.Logger, onExpire func()) *TimedWakeLock {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &TimedWakeLock{
		onExpire: onExpire,
		logger:   shared.WithLogger(logger, "component", "wakelock"),
		afterFn:  time.AfterFunc,
	}
}

// Acquire takes the lease for at most max. Acquiring while held fails with [shared.ErrLeaseUnavailable].
func (l *TimedWakeLock) Acquire(max time.Duration) error {
	if max <= 0 {
		return fmt.Errorf("%w: non-positive duration %v", shared.ErrLeaseUnavailable, max)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return fmt.Errorf("%w: already held", shared.ErrLeaseUnavailable)
	}

	l.held = true
	l.gen++
	gen := l.gen
	l.timer = l.afterFn(max, func() { l.expire(gen) })
	l.logger.Debug("wake lock acquired", "max", max)
	return nil
}

func (l *TimedWakeLock) expire(gen int) {
	l.mu.Lock()
	if !l.held || l.gen != gen {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.timer = nil
	onExpire := l.onExpire
	l.mu.Unlock()

	l.logger.Warn("wake lock expired before release")
	if onExpire != nil {
		onExpire()
	}
}

// Release gives the lease back. Releasing an unheld lease is a no-op.
func (l *TimedWakeLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.held = false
	l.logger.Debug("wake lock released")
	return nil
}

func (l *TimedWakeLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
