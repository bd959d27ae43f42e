package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

// Phase is the coordinator's state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseStopping:
		return "stopping"
	default:
		return ""
	}
}

const (
	defaultLeaseMaxDuration = time.Hour
	defaultQueueSize        = 64
	defaultNotificationID   = 1001
	defaultChannelID        = "download_channel"
)

// Lease is the OS permission that keeps the CPU awake.
type Lease interface {
	// Acquire takes the lease for at most max. It fails with [shared.ErrLeaseUnavailable] when denied.
	Acquire(max time.Duration) error
	// Release gives the lease back. Releasing a lease that is not held is a no-op.
	Release() error
	// Held reports whether the lease is currently held.
	Held() bool
}

// Notifier is the persistent notification surface.
type Notifier interface {
	Show(n models.Notification) error   // first display when the job becomes Active
	Update(n models.Notification) error // replace the visible notification in place
	Remove(id int) error                // remove it; removing an absent notification is a no-op
}

// Host is the process hosting the background job.
type Host interface {
	// EndBackgroundTask tells the host that the background task window can close.
	EndBackgroundTask()
}

// SessionStore records Active periods. Implemented by repositories.SessionRepository.
type SessionStore interface {
	StartSession(s *models.Session) error
	FinishSession(id string, endedAt time.Time, reason models.EndReason, progress models.Progress) error
}

// Options configures a [Coordinator]. Lease, Notifier and Host are required; the rest have defaults.
type Options struct {
	Lease            Lease
	Notifier         Notifier
	Host             Host
	Sessions         SessionStore
	Logger           *log.Logger
	LeaseMaxDuration time.Duration
	ChannelID        string
	NotificationID   int
	QueueSize        int
	Now              func() time.Time
}

// Coordinator owns the background job state. All mutation goes through [Coordinator.Handle], which [Coordinator.Run]
// calls for each queued [Signal]; readers on other goroutines use [Coordinator.Snapshot].
type Coordinator struct {
	lease    Lease
	notifier Notifier
	host     Host
	sessions SessionStore
	logger   *log.Logger
	leaseMax time.Duration
	channel  string
	notifyID int
	now      func() time.Time

	signals chan Signal
	done    chan struct{}
	runOnce sync.Once

	mu      sync.RWMutex
	phase   Phase
	state   models.JobState
	visible bool
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.LeaseMaxDuration <= 0 {
		opts.LeaseMaxDuration = defaultLeaseMaxDuration
	}
	if opts.ChannelID == "" {
		opts.ChannelID = defaultChannelID
	}
	if opts.NotificationID == 0 {
		opts.NotificationID = defaultNotificationID
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Coordinator{
		lease:    opts.Lease,
		notifier: opts.Notifier,
		host:     opts.Host,
		sessions: opts.Sessions,
		logger:   shared.WithLogger(opts.Logger, "component", "lifecycle"),
		leaseMax: opts.LeaseMaxDuration,
		channel:  opts.ChannelID,
		notifyID: opts.NotificationID,
		now:      opts.Now,
		signals:  make(chan Signal, opts.QueueSize),
		done:     make(chan struct{}),
	}
}

// Run consumes signals until ctx is cancelled. On return the job is stopped, so the lease is never leaked.
// Run must be called at most once.
func (c *Coordinator) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("coordinator already running")
	}
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.drain()
			c.stop(models.EndAbandoned)
			return ctx.Err()
		case sig := <-c.signals:
			c.Handle(sig)
		}
	}
}

// drain applies signals that were queued before shutdown so their acknowledgements are not lost.
func (c *Coordinator) drain() {
	for {
		select {
		case sig := <-c.signals:
			c.Handle(sig)
		default:
			return
		}
	}
}

// Done is closed when [Coordinator.Run] returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Handle applies one signal. It is exported for hosts that deliver signals on their own serial queue;
// it must not be called concurrently with [Coordinator.Run].
func (c *Coordinator) Handle(sig Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch s := sig.(type) {
	case StartSignal:
		c.start(s)
	case ProgressSignal:
		c.update(s)
	case StopSignal:
		c.stop(models.EndStopped)
	case TimeoutSignal:
		c.timeout(s)
	default:
		c.logger.Warnf("ignoring unknown signal %T", sig)
	}
}

// Start enqueues a [StartSignal].
func (c *Coordinator) Start(ctx context.Context, primary, secondary string, queueDepth int) error {
	return c.send(ctx, StartSignal{Primary: primary, Secondary: secondary, QueueDepth: queueDepth})
}

// UpdateProgress enqueues a [ProgressSignal].
func (c *Coordinator) UpdateProgress(ctx context.Context, p ProgressSignal) error {
	return c.send(ctx, p)
}

// Stop enqueues a [StopSignal].
func (c *Coordinator) Stop(ctx context.Context) error {
	return c.send(ctx, StopSignal{})
}

// PlatformTimeout enqueues a [TimeoutSignal] and returns a channel closed once cleanup has completed.
func (c *Coordinator) PlatformTimeout(ctx context.Context) (<-chan struct{}, error) {
	ack := make(chan struct{})
	if err := c.send(ctx, TimeoutSignal{Ack: ack}); err != nil {
		return nil, err
	}
	return ack, nil
}

func (c *Coordinator) send(ctx context.Context, sig Signal) error {
	select {
	case <-c.done:
		return shared.ErrCoordinatorClosed
	default:
	}

	select {
	case c.signals <- sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return shared.ErrCoordinatorClosed
	}
}

// Snapshot returns a copy of the current job state and phase.
func (c *Coordinator) Snapshot() (models.JobState, Phase) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.phase
}

// NotificationVisible reports whether the coordinator currently has a notification on screen.
func (c *Coordinator) NotificationVisible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visible
}

func (c *Coordinator) start(s StartSignal) {
	if c.phase == PhaseActive {
		c.state.Label = models.Label{Primary: s.Primary, Secondary: s.Secondary}
		c.state.QueueDepth = s.QueueDepth
		c.logger.Debug("start while active, refreshing labels", "queue", s.QueueDepth)
		c.render()
		return
	}

	now := c.now()
	c.phase = PhaseActive
	c.state = models.JobState{
		Running:    true,
		Label:      models.Label{Primary: s.Primary, Secondary: s.Secondary},
		QueueDepth: s.QueueDepth,
		SessionID:  shared.GenerateID(),
		StartedAt:  now,
	}

	if !c.lease.Held() {
		if err := c.lease.Acquire(c.leaseMax); err != nil {
			c.logger.Warn("continuing without wake lease", "error", fmt.Errorf("%w: %v", shared.ErrLeaseUnavailable, err))
		}
	}

	c.render()

	if c.sessions != nil {
		session := models.NewSession(c.state.SessionID, now, c.state.Label, c.state.QueueDepth)
		if err := c.sessions.StartSession(session); err != nil {
			c.logger.Warn("failed to record session start", "session", c.state.SessionID, "error", err)
		}
	}

	c.logger.Info("job started", "session", c.state.SessionID, "queue", s.QueueDepth)
}

func (c *Coordinator) update(p ProgressSignal) {
	if c.phase != PhaseActive || !c.state.Running {
		return
	}

	if p.Primary != nil && *p.Primary != "" {
		c.state.Label.Primary = *p.Primary
	}
	if p.Secondary != nil && *p.Secondary != "" {
		c.state.Label.Secondary = *p.Secondary
	}
	if p.QueueDepth != nil {
		c.state.QueueDepth = *p.QueueDepth
	}

	done := p.Done
	if done < c.state.Progress.Done {
		done = c.state.Progress.Done
	}
	c.state.Progress = models.Progress{Done: done, Total: p.Total}

	c.render()
}

func (c *Coordinator) timeout(s TimeoutSignal) {
	if s.Ack != nil {
		defer close(s.Ack)
	}

	if c.phase != PhaseActive {
		c.stop(models.EndTimeout)
		return
	}

	c.logger.Warn("background runtime budget reached, stopping job", "session", c.state.SessionID)
	c.phase = PhaseStopping
	c.stop(models.EndTimeout)
}

// stop is idempotent: every cleanup step checks whether its resource is present first.
func (c *Coordinator) stop(reason models.EndReason) {
	wasActive := c.phase != PhaseIdle
	final := c.state

	c.state.Running = false

	if c.lease.Held() {
		if err := c.lease.Release(); err != nil {
			c.logger.Warn("failed to release wake lease", "error", err)
		}
	}

	if c.visible {
		if err := c.notifier.Remove(c.notifyID); err != nil {
			c.logger.Warn("failed to remove notification", "error", err)
		}
		c.visible = false
	}

	c.phase = PhaseIdle
	c.state = models.JobState{}

	if !wasActive {
		return
	}

	if c.sessions != nil && final.SessionID != "" {
		if err := c.sessions.FinishSession(final.SessionID, c.now(), reason, final.Progress); err != nil {
			c.logger.Warn("failed to record session end", "session", final.SessionID, "error", err)
		}
	}

	c.host.EndBackgroundTask()
	c.logger.Info("job stopped", "session", final.SessionID, "reason", string(reason))
}

// render shows the notification on first use and updates it afterwards. Nothing is rendered when not running.
func (c *Coordinator) render() {
	n, ok := Render(c.state)
	if !ok {
		return
	}
	n.ID = c.notifyID
	n.Channel = c.channel

	var err error
	if c.visible {
		err = c.notifier.Update(n)
	} else {
		err = c.notifier.Show(n)
		if err == nil {
			c.visible = true
		}
	}
	if err != nil {
		c.logger.Warn("failed to render notification", "error", err)
	}
}
