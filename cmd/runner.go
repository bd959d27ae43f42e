package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/lifecycle"
	"github.com/desertthunder/dlx/internal/platform"
	"github.com/desertthunder/dlx/internal/repositories"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	engine     bridge.Engine
	dispatcher *bridge.Dispatcher
	logger     *log.Logger
	output     io.Writer
	exit       func(int)
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Engine     bridge.Engine
	Logger     *log.Logger
	Output     io.Writer
	Exit       func(int) // forced termination; defaults to [os.Exit]
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}

	var dispatcher *bridge.Dispatcher
	if opts.Engine != nil {
		dispatcher = bridge.NewDispatcher(opts.Engine, opts.Logger)
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		engine:     opts.Engine,
		dispatcher: dispatcher,
		logger:     opts.Logger,
		output:     opts.Output,
		exit:       opts.Exit,
	}
}

// loggerSetter is implemented by engines whose logging can be redirected, such as engine.Client.
type loggerSetter interface {
	SetLogger(logger *log.Logger)
}

// SetLogger replaces the runner's logger. The engine and the dispatcher derive their child loggers again, so
// everything logged after this call goes to the new logger's writer.
func (r *Runner) SetLogger(logger *log.Logger) {
	logger.SetLevel(r.logger.GetLevel())
	r.logger = logger
	if r.engine == nil {
		return
	}
	if s, ok := r.engine.(loggerSetter); ok {
		s.SetLogger(logger)
	}
	r.dispatcher = bridge.NewDispatcher(r.engine, logger)
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, opsCommand, callCommand, downloadCommand, serveCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) requireDispatcher() error {
	if r.dispatcher == nil {
		return fmt.Errorf("%w: engine not configured", shared.ErrServiceUnavailable)
	}
	return nil
}

// openStore opens the session database, runs migrations and closes sessions a crashed process left open.
func (r *Runner) openStore() (*sql.DB, *repositories.SessionRepository, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := repositories.NewSessionRepository(db)
	closed, err := repo.CloseStale(time.Now(), r.config.Download.LeaseMaxDuration)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to close stale sessions: %w", err)
	}
	if closed > 0 {
		r.logger.Warn("closed sessions left open by a previous run", "count", closed)
	}
	return db, repo, nil
}

// job is a coordinator wired to the platform surfaces and its budget watchdog.
type job struct {
	coord    *lifecycle.Coordinator
	watchdog *lifecycle.Watchdog
	host     *platform.ProcessHost
	lease    *platform.TimedWakeLock
}

func (r *Runner) newJob(notifier lifecycle.Notifier, repo *repositories.SessionRepository) *job {
	d := r.config.Download
	n := r.config.Notification

	host := platform.NewProcessHost(r.logger, r.exit)
	lease := platform.NewTimedWakeLock(r.logger, nil)

	opts := lifecycle.Options{
		Lease:            lease,
		Notifier:         notifier,
		Host:             host,
		Logger:           r.logger,
		LeaseMaxDuration: d.LeaseMaxDuration,
		ChannelID:        n.ChannelID,
		NotificationID:   n.NotificationID,
	}
	wopts := lifecycle.WatchdogOptions{
		Budget:    d.RuntimeBudget,
		Window:    d.BudgetWindow,
		Grace:     d.GracePeriod,
		Interval:  time.Minute,
		Terminate: host.Terminate,
		Logger:    r.logger,
	}
	if repo != nil {
		opts.Sessions = repo
		wopts.Ledger = repo
	}

	coord := lifecycle.NewCoordinator(opts)
	return &job{
		coord:    coord,
		watchdog: lifecycle.NewWatchdog(coord, wopts),
		host:     host,
		lease:    lease,
	}
}

// start runs the coordinator and watchdog until ctx is cancelled. The returned function cancels them and waits
// for the coordinator's final stop.
func (j *job) start(ctx context.Context, logger *log.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		if err := j.coord.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("coordinator stopped", "error", err)
		}
	}()
	go j.watchdog.Run(ctx)

	return func() {
		cancel()
		<-j.coord.Done()
	}
}

func (r *Runner) notificationChannel() platform.Channel {
	n := r.config.Notification
	return platform.Channel{ID: n.ChannelID, Name: n.ChannelName, Description: n.Description, ShowBadge: n.ShowBadge}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
