package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/platform"
	"github.com/desertthunder/dlx/internal/repositories"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
	"github.com/desertthunder/dlx/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "dlx-tui.log"

// Download runs a queue of requests as one background job.
//
// The coordinator holds the wake lease and notification for the whole queue; the watchdog enforces the runtime
// budget using the session history. Interrupting the process stops the queue and the job cleanly.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDispatcher(); err != nil {
		return err
	}

	reqs, err := tasks.LoadRequests(cmd.String("file"))
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return r.writePlain("Nothing to download.\n")
	}

	var repo *repositories.SessionRepository
	if !cmd.Bool("no-history") {
		db, sessions, err := r.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		repo = sessions
	}

	outputDir := cmd.String("output-dir")
	if outputDir == "" {
		outputDir = r.config.Download.OutputDir
	}

	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	opts := tasks.QueueOpts{
		OutputDir:      outputDir,
		PollInterval:   r.config.Download.PollInterval,
		RateLimit:      r.config.Download.RequestsPerSecond,
		SkipDuplicates: cmd.Bool("skip-duplicates"),
		Logger:         r.logger,
	}
	if repo != nil {
		opts.Recorder = repo
	}

	if cmd.Bool("tui") {
		return r.downloadTUI(ctx, reqs, opts, repo)
	}
	return r.downloadPlain(ctx, reqs, opts, repo)
}

func (r *Runner) downloadPlain(
	ctx context.Context,
	reqs []tasks.DownloadRequest,
	opts tasks.QueueOpts,
	repo *repositories.SessionRepository,
) error {
	notifier := platform.NewTerminalNotifier(os.Stderr, r.notificationChannel())
	j := r.newJob(notifier, repo)
	j.host.Begin()
	shutdown := j.start(ctx, r.logger)
	defer shutdown()

	queue := tasks.NewQueue(r.dispatcher, j.coord, opts)
	result, err := queue.Run(ctx, reqs, nil)
	if err != nil {
		return err
	}
	return r.writeQueueResult(result)
}

func (r *Runner) downloadTUI(
	ctx context.Context,
	reqs []tasks.DownloadRequest,
	opts tasks.QueueOpts,
	repo *repositories.SessionRepository,
) error {
	// Logs would draw over the TUI.
	logFile, err := os.OpenFile(tuiLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	r.SetLogger(shared.NewLogger(logFile))
	opts.Logger = r.logger

	notifier := ui.NewProgramNotifier(nil)
	j := r.newJob(notifier, repo)
	j.host.Begin()
	shutdown := j.start(ctx, r.logger)
	defer shutdown()

	queue := tasks.NewQueue(r.dispatcher, j.coord, opts)
	var program *tea.Program
	model := ui.NewModel(ctx, ui.ModelOpts{
		Run: func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.QueueResult, error) {
			return queue.Run(ctx, reqs, progress)
		},
		Caller: r.dispatcher,
		Post: func(res bridge.Result) {
			if program != nil {
				ui.ResultPoster(program)(res)
			}
		},
	})
	program = tea.NewProgram(model, tea.WithContext(ctx))
	notifier.Attach(program)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if err != nil {
		return err
	}
	if result != nil {
		return r.writeQueueResult(result)
	}
	return nil
}

func (r *Runner) writeQueueResult(result *tasks.QueueResult) error {
	r.writePlain("\n")
	r.writePlainHeader("Download summary")
	for i, item := range result.Items {
		line := fmt.Sprintf("%3d. %-9s %s", i+1, item.Status, item.Request.Describe())
		if item.Error != "" {
			line += ": " + item.Error
		}
		r.writePlain("%s\n", line)
	}
	r.writePlain("\nDownloaded %d, skipped %d, failed %d, cancelled %d of %d\n",
		result.Completed, result.Skipped, result.Failed, result.Cancelled, result.Total)

	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d downloads failed", shared.ErrEngine, result.Failed, result.Total)
	}
	return nil
}
