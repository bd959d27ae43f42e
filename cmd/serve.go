package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/dlx/internal/platform"
	"github.com/desertthunder/dlx/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve exposes the bridge and one job coordinator over HTTP until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDispatcher(); err != nil {
		return err
	}

	db, repo, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := r.config.Server
	if host := cmd.String("host"); host != "" {
		cfg.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Port = port
	}

	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	notifier := platform.NewTerminalNotifier(os.Stderr, r.notificationChannel())
	j := r.newJob(notifier, repo)
	shutdown := j.start(ctx, r.logger)
	defer shutdown()

	srv := server.NewServer(cfg, server.NewMethodChannel(r.dispatcher, j.coord, r.logger), r.logger)
	err = srv.ListenAndServe(ctx)

	// Results for calls still in flight are dropped, but their engine requests are allowed to finish.
	r.dispatcher.Wait()
	return err
}
