package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/dlx/internal/formatter"
	"github.com/urfave/cli/v3"
)

// History prints or exports recorded sessions with their items.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	db, repo, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now()
	criteria := map[string]any{
		"limit":  cmd.Int("limit"),
		"reason": cmd.String("reason"),
	}
	if since := cmd.Duration("since"); since > 0 {
		criteria["since"] = now.Add(-since)
	}

	sessions, err := repo.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	h := &formatter.History{Now: now}
	for _, s := range sessions {
		items, err := repo.Items(s.ID())
		if err != nil {
			return fmt.Errorf("failed to load items for session %s: %w", s.ID(), err)
		}
		h.Entries = append(h.Entries, formatter.HistoryEntry{Session: s, Items: items})
	}

	format := cmd.String("format")
	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(h, format, path); err != nil {
			return err
		}
		r.logger.Info("history exported", "sessions", len(h.Entries), "format", format, "path", path)
		return nil
	}

	data, err := formatter.Export(h, format)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}
