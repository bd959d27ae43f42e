// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/dlx/internal/formatter"
	"github.com/urfave/cli/v3"
)

// setupCommand initializes the config file and the session database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml if missing and run database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
		Commands: []*cli.Command{
			{
				Name:  "rollback",
				Usage: "Roll back the most recent database migration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.Rollback,
			},
		},
	}
}

// opsCommand lists the bridge catalogue.
func opsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ops",
		Usage: "List the operations the engine bridge accepts",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Ops,
	}
}

// callCommand invokes one bridge operation.
func callCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "call",
		Usage: "Invoke an engine operation through the bridge",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "method",
			},
		},
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "arg",
				Aliases: []string{"a"},
				Usage:   "Named argument as key=value (repeatable)",
			},
			&cli.StringFlag{
				Name:  "blob",
				Usage: "Serialized request for blob operations; @path reads it from a file",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON results",
				Value: true,
			},
		},
		Action: r.Call,
	}
}

// downloadCommand runs a queue of download requests as a background job.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "download",
		Aliases: []string{"dl"},
		Usage:   "Download a JSON array of requests as one background job",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to a JSON array of download requests",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory the engine writes to (defaults to download.output_dir)",
			},
			&cli.BoolFlag{
				Name:  "skip-duplicates",
				Usage: "Skip requests whose ISRC is already in the output directory",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the interactive job view",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record the job in the session database",
			},
		},
		Action: r.Download,
	}
}

// serveCommand runs the HTTP method channel.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Expose the bridge and the job coordinator over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (defaults to server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (defaults to server.port)",
			},
		},
		Action: r.Serve,
	}
}

// historyCommand exports recorded sessions.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded download sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: " + joinFormats(),
				Value: formatter.FormatText,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of sessions",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "reason",
				Usage: "Only sessions that ended for this reason (stopped, timeout, abandoned)",
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only sessions started within this long ago, e.g. 24h",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.History,
	}
}

func joinFormats() string { return strings.Join(formatter.Formats, ", ") }
