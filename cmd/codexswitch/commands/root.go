package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/0xysh/codex-switcher/internal/app"
	"github.com/0xysh/codex-switcher/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "codexswitch",
		Usage: "Switch the Codex CLI between saved accounts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "additional log exporter (none|stdout|otlphttp|otlpgrpc)",
				Value: string(app.DefaultConfigLogExporter),
			},
			&cli.StringFlag{
				Name:  "paths--config-dir",
				Usage: "directory holding the account index (default ~/.codex-switcher)",
			},
			&cli.StringFlag{
				Name:  "paths--codex-home",
				Usage: "Codex CLI home directory (default $CODEX_HOME or ~/.codex)",
			},
			&cli.StringFlag{
				Name:  "secrets--storage",
				Usage: "secret storage backend (keyring|file)",
				Value: string(app.DefaultConfigSecretStorage),
			},
		},
		Commands: []*cli.Command{
			listCommand(),
			currentCommand(),
			addCommand(),
			switchCommand(),
			removeCommand(),
			renameCommand(),
			reorderCommand(),
			loginCommand(),
			reconnectCommand(),
			sessionCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// appAction is an action that needs a configured App.
type appAction func(ctx context.Context, cmd *cli.Command, application *app.App) error

// withApp loads the configuration, sets up logging and builds the App before running fn.
func withApp(fn appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Set up observability before creating app
		shutdown, err := observability.Instrument(ctx, observability.Options{
			Level:    cfg.LogLevel,
			Format:   string(cfg.LogFormat),
			Exporter: cfg.LogExporter,
		})
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
			}
		}()

		application, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		return fn(ctx, cmd, application)
	}
}
