package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/0xysh/codex-switcher/internal/app"
	"github.com/0xysh/codex-switcher/internal/session"
)

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "inspect the Codex CLI session file",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "describe the current auth.json",
				Flags: []cli.Flag{outputFlag()},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					summary := a.CurrentSummary()
					return render(stdout(cmd), cmd.String("output"), summary, summaryTable(summary))
				}),
			},
			{
				Name:  "snapshot",
				Usage: "copy the current auth.json into the snapshots directory",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					path, err := a.Snapshot(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(stdout(cmd), path)
					return nil
				}),
			},
			{
				Name:  "watch",
				Usage: "print a line whenever auth.json changes",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print each summary as a JSON object",
					},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					w := stdout(cmd)
					asJSON := cmd.Bool("json")
					return a.WatchSession(ctx, func(s session.Summary) {
						if asJSON {
							if data, err := json.Marshal(s); err == nil {
								fmt.Fprintln(w, string(data))
							}
							return
						}
						fmt.Fprintln(w, watchLine(time.Now(), s))
					})
				}),
			},
		},
	}
}

func watchLine(at time.Time, s session.Summary) string {
	line := fmt.Sprintf("%s  %s", at.Format(time.TimeOnly), s.Status)
	if s.Mode != "" {
		line += "  " + string(s.Mode)
	}
	if s.Email != "" {
		line += "  " + s.Email
	}
	if s.Message != "" {
		line += "  (" + s.Message + ")"
	}
	return line
}
