package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/0xysh/codex-switcher/internal/app"
	"github.com/0xysh/codex-switcher/internal/session"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "list saved accounts",
		Flags:   []cli.Flag{outputFlag()},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			listing, err := a.ListAccounts(ctx)
			if err != nil {
				return err
			}
			return render(stdout(cmd), cmd.String("output"), listing.Accounts, accountsTable(listing.Accounts))
		}),
	}
}

// currentView is what `current` prints: the active account and the session on disk.
type currentView struct {
	Account *app.AccountInfo `json:"account" yaml:"account"`
	Session session.Summary  `json:"session" yaml:"session"`
}

func currentCommand() *cli.Command {
	return &cli.Command{
		Name:  "current",
		Usage: "show the active account and the current Codex session",
		Flags: []cli.Flag{outputFlag()},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			active, err := a.ActiveAccount(ctx)
			if err != nil {
				return err
			}
			summary := a.CurrentSummary()

			view := currentView{Account: active, Session: summary}
			return render(stdout(cmd), cmd.String("output"), view, func(w io.Writer) error {
				if active == nil {
					fmt.Fprintln(w, "Active account: none")
				} else {
					fmt.Fprintf(w, "Active account: %s (%s)\n\n", active.Name, active.ID)
				}
				return summaryTable(summary)(w)
			})
		}),
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "save an account from an auth.json file or an API key",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "from-file",
				Usage: "import credentials from an existing auth.json",
			},
			&cli.BoolFlag{
				Name:  "api-key",
				Usage: "read an API key from stdin",
			},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 1)
			if err != nil {
				return err
			}
			name := args[0]

			fromFile := cmd.String("from-file")
			var info app.AccountInfo
			switch {
			case fromFile != "" && cmd.Bool("api-key"):
				return errors.New("--from-file and --api-key are mutually exclusive")
			case fromFile != "":
				info, err = a.AddFromFile(ctx, fromFile, name)
			case cmd.Bool("api-key"):
				key, readErr := readAPIKey(cmd)
				if readErr != nil {
					return readErr
				}
				info, err = a.AddAPIKey(ctx, name, key)
			default:
				return errors.New("one of --from-file or --api-key is required; use `login` for ChatGPT sign-in")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout(cmd), "Added account %q (%s)\n", info.Name, info.ID)
			return nil
		}),
	}
}

// readAPIKey prompts without echo on a terminal and otherwise reads the first line of stdin.
func readAPIKey(cmd *cli.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(stderr(cmd), "API key: ")
		key, err := term.ReadPassword(fd)
		fmt.Fprintln(stderr(cmd))
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func switchCommand() *cli.Command {
	return &cli.Command{
		Name:      "switch",
		Aliases:   []string{"use"},
		Usage:     "make an account the current Codex login",
		ArgsUsage: "ID|NAME",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 1)
			if err != nil {
				return err
			}
			target, err := a.ResolveAccount(ctx, args[0])
			if err != nil {
				return err
			}

			info, err := a.SwitchAccount(ctx, target.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "Switched to %q\n", info.Name)
			return nil
		}),
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "delete a saved account and its credentials",
		ArgsUsage: "ID|NAME",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 1)
			if err != nil {
				return err
			}
			target, err := a.ResolveAccount(ctx, args[0])
			if err != nil {
				return err
			}

			if err := a.RemoveAccount(ctx, target.ID); err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "Removed %q\n", target.Name)
			return nil
		}),
	}
}

func renameCommand() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "change an account's display name",
		ArgsUsage: "ID|NAME NEW_NAME",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 2)
			if err != nil {
				return err
			}
			target, err := a.ResolveAccount(ctx, args[0])
			if err != nil {
				return err
			}

			if err := a.RenameAccount(ctx, target.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "Renamed %q to %q\n", target.Name, args[1])
			return nil
		}),
	}
}

func reorderCommand() *cli.Command {
	return &cli.Command{
		Name:      "reorder",
		Usage:     "set the display order of all accounts",
		ArgsUsage: "ID|NAME...",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			refs := cmd.Args().Slice()
			if len(refs) == 0 {
				return errors.New("expected every account, in the new order")
			}

			ids := make([]string, 0, len(refs))
			for _, ref := range refs {
				target, err := a.ResolveAccount(ctx, ref)
				if err != nil {
					return err
				}
				ids = append(ids, target.ID)
			}

			if err := a.ReorderAccounts(ctx, ids); err != nil {
				return err
			}
			fmt.Fprintln(stdout(cmd), "Order saved")
			return nil
		}),
	}
}

// requireArgs returns exactly n positional arguments or a usage error.
func requireArgs(cmd *cli.Command, n int) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) != n {
		return nil, fmt.Errorf("%s expects %d argument(s): %s", cmd.Name, n, cmd.ArgsUsage)
	}
	return args, nil
}
