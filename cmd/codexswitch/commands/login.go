package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/0xysh/codex-switcher/internal/app"
	"github.com/0xysh/codex-switcher/internal/login"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "sign in with ChatGPT and save the result as a new account",
		ArgsUsage: "NAME",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 1)
			if err != nil {
				return err
			}

			info, err := a.StartLogin(ctx, args[0])
			if err != nil {
				return err
			}
			promptBrowser(cmd, info)

			added, err := a.CompleteLogin(ctx)
			if err != nil {
				return loginError(err)
			}
			fmt.Fprintf(stdout(cmd), "Signed in as %q and switched to it\n", added.Name)
			return nil
		}),
	}
}

func reconnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "reconnect",
		Usage:     "sign in again to refresh a ChatGPT account's credentials",
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

			info, err := a.StartReconnect(ctx, target.ID)
			if err != nil {
				return err
			}
			promptBrowser(cmd, info)

			updated, err := a.CompleteReconnect(ctx)
			if err != nil {
				return loginError(err)
			}
			fmt.Fprintf(stdout(cmd), "Reconnected %q and switched to it\n", updated.Name)
			return nil
		}),
	}
}

func promptBrowser(cmd *cli.Command, info login.Info) {
	w := stderr(cmd)
	fmt.Fprintln(w, "Open this URL in your browser to sign in:")
	fmt.Fprintf(w, "\n  %s\n\n", info.AuthURL)
	fmt.Fprintf(w, "Waiting for the callback on %s (Ctrl-C to abort)...\n", info.CallbackURL)
}

func loginError(err error) error {
	if errors.Is(err, context.Canceled) {
		return errors.New("login aborted")
	}
	return err
}
