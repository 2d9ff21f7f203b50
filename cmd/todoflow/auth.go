package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"todoflow/infrastructure/config"
)

func newLoginCmd(a *app) *cobra.Command {
	var uid, email, name string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			err := a.open(ctx, func(id *config.IdentityConfig) {
				if cmd.Flags().Changed("uid") {
					id.UID = uid
				}
				if cmd.Flags().Changed("email") {
					id.Email = email
				}
				if cmd.Flags().Changed("name") {
					id.DisplayName = name
				}
			})
			if err != nil {
				return err
			}

			user, err := a.client.SignIn(ctx)
			if err != nil {
				return err
			}
			return a.printer.emit(user, func(w io.Writer) {
				fmt.Fprintf(w, "%s Logged in as %s %s\n", green("✓"), bold(user.DisplayName), dim("<"+user.Email+">"))
			})
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "user id to sign in as")
	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	cmd.Flags().StringVar(&name, "name", "", "display name of the user")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx, nil); err != nil {
				return err
			}
			if _, ok := a.store.Current(ctx); !ok {
				fmt.Fprintln(a.out, dim("Not logged in"))
				return nil
			}
			// The local credential is cleared even when this fails.
			if err := a.client.Logout(ctx); err != nil {
				a.notifier.Notify(notifyError("Server logout failed", err))
			}
			fmt.Fprintln(a.out, green("✓"), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx, nil); err != nil {
				return err
			}
			cred, err := a.requireLogin(ctx)
			if err != nil {
				return err
			}
			user := cred.Identity
			return a.printer.emit(user, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", bold(user.DisplayName), dim("<"+user.Email+">"))
				fmt.Fprintf(w, "  uid     %s\n", user.UID)
				fmt.Fprintf(w, "  server  %s\n", a.cfg.API.BaseURL)
			})
		},
	}
}
