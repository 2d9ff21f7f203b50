package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDebugCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "debug",
		Short:  "Tools for exercising client behaviour by hand",
		Hidden: true,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire-token",
		Short: "Corrupt the stored access token so the next request refreshes it",
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
			cred.BearerToken = "expired." + cred.BearerToken
			a.store.Save(ctx, *cred)
			fmt.Fprintln(a.out, yellow("!"), "Access token invalidated; the next request will refresh it")
			return nil
		},
	})
	return cmd
}
