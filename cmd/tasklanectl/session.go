package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the principal of the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := opts.role()
			if err != nil {
				return err
			}
			sess, err := opts.open(cmd)
			if err != nil {
				return err
			}
			p, ok := sess.client.Probe(cmd.Context(), role)
			if !ok {
				return fmt.Errorf("not logged in as %s", role)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.GetID(), p.GetName(), p.GetRole())
			return nil
		},
	}
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := opts.role()
			if err != nil {
				return err
			}
			sess, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := sess.client.Logout(cmd.Context(), role); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			if err := sess.save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out successfully")
			return nil
		},
	}
}
