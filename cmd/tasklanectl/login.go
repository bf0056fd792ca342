package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tasklane/tasklane/internal/loginflow"
	"github.com/tasklane/tasklane/internal/principal"
)

func newLoginCmd(opts *options) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in, answering a verification code when asked",
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
			p, err := runLogin(cmd, opts, sess, role, username)
			if err != nil {
				return err
			}
			if err := sess.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", p.GetName(), role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username or email")
	return cmd
}

func runLogin(cmd *cobra.Command, opts *options, sess *session, role principal.Role, username string) (principal.Principal, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	ask := newPrompter(cmd.InOrStdin(), out)

	var err error
	if username == "" {
		if username, err = ask.line("Username: "); err != nil {
			return nil, err
		}
	}
	password, err := ask.secret("Password: ")
	if err != nil {
		return nil, err
	}

	flow := loginflow.New(role, sess.client, opts.logger(cmd.ErrOrStderr()))
	snap, err := flow.Submit(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if snap.Step == loginflow.StepVerification && snap.Banner == "" {
		fmt.Fprintln(out, "A verification code has been sent to your email.")
	}

	for snap.Step == loginflow.StepVerification {
		if snap.Banner != "" {
			fmt.Fprintf(out, "! %s\n", snap.Banner)
			flow.DismissBanner()
		}
		if snap.Error != "" {
			fmt.Fprintf(out, "! %s\n", snap.Error)
		}
		answer, err := ask.line("Verification code (r to resend): ")
		if err != nil {
			return nil, err
		}
		switch answer {
		case "":
			return nil, errAbandoned
		case "r", "R":
			snap, err = flow.Resend(ctx)
			if err == nil && snap.Banner == "" {
				fmt.Fprintln(out, "A new code has been sent.")
			}
		default:
			snap, err = flow.Verify(ctx, answer)
		}
		if err != nil && !errors.Is(err, loginflow.ErrInvalidCodeFormat) {
			return nil, err
		}
	}

	if snap.Step != loginflow.StepDone {
		if snap.Banner != "" {
			return nil, errors.New(snap.Banner)
		}
		return nil, errors.New(snap.Error)
	}
	return snap.Principal, nil
}
