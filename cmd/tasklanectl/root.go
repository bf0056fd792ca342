package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tasklane/tasklane/internal/authclient"
	"github.com/tasklane/tasklane/internal/principal"
)

// options carries the persistent flags shared by every subcommand.
type options struct {
	apiURL     string
	roleName   string
	cookieFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "tasklanectl",
		Short: "Tasklane CLI - sign in and inspect sessions",
		Long: `tasklanectl drives the Tasklane login flows from a terminal. Sessions are
kept in a cookie file so later commands reuse them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultAPI := os.Getenv("TASKLANE_API")
	if defaultAPI == "" {
		defaultAPI = "http://127.0.0.1:8080"
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", defaultAPI, "Tasklane API base URL (also set via TASKLANE_API)")
	root.PersistentFlags().StringVar(&opts.roleName, "role", "user", "Role to act as: user, admin or customer_service")
	root.PersistentFlags().StringVar(&opts.cookieFile, "cookies", "", "Cookie file (default ~/.tasklane/cookies.json)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log requests and probe diagnostics")

	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newWhoamiCmd(opts))
	root.AddCommand(newLogoutCmd(opts))
	return root
}

func (o *options) role() (principal.Role, error) {
	return principal.ParseRole(o.roleName)
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session bundles a client with the store its cookies are persisted to.
type session struct {
	client *authclient.Client
	store  *authclient.JarStore
	base   *url.URL
}

func (s *session) save() error {
	if err := s.store.Save(s.client.Jar(), s.base); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (o *options) open(cmd *cobra.Command) (*session, error) {
	path := o.cookieFile
	if path == "" {
		var err error
		if path, err = authclient.DefaultJarPath(); err != nil {
			return nil, err
		}
	}
	base, err := url.Parse(strings.TrimRight(o.apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid --api: %w", err)
	}
	store := authclient.NewJarStore(path)
	jar, err := store.Load(base)
	if err != nil {
		return nil, err
	}
	client, err := authclient.New(o.apiURL,
		authclient.WithJar(jar),
		authclient.WithLogger(o.logger(cmd.ErrOrStderr())),
	)
	if err != nil {
		return nil, err
	}
	return &session{client: client, store: store, base: base}, nil
}
