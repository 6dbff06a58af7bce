package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"appbuilder/api/internal/authflow"
	"appbuilder/api/internal/config"
	"appbuilder/api/internal/session"
	"appbuilder/api/internal/user"
)

// recordingNavigator stands in for the address bar: redirects are collected
// and reported instead of followed.
type recordingNavigator struct {
	location  string
	redirects []string
}

func (n *recordingNavigator) Location() string { return n.location }

func (n *recordingNavigator) Redirect(to string) {
	n.redirects = append(n.redirects, to)
}

type authorizeOutput struct {
	Result    authflow.Result `json:"result"`
	Redirects []string        `json:"redirects"`
	Session   session.Session `json:"session"`
	User      *user.User      `json:"user,omitempty"`
	Token     string          `json:"token,omitempty"`
}

func newAuthorizeCmd(opts *options, cfg config.Config) *cobra.Command {
	var (
		email     string
		password  string
		workspace string
		showToken bool
	)

	cmd := &cobra.Command{
		Use:   "authorize <location>",
		Short: "Run the authorization flow for a page location",
		Long: `Run the workspace authorization flow as if a tab had just opened
<location> (path plus optional query, without scheme and host).

With --email and --password the command signs in first; otherwise --token
is used as is.

Examples:
  workspace-auth authorize /acme/apps --token $TOKEN
  workspace-auth authorize '/applications/1f0c...' --redis-url redis://localhost:6379/0 --tab t1
  workspace-auth authorize /beta --email dev@appbuilder.local --password password`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (email == "") != (password == "") {
				return errors.New("--email and --password go together")
			}

			ctx := cmd.Context()
			logger := opts.logger(cfg.Environment)
			defer func() { _ = logger.Sync() }()

			sessions, err := opts.openSession()
			if err != nil {
				return err
			}
			defer sessions.Close()

			client := opts.client(sessions)
			if email != "" {
				if err := client.Authenticate(ctx, email, password, workspace); err != nil {
					return err
				}
			}

			users := user.NewMemoryStore()
			nav := &recordingNavigator{location: args[0]}
			flow := authflow.New(client, sessions, users, nav, opts.subpath, logger)

			result, err := flow.AuthorizeWorkspace(ctx)
			if err != nil {
				return fmt.Errorf("authorize workspace: %w", err)
			}

			current, err := sessions.Current(ctx)
			if err != nil {
				return err
			}
			out := authorizeOutput{
				Result:    result,
				Redirects: nav.redirects,
				Session:   current,
			}
			if stored, ok := users.Current(); ok {
				out.User = &stored
			}
			if showToken {
				out.Token = client.Token()
			}
			return writeJSON(opts.stdout, out)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "sign in with this email first")
	cmd.Flags().StringVar(&password, "password", "", "password for --email")
	cmd.Flags().StringVar(&workspace, "workspace", "", "organization id to sign in to")
	cmd.Flags().BoolVar(&showToken, "show-token", false, "print the credential the flow ended with")
	return cmd
}
