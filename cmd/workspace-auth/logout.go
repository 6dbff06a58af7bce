package main

import (
	"github.com/spf13/cobra"

	"appbuilder/api/internal/session"
)

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on the backend and forget the tab's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessions, err := opts.openSession()
			if err != nil {
				return err
			}
			defer sessions.Close()

			if err := opts.client(sessions).Logout(ctx); err != nil {
				return err
			}
			if redisSession, ok := sessions.(*session.RedisStore); ok {
				if err := redisSession.Clear(ctx); err != nil {
					return err
				}
			}
			return writeJSON(opts.stdout, map[string]any{"ok": true})
		},
	}
}
