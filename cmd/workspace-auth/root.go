package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"appbuilder/api/internal/authclient"
	"appbuilder/api/internal/config"
	"appbuilder/api/internal/logging"
	"appbuilder/api/internal/session"
)

type options struct {
	backendURL string
	token      string
	subpath    string
	redisURL   string
	tabID      string
	logLevel   string

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Load()
	opts := &options{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "workspace-auth",
		Short: "Resolve and authorize the workspace a tab is opening",
		Long: `workspace-auth drives the client-side workspace authorization flow
against an app-builder backend.

The tab's session can live in memory (one-shot) or in Redis, keyed by
--tab, so consecutive invocations see each other's state.`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.backendURL, "backend", cfg.BackendURL, "backend base URL (APP_BACKEND_URL)")
	flags.StringVar(&opts.token, "token", "", "bearer credential")
	flags.StringVar(&opts.subpath, "subpath", cfg.Subpath, "deployment sub-path (APP_SUBPATH)")
	flags.StringVar(&opts.redisURL, "redis-url", cfg.RedisURL, "keep the tab session in Redis (REDIS_URL)")
	flags.StringVar(&opts.tabID, "tab", "default", "tab id scoping the Redis session")
	flags.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	root.AddCommand(
		newAuthorizeCmd(opts, cfg),
		newClassifyCmd(opts),
		newLogoutCmd(opts),
	)
	return root
}

func (o *options) logger(environment string) *zap.Logger {
	return logging.New(logging.Config{
		ServiceName: "workspace-auth",
		Environment: environment,
		LogLevel:    o.logLevel,
		Output:      o.stderr,
	})
}

// tabSession is a session store that may need closing.
type tabSession interface {
	session.Store
	Close() error
}

type memorySession struct {
	*session.MemoryStore
}

func (memorySession) Close() error { return nil }

func (o *options) openSession() (tabSession, error) {
	if strings.TrimSpace(o.redisURL) == "" {
		return memorySession{session.NewMemoryStore(session.Session{})}, nil
	}
	store, err := session.NewRedisStore(o.redisURL, o.tabID, 0)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (o *options) client(sessions session.Store) *authclient.Client {
	return authclient.New(o.backendURL, o.token, authclient.WithWorkspace(func(ctx context.Context) string {
		current, err := sessions.Current(ctx)
		if err != nil {
			return ""
		}
		return current.CurrentOrganizationID
	}))
}

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
