package main

import (
	"github.com/spf13/cobra"

	"appbuilder/api/internal/routes"
)

type classification struct {
	Path                string `json:"path"`
	Excluded            bool   `json:"excluded"`
	AppViewer           bool   `json:"app_viewer"`
	AppID               string `json:"app_id,omitempty"`
	WorkspaceIDOrSlug   string `json:"workspace_id_or_slug,omitempty"`
	SwitchWorkspacePage bool   `json:"switch_workspace_page"`
	LoginPage           bool   `json:"login_page"`
}

func classify(location, subpath string) classification {
	path := routes.Path(location)
	c := classification{
		Path:                path,
		Excluded:            routes.IsExcludedRoute(path, subpath),
		AppViewer:           routes.IsAppViewer(path, subpath),
		WorkspaceIDOrSlug:   routes.WorkspaceIDOrSlug(path, subpath),
		SwitchWorkspacePage: routes.IsSwitchWorkspacePage(path, subpath),
		LoginPage:           routes.IsWorkspaceLoginPage(path, subpath, false),
	}
	if c.AppViewer {
		c.AppID = routes.AppID(path, subpath)
	}
	return c
}

func newClassifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <location>...",
		Short: "Show how locations are classified, without calling the backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]classification, 0, len(args))
			for _, location := range args {
				out = append(out, classify(location, opts.subpath))
			}
			return writeJSON(opts.stdout, out)
		},
	}
}
