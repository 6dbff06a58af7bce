// Package routes classifies browser paths and builds the redirect targets used
// by the workspace authorization flow. Every helper is sub-path aware.
package routes

import (
	"net/url"
	"strings"
)

type ErrorType string

const (
	ErrorInvalid           ErrorType = "invalid-link"
	ErrorUnknown           ErrorType = "unknown"
	ErrorNoActiveWorkspace ErrorType = "no-active-workspace"
)

const (
	switchWorkspaceSegment = "switch-workspace"
	loginSegment           = "login"
	applicationsSegment    = "applications"
	errorSegment           = "error"
)

// excludedRoutes bypass workspace authorization entirely.
var excludedRoutes = map[string]struct{}{
	"forgot-password":          {},
	"reset-password":           {},
	"invitations":              {},
	"organization-invitations": {},
	"setup":                    {},
	"confirm":                  {},
	"confirm-invite":           {},
}

// reservedRoutes are top-level segments that never name a workspace.
var reservedRoutes = map[string]struct{}{
	applicationsSegment:    {},
	switchWorkspaceSegment: {},
	loginSegment:           {},
	errorSegment:           {},
	"signup":               {},
	"sso":                  {},
}

// NormalizeSubpath returns "" or a path of the form "/a/b".
func NormalizeSubpath(raw string) string {
	parts := Segments(raw)
	if len(parts) == 0 {
		return ""
	}
	return "/" + strings.Join(parts, "/")
}

// Segments splits a path into its non-empty segments.
func Segments(path string) []string {
	fields := strings.Split(path, "/")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}

// StripSubpath removes the deployment prefix from path. Paths outside the
// prefix are returned unchanged.
func StripSubpath(path, subpath string) string {
	subpath = NormalizeSubpath(subpath)
	if subpath == "" {
		return path
	}
	if path == subpath {
		return "/"
	}
	if strings.HasPrefix(path, subpath+"/") {
		return strings.TrimPrefix(path, subpath)
	}
	return path
}

// IsExcludedRoute reports whether the segment directly after the sub-path is
// one of the routes that skip workspace authorization. The comparison is
// positional: the segment index is the number of sub-path segments.
func IsExcludedRoute(path, subpath string) bool {
	pathnames := Segments(path)
	if len(pathnames) == 0 {
		return false
	}
	index := len(Segments(subpath))
	if index >= len(pathnames) {
		return false
	}
	_, ok := excludedRoutes[pathnames[index]]
	return ok
}

func appSegments(path, subpath string) []string {
	return Segments(StripSubpath(path, subpath))
}

// IsAppViewer reports whether path is an app-viewer route.
func IsAppViewer(path, subpath string) bool {
	parts := appSegments(path, subpath)
	return len(parts) > 0 && parts[0] == applicationsSegment
}

// AppID returns the app id of an app-viewer route, or "".
func AppID(path, subpath string) string {
	parts := appSegments(path, subpath)
	if len(parts) < 2 || parts[0] != applicationsSegment {
		return ""
	}
	return parts[1]
}

// WorkspaceIDOrSlug extracts the workspace slug or id named by the path.
func WorkspaceIDOrSlug(path, subpath string) string {
	parts := appSegments(path, subpath)
	if len(parts) == 0 {
		return ""
	}
	if parts[0] == loginSegment {
		if len(parts) >= 2 {
			return parts[1]
		}
		return ""
	}
	if _, reserved := reservedRoutes[parts[0]]; reserved {
		return ""
	}
	if _, excluded := excludedRoutes[parts[0]]; excluded {
		return ""
	}
	return parts[0]
}

func IsSwitchWorkspacePage(path, subpath string) bool {
	return path == SwitchWorkspacePath(subpath)
}

// IsWorkspaceLoginPage reports whether path is /login/<slug>. With
// justLoginPage any path starting with /login matches.
func IsWorkspaceLoginPage(path, subpath string, justLoginPage bool) bool {
	parts := appSegments(path, subpath)
	if len(parts) == 0 || parts[0] != loginSegment {
		return false
	}
	return justLoginPage || len(parts) == 2
}

func SwitchWorkspacePath(subpath string) string {
	return NormalizeSubpath(subpath) + "/" + switchWorkspaceSegment
}

// LoginPath builds the workspace login page with an already escaped
// redirectTo value.
func LoginPath(subpath, workspaceSlug, redirectTo string) string {
	target := NormalizeSubpath(subpath) + "/" + loginSegment + "/" + workspaceSlug
	if redirectTo != "" {
		target += "?redirectTo=" + redirectTo
	}
	return target
}

func ErrorPagePath(subpath string, errorType ErrorType) string {
	return NormalizeSubpath(subpath) + "/" + errorSegment + "/" + string(errorType)
}

// RedirectTo returns the query-escaped destination the user was heading to,
// without the sub-path, including the original query string.
func RedirectTo(location, subpath string) string {
	parsed, err := url.Parse(location)
	if err != nil {
		return url.QueryEscape(location)
	}
	destination := StripSubpath(parsed.Path, subpath)
	if parsed.RawQuery != "" {
		destination += "?" + parsed.RawQuery
	}
	return url.QueryEscape(destination)
}

// Path returns the path component of a location that may carry a query.
func Path(location string) string {
	parsed, err := url.Parse(location)
	if err != nil {
		if idx := strings.IndexAny(location, "?#"); idx >= 0 {
			return location[:idx]
		}
		return location
	}
	return parsed.Path
}
