// Package authflow resolves which workspace a browser tab is opening and
// authorizes the session for it, recovering from credentials scoped to a
// different workspace by switching organization once.
package authflow

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"appbuilder/api/internal/authclient"
	"appbuilder/api/internal/routes"
	"appbuilder/api/internal/session"
	"appbuilder/api/internal/user"
)

// maxSwitchRetries bounds the authorize passes that follow a successful
// organization switch.
const maxSwitchRetries = 1

type Backend interface {
	ValidateSession(ctx context.Context, appID, workspaceIDOrSlug string) (authclient.SessionInfo, error)
	Authorize(ctx context.Context) (session.Authorization, error)
	SwitchOrganization(ctx context.Context, organizationID string) error
	Logout(ctx context.Context) error
}

// Navigator is the tab's address bar.
type Navigator interface {
	// Location returns the current path including any query string.
	Location() string
	Redirect(to string)
}

type Flow struct {
	backend  Backend
	sessions session.Store
	users    user.Store
	nav      Navigator
	subpath  string
	logger   *zap.Logger

	runMu    sync.Mutex
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

func New(backend Backend, sessions session.Store, users user.Store, nav Navigator, subpath string, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		backend:  backend,
		sessions: sessions,
		users:    users,
		nav:      nav,
		subpath:  routes.NormalizeSubpath(subpath),
		logger:   logger,
	}
}

// begin cancels any run in flight for this tab and waits for it to exit, so a
// fresh invocation supersedes the previous one.
func (f *Flow) begin(ctx context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancelMu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = cancel
	f.cancelMu.Unlock()

	f.runMu.Lock()
	return runCtx, func() {
		f.runMu.Unlock()
		cancel()
	}
}

func (f *Flow) newRun() *run {
	location := f.nav.Location()
	return newRun(location, routes.Path(location))
}

// AuthorizeWorkspace runs on page load: it resolves the workspace named by
// the URL, validates the session against it and, when valid, authorizes.
func (f *Flow) AuthorizeWorkspace(ctx context.Context) (Result, error) {
	ctx, done := f.begin(ctx)
	defer done()

	r := f.newRun()
	if routes.IsExcludedRoute(r.path, f.subpath) {
		f.logger.Debug("route bypasses workspace authorization", zap.String("path", r.path))
		r.result.Outcome = OutcomeSkipped
		return r.result, r.moveTo(StateDone)
	}
	if err := f.validate(ctx, r); err != nil {
		return r.result, err
	}
	return r.result, nil
}

func (f *Flow) validate(ctx context.Context, r *run) error {
	if err := f.step(r, StateValidating); err != nil {
		return err
	}

	isAppViewer := routes.IsAppViewer(r.path, f.subpath)
	appID := ""
	if isAppViewer {
		appID = routes.AppID(r.path, f.subpath)
	}
	workspaceIDOrSlug := routes.WorkspaceIDOrSlug(r.path, f.subpath)

	info, err := f.backend.ValidateSession(ctx, appID, workspaceIDOrSlug)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return f.validateFailed(ctx, r, err, appID, isAppViewer)
	}

	if routes.IsSwitchWorkspacePage(r.path, f.subpath) {
		if err := f.merge(ctx, session.Patch{CurrentOrganizationID: session.String(info.CurrentOrganizationID)}); err != nil {
			return err
		}
		r.result.Outcome = OutcomeSwitchPage
		return f.step(r, StateDone)
	}

	if err := f.merge(ctx, session.Patch{
		NoWorkspaceAttachedInTheSession: session.Bool(info.NoWorkspaceAttachedInTheSession),
		AuthenticationStatus:            session.Bool(true),
	}); err != nil {
		return err
	}
	if info.NoWorkspaceAttachedInTheSession {
		// The caller routes to the no-active-workspace error page off this flag.
		r.result.Outcome = OutcomeNoWorkspace
		return f.step(r, StateDone)
	}
	return f.authorize(ctx, r, info.CurrentOrganizationID, info.CurrentOrganizationSlug, nil)
}

func (f *Flow) validateFailed(ctx context.Context, r *run, cause error, appID string, isAppViewer bool) error {
	status := authclient.StatusCode(cause)
	f.logger.Info("session validation failed", zap.Int("status", status), zap.String("path", r.path), zap.Error(cause))

	if status == http.StatusUnprocessableEntity || status == http.StatusNotFound {
		var destination string
		switch {
		case appID != "":
			destination = routes.ErrorPagePath(f.subpath, routes.ErrorInvalid)
		case status == http.StatusUnprocessableEntity && routes.IsWorkspaceLoginPage(r.path, f.subpath, false):
			destination = routes.ErrorPagePath(f.subpath, routes.ErrorInvalid)
		case status == http.StatusUnprocessableEntity:
			destination = routes.ErrorPagePath(f.subpath, routes.ErrorUnknown)
		default:
			destination = routes.SwitchWorkspacePath(f.subpath)
		}
		f.redirect(r, destination)
	}

	if !isAppViewer {
		if err := f.merge(ctx, session.Patch{AuthenticationStatus: session.Bool(false)}); err != nil {
			return err
		}
		if r.result.Outcome == "" {
			r.result.Outcome = OutcomeUnauthenticated
		}
	} else {
		if err := f.merge(ctx, session.Patch{
			AuthenticationFailed: session.Bool(true),
			LoadApp:              session.Bool(true),
		}); err != nil {
			return err
		}
		switch {
		case r.result.Outcome != "":
		case status == http.StatusForbidden:
			r.result.Outcome = OutcomeAppLogin
		default:
			r.result.Outcome = OutcomePublicApp
		}
	}
	return f.finish(r)
}

// AuthorizeUser authorizes the session for workspaceID. callback, when not
// nil, runs after a successful authorization.
func (f *Flow) AuthorizeUser(ctx context.Context, workspaceID, workspaceSlug string, callback func()) (Result, error) {
	ctx, done := f.begin(ctx)
	defer done()

	r := f.newRun()
	err := f.authorize(ctx, r, workspaceID, workspaceSlug, callback)
	return r.result, err
}

func (f *Flow) authorize(ctx context.Context, r *run, workspaceID, workspaceSlug string, callback func()) error {
	requestedID := workspaceID
	loginSlug := workspaceSlug
	if loginSlug == "" {
		loginSlug = workspaceID
	}

	var discovered authclient.SessionInfo
	switches := 0
	for {
		if requestedID != "" {
			if err := f.merge(ctx, session.Patch{CurrentOrganizationID: session.String(requestedID)}); err != nil {
				return err
			}
		}
		if err := f.step(r, StateAuthorizing); err != nil {
			return err
		}

		payload, err := f.backend.Authorize(ctx)
		if err == nil {
			return f.authorized(ctx, r, payload, callback)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		status := authclient.StatusCode(err)
		f.logger.Info("authorization failed",
			zap.Int("status", status),
			zap.String("workspace_id", requestedID),
			zap.Int("switches", switches),
			zap.Error(err),
		)

		switch {
		case status == http.StatusUnauthorized && switches >= maxSwitchRetries:
			return f.switchFailed(ctx, r, discovered, loginSlug)

		case status == http.StatusUnauthorized:
			// The credential is valid but scoped elsewhere: find out where, then
			// switch to the requested workspace.
			if err := f.step(r, StateValidating); err != nil {
				return err
			}
			info, err := f.backend.ValidateSession(ctx, "", "")
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return f.logout(ctx, r, err, loginSlug)
			}
			discovered = info
			if err := f.merge(ctx, session.Patch{CurrentOrganizationID: session.String(info.CurrentOrganizationID)}); err != nil {
				return err
			}

			if err := f.step(r, StateSwitchingOrg); err != nil {
				return err
			}
			if err := f.backend.SwitchOrganization(ctx, requestedID); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.logger.Info("organization switch failed", zap.String("workspace_id", requestedID), zap.Error(err))
				return f.switchFailed(ctx, r, discovered, loginSlug)
			}
			switches++

		case status == http.StatusUnprocessableEntity || status == http.StatusNotFound:
			f.redirect(r, routes.SwitchWorkspacePath(f.subpath))
			return f.finish(r)

		default:
			// Leave the tab where it is; the page guard reacts to the flag.
			if !routes.IsWorkspaceLoginPage(r.path, f.subpath, true) {
				if err := f.merge(ctx, session.Patch{AuthenticationStatus: session.Bool(false)}); err != nil {
					return err
				}
				r.result.Outcome = OutcomeUnauthenticated
			} else {
				r.result.Outcome = OutcomeUnchanged
			}
			return f.step(r, StateDone)
		}
	}
}

func (f *Flow) authorized(ctx context.Context, r *run, payload session.Authorization, callback func()) error {
	if err := f.users.SetUser(ctx, user.User{
		ID:        payload.CurrentUser.ID,
		Email:     payload.CurrentUser.Email,
		FirstName: payload.CurrentUser.FirstName,
		LastName:  payload.CurrentUser.LastName,
		AvatarID:  payload.CurrentUser.AvatarID,
		Groups:    payload.Groups(),
	}); err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	patch := session.AuthorizationPatch(payload)
	patch.LoadApp = session.Bool(true)
	patch.NoWorkspaceAttachedInTheSession = session.Bool(false)
	if err := f.merge(ctx, patch); err != nil {
		return err
	}
	if callback != nil {
		callback()
	}
	r.result.Outcome = OutcomeAuthorized
	return f.step(r, StateDone)
}

// switchFailed restores the pre-switch workspace details and sends the tab
// to the requested workspace's login page, unless it is already there.
func (f *Flow) switchFailed(ctx context.Context, r *run, discovered authclient.SessionInfo, loginSlug string) error {
	if err := f.merge(ctx, session.Patch{
		CurrentOrganizationName: session.String(discovered.CurrentOrganizationName),
		CurrentOrganizationSlug: session.String(discovered.CurrentOrganizationSlug),
		LoadApp:                 session.Bool(true),
	}); err != nil {
		return err
	}

	r.result.Outcome = OutcomeSwitchFailed
	if !routes.IsWorkspaceLoginPage(r.path, f.subpath, false) {
		f.redirect(r, routes.LoginPath(f.subpath, loginSlug, routes.RedirectTo(r.location, f.subpath)))
		if !r.result.LoopPrevented {
			return f.finish(r)
		}
	}
	if err := f.merge(ctx, session.Patch{IsOrgSwitchingFailed: session.Bool(true)}); err != nil {
		return err
	}
	return f.finish(r)
}

// logout ends the backend session, forgets the tab's identity and sends the
// tab to the workspace login page.
func (f *Flow) logout(ctx context.Context, r *run, cause error, loginSlug string) error {
	f.logger.Info("no valid session left, logging out", zap.Error(cause))
	if err := f.step(r, StateLoggedOut); err != nil {
		return err
	}
	r.result.Outcome = OutcomeLoggedOut
	if err := f.backend.Logout(ctx); err != nil {
		f.logger.Warn("logout failed", zap.Error(err))
	}
	if err := f.merge(ctx, session.SignedOutPatch()); err != nil {
		return err
	}
	if !routes.IsWorkspaceLoginPage(r.path, f.subpath, false) {
		f.redirect(r, routes.LoginPath(f.subpath, loginSlug, routes.RedirectTo(r.location, f.subpath)))
	}
	return nil
}

// redirect sends the tab to destination unless it is already there, in which
// case the run records the suppressed loop instead.
func (f *Flow) redirect(r *run, destination string) {
	if routes.Path(destination) == r.path {
		f.logger.Info("redirect suppressed, already on destination", zap.String("destination", destination))
		r.result.LoopPrevented = true
		return
	}
	f.logger.Info("redirecting", zap.String("from", r.location), zap.String("to", destination))
	r.result.RedirectTo = destination
	if r.result.Outcome == "" || r.result.Outcome == OutcomeUnauthenticated {
		r.result.Outcome = OutcomeRedirected
	}
	f.nav.Redirect(destination)
}

// finish moves to Redirecting when a redirect was issued, else to Done.
func (f *Flow) finish(r *run) error {
	if r.result.RedirectTo != "" {
		return f.step(r, StateRedirecting)
	}
	return f.step(r, StateDone)
}

func (f *Flow) step(r *run, next State) error {
	from := r.result.State
	if err := r.moveTo(next); err != nil {
		return err
	}
	f.logger.Debug("authorization flow transition", zap.String("from", string(from)), zap.String("to", string(next)))
	return nil
}

func (f *Flow) merge(ctx context.Context, patch session.Patch) error {
	if _, err := f.sessions.Merge(ctx, patch); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
