package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"appbuilder/api/internal/auth"
	"appbuilder/api/internal/config"
	"appbuilder/api/internal/rbac"
	"appbuilder/api/internal/session"
	"appbuilder/api/internal/store"
	"appbuilder/api/internal/tokenstore"
	"appbuilder/api/internal/util"
)

// Credential is a verified bearer token scoped to at most one organization.
type Credential struct {
	Token          string
	UserID         string
	OrganizationID string
	JTI            string
	ExpiresAt      time.Time
}

// SessionInfo answers which organization a session resolves to.
type SessionInfo struct {
	CurrentOrganizationID           string `json:"current_organization_id"`
	CurrentOrganizationSlug         string `json:"current_organization_slug"`
	CurrentOrganizationName         string `json:"current_organization_name"`
	NoWorkspaceAttachedInTheSession bool   `json:"no_workspace_attached_in_the_session"`
}

var workspaceSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type dataStore interface {
	Ping(context.Context) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetOrganizationByID(context.Context, string) (store.Organization, error)
	GetOrganizationBySlug(context.Context, string) (store.Organization, error)
	GetMembership(context.Context, string, string) (store.OrganizationUser, error)
	DefaultOrganization(context.Context, string) (store.Organization, error)
	ListGroups(context.Context, string, string) ([]string, error)
	GetApp(context.Context, string) (store.App, error)
	CreateOrganization(context.Context, string, string) (store.Organization, error)
	CreateUser(context.Context, store.User) (store.User, error)
	AddMember(context.Context, string, string, store.MembershipStatus, []string) error
	CreateApp(context.Context, string, string, bool) (store.App, error)
}

type Service struct {
	cfg    config.Config
	store  dataStore
	tokens tokenstore.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, tokens tokenstore.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login checks email and password and issues a credential scoped to
// organizationID, or to the user's default organization when empty. A user
// without any active membership still gets a credential, scoped to nothing.
func (s *Service) Login(ctx context.Context, email, password, organizationID string) (Credential, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Credential{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", nil)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Credential{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if err != nil {
		return Credential{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Credential{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}

	if organizationID != "" {
		if !util.IsUUID(organizationID) {
			return Credential{}, domainError(http.StatusUnprocessableEntity, "INVALID_ORGANIZATION_ID", "organization id is malformed", nil)
		}
		if err := s.requireActiveMember(ctx, organizationID, user.ID); err != nil {
			return Credential{}, err
		}
	} else {
		org, err := s.store.DefaultOrganization(ctx, user.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return Credential{}, err
		default:
			organizationID = org.ID
		}
	}

	s.logger.Info("user signed in", zap.String("user_id", user.ID), zap.String("organization_id", organizationID))
	return s.issueCredential(user.ID, organizationID)
}

func (s *Service) issueCredential(userID, organizationID string) (Credential, error) {
	expiresAt := s.now().Add(s.cfg.TokenTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:            userID,
		OrganizationID: organizationID,
		JTI:            jti,
		Exp:            expiresAt.Unix(),
	})
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		Token:          token,
		UserID:         userID,
		OrganizationID: organizationID,
		JTI:            jti,
		ExpiresAt:      expiresAt,
	}, nil
}

func (s *Service) CredentialFromToken(ctx context.Context, token string) (Credential, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Credential{}, err
	}
	revoked, err := s.tokens.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return Credential{}, err
	}
	if revoked {
		return Credential{}, auth.ErrInvalidToken
	}

	return Credential{
		Token:          token,
		UserID:         claims.Sub,
		OrganizationID: claims.OrganizationID,
		JTI:            claims.JTI,
		ExpiresAt:      time.Unix(claims.Exp, 0),
	}, nil
}

// ValidateSession resolves the organization a tab is opening. appID wins
// over workspaceIDOrSlug; with neither the credential's own organization is
// used. cred is nil for anonymous callers.
//
// A hinted organization is returned whether or not the caller belongs to it:
// membership is enforced by Authorize and SwitchOrganization.
func (s *Service) ValidateSession(ctx context.Context, cred *Credential, appID, workspaceIDOrSlug string) (SessionInfo, error) {
	switch {
	case appID != "":
		if !util.IsUUID(appID) {
			return SessionInfo{}, domainError(http.StatusUnprocessableEntity, "INVALID_APP_ID", "app id is malformed", nil)
		}
		app, err := s.store.GetApp(ctx, appID)
		if errors.Is(err, store.ErrNotFound) {
			return SessionInfo{}, domainError(http.StatusNotFound, "APP_NOT_FOUND", "App not found", nil)
		}
		if err != nil {
			return SessionInfo{}, err
		}
		if cred == nil {
			// Public apps render without a session; the client handles the 401.
			if app.IsPublic {
				return SessionInfo{}, unauthorized("Session required")
			}
			return SessionInfo{}, domainError(http.StatusForbidden, "APP_LOGIN_REQUIRED", "App requires sign-in", nil)
		}
		org, err := s.store.GetOrganizationByID(ctx, app.OrganizationID)
		if err != nil {
			return SessionInfo{}, err
		}
		return sessionInfo(org), nil

	case workspaceIDOrSlug != "":
		org, err := s.lookupWorkspace(ctx, workspaceIDOrSlug)
		if err != nil {
			return SessionInfo{}, err
		}
		if cred == nil {
			return SessionInfo{}, unauthorized("Session required")
		}
		return sessionInfo(org), nil
	}

	if cred == nil {
		return SessionInfo{}, unauthorized("Session required")
	}
	if cred.OrganizationID != "" {
		membership, err := s.store.GetMembership(ctx, cred.OrganizationID, cred.UserID)
		switch {
		case err == nil && membership.Active():
			org, err := s.store.GetOrganizationByID(ctx, cred.OrganizationID)
			if err != nil {
				return SessionInfo{}, err
			}
			return sessionInfo(org), nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return SessionInfo{}, err
		}
	}

	org, err := s.store.DefaultOrganization(ctx, cred.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return SessionInfo{NoWorkspaceAttachedInTheSession: true}, nil
	}
	if err != nil {
		return SessionInfo{}, err
	}
	return sessionInfo(org), nil
}

func (s *Service) lookupWorkspace(ctx context.Context, idOrSlug string) (store.Organization, error) {
	var (
		org store.Organization
		err error
	)
	switch {
	case util.IsUUID(idOrSlug):
		org, err = s.store.GetOrganizationByID(ctx, idOrSlug)
	case workspaceSlugPattern.MatchString(idOrSlug):
		org, err = s.store.GetOrganizationBySlug(ctx, idOrSlug)
	default:
		return store.Organization{}, domainError(http.StatusUnprocessableEntity, "INVALID_WORKSPACE", "workspace id or slug is malformed", nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return store.Organization{}, domainError(http.StatusNotFound, "WORKSPACE_NOT_FOUND", "Workspace not found", nil)
	}
	return org, err
}

func sessionInfo(org store.Organization) SessionInfo {
	return SessionInfo{
		CurrentOrganizationID:   org.ID,
		CurrentOrganizationSlug: org.Slug,
		CurrentOrganizationName: org.Name,
	}
}

// Authorize returns the user and permissions for the credential's
// organization. workspaceID is the organization the caller believes it is
// in; a credential scoped elsewhere is rejected.
func (s *Service) Authorize(ctx context.Context, cred Credential, workspaceID string) (session.Authorization, error) {
	if cred.OrganizationID == "" {
		return session.Authorization{}, unauthorized("No workspace attached to the session")
	}
	if workspaceID != "" && workspaceID != cred.OrganizationID {
		return session.Authorization{}, unauthorized("Session belongs to another workspace")
	}
	if err := s.requireActiveMember(ctx, cred.OrganizationID, cred.UserID); err != nil {
		return session.Authorization{}, err
	}

	user, err := s.store.GetUserByID(ctx, cred.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return session.Authorization{}, unauthorized("Unknown user")
	}
	if err != nil {
		return session.Authorization{}, err
	}
	org, err := s.store.GetOrganizationByID(ctx, cred.OrganizationID)
	if err != nil {
		return session.Authorization{}, err
	}
	groups, err := s.store.ListGroups(ctx, org.ID, user.ID)
	if err != nil {
		return session.Authorization{}, err
	}

	permissions := make([]session.GroupPermission, 0, len(groups))
	normalized := make([]rbac.Group, 0, len(groups))
	for _, group := range groups {
		permissions = append(permissions, session.GroupPermission{Group: group})
		normalized = append(normalized, rbac.Normalize(group))
	}

	return session.Authorization{
		CurrentUser: session.CurrentUser{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			AvatarID:  user.AvatarID,
		},
		GroupPermissions:        permissions,
		CurrentOrganizationID:   org.ID,
		CurrentOrganizationSlug: org.Slug,
		CurrentOrganizationName: org.Name,
		Admin:                   rbac.CanAny(normalized, rbac.ActionManageUsers),
	}, nil
}

// SwitchOrganization re-scopes cred to organizationID and revokes the old
// credential.
func (s *Service) SwitchOrganization(ctx context.Context, cred Credential, organizationID string) (Credential, error) {
	if !util.IsUUID(organizationID) {
		return Credential{}, domainError(http.StatusUnprocessableEntity, "INVALID_ORGANIZATION_ID", "organization id is malformed", nil)
	}
	if _, err := s.store.GetOrganizationByID(ctx, organizationID); errors.Is(err, store.ErrNotFound) {
		return Credential{}, domainError(http.StatusNotFound, "WORKSPACE_NOT_FOUND", "Workspace not found", nil)
	} else if err != nil {
		return Credential{}, err
	}
	if err := s.requireActiveMember(ctx, organizationID, cred.UserID); err != nil {
		return Credential{}, err
	}

	next, err := s.issueCredential(cred.UserID, organizationID)
	if err != nil {
		return Credential{}, err
	}
	if err := s.tokens.Revoke(ctx, cred.JTI, cred.ExpiresAt); err != nil {
		s.logger.Warn("revoke superseded credential", zap.String("jti", cred.JTI), zap.Error(err))
	}
	s.logger.Info("organization switched",
		zap.String("user_id", cred.UserID),
		zap.String("from", cred.OrganizationID),
		zap.String("to", organizationID),
	)
	return next, nil
}

func (s *Service) Logout(ctx context.Context, cred Credential) error {
	if cred.JTI == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, cred.JTI, cred.ExpiresAt); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}

func (s *Service) requireActiveMember(ctx context.Context, organizationID, userID string) error {
	membership, err := s.store.GetMembership(ctx, organizationID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return unauthorized("Not a member of this workspace")
	}
	if err != nil {
		return err
	}
	if !membership.Active() {
		return unauthorized("Workspace membership is not active")
	}
	return nil
}

// Bootstrap seeds a demo workspace pair, user and apps unless the demo
// workspace already exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	if _, err := s.store.GetOrganizationBySlug(ctx, "demo"); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	demo, err := s.store.CreateOrganization(ctx, "Demo Workspace", "demo")
	if err != nil {
		return err
	}
	sandbox, err := s.store.CreateOrganization(ctx, "Sandbox", "sandbox")
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}
	owner, err := s.store.CreateUser(ctx, store.User{
		Email:        "dev@appbuilder.local",
		FirstName:    "Dev",
		LastName:     "Admin",
		PasswordHash: string(hash),
	})
	if err != nil {
		return err
	}

	if err := s.store.AddMember(ctx, demo.ID, owner.ID, store.MembershipActive, []string{string(rbac.GroupAllUsers), string(rbac.GroupAdmin)}); err != nil {
		return err
	}
	if err := s.store.AddMember(ctx, sandbox.ID, owner.ID, store.MembershipInvited, []string{string(rbac.GroupAllUsers)}); err != nil {
		return err
	}

	if _, err := s.store.CreateApp(ctx, demo.ID, "Customer Dashboard", false); err != nil {
		return err
	}
	if _, err := s.store.CreateApp(ctx, demo.ID, "Status Page", true); err != nil {
		return err
	}

	s.logger.Info("seeded demo workspace",
		zap.String("organization_id", demo.ID),
		zap.String("user", owner.Email),
	)
	return nil
}
