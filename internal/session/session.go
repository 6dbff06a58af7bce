// Package session holds the client-side record of authentication and
// workspace state for one browser tab, and the stores it lives in.
package session

import "context"

type CurrentUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarID  string `json:"avatar_id,omitempty"`
}

type GroupPermission struct {
	Group string `json:"group"`
}

// Authorization is the payload returned by a successful authorize call.
type Authorization struct {
	CurrentUser             CurrentUser       `json:"current_user"`
	GroupPermissions        []GroupPermission `json:"group_permissions"`
	CurrentOrganizationID   string            `json:"current_organization_id"`
	CurrentOrganizationSlug string            `json:"current_organization_slug"`
	CurrentOrganizationName string            `json:"current_organization_name"`
	Admin                   bool              `json:"admin"`
	SuperAdmin              bool              `json:"super_admin"`
}

// Groups returns the permission-group names in response order.
func (a Authorization) Groups() []string {
	groups := make([]string, 0, len(a.GroupPermissions))
	for _, permission := range a.GroupPermissions {
		groups = append(groups, permission.Group)
	}
	return groups
}

type Session struct {
	AuthenticationStatus            bool           `json:"authentication_status"`
	CurrentOrganizationID           string         `json:"current_organization_id,omitempty"`
	CurrentOrganizationSlug         string         `json:"current_organization_slug,omitempty"`
	CurrentOrganizationName         string         `json:"current_organization_name,omitempty"`
	NoWorkspaceAttachedInTheSession bool           `json:"noWorkspaceAttachedInTheSession"`
	AuthenticationFailed            bool           `json:"authentication_failed"`
	LoadApp                         bool           `json:"load_app"`
	IsOrgSwitchingFailed            bool           `json:"isOrgSwitchingFailed"`
	Authorization                   *Authorization `json:"authorization,omitempty"`
}

// Patch is a partial update. Nil fields leave the session untouched.
type Patch struct {
	AuthenticationStatus            *bool
	CurrentOrganizationID           *string
	CurrentOrganizationSlug         *string
	CurrentOrganizationName         *string
	NoWorkspaceAttachedInTheSession *bool
	AuthenticationFailed            *bool
	LoadApp                         *bool
	IsOrgSwitchingFailed            *bool
	Authorization                   *Authorization

	// ClearAuthorization drops the stored authorization. It wins over
	// Authorization.
	ClearAuthorization bool
}

// Merge overlays p onto s and returns the result. s is not modified.
func (s Session) Merge(p Patch) Session {
	if p.AuthenticationStatus != nil {
		s.AuthenticationStatus = *p.AuthenticationStatus
	}
	if p.CurrentOrganizationID != nil {
		s.CurrentOrganizationID = *p.CurrentOrganizationID
	}
	if p.CurrentOrganizationSlug != nil {
		s.CurrentOrganizationSlug = *p.CurrentOrganizationSlug
	}
	if p.CurrentOrganizationName != nil {
		s.CurrentOrganizationName = *p.CurrentOrganizationName
	}
	if p.NoWorkspaceAttachedInTheSession != nil {
		s.NoWorkspaceAttachedInTheSession = *p.NoWorkspaceAttachedInTheSession
	}
	if p.AuthenticationFailed != nil {
		s.AuthenticationFailed = *p.AuthenticationFailed
	}
	if p.LoadApp != nil {
		s.LoadApp = *p.LoadApp
	}
	if p.IsOrgSwitchingFailed != nil {
		s.IsOrgSwitchingFailed = *p.IsOrgSwitchingFailed
	}
	if p.Authorization != nil {
		authorization := *p.Authorization
		authorization.GroupPermissions = append([]GroupPermission(nil), p.Authorization.GroupPermissions...)
		s.Authorization = &authorization
	}
	if p.ClearAuthorization {
		s.Authorization = nil
	}
	return s
}

// SignedOutPatch resets everything that ties the session to a user or a
// workspace.
func SignedOutPatch() Patch {
	return Patch{
		AuthenticationStatus:    Bool(false),
		CurrentOrganizationID:   String(""),
		CurrentOrganizationSlug: String(""),
		CurrentOrganizationName: String(""),
		LoadApp:                 Bool(false),
		IsOrgSwitchingFailed:    Bool(false),
		ClearAuthorization:      true,
	}
}

// AuthorizationPatch spreads an authorize payload over the session fields it
// shares with the session.
func AuthorizationPatch(a Authorization) Patch {
	p := Patch{Authorization: &a}
	if a.CurrentOrganizationID != "" {
		p.CurrentOrganizationID = String(a.CurrentOrganizationID)
	}
	if a.CurrentOrganizationSlug != "" {
		p.CurrentOrganizationSlug = String(a.CurrentOrganizationSlug)
	}
	p.CurrentOrganizationName = String(a.CurrentOrganizationName)
	return p
}

// Store serializes merges so that the session has a single writer.
type Store interface {
	Current(ctx context.Context) (Session, error)
	Merge(ctx context.Context, patch Patch) (Session, error)
}

func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }
