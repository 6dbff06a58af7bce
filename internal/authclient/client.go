// Package authclient is the HTTP client for the session endpoints of the
// app-builder backend.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"appbuilder/api/internal/session"
)

// WorkspaceHeader names the organization the caller believes it is acting in.
const WorkspaceHeader = "X-Workspace-ID"

// SessionInfo is the validateSession response.
type SessionInfo struct {
	CurrentOrganizationID           string `json:"current_organization_id"`
	CurrentOrganizationSlug         string `json:"current_organization_slug"`
	CurrentOrganizationName         string `json:"current_organization_name"`
	NoWorkspaceAttachedInTheSession bool   `json:"no_workspace_attached_in_the_session"`
}

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("backend status %d: %s: %s", e.Status, e.Code, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// backend response (transport failure, cancellation).
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

type Option func(*Client)

// WithHTTPClient replaces the default client, whose timeout is the only
// deadline applied to backend calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithWorkspace sets the source of the X-Workspace-ID header, usually the
// current session's organization id.
func WithWorkspace(fn func(context.Context) string) Option {
	return func(c *Client) { c.workspace = fn }
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	workspace  func(context.Context) string

	mu    sync.RWMutex
	token string
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Authenticate signs in with email and password. organizationID, when set,
// scopes the credential to that workspace. On success the client carries the
// new credential.
func (c *Client) Authenticate(ctx context.Context, email, password, organizationID string) error {
	path := "/api/authenticate"
	if organizationID != "" {
		path += "/" + url.PathEscape(organizationID)
	}
	body := map[string]string{"email": email, "password": password}
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	c.setToken(payload.Token)
	return nil
}

// ValidateSession asks which organization the session resolves to. appID
// takes precedence over workspaceIDOrSlug; both may be empty.
func (c *Client) ValidateSession(ctx context.Context, appID, workspaceIDOrSlug string) (SessionInfo, error) {
	query := url.Values{}
	if appID != "" {
		query.Set("appId", appID)
	}
	if workspaceIDOrSlug != "" {
		query.Set("workspaceSlug", workspaceIDOrSlug)
	}
	path := "/api/authorize/session"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var info SessionInfo
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return SessionInfo{}, fmt.Errorf("validate session: %w", err)
	}
	return info, nil
}

func (c *Client) Authorize(ctx context.Context) (session.Authorization, error) {
	var payload session.Authorization
	if err := c.do(ctx, http.MethodGet, "/api/authorize", nil, &payload); err != nil {
		return session.Authorization{}, fmt.Errorf("authorize: %w", err)
	}
	return payload, nil
}

// SwitchOrganization rescopes the credential to organizationID. On success
// the client carries the new credential.
func (c *Client) SwitchOrganization(ctx context.Context, organizationID string) error {
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/switch/"+url.PathEscape(organizationID), nil, &payload); err != nil {
		return fmt.Errorf("switch organization: %w", err)
	}
	if payload.Token != "" {
		c.setToken(payload.Token)
	}
	return nil
}

// Logout ends the session server-side and drops the credential locally even
// when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.setToken("")
	if err := c.do(ctx, http.MethodPost, "/api/session/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.workspace != nil {
		if workspaceID := c.workspace(ctx); workspaceID != "" {
			req.Header.Set(WorkspaceHeader, workspaceID)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStatusError(resp)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	statusErr := &StatusError{Status: resp.StatusCode}
	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err == nil {
		statusErr.Code = body.Code
		statusErr.Message = body.Error
	} else {
		statusErr.Message = strings.TrimSpace(string(raw))
	}
	if statusErr.Code == "" {
		statusErr.Code = strings.ToUpper(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}
	return statusErr
}
