package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessionSendsHints(t *testing.T) {
	var gotQuery string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/authorize/session", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"current_organization_id":              "org-1",
			"current_organization_slug":            "acme",
			"no_workspace_attached_in_the_session": true,
		})
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	info, err := client.ValidateSession(context.Background(), "", "acme")
	require.NoError(t, err)

	assert.Equal(t, "workspaceSlug=acme", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, SessionInfo{
		CurrentOrganizationID:           "org-1",
		CurrentOrganizationSlug:         "acme",
		NoWorkspaceAttachedInTheSession: true,
	}, info)
}

func TestErrorResponsesCarryStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","error":"workspace not found"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "").ValidateSession(context.Background(), "", "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "NOT_FOUND", statusErr.Code)
	assert.Equal(t, "workspace not found", statusErr.Message)
}

func TestNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, "").Authorize(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.Equal(t, "BAD_GATEWAY", statusErr.Code)
	assert.Equal(t, "boom", statusErr.Message)
}

func TestStatusCodeOfTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url, "").Authorize(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func TestAuthorizeSendsWorkspaceHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "org-2", r.Header.Get(WorkspaceHeader))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"current_user":              map[string]any{"id": "u-1", "email": "a@b.c", "first_name": "Ada", "last_name": "L"},
			"group_permissions":         []map[string]any{{"group": "all_users"}, {"group": "admin"}},
			"current_organization_name": "Acme",
		})
	}))
	defer server.Close()

	client := New(server.URL, "tok", WithWorkspace(func(context.Context) string { return "org-2" }))
	payload, err := client.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", payload.CurrentUser.FirstName)
	assert.Equal(t, []string{"all_users", "admin"}, payload.Groups())
	assert.Equal(t, "Acme", payload.CurrentOrganizationName)
}

func TestSwitchOrganizationReplacesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/switch/org-2", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "rescoped"})
	}))
	defer server.Close()

	client := New(server.URL, "old")
	require.NoError(t, client.SwitchOrganization(context.Background(), "org-2"))
	assert.Equal(t, "rescoped", client.Token())
}

func TestLogoutDropsTokenEvenOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	require.Error(t, client.Logout(context.Background()))
	assert.Empty(t, client.Token())
}

func TestAuthenticatePostsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/authenticate/org-2", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"email": "ada@example.com", "password": "secret"}, body)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "fresh"})
	}))
	defer server.Close()

	client := New(server.URL, "")
	require.NoError(t, client.Authenticate(context.Background(), "ada@example.com", "secret", "org-2"))
	assert.Equal(t, "fresh", client.Token())
}
