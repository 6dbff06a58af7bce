package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverlaysOnlySetFields(t *testing.T) {
	base := Session{
		AuthenticationStatus:    true,
		CurrentOrganizationID:   "org-1",
		CurrentOrganizationSlug: "acme",
		LoadApp:                 true,
	}

	merged := base.Merge(Patch{CurrentOrganizationID: String("org-2"), LoadApp: Bool(false)})

	assert.Equal(t, "org-2", merged.CurrentOrganizationID)
	assert.Equal(t, "acme", merged.CurrentOrganizationSlug)
	assert.True(t, merged.AuthenticationStatus)
	assert.False(t, merged.LoadApp)
	assert.Equal(t, "org-1", base.CurrentOrganizationID, "receiver must not change")
}

func TestMergeCopiesAuthorization(t *testing.T) {
	payload := Authorization{GroupPermissions: []GroupPermission{{Group: "admin"}}}
	merged := Session{}.Merge(Patch{Authorization: &payload})

	payload.GroupPermissions[0].Group = "changed"
	require.NotNil(t, merged.Authorization)
	assert.Equal(t, []string{"admin"}, merged.Authorization.Groups())
}

func TestSignedOutPatchForgetsIdentity(t *testing.T) {
	signedIn := Session{
		AuthenticationStatus:    true,
		CurrentOrganizationID:   "org-2",
		CurrentOrganizationSlug: "beta",
		CurrentOrganizationName: "Beta",
		LoadApp:                 true,
		IsOrgSwitchingFailed:    true,
		Authorization:           &Authorization{CurrentOrganizationID: "org-2"},
	}

	merged := signedIn.Merge(SignedOutPatch())

	assert.False(t, merged.AuthenticationStatus)
	assert.Empty(t, merged.CurrentOrganizationID)
	assert.Empty(t, merged.CurrentOrganizationSlug)
	assert.Empty(t, merged.CurrentOrganizationName)
	assert.False(t, merged.LoadApp)
	assert.False(t, merged.IsOrgSwitchingFailed)
	assert.Nil(t, merged.Authorization)
}

func TestClearAuthorizationWinsOverPayload(t *testing.T) {
	merged := Session{}.Merge(Patch{Authorization: &Authorization{Admin: true}, ClearAuthorization: true})
	assert.Nil(t, merged.Authorization)
}

func TestAuthorizationPatch(t *testing.T) {
	merged := Session{CurrentOrganizationID: "org-1", CurrentOrganizationSlug: "acme"}.Merge(AuthorizationPatch(Authorization{
		CurrentOrganizationName: "Acme",
	}))
	assert.Equal(t, "org-1", merged.CurrentOrganizationID)
	assert.Equal(t, "acme", merged.CurrentOrganizationSlug)
	assert.Equal(t, "Acme", merged.CurrentOrganizationName)
}

func TestMemoryStoreNotifiesSubscribers(t *testing.T) {
	store := NewMemoryStore(Session{})
	var seen []Session
	store.Subscribe(func(s Session) { seen = append(seen, s) })

	ctx := context.Background()
	_, err := store.Merge(ctx, Patch{AuthenticationStatus: Bool(true)})
	require.NoError(t, err)
	_, err = store.Merge(ctx, Patch{CurrentOrganizationID: String("org-1")})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.True(t, seen[1].AuthenticationStatus)
	assert.Equal(t, "org-1", seen[1].CurrentOrganizationID)

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, seen[1], current)
}
