package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"appbuilder/api/internal/config"
	"appbuilder/api/internal/store"
	"appbuilder/api/internal/tokenstore"
)

// fakeStore keeps organizations, users, memberships and apps in maps. The
// function fields override individual lookups to inject failures.
type fakeStore struct {
	mu          sync.Mutex
	orgs        map[string]store.Organization
	users       map[string]store.User
	memberships map[string]store.OrganizationUser
	groups      map[string][]string
	apps        map[string]store.App
	joined      int

	pingFn   func(context.Context) error
	getAppFn func(context.Context, string) (store.App, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:        make(map[string]store.Organization),
		users:       make(map[string]store.User),
		memberships: make(map[string]store.OrganizationUser),
		groups:      make(map[string][]string),
		apps:        make(map[string]store.App),
	}
}

func membershipKey(organizationID, userID string) string {
	return organizationID + "/" + userID
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) GetOrganizationByID(_ context.Context, id string) (store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return store.Organization{}, store.ErrNotFound
	}
	return org, nil
}

func (f *fakeStore) GetOrganizationBySlug(_ context.Context, slug string) (store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, org := range f.orgs {
		if org.Slug == slug {
			return org, nil
		}
	}
	return store.Organization{}, store.ErrNotFound
}

func (f *fakeStore) GetMembership(_ context.Context, organizationID, userID string) (store.OrganizationUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	membership, ok := f.memberships[membershipKey(organizationID, userID)]
	if !ok {
		return store.OrganizationUser{}, store.ErrNotFound
	}
	return membership, nil
}

func (f *fakeStore) DefaultOrganization(_ context.Context, userID string) (store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		found  bool
		oldest store.OrganizationUser
	)
	for _, membership := range f.memberships {
		if membership.UserID != userID || !membership.Active() {
			continue
		}
		if !found || membership.CreatedAt.Before(oldest.CreatedAt) {
			oldest = membership
			found = true
		}
	}
	if !found {
		return store.Organization{}, store.ErrNotFound
	}
	return f.orgs[oldest.OrganizationID], nil
}

func (f *fakeStore) ListGroups(_ context.Context, organizationID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	groups := append([]string(nil), f.groups[membershipKey(organizationID, userID)]...)
	sort.Strings(groups)
	return groups, nil
}

func (f *fakeStore) GetApp(ctx context.Context, appID string) (store.App, error) {
	if f.getAppFn != nil {
		return f.getAppFn(ctx, appID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[appID]
	if !ok {
		return store.App{}, store.ErrNotFound
	}
	return app, nil
}

func (f *fakeStore) CreateOrganization(_ context.Context, name, slug string) (store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org := store.Organization{ID: uuid.NewString(), Name: name, Slug: slug}
	f.orgs[org.ID] = org
	return org, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = uuid.NewString()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) AddMember(_ context.Context, organizationID, userID string, status store.MembershipStatus, groups []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined++
	key := membershipKey(organizationID, userID)
	f.memberships[key] = store.OrganizationUser{
		OrganizationID: organizationID,
		UserID:         userID,
		Status:         status,
		CreatedAt:      time.Unix(int64(f.joined), 0),
	}
	f.groups[key] = append(f.groups[key], groups...)
	return nil
}

func (f *fakeStore) CreateApp(_ context.Context, organizationID, name string, isPublic bool) (store.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app := store.App{ID: uuid.NewString(), OrganizationID: organizationID, Name: name, IsPublic: isPublic}
	f.apps[app.ID] = app
	return app, nil
}

// fixture is two workspaces, acme and beta, and a user who is an active
// admin of acme and only invited to beta.
type fixture struct {
	store     *fakeStore
	tokens    *tokenstore.MemoryStore
	service   *Service
	acme      store.Organization
	beta      store.Organization
	user      store.User
	privateID string
	publicID  string
}

const fixturePassword = "correct horse"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	fs := newFakeStore()

	hash, err := bcrypt.GenerateFromPassword([]byte(fixturePassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	acme, _ := fs.CreateOrganization(ctx, "Acme", "acme")
	beta, _ := fs.CreateOrganization(ctx, "Beta", "beta")
	user, _ := fs.CreateUser(ctx, store.User{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", PasswordHash: string(hash)})
	_ = fs.AddMember(ctx, acme.ID, user.ID, store.MembershipActive, []string{"all_users", "admin"})
	_ = fs.AddMember(ctx, beta.ID, user.ID, store.MembershipInvited, []string{"all_users"})
	private, _ := fs.CreateApp(ctx, acme.ID, "Dashboard", false)
	public, _ := fs.CreateApp(ctx, beta.ID, "Status", true)

	tokens := tokenstore.NewMemoryStore()
	return &fixture{
		store:     fs,
		tokens:    tokens,
		service:   newTestService(fs, tokens),
		acme:      acme,
		beta:      beta,
		user:      user,
		privateID: private.ID,
		publicID:  public.ID,
	}
}

func newTestService(fs dataStore, tokens tokenstore.Store) *Service {
	return &Service{
		cfg:    config.Config{JWTSecret: "test-secret", TokenTTL: time.Hour},
		store:  fs,
		tokens: tokens,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// activate turns the user's beta invitation into an active membership.
func (fx *fixture) activate(t *testing.T, org store.Organization) {
	t.Helper()
	if err := fx.store.AddMember(context.Background(), org.ID, fx.user.ID, store.MembershipActive, nil); err != nil {
		t.Fatalf("activate membership: %v", err)
	}
}

func (fx *fixture) login(t *testing.T, organizationID string) Credential {
	t.Helper()
	cred, err := fx.service.Login(context.Background(), fx.user.Email, fixturePassword, organizationID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return cred
}
