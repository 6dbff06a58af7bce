package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, first_name, last_name, password_hash, COALESCE(avatar_id::text, ''), created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash, &user.AvatarID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func scanOrganization(row *sql.Row) (Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	if err != nil {
		return Organization{}, fmt.Errorf("scan organization: %w", err)
	}
	return org, nil
}

func (s *PostgresStore) GetOrganizationByID(ctx context.Context, id string) (Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM organizations WHERE id = $1`, id))
}

func (s *PostgresStore) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM organizations WHERE slug = $1`, slug))
}

func (s *PostgresStore) GetMembership(ctx context.Context, organizationID, userID string) (OrganizationUser, error) {
	var membership OrganizationUser
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, user_id, status, created_at
		FROM organization_users
		WHERE organization_id = $1 AND user_id = $2
	`, organizationID, userID).Scan(&membership.OrganizationID, &membership.UserID, &membership.Status, &membership.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return OrganizationUser{}, ErrNotFound
	}
	if err != nil {
		return OrganizationUser{}, fmt.Errorf("read membership: %w", err)
	}
	return membership, nil
}

// DefaultOrganization returns the user's oldest active organization.
func (s *PostgresStore) DefaultOrganization(ctx context.Context, userID string) (Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `
		SELECT o.id, o.name, o.slug, o.created_at, o.updated_at
		FROM organization_users ou
		JOIN organizations o ON o.id = ou.organization_id
		WHERE ou.user_id = $1 AND ou.status = 'active'
		ORDER BY ou.created_at ASC, o.id ASC
		LIMIT 1
	`, userID))
}

func (s *PostgresStore) ListGroups(ctx context.Context, organizationID, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT "group" FROM group_permissions
		WHERE organization_id = $1 AND user_id = $2
		ORDER BY "group"
	`, organizationID, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var group string
		if err := rows.Scan(&group); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

func (s *PostgresStore) GetApp(ctx context.Context, appID string) (App, error) {
	var app App
	var slug sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, slug, is_public, created_at, updated_at
		FROM apps WHERE id = $1
	`, appID).Scan(&app.ID, &app.OrganizationID, &app.Name, &slug, &app.IsPublic, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return App{}, ErrNotFound
	}
	if err != nil {
		return App{}, fmt.Errorf("read app: %w", err)
	}
	app.Slug = slug.String
	return app, nil
}

func (s *PostgresStore) CreateOrganization(ctx context.Context, name, slug string) (Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug) VALUES ($1, $2)
		RETURNING id, name, slug, created_at, updated_at
	`, name, slug))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, first_name, last_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns, user.Email, user.FirstName, user.LastName, user.PasswordHash))
}

// AddMember upserts the membership and its permission groups in one
// transaction.
func (s *PostgresStore) AddMember(ctx context.Context, organizationID, userID string, status MembershipStatus, groups []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add member: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organization_users (organization_id, user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET status = EXCLUDED.status
	`, organizationID, userID, status); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	for _, group := range groups {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_permissions (organization_id, user_id, "group")
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, organizationID, userID, group); err != nil {
			return fmt.Errorf("insert group %s: %w", group, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add member: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateApp(ctx context.Context, organizationID, name string, isPublic bool) (App, error) {
	var app App
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO apps (organization_id, name, is_public) VALUES ($1, $2, $3)
		RETURNING id, organization_id, name, is_public, created_at, updated_at
	`, organizationID, name, isPublic).Scan(&app.ID, &app.OrganizationID, &app.Name, &app.IsPublic, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return App{}, fmt.Errorf("insert app: %w", err)
	}
	return app, nil
}
