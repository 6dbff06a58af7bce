package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func TestDownMigrationsNewestFirst(t *testing.T) {
	migrations := fstest.MapFS{
		"0001_organizations_users.up.sql":   {Data: []byte("SELECT 1")},
		"0001_organizations_users.down.sql": {Data: []byte("SELECT 0")},
		"0002_apps.down.sql":                {Data: []byte("SELECT 0")},
		"archive/0003_old.down.sql":         {Data: []byte("SELECT 0")},
	}

	got, err := DownMigrations(migrations)
	if err != nil {
		t.Fatalf("DownMigrations() error = %v", err)
	}
	want := []string{"0002_apps.down.sql", "0001_organizations_users.down.sql"}
	if len(got) != len(want) {
		t.Fatalf("DownMigrations() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DownMigrations()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	migrations := os.DirFS(filepath.Join("..", "..", "db", "migrations"))

	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	assertTables(t, db, true, "organizations", "users", "organization_users", "group_permissions", "apps")
	assertMigrationCount(t, db, 2)

	if err := RollbackMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("rollback migrations: %v", err)
	}
	assertTables(t, db, false, "organizations", "users", "organization_users", "group_permissions", "apps")
	assertMigrationCount(t, db, 0)

	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	assertTables(t, db, true, "organizations", "apps")
	assertMigrationCount(t, db, 2)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func assertTables(t *testing.T, db *sql.DB, exist bool, tables ...string) {
	t.Helper()
	for _, table := range tables {
		var found bool
		if err := db.QueryRow(`SELECT to_regclass('public.' || $1) IS NOT NULL`, table).Scan(&found); err != nil {
			t.Fatalf("look up table %s: %v", table, err)
		}
		if found != exist {
			t.Fatalf("table %s exists = %v, want %v", table, found, exist)
		}
	}
}

func assertMigrationCount(t *testing.T, db *sql.DB, want int) {
	t.Helper()
	var got int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&got); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if got != want {
		t.Fatalf("schema_migrations rows = %d, want %d", got, want)
	}
}
