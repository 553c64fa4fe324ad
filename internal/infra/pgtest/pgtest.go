// Package pgtest gives integration tests an isolated, migrated Postgres schema.
package pgtest

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/custody/internal/infra"
)

// EnvURL names the variable holding the test database URL. Postgres tests skip when it is unset.
const EnvURL = "CUSTODY_TEST_DATABASE_URL"

// NewPool opens a pool whose search_path is a fresh schema with the ledger migrations applied.
// The schema is dropped when t finishes, so packages testing in parallel never share rows.
// rawURL must be in URL form (postgres://...).
func NewPool(t testing.TB, rawURL string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	admin, err := infra.NewPostgresPool(ctx, rawURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	schema := "custody_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ident := pgx.Identifier{schema}.Sanitize()
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if _, err := admin.Exec(context.Background(), "DROP SCHEMA "+ident+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		admin.Close()
	})

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvURL, err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	pool, err := infra.NewPostgresPool(ctx, u.String())
	if err != nil {
		t.Fatalf("connect postgres in %s: %v", schema, err)
	}
	// registered after the schema drop, so it runs first
	t.Cleanup(pool.Close)
	if err := infra.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}
	return pool
}
