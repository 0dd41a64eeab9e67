package storetest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"goflare.io/voucher/driver"
	"goflare.io/voucher/models/enum"
)

// PostgresURLEnv names the database used by the repository integration tests. They are skipped
// when it is unset.
const PostgresURLEnv = "VOUCHER_TEST_POSTGRES_URL"

// Postgres is a freshly migrated schema private to one test.
type Postgres struct {
	Pool   *pgxpool.Pool
	Schema string
}

// OpenPostgres creates a schema in the integration database, migrates it and drops it when the
// test ends. MaxConns is kept small so tests notice a transaction waiting on a second connection.
func OpenPostgres(t testing.TB) *Postgres {
	t.Helper()

	url := os.Getenv(PostgresURLEnv)
	if url == "" {
		t.Skipf("%s is not set", PostgresURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := pgx.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect %s: %v", PostgresURLEnv, err)
	}

	schema := "voucher_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err = admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close(ctx)
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := admin.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close(ctx)
	})

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("parse %s: %v", PostgresURLEnv, err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err = driver.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return &Postgres{Pool: pool, Schema: schema}
}

// Template inserts an active template for businessID and returns its id.
func (p *Postgres) Template(t testing.TB, businessID int64, maxClaims *int, expiry time.Time) int64 {
	t.Helper()
	const query = `
    INSERT INTO voucher_templates (name, business_id, business_name, discount_percent, expiry_date, special_code, max_claims)
    VALUES ('Test voucher', $1, 'Test business', 10, $2, $3, $4)
    RETURNING id
    `
	var id int64
	if err := p.Pool.QueryRow(context.Background(), query, businessID, expiry, "T-"+uuid.NewString(), maxClaims).Scan(&id); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	return id
}

// Voucher issues a token of templateID claimed by and held by userID and returns its id.
func (p *Postgres) Voucher(t testing.TB, templateID, userID int64) int64 {
	t.Helper()
	const query = `
    INSERT INTO user_vouchers (template_id, user_id, claimed_by, unique_code)
    VALUES ($1, $2, $2, $3)
    RETURNING id
    `
	var id int64
	if err := p.Pool.QueryRow(context.Background(), query, templateID, userID, "V-"+uuid.NewString()).Scan(&id); err != nil {
		t.Fatalf("insert voucher: %v", err)
	}
	return id
}

func (p *Postgres) Owner(t testing.TB, voucherID int64) int64 {
	t.Helper()
	var owner int64
	if err := p.Pool.QueryRow(context.Background(), `SELECT user_id FROM user_vouchers WHERE id = $1`, voucherID).Scan(&owner); err != nil {
		t.Fatalf("read voucher %d: %v", voucherID, err)
	}
	return owner
}

func (p *Postgres) RequestStatus(t testing.TB, requestID int64) enum.ExchangeStatus {
	t.Helper()
	var status string
	if err := p.Pool.QueryRow(context.Background(), `SELECT status FROM voucher_exchange_requests WHERE id = $1`, requestID).Scan(&status); err != nil {
		t.Fatalf("read exchange request %d: %v", requestID, err)
	}
	return enum.ExchangeStatus(status)
}

func (p *Postgres) Count(t testing.TB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := p.Pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
