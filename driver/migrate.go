package driver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Constraint names referenced when mapping unique violations to domain errors.
const (
	ConstraintTemplateSpecialCode = "voucher_templates_special_code_key"
	ConstraintVoucherUniqueCode   = "user_vouchers_unique_code_key"
	ConstraintVoucherClaim        = "user_vouchers_template_claimant_key"
	ConstraintPendingExchange     = "voucher_exchange_requests_pending_pair_key"
	ConstraintPendingListing      = "voucher_exchange_requests_pending_listing_key"
)

// Migrations returns the schema statements owned by the voucher engine, one statement each.
// The businesses and users tables belong to other services and are only read.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS voucher_templates (
			id               BIGSERIAL PRIMARY KEY,
			name             TEXT NOT NULL,
			business_id      BIGINT NOT NULL,
			business_name    TEXT NOT NULL,
			business_image   TEXT NOT NULL DEFAULT '',
			discount_percent DOUBLE PRECISION NOT NULL CHECK (discount_percent >= 1 AND discount_percent <= 100),
			valid_days       TEXT[] NOT NULL DEFAULT '{}',
			expiry_date      TIMESTAMPTZ NOT NULL,
			special_code     TEXT NOT NULL,
			max_claims       INTEGER CHECK (max_claims IS NULL OR max_claims > 0),
			is_active        BOOLEAN NOT NULL DEFAULT TRUE,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT voucher_templates_special_code_key UNIQUE (special_code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_voucher_templates_business_id ON voucher_templates (business_id)`,

		`CREATE TABLE IF NOT EXISTS user_vouchers (
			id          BIGSERIAL PRIMARY KEY,
			template_id BIGINT NOT NULL REFERENCES voucher_templates (id) ON DELETE RESTRICT,
			user_id     BIGINT NOT NULL,
			claimed_by  BIGINT NOT NULL,
			is_used     BOOLEAN NOT NULL DEFAULT FALSE,
			used_at     TIMESTAMPTZ,
			claimed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			gifted_at   TIMESTAMPTZ,
			gifted_from BIGINT,
			unique_code TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT user_vouchers_unique_code_key UNIQUE (unique_code),
			CONSTRAINT user_vouchers_template_claimant_key UNIQUE (template_id, claimed_by)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_vouchers_user_id ON user_vouchers (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_vouchers_gifted_from ON user_vouchers (gifted_from) WHERE gifted_from IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS voucher_exchange_requests (
			id                   BIGSERIAL PRIMARY KEY,
			requester_voucher_id BIGINT NOT NULL REFERENCES user_vouchers (id),
			requested_voucher_id BIGINT REFERENCES user_vouchers (id),
			requester_user_id    BIGINT NOT NULL,
			requested_user_id    BIGINT,
			status               TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
			message              TEXT,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS voucher_exchange_requests_pending_pair_key
			ON voucher_exchange_requests (requester_voucher_id, requested_voucher_id)
			WHERE status = 'pending' AND requested_voucher_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS voucher_exchange_requests_pending_listing_key
			ON voucher_exchange_requests (requester_voucher_id)
			WHERE status = 'pending' AND requested_voucher_id IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_voucher_exchange_requests_requester ON voucher_exchange_requests (requester_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_voucher_exchange_requests_requested ON voucher_exchange_requests (requested_user_id)`,
	}
}

// Migrate applies Migrations in a single transaction.
func Migrate(ctx context.Context, pool PostgresPool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range Migrations() {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}
