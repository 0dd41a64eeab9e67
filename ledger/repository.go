package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/models"
)

// Repository methods run on tx, or directly on the pool when tx is nil.
type Repository interface {
	// Create inserts v and fills its id and timestamps. It returns false when v.UniqueCode is taken
	// and a ConflictError when v.ClaimedBy already claimed the template.
	Create(ctx context.Context, tx pgx.Tx, v *models.UserVoucher) (bool, error)
	GetByID(ctx context.Context, tx pgx.Tx, id int64) (*models.UserVoucher, error)
	// GetForUpdate reads the voucher and locks its row until tx ends.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.UserVoucher, error)
	HasClaimed(ctx context.Context, tx pgx.Tx, templateID, userID int64) (bool, error)
	CountByTemplate(ctx context.Context, tx pgx.Tx, templateID int64) (int, error)
	MarkUsed(ctx context.Context, tx pgx.Tx, id int64, usedAt time.Time) error
	Transfer(ctx context.Context, tx pgx.Tx, id, fromUserID, toUserID int64, at time.Time) error
	// SetOwner moves the voucher through an exchange, which clears any gift provenance.
	SetOwner(ctx context.Context, tx pgx.Tx, id, userID int64) error
}

type repository struct {
	conn driver.PostgresPool
}

func NewRepository(conn driver.PostgresPool) Repository {
	return &repository{conn: conn}
}

const selectVoucher = `
    SELECT id, template_id, user_id, claimed_by, is_used, used_at, claimed_at, gifted_at, gifted_from,
           unique_code, created_at, updated_at
    FROM user_vouchers
    WHERE id = $1
    `

func (r *repository) Create(ctx context.Context, tx pgx.Tx, v *models.UserVoucher) (bool, error) {
	const query = `
    INSERT INTO user_vouchers (template_id, user_id, claimed_by, claimed_at, gifted_at, gifted_from, unique_code)
    VALUES (@template_id, @user_id, @claimed_by, @claimed_at, @gifted_at, @gifted_from, @unique_code)
    ON CONFLICT (unique_code) DO NOTHING
    RETURNING id, created_at, updated_at
    `

	args := pgx.NamedArgs{
		"template_id": v.TemplateID,
		"user_id":     v.UserID,
		"claimed_by":  v.ClaimedBy,
		"claimed_at":  v.ClaimedAt,
		"gifted_at":   v.GiftedAt,
		"gifted_from": v.GiftedFrom,
		"unique_code": v.UniqueCode,
	}

	if err := driver.On(r.conn, tx).QueryRow(ctx, query, args).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return false, nil
		case driver.IsUniqueViolation(err, driver.ConstraintVoucherClaim):
			return false, apperr.Conflict("voucher already claimed")
		}
		return false, fmt.Errorf("failed to create user voucher: %w", err)
	}

	return true, nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id int64) (*models.UserVoucher, error) {
	return r.get(ctx, tx, selectVoucher, id)
}

func (r *repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.UserVoucher, error) {
	return r.get(ctx, tx, selectVoucher+" FOR UPDATE", id)
}

func (r *repository) get(ctx context.Context, tx pgx.Tx, query string, id int64) (*models.UserVoucher, error) {
	var v models.UserVoucher
	err := driver.On(r.conn, tx).QueryRow(ctx, query, id).Scan(
		&v.ID, &v.TemplateID, &v.UserID, &v.ClaimedBy, &v.IsUsed, &v.UsedAt, &v.ClaimedAt, &v.GiftedAt,
		&v.GiftedFrom, &v.UniqueCode, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("voucher %d not found", id)
		}
		return nil, fmt.Errorf("failed to get user voucher: %w", err)
	}
	return &v, nil
}

func (r *repository) HasClaimed(ctx context.Context, tx pgx.Tx, templateID, userID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM user_vouchers WHERE template_id = $1 AND claimed_by = $2)`

	var claimed bool
	if err := driver.On(r.conn, tx).QueryRow(ctx, query, templateID, userID).Scan(&claimed); err != nil {
		return false, fmt.Errorf("failed to check existing claim: %w", err)
	}
	return claimed, nil
}

func (r *repository) CountByTemplate(ctx context.Context, tx pgx.Tx, templateID int64) (int, error) {
	var count int
	if err := driver.On(r.conn, tx).QueryRow(ctx, `SELECT COUNT(*) FROM user_vouchers WHERE template_id = $1`, templateID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user vouchers: %w", err)
	}
	return count, nil
}

func (r *repository) MarkUsed(ctx context.Context, tx pgx.Tx, id int64, usedAt time.Time) error {
	const query = `
    UPDATE user_vouchers
    SET is_used = TRUE, used_at = @used_at, updated_at = @used_at
    WHERE id = @id AND is_used = FALSE
    `
	return r.update(ctx, tx, id, query, pgx.NamedArgs{"id": id, "used_at": usedAt})
}

func (r *repository) Transfer(ctx context.Context, tx pgx.Tx, id, fromUserID, toUserID int64, at time.Time) error {
	const query = `
    UPDATE user_vouchers
    SET user_id = @to_user_id, gifted_from = @from_user_id, gifted_at = @at, updated_at = @at
    WHERE id = @id AND user_id = @from_user_id AND is_used = FALSE
    `
	return r.update(ctx, tx, id, query, pgx.NamedArgs{
		"id":           id,
		"from_user_id": fromUserID,
		"to_user_id":   toUserID,
		"at":           at,
	})
}

func (r *repository) SetOwner(ctx context.Context, tx pgx.Tx, id, userID int64) error {
	const query = `
    UPDATE user_vouchers
    SET user_id = @user_id, gifted_from = NULL, gifted_at = NULL, updated_at = NOW()
    WHERE id = @id AND is_used = FALSE
    `
	return r.update(ctx, tx, id, query, pgx.NamedArgs{"id": id, "user_id": userID})
}

// update runs a guarded single-row update; no affected row means the guard no longer holds.
func (r *repository) update(ctx context.Context, tx pgx.Tx, id int64, query string, args pgx.NamedArgs) error {
	tag, err := driver.On(r.conn, tx).Exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update user voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.State("voucher %d changed concurrently", id)
	}
	return nil
}
