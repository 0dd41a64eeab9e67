package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/models"
)

// Repository methods run on tx, or directly on the pool when tx is nil.
type Repository interface {
	// Create inserts t and fills its id and timestamps. It returns false when t.SpecialCode is taken.
	Create(ctx context.Context, tx pgx.Tx, t *models.VoucherTemplate) (bool, error)
	GetByID(ctx context.Context, tx pgx.Tx, id int64) (*models.VoucherTemplate, error)
	// GetForUpdate reads the template and locks its row until tx ends.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.VoucherTemplate, error)
	SetActive(ctx context.Context, tx pgx.Tx, id int64, active bool) error
}

type repository struct {
	conn driver.PostgresPool
}

func NewRepository(conn driver.PostgresPool) Repository {
	return &repository{conn: conn}
}

const selectTemplate = `
    SELECT id, name, business_id, business_name, business_image, discount_percent, valid_days,
           expiry_date, special_code, max_claims, is_active, created_at, updated_at
    FROM voucher_templates
    WHERE id = $1
    `

func (r *repository) Create(ctx context.Context, tx pgx.Tx, t *models.VoucherTemplate) (bool, error) {
	const query = `
    INSERT INTO voucher_templates (name, business_id, business_name, business_image, discount_percent,
                                   valid_days, expiry_date, special_code, max_claims, is_active)
    VALUES (@name, @business_id, @business_name, @business_image, @discount_percent,
            @valid_days, @expiry_date, @special_code, @max_claims, @is_active)
    ON CONFLICT (special_code) DO NOTHING
    RETURNING id, created_at, updated_at
    `

	validDays := t.ValidDays
	if validDays == nil {
		validDays = []string{}
	}

	args := pgx.NamedArgs{
		"name":             t.Name,
		"business_id":      t.BusinessID,
		"business_name":    t.BusinessName,
		"business_image":   t.BusinessImage,
		"discount_percent": t.DiscountPercent,
		"valid_days":       validDays,
		"expiry_date":      t.ExpiryDate,
		"special_code":     t.SpecialCode,
		"max_claims":       t.MaxClaims,
		"is_active":        t.IsActive,
	}

	if err := driver.On(r.conn, tx).QueryRow(ctx, query, args).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create voucher template: %w", err)
	}

	return true, nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id int64) (*models.VoucherTemplate, error) {
	return r.get(ctx, tx, selectTemplate, id)
}

func (r *repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.VoucherTemplate, error) {
	return r.get(ctx, tx, selectTemplate+" FOR UPDATE", id)
}

func (r *repository) get(ctx context.Context, tx pgx.Tx, query string, id int64) (*models.VoucherTemplate, error) {
	var t models.VoucherTemplate
	err := driver.On(r.conn, tx).QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.BusinessID, &t.BusinessName, &t.BusinessImage, &t.DiscountPercent, &t.ValidDays,
		&t.ExpiryDate, &t.SpecialCode, &t.MaxClaims, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("voucher template %d not found", id)
		}
		return nil, fmt.Errorf("failed to get voucher template: %w", err)
	}
	return &t, nil
}

func (r *repository) SetActive(ctx context.Context, tx pgx.Tx, id int64, active bool) error {
	const query = `
    UPDATE voucher_templates
    SET is_active = @is_active, updated_at = NOW()
    WHERE id = @id
    `
	tag, err := driver.On(r.conn, tx).Exec(ctx, query, pgx.NamedArgs{"id": id, "is_active": active})
	if err != nil {
		return fmt.Errorf("failed to update voucher template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("voucher template %d not found", id)
	}
	return nil
}
