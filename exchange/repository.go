package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
)

// Repository methods run on tx, or directly on the pool when tx is nil.
type Repository interface {
	// Create inserts a pending request and fills its id and timestamps. A second pending request
	// for the same voucher pair, or listing for the same voucher, is a ConflictError.
	Create(ctx context.Context, tx pgx.Tx, req *models.ExchangeRequest) error
	// GetForUpdate reads the request and locks its row until tx ends.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.ExchangeRequest, error)
	// FindPending returns the pending request for the pair, or nil. A nil requestedVoucherID looks up a market listing.
	FindPending(ctx context.Context, tx pgx.Tx, requesterVoucherID int64, requestedVoucherID *int64) (*models.ExchangeRequest, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status enum.ExchangeStatus) error
	// AcceptListing records the taker as the listing's counterpart and accepts it in one statement,
	// so the row never sits pending with both vouchers set.
	AcceptListing(ctx context.Context, tx pgx.Tx, id, voucherID, userID int64) error
	// RejectPending rejects every pending request or listing that references one of voucherIDs
	// and returns how many it closed.
	RejectPending(ctx context.Context, tx pgx.Tx, voucherIDs ...int64) (int64, error)
}

type repository struct {
	conn driver.PostgresPool
}

func NewRepository(conn driver.PostgresPool) Repository {
	return &repository{conn: conn}
}

func (r *repository) Create(ctx context.Context, tx pgx.Tx, req *models.ExchangeRequest) error {
	const query = `
    INSERT INTO voucher_exchange_requests (requester_voucher_id, requested_voucher_id, requester_user_id,
                                           requested_user_id, status, message)
    VALUES (@requester_voucher_id, @requested_voucher_id, @requester_user_id, @requested_user_id, @status, @message)
    RETURNING id, created_at, updated_at
    `

	args := pgx.NamedArgs{
		"requester_voucher_id": req.RequesterVoucherID,
		"requested_voucher_id": req.RequestedVoucherID,
		"requester_user_id":    req.RequesterUserID,
		"requested_user_id":    req.RequestedUserID,
		"status":               string(req.Status),
		"message":              req.Message,
	}

	if err := driver.On(r.conn, tx).QueryRow(ctx, query, args).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if driver.IsUniqueViolation(err, driver.ConstraintPendingExchange) ||
			driver.IsUniqueViolation(err, driver.ConstraintPendingListing) {
			return apperr.Conflict("exchange request already pending")
		}
		return fmt.Errorf("failed to create exchange request: %w", err)
	}

	return nil
}

// RequestColumns lists the voucher_exchange_requests columns in the order ScanRequest expects.
const RequestColumns = `id, requester_voucher_id, requested_voucher_id, requester_user_id, requested_user_id,
           status, message, created_at, updated_at`

const selectRequest = `
    SELECT ` + RequestColumns + `
    FROM voucher_exchange_requests
    `

// ScanRequest scans one row selected with RequestColumns.
func ScanRequest(row pgx.Row) (*models.ExchangeRequest, error) {
	var (
		req    models.ExchangeRequest
		status string
	)
	if err := row.Scan(
		&req.ID, &req.RequesterVoucherID, &req.RequestedVoucherID, &req.RequesterUserID, &req.RequestedUserID,
		&status, &req.Message, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.Status = enum.ExchangeStatus(status)
	return &req, nil
}

func (r *repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.ExchangeRequest, error) {
	req, err := ScanRequest(driver.On(r.conn, tx).QueryRow(ctx, selectRequest+" WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("exchange request %d not found", id)
		}
		return nil, fmt.Errorf("failed to get exchange request: %w", err)
	}
	return req, nil
}

func (r *repository) FindPending(ctx context.Context, tx pgx.Tx, requesterVoucherID int64, requestedVoucherID *int64) (*models.ExchangeRequest, error) {
	const where = ` WHERE requester_voucher_id = $1
      AND requested_voucher_id IS NOT DISTINCT FROM $2
      AND status = 'pending'
    LIMIT 1`

	req, err := ScanRequest(driver.On(r.conn, tx).QueryRow(ctx, selectRequest+where, requesterVoucherID, requestedVoucherID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pending exchange request: %w", err)
	}
	return req, nil
}

func (r *repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status enum.ExchangeStatus) error {
	const query = `
    UPDATE voucher_exchange_requests
    SET status = @status, updated_at = NOW()
    WHERE id = @id AND status = 'pending'
    `
	tag, err := driver.On(r.conn, tx).Exec(ctx, query, pgx.NamedArgs{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("failed to update exchange request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.State("exchange request %d has already been processed", id)
	}
	return nil
}

func (r *repository) AcceptListing(ctx context.Context, tx pgx.Tx, id, voucherID, userID int64) error {
	const query = `
    UPDATE voucher_exchange_requests
    SET requested_voucher_id = @voucher_id, requested_user_id = @user_id, status = 'accepted', updated_at = NOW()
    WHERE id = @id AND status = 'pending' AND requested_voucher_id IS NULL
    `
	tag, err := driver.On(r.conn, tx).Exec(ctx, query, pgx.NamedArgs{"id": id, "voucher_id": voucherID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to accept market listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.State("market listing %d is no longer open", id)
	}
	return nil
}

func (r *repository) RejectPending(ctx context.Context, tx pgx.Tx, voucherIDs ...int64) (int64, error) {
	if len(voucherIDs) == 0 {
		return 0, nil
	}

	const query = `
    UPDATE voucher_exchange_requests
    SET status = 'rejected', updated_at = NOW()
    WHERE status = 'pending'
      AND (requester_voucher_id = ANY(@voucher_ids) OR requested_voucher_id = ANY(@voucher_ids))
    `
	tag, err := driver.On(r.conn, tx).Exec(ctx, query, pgx.NamedArgs{"voucher_ids": voucherIDs})
	if err != nil {
		return 0, fmt.Errorf("failed to reject pending exchange requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
