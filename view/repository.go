package view

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/ignite"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/exchange"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
)

// Repository holds the read-only queries behind the per-user and market views.
type Repository interface {
	ListOwned(ctx context.Context, tx pgx.Tx, userID int64) ([]*models.VoucherDetail, error)
	// ListGiftedAway returns tokens whose last gift came from userID and that userID no longer holds.
	ListGiftedAway(ctx context.Context, tx pgx.Tx, userID int64) ([]*models.VoucherDetail, error)
	ListExchanges(ctx context.Context, tx pgx.Tx, userID int64, status enum.ExchangeStatus) ([]*models.ExchangeRequest, error)
	ListPendingForCounterpart(ctx context.Context, tx pgx.Tx, userID int64) ([]*models.ExchangeRequest, error)
	ListPending(ctx context.Context, tx pgx.Tx) ([]*models.ExchangeRequest, error)
	GetDetails(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*models.VoucherDetail, error)
	TemplateStats(ctx context.Context, tx pgx.Tx, businessID int64) ([]*models.TemplateStats, error)
}

type repository struct {
	conn        driver.PostgresPool
	logger      *zap.Logger
	poolManager ignite.Manager
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger, poolManager ignite.Manager) (Repository, error) {
	err := poolManager.RegisterPool(reflect.TypeOf(&models.VoucherDetail{}), ignite.Config[any]{
		InitialSize: 10,
		MaxSize:     100,
		MaxIdleTime: 10 * time.Minute,
		Factory: func() (any, error) {
			return &models.VoucherDetail{}, nil
		},
		Reset: func(obj any) error {
			d := obj.(*models.VoucherDetail)
			*d = models.VoucherDetail{}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register voucher detail pool: %w", err)
	}

	return &repository{
		conn:        conn,
		logger:      logger,
		poolManager: poolManager,
	}, nil
}

func (r *repository) getFromPool(ctx context.Context) (*models.VoucherDetail, func(), error) {
	pool, err := r.poolManager.GetPool(reflect.TypeOf(&models.VoucherDetail{}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get pool: %w", err)
	}

	objWrapper, err := pool.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object from pool: %w", err)
	}

	detail := objWrapper.Object.(*models.VoucherDetail)
	release := func() {
		pool.Put(objWrapper)
	}

	return detail, release, nil
}

const selectDetails = `
    SELECT uv.id, uv.template_id, uv.user_id, uv.claimed_by, uv.is_used, uv.used_at, uv.claimed_at,
           uv.gifted_at, uv.gifted_from, uv.unique_code, uv.created_at, uv.updated_at,
           t.name, t.business_id, t.business_name, t.business_image, t.discount_percent, t.valid_days, t.expiry_date
    FROM user_vouchers uv
    JOIN voucher_templates t ON t.id = uv.template_id
    `

func (r *repository) queryDetails(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]*models.VoucherDetail, error) {
	rows, err := driver.On(r.conn, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer rows.Close()

	var details []*models.VoucherDetail
	for rows.Next() {
		detail, release, err := r.getFromPool(ctx)
		if err != nil {
			return nil, err
		}

		err = rows.Scan(
			&detail.ID, &detail.TemplateID, &detail.UserID, &detail.ClaimedBy, &detail.IsUsed, &detail.UsedAt,
			&detail.ClaimedAt, &detail.GiftedAt, &detail.GiftedFrom, &detail.UniqueCode, &detail.CreatedAt,
			&detail.UpdatedAt, &detail.Name, &detail.BusinessID, &detail.BusinessName, &detail.BusinessImage,
			&detail.DiscountPercent, &detail.ValidDays, &detail.ExpiryDate,
		)
		if err != nil {
			release()
			r.logger.Error("error scanning voucher", zap.Error(err))
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}

		d := *detail
		release()
		details = append(details, &d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vouchers: %w", err)
	}

	return details, nil
}

func (r *repository) ListOwned(ctx context.Context, tx pgx.Tx, userID int64) ([]*models.VoucherDetail, error) {
	return r.queryDetails(ctx, tx, selectDetails+`
    WHERE uv.user_id = $1
    ORDER BY uv.claimed_at DESC, uv.id DESC`, userID)
}

func (r *repository) ListGiftedAway(ctx context.Context, tx pgx.Tx, userID int64) ([]*models.VoucherDetail, error) {
	return r.queryDetails(ctx, tx, selectDetails+`
    WHERE uv.gifted_from = $1 AND uv.user_id <> $1
    ORDER BY uv.gifted_at DESC, uv.id DESC`, userID)
}

func (r *repository) GetDetails(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*models.VoucherDetail, error) {
	out := make(map[int64]*models.VoucherDetail, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	details, err := r.queryDetails(ctx, tx, selectDetails+` WHERE uv.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range details {
		out[d.ID] = d
	}
	return out, nil
}

func (r *repository) queryRequests(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]*models.ExchangeRequest, error) {
	rows, err := driver.On(r.conn, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ExchangeRequest
	for rows.Next() {
		req, err := exchange.ScanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange request: %w", err)
		}
		requests = append(requests, req)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exchange requests: %w", err)
	}

	return requests, nil
}

const selectRequests = `
    SELECT ` + exchange.RequestColumns + `
    FROM voucher_exchange_requests
    `

func (r *repository) ListExchanges(ctx context.Context, tx pgx.Tx, userID int64, status enum.ExchangeStatus) ([]*models.ExchangeRequest, error) {
	return r.queryRequests(ctx, tx, selectRequests+`
    WHERE status = $2 AND (requester_user_id = $1 OR requested_user_id = $1)
    ORDER BY updated_at DESC, id DESC`, userID, string(status))
}

func (r *repository) ListPendingForCounterpart(ctx context.Context, tx pgx.Tx, userID int64) ([]*models.ExchangeRequest, error) {
	return r.queryRequests(ctx, tx, selectRequests+`
    WHERE status = 'pending' AND requested_user_id = $1
    ORDER BY created_at DESC, id DESC`, userID)
}

func (r *repository) ListPending(ctx context.Context, tx pgx.Tx) ([]*models.ExchangeRequest, error) {
	return r.queryRequests(ctx, tx, selectRequests+`
    WHERE status = 'pending'
    ORDER BY created_at DESC, id DESC`)
}

func (r *repository) TemplateStats(ctx context.Context, tx pgx.Tx, businessID int64) ([]*models.TemplateStats, error) {
	const query = `
    SELECT t.id, t.name, t.is_active,
           COUNT(uv.id) AS claimed,
           COUNT(uv.id) FILTER (WHERE uv.is_used) AS used,
           (
               SELECT COUNT(*)
               FROM voucher_exchange_requests r
               JOIN user_vouchers ev ON ev.id IN (r.requester_voucher_id, r.requested_voucher_id)
               WHERE r.status = 'accepted' AND ev.template_id = t.id
           ) AS exchanged
    FROM voucher_templates t
    LEFT JOIN user_vouchers uv ON uv.template_id = t.id
    WHERE t.business_id = $1
    GROUP BY t.id, t.name, t.is_active
    ORDER BY t.id
    `

	rows, err := driver.On(r.conn, tx).Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query template stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.TemplateStats
	for rows.Next() {
		var s models.TemplateStats
		if err = rows.Scan(&s.TemplateID, &s.Name, &s.IsActive, &s.Claimed, &s.Used, &s.Exchanged); err != nil {
			return nil, fmt.Errorf("failed to scan template stats: %w", err)
		}
		stats = append(stats, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template stats: %w", err)
	}

	return stats, nil
}
