package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/ember"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/models"
)

// Repository reads the business and user tables owned by the profile and listing services.
type Repository interface {
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
	cache  *ember.MultiCache
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger, cache *ember.MultiCache) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
		cache:  cache,
	}
}

// GetBusiness returns nil, nil when the business does not exist.
func (r *repository) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	cacheKey := fmt.Sprintf("business:%d", id)

	var business models.Business
	found, err := r.cache.Get(ctx, cacheKey, &business)
	if err != nil {
		r.logger.Warn("Failed to get business from cache", zap.Error(err), zap.Int64("id", id))
	} else if found {
		return &business, nil
	}

	const query = `
    SELECT id, user_id, name, COALESCE(logo, '')
    FROM businesses
    WHERE id = $1
    `
	if err = r.conn.QueryRow(ctx, query, id).Scan(&business.ID, &business.OwnerID, &business.Name, &business.Image); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("error getting business", zap.Error(err), zap.Int64("id", id))
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	if err = r.cache.Set(ctx, cacheKey, &business); err != nil {
		r.logger.Warn("Failed to cache business", zap.Error(err), zap.Int64("id", id))
	}

	return &business, nil
}

func (r *repository) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

func (r *repository) DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	const query = `
    SELECT id, TRIM(COALESCE(first_name, '') || ' ' || COALESCE(last_name, ''))
    FROM users
    WHERE id = ANY($1)
    `
	rows, err := r.conn.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query user names: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string, len(ids))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err = rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan user name: %w", err)
		}
		names[id] = name
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user names: %w", err)
	}

	return names, nil
}
