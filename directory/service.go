package directory

import (
	"context"

	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/models"
)

// Service is the voucher engine's view of businesses and users.
type Service interface {
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger,
	}
}

func (s *service) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	business, err := s.repo.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, apperr.NotFound("business %d not found", id)
	}
	return business, nil
}

func (s *service) UserExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.UserExists(ctx, id)
}

// DisplayNames resolves names for ids, skipping zero and duplicate ids. Missing users are absent from the result.
func (s *service) DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[int64]string{}, nil
	}

	return s.repo.DisplayNames(ctx, unique)
}
