package template

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/codegen"
	"goflare.io/voucher/directory"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/models"
)

type Service interface {
	Create(ctx context.Context, params models.CreateTemplateParams) (*models.VoucherTemplate, error)
	Deactivate(ctx context.Context, templateID, issuerUserID int64) (*models.VoucherTemplate, error)
}

type service struct {
	repo               Repository
	directory          directory.Service
	transactionManager driver.Transactor
	now                models.Clock
	logger             *zap.Logger
}

func NewService(repo Repository, directory directory.Service, tm driver.Transactor, clock models.Clock, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		directory:          directory,
		transactionManager: tm,
		now:                clock,
		logger:             logger,
	}
}

func (s *service) Create(ctx context.Context, params models.CreateTemplateParams) (*models.VoucherTemplate, error) {
	t, err := s.validate(params)
	if err != nil {
		return nil, err
	}

	business, err := s.directory.GetBusiness(ctx, params.BusinessID)
	if err != nil {
		return nil, err
	}
	if business.OwnerID != params.IssuerUserID {
		return nil, apperr.Authorization("only the business owner can create vouchers")
	}
	t.BusinessName = business.Name
	t.BusinessImage = business.Image

	if err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return Insert(ctx, tx, s.repo, t)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("voucher template created",
		zap.Int64("template_id", t.ID),
		zap.Int64("business_id", t.BusinessID))

	return t, nil
}

func (s *service) validate(params models.CreateTemplateParams) (*models.VoucherTemplate, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if params.BusinessID == 0 {
		return nil, apperr.Validation("business id is required")
	}
	if params.DiscountPercent < 1 || params.DiscountPercent > 100 {
		return nil, apperr.Validation("discount percent must be between 1 and 100")
	}

	now := s.now()
	if params.ExpiryDate.IsZero() {
		return nil, apperr.Validation("expiry date is required")
	}
	if !params.ExpiryDate.After(now) {
		return nil, apperr.Validation("expiry date must be in the future")
	}
	if params.ExpiryDate.After(now.AddDate(1, 0, 0)) {
		return nil, apperr.Validation("expiry date cannot be more than 1 year in the future")
	}

	var validDays []string
	if params.ValidDays != nil {
		var err error
		if validDays, err = models.NormalizeWeekdays(params.ValidDays); err != nil {
			return nil, apperr.Validation("%v", err)
		}
	}

	if params.MaxClaims != nil && *params.MaxClaims < 1 {
		return nil, apperr.Validation("max claims must be at least 1")
	}

	return &models.VoucherTemplate{
		Name:            name,
		BusinessID:      params.BusinessID,
		DiscountPercent: params.DiscountPercent,
		ValidDays:       validDays,
		ExpiryDate:      params.ExpiryDate,
		MaxClaims:       params.MaxClaims,
		IsActive:        true,
	}, nil
}

// Deactivate closes a template to new claims. Ownership is checked before the transaction
// opens since a template's business never changes.
func (s *service) Deactivate(ctx context.Context, templateID, issuerUserID int64) (*models.VoucherTemplate, error) {
	t, err := s.repo.GetByID(ctx, nil, templateID)
	if err != nil {
		return nil, err
	}
	business, err := s.directory.GetBusiness(ctx, t.BusinessID)
	if err != nil {
		return nil, err
	}
	if business.OwnerID != issuerUserID {
		return nil, apperr.Authorization("only the business owner can deactivate vouchers")
	}

	err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		if t, err = s.repo.GetForUpdate(ctx, tx, templateID); err != nil {
			return err
		}
		if !t.IsActive {
			return apperr.State("voucher template is already inactive")
		}

		if err = s.repo.SetActive(ctx, tx, templateID, false); err != nil {
			return err
		}
		t.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher template deactivated",
		zap.Int64("template_id", templateID),
		zap.Int64("business_id", t.BusinessID))

	return t, nil
}

// Insert stores t under a freshly generated special code, retrying on code collisions.
func Insert(ctx context.Context, tx pgx.Tx, repo Repository, t *models.VoucherTemplate) error {
	for attempt := 0; attempt < codegen.MaxAttempts; attempt++ {
		code, err := codegen.Generate()
		if err != nil {
			return err
		}
		t.SpecialCode = code

		created, err := repo.Create(ctx, tx, t)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
	}
	return fmt.Errorf("failed to allocate a unique special code after %d attempts", codegen.MaxAttempts)
}
