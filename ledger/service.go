package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/codegen"
	"goflare.io/voucher/directory"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/models"
	"goflare.io/voucher/template"
)

var (
	ErrAlreadyClaimed    = apperr.Conflict("voucher already claimed")
	ErrClaimLimitReached = apperr.Conflict("voucher claim limit reached")
	ErrInactive          = apperr.State("voucher is no longer available")
	ErrAlreadyUsed       = apperr.State("voucher has already been used")
	ErrExpired           = apperr.Expired("voucher has expired")
	ErrNotIssuer         = apperr.Authorization("only the issuing business owner can redeem this voucher")
	ErrNotOwner          = apperr.Authorization("you do not own this voucher")
	ErrSelfGift          = apperr.Validation("cannot gift a voucher to yourself")
)

// RewardPolicy describes the voucher automatically issued to a user who posts about a business.
type RewardPolicy struct {
	Name            string
	DiscountPercent float64
	Validity        time.Duration
}

func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{
		Name:            "Thanks for your post!",
		DiscountPercent: 10,
		Validity:        30 * 24 * time.Hour,
	}
}

// PendingRequests closes open exchange requests and market listings for a voucher whose owner or
// state just changed, inside the same transaction.
type PendingRequests interface {
	RejectPending(ctx context.Context, tx pgx.Tx, voucherIDs ...int64) (int64, error)
}

type Service interface {
	Claim(ctx context.Context, templateID, userID int64) (*models.OwnedVoucher, error)
	Use(ctx context.Context, userVoucherID, actingUserID int64) (*models.OwnedVoucher, error)
	Gift(ctx context.Context, userVoucherID, fromUserID, toUserID int64) (*models.OwnedVoucher, error)
	IssuePostReward(ctx context.Context, businessID, userID int64) (*models.OwnedVoucher, error)
}

type service struct {
	repo               Repository
	templates          template.Repository
	requests           PendingRequests
	directory          directory.Service
	transactionManager driver.Transactor
	now                models.Clock
	reward             RewardPolicy
	logger             *zap.Logger
}

func NewService(
	repo Repository,
	templates template.Repository,
	requests PendingRequests,
	directory directory.Service,
	tm driver.Transactor,
	clock models.Clock,
	reward RewardPolicy,
	logger *zap.Logger,
) Service {
	return &service{
		repo:               repo,
		templates:          templates,
		requests:           requests,
		directory:          directory,
		transactionManager: tm,
		now:                clock,
		reward:             reward,
		logger:             logger,
	}
}

// Claim issues a token of templateID to userID. The template row stays locked from the
// availability checks through the insert, so concurrent claims cannot overrun MaxClaims.
func (s *service) Claim(ctx context.Context, templateID, userID int64) (*models.OwnedVoucher, error) {
	var owned *models.OwnedVoucher
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		t, err := s.templates.GetForUpdate(ctx, tx, templateID)
		if err != nil {
			return err
		}

		now := s.now()
		if !t.IsActive {
			return ErrInactive
		}
		if t.IsExpired(now) {
			return ErrExpired
		}

		claimed, err := s.repo.HasClaimed(ctx, tx, templateID, userID)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAlreadyClaimed
		}

		if t.MaxClaims != nil {
			count, err := s.repo.CountByTemplate(ctx, tx, templateID)
			if err != nil {
				return err
			}
			if count >= *t.MaxClaims {
				return ErrClaimLimitReached
			}
		}

		v := &models.UserVoucher{
			TemplateID: templateID,
			UserID:     userID,
			ClaimedBy:  userID,
			ClaimedAt:  now,
		}
		if err = Insert(ctx, tx, s.repo, v); err != nil {
			return err
		}

		owned = &models.OwnedVoucher{Voucher: v, Template: t}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher claimed",
		zap.Int64("template_id", templateID),
		zap.Int64("user_voucher_id", owned.Voucher.ID),
		zap.Int64("user_id", userID))

	return owned, nil
}

// Use redeems a token on behalf of the business that issued it. The issuer is resolved before the
// transaction opens since a token's template, and so its business, never changes.
func (s *service) Use(ctx context.Context, userVoucherID, actingUserID int64) (*models.OwnedVoucher, error) {
	v, err := s.repo.GetByID(ctx, nil, userVoucherID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetByID(ctx, nil, v.TemplateID)
	if err != nil {
		return nil, err
	}

	business, err := s.directory.GetBusiness(ctx, t.BusinessID)
	if err != nil {
		return nil, err
	}
	if business.OwnerID != actingUserID {
		return nil, ErrNotIssuer
	}

	err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		if v, err = s.repo.GetForUpdate(ctx, tx, userVoucherID); err != nil {
			return err
		}

		if v.IsUsed {
			return ErrAlreadyUsed
		}
		now := s.now()
		if t.IsExpired(now) {
			return ErrExpired
		}
		if !t.ValidOn(now.Weekday()) {
			return apperr.Validation("voucher is only valid on %s", strings.Join(t.ValidDays, ", "))
		}

		if err = s.repo.MarkUsed(ctx, tx, v.ID, now); err != nil {
			return err
		}
		v.IsUsed = true
		v.UsedAt = &now

		return s.supersede(ctx, tx, v.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher used",
		zap.Int64("user_voucher_id", userVoucherID),
		zap.Int64("business_id", t.BusinessID))

	return &models.OwnedVoucher{Voucher: v, Template: t}, nil
}

func (s *service) Gift(ctx context.Context, userVoucherID, fromUserID, toUserID int64) (*models.OwnedVoucher, error) {
	if toUserID == 0 {
		return nil, apperr.Validation("recipient is required")
	}
	if toUserID == fromUserID {
		return nil, ErrSelfGift
	}

	recipientExists, err := s.directory.UserExists(ctx, toUserID)
	if err != nil {
		return nil, err
	}

	var owned *models.OwnedVoucher
	err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		v, err := s.repo.GetForUpdate(ctx, tx, userVoucherID)
		if err != nil {
			return err
		}
		if v.UserID != fromUserID {
			return ErrNotOwner
		}
		if v.IsUsed {
			return ErrAlreadyUsed
		}
		if !recipientExists {
			return apperr.NotFound("recipient %d not found", toUserID)
		}

		t, err := s.templates.GetByID(ctx, tx, v.TemplateID)
		if err != nil {
			return err
		}
		now := s.now()
		if t.IsExpired(now) {
			return ErrExpired
		}

		if err = s.repo.Transfer(ctx, tx, v.ID, fromUserID, toUserID, now); err != nil {
			return err
		}
		v.UserID = toUserID
		v.GiftedFrom = &fromUserID
		v.GiftedAt = &now

		if err = s.supersede(ctx, tx, v.ID); err != nil {
			return err
		}

		owned = &models.OwnedVoucher{Voucher: v, Template: t}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher gifted",
		zap.Int64("user_voucher_id", userVoucherID),
		zap.Int64("from_user_id", fromUserID),
		zap.Int64("to_user_id", toUserID))

	return owned, nil
}

// supersede closes exchange requests and listings that can no longer complete because the
// voucher was used or moved to another owner.
func (s *service) supersede(ctx context.Context, tx pgx.Tx, voucherID int64) error {
	n, err := s.requests.RejectPending(ctx, tx, voucherID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug("superseded pending exchange requests",
			zap.Int64("user_voucher_id", voucherID),
			zap.Int64("count", n))
	}
	return nil
}

// IssuePostReward creates a single-claim reward template for businessID and issues it to userID
// in the same transaction.
func (s *service) IssuePostReward(ctx context.Context, businessID, userID int64) (*models.OwnedVoucher, error) {
	business, err := s.directory.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	exists, err := s.directory.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("user %d not found", userID)
	}

	now := s.now()
	maxClaims := 1
	t := &models.VoucherTemplate{
		Name:            s.reward.Name,
		BusinessID:      business.ID,
		BusinessName:    business.Name,
		BusinessImage:   business.Image,
		DiscountPercent: s.reward.DiscountPercent,
		ExpiryDate:      now.Add(s.reward.Validity),
		MaxClaims:       &maxClaims,
		IsActive:        true,
	}
	v := &models.UserVoucher{
		UserID:    userID,
		ClaimedBy: userID,
		ClaimedAt: now,
	}

	err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		if err := template.Insert(ctx, tx, s.templates, t); err != nil {
			return err
		}
		v.TemplateID = t.ID
		return Insert(ctx, tx, s.repo, v)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("post reward issued",
		zap.Int64("business_id", businessID),
		zap.Int64("user_id", userID),
		zap.Int64("user_voucher_id", v.ID))

	return &models.OwnedVoucher{Voucher: v, Template: t}, nil
}

// Insert stores v under a freshly generated unique code, retrying on code collisions.
func Insert(ctx context.Context, tx pgx.Tx, repo Repository, v *models.UserVoucher) error {
	for attempt := 0; attempt < codegen.MaxAttempts; attempt++ {
		code, err := codegen.Generate()
		if err != nil {
			return err
		}
		v.UniqueCode = code

		created, err := repo.Create(ctx, tx, v)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
	}
	return fmt.Errorf("failed to allocate a unique voucher code after %d attempts", codegen.MaxAttempts)
}
