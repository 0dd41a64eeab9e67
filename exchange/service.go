package exchange

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/ledger"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
	"goflare.io/voucher/template"
)

const maxMessageLength = 500

var (
	ErrSameVoucher      = apperr.State("cannot exchange a voucher for itself")
	ErrOwnVoucher       = apperr.State("cannot exchange vouchers with yourself")
	ErrNotOwner         = apperr.Authorization("you do not own this voucher")
	ErrNotCounterpart   = apperr.Authorization("only the requested user can respond to this exchange")
	ErrVoucherUsed      = apperr.State("used vouchers cannot be exchanged")
	ErrVoucherExpired   = apperr.Expired("expired vouchers cannot be exchanged")
	ErrDuplicateRequest = apperr.Conflict("an exchange request for these vouchers is already pending")
	ErrAlreadyListed    = apperr.Conflict("voucher is already listed on the market")
	ErrAlreadyProcessed = apperr.State("exchange request has already been processed")
	ErrNoLongerEligible = apperr.State("vouchers are no longer eligible for exchange")
	ErrNotMarketListing = apperr.State("request is not a market listing")
	ErrOwnMarketListing = apperr.State("cannot take your own market listing")
	ErrInvalidAction    = apperr.Validation("action must be accept or reject")
	ErrMessageTooLong   = apperr.Validation("message must be at most 500 characters")
)

type Service interface {
	Request(ctx context.Context, requesterUserID, requesterVoucherID, requestedVoucherID int64, message *string) (*models.ExchangeOutcome, error)
	Respond(ctx context.Context, requestID, respondingUserID int64, action enum.ExchangeAction) (*models.ExchangeOutcome, error)
	ListOnMarket(ctx context.Context, userID, voucherID int64, message *string) (*models.ExchangeOutcome, error)
	TakeListing(ctx context.Context, listingID, takerUserID, takerVoucherID int64) (*models.ExchangeOutcome, error)
}

type service struct {
	repo               Repository
	vouchers           ledger.Repository
	templates          template.Repository
	transactionManager driver.Transactor
	now                models.Clock
	logger             *zap.Logger
}

func NewService(
	repo Repository,
	vouchers ledger.Repository,
	templates template.Repository,
	tm driver.Transactor,
	clock models.Clock,
	logger *zap.Logger,
) Service {
	return &service{
		repo:               repo,
		vouchers:           vouchers,
		templates:          templates,
		transactionManager: tm,
		now:                clock,
		logger:             logger,
	}
}

func (s *service) Request(ctx context.Context, requesterUserID, requesterVoucherID, requestedVoucherID int64, message *string) (*models.ExchangeOutcome, error) {
	if requesterVoucherID == requestedVoucherID {
		return nil, ErrSameVoucher
	}
	message, err := normalizeMessage(message)
	if err != nil {
		return nil, err
	}

	var outcome *models.ExchangeOutcome
	err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		mine, theirs, err := s.lockPair(ctx, tx, requesterVoucherID, requestedVoucherID)
		if err != nil {
			return err
		}

		if mine.Voucher.UserID != requesterUserID {
			return ErrNotOwner
		}
		if theirs.Voucher.UserID == requesterUserID {
			return ErrOwnVoucher
		}
		if mine.Voucher.IsUsed || theirs.Voucher.IsUsed {
			return ErrVoucherUsed
		}
		now := s.now()
		if mine.Template.IsExpired(now) || theirs.Template.IsExpired(now) {
			return ErrVoucherExpired
		}

		existing, err := s.repo.FindPending(ctx, tx, requesterVoucherID, &requestedVoucherID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateRequest
		}

		requestedUserID := theirs.Voucher.UserID
		req := &models.ExchangeRequest{
			RequesterVoucherID: requesterVoucherID,
			RequestedVoucherID: &requestedVoucherID,
			RequesterUserID:    requesterUserID,
			RequestedUserID:    &requestedUserID,
			Status:             enum.ExchangeStatusPending,
			Message:            message,
		}
		if err = s.repo.Create(ctx, tx, req); err != nil {
			return err
		}

		outcome = &models.ExchangeOutcome{Request: req, RequesterVoucher: mine, RequestedVoucher: theirs}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("exchange requested",
		zap.Int64("request_id", outcome.Request.ID),
		zap.Int64("requester_user_id", requesterUserID),
		zap.Int64("requested_user_id", *outcome.Request.RequestedUserID))

	return outcome, nil
}

// Respond resolves a pending exchange. Accepting re-checks both vouchers under row locks and
// swaps their owners in the same transaction that marks the request accepted.
func (s *service) Respond(ctx context.Context, requestID, respondingUserID int64, action enum.ExchangeAction) (*models.ExchangeOutcome, error) {
	if !action.Valid() {
		return nil, ErrInvalidAction
	}

	var outcome *models.ExchangeOutcome
	err := s.transactionManager.ExecuteSerializableTransaction(ctx, func(tx pgx.Tx) error {
		req, err := s.repo.GetForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.IsMarketListing() || *req.RequestedUserID != respondingUserID {
			return ErrNotCounterpart
		}
		if req.Status != enum.ExchangeStatusPending {
			return ErrAlreadyProcessed
		}

		requester, requested, err := s.lockPair(ctx, tx, req.RequesterVoucherID, *req.RequestedVoucherID)
		if err != nil {
			return err
		}

		status := enum.ExchangeStatusRejected
		if action == enum.ExchangeActionAccept {
			if err = s.swap(ctx, tx, requester, requested, req.RequesterUserID, *req.RequestedUserID); err != nil {
				return err
			}
			status = enum.ExchangeStatusAccepted
		}

		if err = s.repo.UpdateStatus(ctx, tx, req.ID, status); err != nil {
			return err
		}
		req.Status = status

		if status == enum.ExchangeStatusAccepted {
			if err = s.supersede(ctx, tx, requester.Voucher.ID, requested.Voucher.ID); err != nil {
				return err
			}
		}

		outcome = &models.ExchangeOutcome{Request: req, RequesterVoucher: requester, RequestedVoucher: requested}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("exchange resolved",
		zap.Int64("request_id", requestID),
		zap.String("status", string(outcome.Request.Status)))

	return outcome, nil
}

func (s *service) ListOnMarket(ctx context.Context, userID, voucherID int64, message *string) (*models.ExchangeOutcome, error) {
	message, err := normalizeMessage(message)
	if err != nil {
		return nil, err
	}

	var outcome *models.ExchangeOutcome
	err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		owned, err := s.lock(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		if owned.Voucher.UserID != userID {
			return ErrNotOwner
		}
		if owned.Voucher.IsUsed {
			return ErrVoucherUsed
		}
		if owned.Template.IsExpired(s.now()) {
			return ErrVoucherExpired
		}

		existing, err := s.repo.FindPending(ctx, tx, voucherID, nil)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyListed
		}

		req := &models.ExchangeRequest{
			RequesterVoucherID: voucherID,
			RequesterUserID:    userID,
			Status:             enum.ExchangeStatusPending,
			Message:            message,
		}
		if err = s.repo.Create(ctx, tx, req); err != nil {
			return err
		}

		outcome = &models.ExchangeOutcome{Request: req, RequesterVoucher: owned}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher listed on market",
		zap.Int64("request_id", outcome.Request.ID),
		zap.Int64("user_voucher_id", voucherID))

	return outcome, nil
}

// TakeListing swaps takerVoucherID for the voucher offered by a pending market listing.
func (s *service) TakeListing(ctx context.Context, listingID, takerUserID, takerVoucherID int64) (*models.ExchangeOutcome, error) {
	var outcome *models.ExchangeOutcome
	err := s.transactionManager.ExecuteSerializableTransaction(ctx, func(tx pgx.Tx) error {
		listing, err := s.repo.GetForUpdate(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if !listing.IsMarketListing() {
			return ErrNotMarketListing
		}
		if listing.Status != enum.ExchangeStatusPending {
			return ErrAlreadyProcessed
		}
		if listing.RequesterUserID == takerUserID || listing.RequesterVoucherID == takerVoucherID {
			return ErrOwnMarketListing
		}

		listed, offered, err := s.lockPair(ctx, tx, listing.RequesterVoucherID, takerVoucherID)
		if err != nil {
			return err
		}
		if offered.Voucher.UserID != takerUserID {
			return ErrNotOwner
		}
		if offered.Voucher.IsUsed {
			return ErrVoucherUsed
		}
		if offered.Template.IsExpired(s.now()) {
			return ErrVoucherExpired
		}

		if err = s.swap(ctx, tx, listed, offered, listing.RequesterUserID, takerUserID); err != nil {
			return err
		}
		if err = s.repo.AcceptListing(ctx, tx, listing.ID, takerVoucherID, takerUserID); err != nil {
			return err
		}
		if err = s.supersede(ctx, tx, listed.Voucher.ID, offered.Voucher.ID); err != nil {
			return err
		}

		listing.RequestedVoucherID = &takerVoucherID
		listing.RequestedUserID = &takerUserID
		listing.Status = enum.ExchangeStatusAccepted

		outcome = &models.ExchangeOutcome{Request: listing, RequesterVoucher: listed, RequestedVoucher: offered}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("market listing taken",
		zap.Int64("request_id", listingID),
		zap.Int64("taker_user_id", takerUserID))

	return outcome, nil
}

// swap exchanges the owners of a and b, which must still be unused, unexpired and held by
// aOwner and bOwner respectively.
func (s *service) swap(ctx context.Context, tx pgx.Tx, a, b *models.OwnedVoucher, aOwner, bOwner int64) error {
	now := s.now()
	for _, side := range []struct {
		owned *models.OwnedVoucher
		owner int64
	}{{a, aOwner}, {b, bOwner}} {
		if side.owned.Voucher.IsUsed || side.owned.Template.IsExpired(now) || side.owned.Voucher.UserID != side.owner {
			return ErrNoLongerEligible
		}
	}

	if err := s.vouchers.SetOwner(ctx, tx, a.Voucher.ID, bOwner); err != nil {
		return err
	}
	if err := s.vouchers.SetOwner(ctx, tx, b.Voucher.ID, aOwner); err != nil {
		return err
	}
	a.Voucher.UserID = bOwner
	b.Voucher.UserID = aOwner
	return nil
}

// supersede rejects the remaining pending requests and listings for vouchers that just changed
// hands. It runs after the resolved request has left pending.
func (s *service) supersede(ctx context.Context, tx pgx.Tx, voucherIDs ...int64) error {
	n, err := s.repo.RejectPending(ctx, tx, voucherIDs...)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug("superseded pending exchange requests",
			zap.Int64s("user_voucher_ids", voucherIDs),
			zap.Int64("count", n))
	}
	return nil
}

// lockPair locks both vouchers in ascending id order and returns them in argument order.
func (s *service) lockPair(ctx context.Context, tx pgx.Tx, firstID, secondID int64) (*models.OwnedVoucher, *models.OwnedVoucher, error) {
	lowID, highID := firstID, secondID
	if lowID > highID {
		lowID, highID = highID, lowID
	}

	low, err := s.lock(ctx, tx, lowID)
	if err != nil {
		return nil, nil, err
	}
	high, err := s.lock(ctx, tx, highID)
	if err != nil {
		return nil, nil, err
	}

	if firstID == lowID {
		return low, high, nil
	}
	return high, low, nil
}

func (s *service) lock(ctx context.Context, tx pgx.Tx, id int64) (*models.OwnedVoucher, error) {
	v, err := s.vouchers.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetByID(ctx, tx, v.TemplateID)
	if err != nil {
		return nil, err
	}
	return &models.OwnedVoucher{Voucher: v, Template: t}, nil
}

func normalizeMessage(message *string) (*string, error) {
	if message == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*message)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxMessageLength {
		return nil, ErrMessageTooLong
	}
	return &trimmed, nil
}
