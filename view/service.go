package view

import (
	"context"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/directory"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
)

var ErrNotBusinessOwner = apperr.Authorization("only the business owner can view voucher statistics")

type Service interface {
	UserVouchers(ctx context.Context, userID int64) (*models.UserVoucherSummary, error)
	PendingExchanges(ctx context.Context) ([]*models.PendingExchange, error)
	BusinessStats(ctx context.Context, businessID, actingUserID int64) (*models.BusinessVoucherStats, error)
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

// snapshot is everything read for one view, taken inside a single read-only transaction.
type snapshot struct {
	owned      []*models.VoucherDetail
	giftedAway []*models.VoucherDetail
	accepted   []*models.ExchangeRequest
	pending    []*models.ExchangeRequest
	details    map[int64]*models.VoucherDetail
}

func requestVoucherIDs(requests ...[]*models.ExchangeRequest) []int64 {
	var ids []int64
	for _, list := range requests {
		for _, req := range list {
			ids = append(ids, req.RequesterVoucherID)
			if req.RequestedVoucherID != nil {
				ids = append(ids, *req.RequestedVoucherID)
			}
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (s *service) UserVouchers(ctx context.Context, userID int64) (*models.UserVoucherSummary, error) {
	exists, err := s.directory.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("user %d not found", userID)
	}

	var snap snapshot
	err = s.transactionManager.ExecuteReadOnlyTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if snap.owned, err = s.repo.ListOwned(ctx, tx, userID); err != nil {
			return err
		}
		if snap.giftedAway, err = s.repo.ListGiftedAway(ctx, tx, userID); err != nil {
			return err
		}
		if snap.accepted, err = s.repo.ListExchanges(ctx, tx, userID, enum.ExchangeStatusAccepted); err != nil {
			return err
		}
		if snap.pending, err = s.repo.ListPendingForCounterpart(ctx, tx, userID); err != nil {
			return err
		}
		snap.details, err = s.repo.GetDetails(ctx, tx, requestVoucherIDs(snap.accepted, snap.pending))
		return err
	})
	if err != nil {
		s.logger.Error("failed to load user vouchers", zap.Int64("userID", userID), zap.Error(err))
		return nil, err
	}

	names, err := s.directory.DisplayNames(ctx, snap.partyIDs(userID))
	if err != nil {
		return nil, err
	}

	return s.summarize(userID, &snap, names), nil
}

// partyIDs lists every user other than userID whose name appears in the view.
func (snap *snapshot) partyIDs(userID int64) []int64 {
	var ids []int64
	for _, d := range snap.owned {
		if d.GiftedFrom != nil {
			ids = append(ids, *d.GiftedFrom)
		}
	}
	for _, d := range snap.giftedAway {
		ids = append(ids, d.UserID)
	}
	for _, list := range [][]*models.ExchangeRequest{snap.accepted, snap.pending} {
		for _, req := range list {
			ids = append(ids, req.RequesterUserID)
			if req.RequestedUserID != nil {
				ids = append(ids, *req.RequestedUserID)
			}
		}
	}
	return slices.DeleteFunc(ids, func(id int64) bool { return id == userID })
}

func entry(d *models.VoucherDetail, category enum.VoucherCategory) *models.VoucherEntry {
	return &models.VoucherEntry{
		VoucherSummary: *d.Summary(),
		Category:       category,
		IsUsed:         d.IsUsed,
		UsedAt:         d.UsedAt,
		ClaimedAt:      d.ClaimedAt,
		UniqueCode:     d.UniqueCode,
		GiftedFrom:     d.GiftedFrom,
	}
}

func (s *service) summarize(userID int64, snap *snapshot, names map[int64]string) *models.UserVoucherSummary {
	summary := &models.UserVoucherSummary{
		UserID:           userID,
		Unused:           []*models.VoucherEntry{},
		Used:             []*models.VoucherEntry{},
		Received:         []*models.VoucherEntry{},
		Transferred:      []*models.VoucherEntry{},
		SentExchange:     []*models.VoucherEntry{},
		ReceivedExchange: []*models.VoucherEntry{},
		Pending:          []*models.PendingExchange{},
	}

	for _, d := range snap.owned {
		if d.IsUsed {
			summary.Used = append(summary.Used, entry(d, enum.VoucherCategoryUsed))
		} else {
			summary.Unused = append(summary.Unused, entry(d, enum.VoucherCategoryUnused))
		}
		if d.GiftedFrom != nil {
			e := entry(d, enum.VoucherCategoryReceived)
			e.GiftedFromName = names[*d.GiftedFrom]
			e.ReceivedAt = d.GiftedAt
			summary.Received = append(summary.Received, e)
		}
	}

	for _, d := range snap.giftedAway {
		e := entry(d, enum.VoucherCategoryTransferred)
		// the code belongs to the new holder
		e.UniqueCode = ""
		e.GiftedFrom = nil
		to := d.UserID
		e.TransferredTo = &to
		e.TransferredToName = names[to]
		e.TransferredAt = d.GiftedAt
		summary.Transferred = append(summary.Transferred, e)
	}

	for _, req := range snap.accepted {
		if req.RequestedVoucherID == nil || req.RequestedUserID == nil {
			continue
		}
		requester := snap.details[req.RequesterVoucherID]
		requested := snap.details[*req.RequestedVoucherID]
		if requester == nil || requested == nil {
			s.logger.Warn("exchange references missing voucher", zap.Int64("requestID", req.ID))
			continue
		}

		var e *models.VoucherEntry
		if req.RequesterUserID == userID {
			e = entry(requester, enum.VoucherCategorySentExchange)
			e.ExchangedFor = requested.Summary()
			e.ExchangedWith = &models.Party{UserID: *req.RequestedUserID, Name: names[*req.RequestedUserID]}
			summary.SentExchange = append(summary.SentExchange, e)
		} else {
			e = entry(requested, enum.VoucherCategoryReceivedExchange)
			e.ExchangedFor = requester.Summary()
			e.ExchangedWith = &models.Party{UserID: req.RequesterUserID, Name: names[req.RequesterUserID]}
			summary.ReceivedExchange = append(summary.ReceivedExchange, e)
		}
		e.UniqueCode = ""
		id, at := req.ID, req.UpdatedAt
		e.ExchangeRequestID = &id
		e.ExchangedAt = &at
	}

	now := s.now()
	for _, req := range snap.pending {
		if p := pendingEntry(req, snap.details, names, now); p != nil {
			summary.Pending = append(summary.Pending, p)
		}
	}

	summary.Stats = models.VoucherStats{
		Total:             len(snap.owned),
		Unused:            len(summary.Unused),
		Used:              len(summary.Used),
		Received:          len(summary.Received),
		Transferred:       len(summary.Transferred),
		SentExchanged:     len(summary.SentExchange),
		ReceivedExchanged: len(summary.ReceivedExchange),
		PendingRequests:   len(summary.Pending),
	}
	return summary
}

// eligible reports whether d is still held by ownerID and can change hands at now.
func eligible(d *models.VoucherDetail, ownerID int64, now time.Time) bool {
	return d != nil && !d.IsUsed && d.UserID == ownerID && !now.After(d.ExpiryDate)
}

// pendingEntry renders req, or returns nil when one of its vouchers was used, expired or
// changed hands after the request was made. Such requests can never be accepted.
func pendingEntry(req *models.ExchangeRequest, details map[int64]*models.VoucherDetail, names map[int64]string, now time.Time) *models.PendingExchange {
	requester := details[req.RequesterVoucherID]
	if !eligible(requester, req.RequesterUserID, now) {
		return nil
	}

	p := &models.PendingExchange{
		RequestID:        req.ID,
		Type:             req.Type(),
		Message:          req.Message,
		CreatedAt:        req.CreatedAt,
		Requester:        models.Party{UserID: req.RequesterUserID, Name: names[req.RequesterUserID]},
		RequesterVoucher: requester.Summary(),
	}
	if req.IsMarketListing() {
		return p
	}

	requested := details[*req.RequestedVoucherID]
	if req.RequestedUserID == nil || !eligible(requested, *req.RequestedUserID, now) {
		return nil
	}
	p.Requested = &models.Party{UserID: *req.RequestedUserID, Name: names[*req.RequestedUserID]}
	p.RequestedVoucher = requested.Summary()
	return p
}

func (s *service) PendingExchanges(ctx context.Context) ([]*models.PendingExchange, error) {
	var (
		pending []*models.ExchangeRequest
		details map[int64]*models.VoucherDetail
	)
	err := s.transactionManager.ExecuteReadOnlyTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if pending, err = s.repo.ListPending(ctx, tx); err != nil {
			return err
		}
		details, err = s.repo.GetDetails(ctx, tx, requestVoucherIDs(pending))
		return err
	})
	if err != nil {
		s.logger.Error("failed to load pending exchanges", zap.Error(err))
		return nil, err
	}

	var ids []int64
	for _, req := range pending {
		ids = append(ids, req.RequesterUserID)
		if req.RequestedUserID != nil {
			ids = append(ids, *req.RequestedUserID)
		}
	}
	names, err := s.directory.DisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]*models.PendingExchange, 0, len(pending))
	for _, req := range pending {
		if p := pendingEntry(req, details, names, now); p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *service) BusinessStats(ctx context.Context, businessID, actingUserID int64) (*models.BusinessVoucherStats, error) {
	business, err := s.directory.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if business.OwnerID != actingUserID {
		return nil, ErrNotBusinessOwner
	}

	var templates []*models.TemplateStats
	err = s.transactionManager.ExecuteReadOnlyTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		templates, err = s.repo.TemplateStats(ctx, tx, businessID)
		return err
	})
	if err != nil {
		s.logger.Error("failed to load business voucher stats", zap.Int64("businessID", businessID), zap.Error(err))
		return nil, err
	}

	stats := &models.BusinessVoucherStats{BusinessID: businessID, Templates: templates}
	if stats.Templates == nil {
		stats.Templates = []*models.TemplateStats{}
	}
	for _, t := range templates {
		if t.Used > 0 && (stats.MostUsed == nil || t.Used > stats.MostUsed.Used) {
			stats.MostUsed = t
		}
		if stats.LeastUsed == nil || t.Used < stats.LeastUsed.Used {
			stats.LeastUsed = t
		}
		if t.Exchanged > 0 && (stats.MostExchanged == nil || t.Exchanged > stats.MostExchanged.Exchanged) {
			stats.MostExchanged = t
		}
	}
	return stats, nil
}
