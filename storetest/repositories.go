package storetest

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
)

type TemplateRepository struct{ s *Store }

func (s *Store) Templates() *TemplateRepository { return &TemplateRepository{s: s} }

func (r *TemplateRepository) Create(_ context.Context, _ pgx.Tx, t *models.VoucherTemplate) (bool, error) {
	if err := r.s.fail("Template.Create"); err != nil {
		return false, err
	}
	for _, existing := range r.s.data.templates {
		if existing.SpecialCode == t.SpecialCode {
			return false, nil
		}
	}
	r.s.data.nextTemplateID++
	t.ID = r.s.data.nextTemplateID
	t.CreatedAt = r.s.now()
	t.UpdatedAt = t.CreatedAt
	r.s.data.templates[t.ID] = *t
	return true, nil
}

func (r *TemplateRepository) GetByID(_ context.Context, _ pgx.Tx, id int64) (*models.VoucherTemplate, error) {
	t, ok := r.s.data.templates[id]
	if !ok {
		return nil, apperr.NotFound("voucher template %d not found", id)
	}
	return &t, nil
}

func (r *TemplateRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.VoucherTemplate, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *TemplateRepository) SetActive(_ context.Context, _ pgx.Tx, id int64, active bool) error {
	t, ok := r.s.data.templates[id]
	if !ok {
		return apperr.NotFound("voucher template %d not found", id)
	}
	t.IsActive = active
	t.UpdatedAt = r.s.now()
	r.s.data.templates[id] = t
	return nil
}

type VoucherRepository struct{ s *Store }

func (s *Store) UserVouchers() *VoucherRepository { return &VoucherRepository{s: s} }

func (r *VoucherRepository) Create(_ context.Context, _ pgx.Tx, v *models.UserVoucher) (bool, error) {
	if err := r.s.fail("Voucher.Create"); err != nil {
		return false, err
	}
	for _, existing := range r.s.data.vouchers {
		if existing.UniqueCode == v.UniqueCode {
			return false, nil
		}
		if existing.TemplateID == v.TemplateID && existing.ClaimedBy == v.ClaimedBy {
			return false, apperr.Conflict("voucher already claimed")
		}
	}
	r.s.data.nextVoucherID++
	v.ID = r.s.data.nextVoucherID
	v.CreatedAt = r.s.now()
	v.UpdatedAt = v.CreatedAt
	r.s.data.vouchers[v.ID] = *v
	return true, nil
}

func (r *VoucherRepository) GetByID(_ context.Context, _ pgx.Tx, id int64) (*models.UserVoucher, error) {
	v, ok := r.s.data.vouchers[id]
	if !ok {
		return nil, apperr.NotFound("voucher %d not found", id)
	}
	return &v, nil
}

func (r *VoucherRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.UserVoucher, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *VoucherRepository) HasClaimed(_ context.Context, _ pgx.Tx, templateID, userID int64) (bool, error) {
	for _, v := range r.s.data.vouchers {
		if v.TemplateID == templateID && v.ClaimedBy == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *VoucherRepository) CountByTemplate(_ context.Context, _ pgx.Tx, templateID int64) (int, error) {
	n := 0
	for _, v := range r.s.data.vouchers {
		if v.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

func (r *VoucherRepository) MarkUsed(_ context.Context, _ pgx.Tx, id int64, usedAt time.Time) error {
	if err := r.s.fail("Voucher.MarkUsed"); err != nil {
		return err
	}
	v, ok := r.s.data.vouchers[id]
	if !ok {
		return apperr.NotFound("voucher %d not found", id)
	}
	v.IsUsed = true
	v.UsedAt = &usedAt
	v.UpdatedAt = usedAt
	r.s.data.vouchers[id] = v
	return nil
}

func (r *VoucherRepository) Transfer(_ context.Context, _ pgx.Tx, id, fromUserID, toUserID int64, at time.Time) error {
	if err := r.s.fail("Voucher.Transfer"); err != nil {
		return err
	}
	v, ok := r.s.data.vouchers[id]
	if !ok {
		return apperr.NotFound("voucher %d not found", id)
	}
	v.UserID = toUserID
	v.GiftedFrom = &fromUserID
	v.GiftedAt = &at
	v.UpdatedAt = at
	r.s.data.vouchers[id] = v
	return nil
}

func (r *VoucherRepository) SetOwner(_ context.Context, _ pgx.Tx, id, userID int64) error {
	if err := r.s.fail("Voucher.SetOwner"); err != nil {
		return err
	}
	v, ok := r.s.data.vouchers[id]
	if !ok {
		return apperr.NotFound("voucher %d not found", id)
	}
	v.UserID = userID
	v.GiftedFrom = nil
	v.GiftedAt = nil
	v.UpdatedAt = r.s.now()
	r.s.data.vouchers[id] = v
	return nil
}

type ExchangeRepository struct{ s *Store }

func (s *Store) Exchanges() *ExchangeRepository { return &ExchangeRepository{s: s} }

func (r *ExchangeRepository) Create(_ context.Context, _ pgx.Tx, req *models.ExchangeRequest) error {
	if err := r.s.fail("Exchange.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.data.requests {
		if existing.Status == enum.ExchangeStatusPending &&
			existing.RequesterVoucherID == req.RequesterVoucherID &&
			equalID(existing.RequestedVoucherID, req.RequestedVoucherID) {
			return apperr.Conflict("exchange request already pending")
		}
	}
	r.s.data.nextRequestID++
	req.ID = r.s.data.nextRequestID
	req.CreatedAt = r.s.now()
	req.UpdatedAt = req.CreatedAt
	r.s.data.requests[req.ID] = *req
	return nil
}

func (r *ExchangeRepository) GetForUpdate(_ context.Context, _ pgx.Tx, id int64) (*models.ExchangeRequest, error) {
	req, ok := r.s.data.requests[id]
	if !ok {
		return nil, apperr.NotFound("exchange request %d not found", id)
	}
	return &req, nil
}

func (r *ExchangeRepository) FindPending(_ context.Context, _ pgx.Tx, requesterVoucherID int64, requestedVoucherID *int64) (*models.ExchangeRequest, error) {
	for _, req := range r.s.data.requests {
		if req.Status == enum.ExchangeStatusPending &&
			req.RequesterVoucherID == requesterVoucherID &&
			equalID(req.RequestedVoucherID, requestedVoucherID) {
			return &req, nil
		}
	}
	return nil, nil
}

func (r *ExchangeRepository) UpdateStatus(_ context.Context, _ pgx.Tx, id int64, status enum.ExchangeStatus) error {
	if err := r.s.fail("Exchange.UpdateStatus"); err != nil {
		return err
	}
	req, ok := r.s.data.requests[id]
	if !ok {
		return apperr.NotFound("exchange request %d not found", id)
	}
	if req.Status != enum.ExchangeStatusPending {
		return apperr.State("exchange request %d has already been processed", id)
	}
	req.Status = status
	req.UpdatedAt = r.s.now()
	r.s.data.requests[id] = req
	return nil
}

func (r *ExchangeRepository) AcceptListing(_ context.Context, _ pgx.Tx, id, voucherID, userID int64) error {
	if err := r.s.fail("Exchange.AcceptListing"); err != nil {
		return err
	}
	req, ok := r.s.data.requests[id]
	if !ok || req.Status != enum.ExchangeStatusPending || req.RequestedVoucherID != nil {
		return apperr.State("market listing %d is no longer open", id)
	}
	req.RequestedVoucherID = &voucherID
	req.RequestedUserID = &userID
	req.Status = enum.ExchangeStatusAccepted
	req.UpdatedAt = r.s.now()
	r.s.data.requests[id] = req
	return nil
}

func (r *ExchangeRepository) RejectPending(_ context.Context, _ pgx.Tx, voucherIDs ...int64) (int64, error) {
	if err := r.s.fail("Exchange.RejectPending"); err != nil {
		return 0, err
	}
	var n int64
	for id, req := range r.s.data.requests {
		if req.Status != enum.ExchangeStatusPending {
			continue
		}
		if !slices.Contains(voucherIDs, req.RequesterVoucherID) &&
			(req.RequestedVoucherID == nil || !slices.Contains(voucherIDs, *req.RequestedVoucherID)) {
			continue
		}
		req.Status = enum.ExchangeStatusRejected
		req.UpdatedAt = r.s.now()
		r.s.data.requests[id] = req
		n++
	}
	return n, nil
}

type ViewRepository struct{ s *Store }

func (s *Store) Views() *ViewRepository { return &ViewRepository{s: s} }

func (r *ViewRepository) detail(v models.UserVoucher) *models.VoucherDetail {
	t := r.s.data.templates[v.TemplateID]
	return &models.VoucherDetail{
		UserVoucher:     v,
		Name:            t.Name,
		BusinessID:      t.BusinessID,
		BusinessName:    t.BusinessName,
		BusinessImage:   t.BusinessImage,
		DiscountPercent: t.DiscountPercent,
		ValidDays:       t.ValidDays,
		ExpiryDate:      t.ExpiryDate,
	}
}

func (r *ViewRepository) listVouchers(match func(models.UserVoucher) bool) []*models.VoucherDetail {
	var out []*models.VoucherDetail
	for _, v := range r.s.data.vouchers {
		if match(v) {
			out = append(out, r.detail(v))
		}
	}
	slices.SortFunc(out, func(a, b *models.VoucherDetail) int {
		if c := b.ClaimedAt.Compare(a.ClaimedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func (r *ViewRepository) listRequests(match func(models.ExchangeRequest) bool, newestFirst func(models.ExchangeRequest) time.Time) []*models.ExchangeRequest {
	var out []*models.ExchangeRequest
	for _, req := range r.s.data.requests {
		if match(req) {
			out = append(out, &req)
		}
	}
	slices.SortFunc(out, func(a, b *models.ExchangeRequest) int {
		if c := newestFirst(*b).Compare(newestFirst(*a)); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func (r *ViewRepository) ListOwned(_ context.Context, _ pgx.Tx, userID int64) ([]*models.VoucherDetail, error) {
	return r.listVouchers(func(v models.UserVoucher) bool { return v.UserID == userID }), nil
}

func (r *ViewRepository) ListGiftedAway(_ context.Context, _ pgx.Tx, userID int64) ([]*models.VoucherDetail, error) {
	return r.listVouchers(func(v models.UserVoucher) bool {
		return v.GiftedFrom != nil && *v.GiftedFrom == userID && v.UserID != userID
	}), nil
}

func (r *ViewRepository) ListExchanges(_ context.Context, _ pgx.Tx, userID int64, status enum.ExchangeStatus) ([]*models.ExchangeRequest, error) {
	return r.listRequests(func(req models.ExchangeRequest) bool {
		return req.Status == status &&
			(req.RequesterUserID == userID || (req.RequestedUserID != nil && *req.RequestedUserID == userID))
	}, func(req models.ExchangeRequest) time.Time { return req.UpdatedAt }), nil
}

func (r *ViewRepository) ListPendingForCounterpart(_ context.Context, _ pgx.Tx, userID int64) ([]*models.ExchangeRequest, error) {
	return r.listRequests(func(req models.ExchangeRequest) bool {
		return req.Status == enum.ExchangeStatusPending && req.RequestedUserID != nil && *req.RequestedUserID == userID
	}, func(req models.ExchangeRequest) time.Time { return req.CreatedAt }), nil
}

func (r *ViewRepository) ListPending(_ context.Context, _ pgx.Tx) ([]*models.ExchangeRequest, error) {
	return r.listRequests(func(req models.ExchangeRequest) bool {
		return req.Status == enum.ExchangeStatusPending
	}, func(req models.ExchangeRequest) time.Time { return req.CreatedAt }), nil
}

func (r *ViewRepository) GetDetails(_ context.Context, _ pgx.Tx, ids []int64) (map[int64]*models.VoucherDetail, error) {
	out := make(map[int64]*models.VoucherDetail, len(ids))
	for _, id := range ids {
		if v, ok := r.s.data.vouchers[id]; ok {
			out[id] = r.detail(v)
		}
	}
	return out, nil
}

func (r *ViewRepository) TemplateStats(_ context.Context, _ pgx.Tx, businessID int64) ([]*models.TemplateStats, error) {
	var out []*models.TemplateStats
	for _, t := range r.s.data.templates {
		if t.BusinessID != businessID {
			continue
		}
		stats := &models.TemplateStats{TemplateID: t.ID, Name: t.Name, IsActive: t.IsActive}
		for _, v := range r.s.data.vouchers {
			if v.TemplateID != t.ID {
				continue
			}
			stats.Claimed++
			if v.IsUsed {
				stats.Used++
			}
		}
		for _, req := range r.s.data.requests {
			if req.Status != enum.ExchangeStatusAccepted {
				continue
			}
			if r.s.data.vouchers[req.RequesterVoucherID].TemplateID == t.ID {
				stats.Exchanged++
			}
			if req.RequestedVoucherID != nil && r.s.data.vouchers[*req.RequestedVoucherID].TemplateID == t.ID {
				stats.Exchanged++
			}
		}
		out = append(out, stats)
	}
	slices.SortFunc(out, func(a, b *models.TemplateStats) int { return cmp.Compare(a.TemplateID, b.TemplateID) })
	return out, nil
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
