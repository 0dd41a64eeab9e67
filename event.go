package voucher

import (
	"context"

	"go.uber.org/zap"

	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
	"goflare.io/voucher/notification"
)

// exchangeNotice is what a counterpart or a market browser sees: no redeemable codes.
type exchangeNotice struct {
	RequestID        int64                  `json:"request_id"`
	Type             enum.ListingType       `json:"type"`
	Status           enum.ExchangeStatus    `json:"status"`
	Message          *string                `json:"message,omitempty"`
	RequesterUserID  int64                  `json:"requester_user_id"`
	RequestedUserID  *int64                 `json:"requested_user_id,omitempty"`
	RequesterVoucher *models.VoucherSummary `json:"requester_voucher"`
	RequestedVoucher *models.VoucherSummary `json:"requested_voucher,omitempty"`
}

func newExchangeNotice(out *models.ExchangeOutcome) *exchangeNotice {
	n := &exchangeNotice{
		RequestID:        out.Request.ID,
		Type:             out.Request.Type(),
		Status:           out.Request.Status,
		Message:          out.Request.Message,
		RequesterUserID:  out.Request.RequesterUserID,
		RequestedUserID:  out.Request.RequestedUserID,
		RequesterVoucher: out.RequesterVoucher.Summary(),
	}
	if out.RequestedVoucher != nil {
		n.RequestedVoucher = out.RequestedVoucher.Summary()
		// a taken listing reports as the exchange it became
		n.Type = enum.ListingTypeExchange
	}
	return n
}

// businessOwner resolves who receives business-side notifications. A lookup failure only
// costs that one notification.
func (e *VoucherEngine) businessOwner(ctx context.Context, businessID int64) (int64, bool) {
	business, err := e.directory.GetBusiness(ctx, businessID)
	if err != nil {
		e.logger.Warn("failed to resolve business owner for notification",
			zap.Int64("business_id", businessID), zap.Error(err))
		return 0, false
	}
	return business.OwnerID, true
}

func (e *VoucherEngine) emit(ctx context.Context, notes ...notification.Notification) {
	for _, n := range notes {
		e.notifier.Notify(ctx, n)
	}
}

func (e *VoucherEngine) templateCreated(ctx context.Context, t *models.VoucherTemplate) {
	e.emit(ctx, notification.New(notification.EventVoucherCreated, t, notification.Broadcast))
}

func (e *VoucherEngine) templateDeactivated(ctx context.Context, t *models.VoucherTemplate) {
	e.emit(ctx, notification.New(notification.EventVoucherDeactivated, t, notification.Broadcast))
}

func (e *VoucherEngine) claimed(ctx context.Context, owned *models.OwnedVoucher) {
	e.emit(ctx, notification.New(notification.EventVoucherClaimed, owned, owned.Voucher.UserID))
	if ownerID, ok := e.businessOwner(ctx, owned.Template.BusinessID); ok {
		e.emit(ctx, notification.New(notification.EventVoucherClaimedByCustomer, owned.Summary(), ownerID))
	}
}

func (e *VoucherEngine) used(ctx context.Context, owned *models.OwnedVoucher, actingUserID int64) {
	e.emit(ctx,
		notification.New(notification.EventVoucherUsed, owned, owned.Voucher.UserID),
		notification.New(notification.EventCustomerUsedVoucher, owned, actingUserID),
	)
}

func (e *VoucherEngine) gifted(ctx context.Context, owned *models.OwnedVoucher, fromUserID int64) {
	e.emit(ctx,
		notification.New(notification.EventVoucherGiftedSuccess, owned.Summary(), fromUserID),
		notification.New(notification.EventVoucherReceived, owned, owned.Voucher.UserID),
	)
}

func (e *VoucherEngine) rewardIssued(ctx context.Context, owned *models.OwnedVoucher) {
	e.emit(ctx, notification.New(notification.EventVoucherRewardIssued, owned, owned.Voucher.UserID))
}

func (e *VoucherEngine) exchangeRequested(ctx context.Context, out *models.ExchangeOutcome) {
	e.emit(ctx, notification.New(notification.EventExchangeRequestSent, out, out.Request.RequesterUserID))
	if out.Request.RequestedUserID != nil {
		e.emit(ctx, notification.New(notification.EventExchangeRequestReceived, newExchangeNotice(out), *out.Request.RequestedUserID))
	}
}

func (e *VoucherEngine) exchangeResponded(ctx context.Context, out *models.ExchangeOutcome) {
	recipients := []int64{out.Request.RequesterUserID}
	if out.Request.RequestedUserID != nil {
		recipients = append(recipients, *out.Request.RequestedUserID)
	}
	e.emit(ctx, notification.New(notification.EventExchangeRequestResponded, newExchangeNotice(out), recipients...))
}

func (e *VoucherEngine) listedOnMarket(ctx context.Context, out *models.ExchangeOutcome) {
	e.emit(ctx,
		notification.New(notification.EventMarketListingAdded, newExchangeNotice(out), notification.Broadcast),
		notification.New(notification.EventMyMarketListingAdded, out, out.Request.RequesterUserID),
	)
}

func (e *VoucherEngine) listingTaken(ctx context.Context, out *models.ExchangeOutcome, takerUserID int64) {
	e.emit(ctx,
		notification.New(notification.EventMarketListingClaimed, newExchangeNotice(out), out.Request.RequesterUserID),
		notification.New(notification.EventMarketListingClaimSuccess, newExchangeNotice(out), takerUserID),
	)
}
