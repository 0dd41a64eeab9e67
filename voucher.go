package voucher

import (
	"context"

	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
)

// Engine is the voucher ownership and exchange engine. Every mutation commits before any
// notification is sent, and a failed notification never changes the returned result.
type Engine interface {
	CreateTemplate(ctx context.Context, params models.CreateTemplateParams) (*models.VoucherTemplate, error)
	DeactivateTemplate(ctx context.Context, templateID, issuerUserID int64) (*models.VoucherTemplate, error)

	Claim(ctx context.Context, templateID, userID int64) (*models.OwnedVoucher, error)
	Use(ctx context.Context, userVoucherID, actingUserID int64) (*models.OwnedVoucher, error)
	Gift(ctx context.Context, userVoucherID, fromUserID, toUserID int64) (*models.OwnedVoucher, error)
	IssuePostReward(ctx context.Context, businessID, userID int64) (*models.OwnedVoucher, error)

	RequestExchange(ctx context.Context, requesterUserID, requesterVoucherID, requestedVoucherID int64, message *string) (*models.ExchangeOutcome, error)
	RespondToExchange(ctx context.Context, requestID, respondingUserID int64, action enum.ExchangeAction) (*models.ExchangeOutcome, error)
	ListOnMarket(ctx context.Context, userID, voucherID int64, message *string) (*models.ExchangeOutcome, error)
	TakeMarketListing(ctx context.Context, listingID, takerUserID, takerVoucherID int64) (*models.ExchangeOutcome, error)

	UserVouchers(ctx context.Context, userID int64) (*models.UserVoucherSummary, error)
	PendingExchanges(ctx context.Context) ([]*models.PendingExchange, error)
	BusinessStats(ctx context.Context, businessID, actingUserID int64) (*models.BusinessVoucherStats, error)

	Close()
}
