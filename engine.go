package voucher

import (
	"context"

	"go.uber.org/zap"

	"goflare.io/voucher/directory"
	"goflare.io/voucher/exchange"
	"goflare.io/voucher/ledger"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
	"goflare.io/voucher/notification"
	"goflare.io/voucher/template"
	"goflare.io/voucher/view"
)

type VoucherEngine struct {
	notifier notification.Notifier
	logger   *zap.Logger

	templates template.Service
	ledger    ledger.Service
	exchange  exchange.Service
	view      view.Service
	directory directory.Service
}

func NewVoucherEngine(
	templates template.Service,
	ledger ledger.Service,
	exchange exchange.Service,
	view view.Service,
	directory directory.Service,
	notifier notification.Notifier,
	logger *zap.Logger,
) Engine {
	return &VoucherEngine{
		notifier:  notifier,
		logger:    logger,
		templates: templates,
		ledger:    ledger,
		exchange:  exchange,
		view:      view,
		directory: directory,
	}
}

func (e *VoucherEngine) CreateTemplate(ctx context.Context, params models.CreateTemplateParams) (*models.VoucherTemplate, error) {
	t, err := e.templates.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	e.templateCreated(ctx, t)
	return t, nil
}

func (e *VoucherEngine) DeactivateTemplate(ctx context.Context, templateID, issuerUserID int64) (*models.VoucherTemplate, error) {
	t, err := e.templates.Deactivate(ctx, templateID, issuerUserID)
	if err != nil {
		return nil, err
	}

	e.templateDeactivated(ctx, t)
	return t, nil
}

func (e *VoucherEngine) Claim(ctx context.Context, templateID, userID int64) (*models.OwnedVoucher, error) {
	owned, err := e.ledger.Claim(ctx, templateID, userID)
	if err != nil {
		return nil, err
	}

	e.claimed(ctx, owned)
	return owned, nil
}

func (e *VoucherEngine) Use(ctx context.Context, userVoucherID, actingUserID int64) (*models.OwnedVoucher, error) {
	owned, err := e.ledger.Use(ctx, userVoucherID, actingUserID)
	if err != nil {
		return nil, err
	}

	e.used(ctx, owned, actingUserID)
	return owned, nil
}

func (e *VoucherEngine) Gift(ctx context.Context, userVoucherID, fromUserID, toUserID int64) (*models.OwnedVoucher, error) {
	owned, err := e.ledger.Gift(ctx, userVoucherID, fromUserID, toUserID)
	if err != nil {
		return nil, err
	}

	e.gifted(ctx, owned, fromUserID)
	return owned, nil
}

func (e *VoucherEngine) IssuePostReward(ctx context.Context, businessID, userID int64) (*models.OwnedVoucher, error) {
	owned, err := e.ledger.IssuePostReward(ctx, businessID, userID)
	if err != nil {
		return nil, err
	}

	e.rewardIssued(ctx, owned)
	return owned, nil
}

func (e *VoucherEngine) RequestExchange(ctx context.Context, requesterUserID, requesterVoucherID, requestedVoucherID int64, message *string) (*models.ExchangeOutcome, error) {
	out, err := e.exchange.Request(ctx, requesterUserID, requesterVoucherID, requestedVoucherID, message)
	if err != nil {
		return nil, err
	}

	e.exchangeRequested(ctx, out)
	return out, nil
}

func (e *VoucherEngine) RespondToExchange(ctx context.Context, requestID, respondingUserID int64, action enum.ExchangeAction) (*models.ExchangeOutcome, error) {
	out, err := e.exchange.Respond(ctx, requestID, respondingUserID, action)
	if err != nil {
		return nil, err
	}

	e.exchangeResponded(ctx, out)
	return out, nil
}

func (e *VoucherEngine) ListOnMarket(ctx context.Context, userID, voucherID int64, message *string) (*models.ExchangeOutcome, error) {
	out, err := e.exchange.ListOnMarket(ctx, userID, voucherID, message)
	if err != nil {
		return nil, err
	}

	e.listedOnMarket(ctx, out)
	return out, nil
}

func (e *VoucherEngine) TakeMarketListing(ctx context.Context, listingID, takerUserID, takerVoucherID int64) (*models.ExchangeOutcome, error) {
	out, err := e.exchange.TakeListing(ctx, listingID, takerUserID, takerVoucherID)
	if err != nil {
		return nil, err
	}

	e.listingTaken(ctx, out, takerUserID)
	return out, nil
}

func (e *VoucherEngine) UserVouchers(ctx context.Context, userID int64) (*models.UserVoucherSummary, error) {
	return e.view.UserVouchers(ctx, userID)
}

func (e *VoucherEngine) PendingExchanges(ctx context.Context) ([]*models.PendingExchange, error) {
	return e.view.PendingExchanges(ctx)
}

func (e *VoucherEngine) BusinessStats(ctx context.Context, businessID, actingUserID int64) (*models.BusinessVoucherStats, error) {
	return e.view.BusinessStats(ctx, businessID, actingUserID)
}

// Close stops accepting notifications after delivering those already queued.
func (e *VoucherEngine) Close() {
	e.notifier.Stop()
}
