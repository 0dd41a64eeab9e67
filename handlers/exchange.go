package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/voucher"
	"goflare.io/voucher/apperr"
	"goflare.io/voucher/models/enum"
)

type ExchangeHandler interface {
	RequestExchange(c echo.Context) error
	RespondToExchange(c echo.Context) error
	SendToMarket(c echo.Context) error
	TakeMarketListing(c echo.Context) error
	PendingExchanges(c echo.Context) error
}

type exchangeHandler struct {
	Engine voucher.Engine
	logger *zap.Logger
}

func NewExchangeHandler(engine voucher.Engine, logger *zap.Logger) ExchangeHandler {
	return &exchangeHandler{
		Engine: engine,
		logger: logger,
	}
}

type requestExchangeRequest struct {
	RequestedVoucherID int64   `json:"requested_voucher_id"`
	Message            *string `json:"message"`
}

// RequestExchange handles POST /vouchers/:id/request-exchange
func (eh *exchangeHandler) RequestExchange(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, eh.logger, err)
	}
	voucherID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	var req requestExchangeRequest
	if err = bind(c, &req); err != nil {
		return respondError(c, eh.logger, err)
	}
	if req.RequestedVoucherID <= 0 {
		return respondError(c, eh.logger, apperr.Validation("requested_voucher_id is required"))
	}

	out, err := eh.Engine.RequestExchange(c.Request().Context(), userID, voucherID, req.RequestedVoucherID, req.Message)
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	return c.JSON(http.StatusCreated, out)
}

type respondExchangeRequest struct {
	Action enum.ExchangeAction `json:"action"`
}

// RespondToExchange handles POST /vouchers/:id/respond-exchange where id is the request id.
func (eh *exchangeHandler) RespondToExchange(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, eh.logger, err)
	}
	requestID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	var req respondExchangeRequest
	if err = bind(c, &req); err != nil {
		return respondError(c, eh.logger, err)
	}

	out, err := eh.Engine.RespondToExchange(c.Request().Context(), requestID, userID, req.Action)
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	return c.JSON(http.StatusOK, out)
}

type sendToMarketRequest struct {
	Message *string `json:"message"`
}

// SendToMarket handles POST /vouchers/:id/send-to-market
func (eh *exchangeHandler) SendToMarket(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, eh.logger, err)
	}
	voucherID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	var req sendToMarketRequest
	if err = bind(c, &req); err != nil {
		return respondError(c, eh.logger, err)
	}

	out, err := eh.Engine.ListOnMarket(c.Request().Context(), userID, voucherID, req.Message)
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	return c.JSON(http.StatusCreated, out)
}

type takeListingRequest struct {
	VoucherID int64 `json:"voucher_id"`
}

// TakeMarketListing handles POST /vouchers/market/:id/take
func (eh *exchangeHandler) TakeMarketListing(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, eh.logger, err)
	}
	listingID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	var req takeListingRequest
	if err = bind(c, &req); err != nil {
		return respondError(c, eh.logger, err)
	}
	if req.VoucherID <= 0 {
		return respondError(c, eh.logger, apperr.Validation("voucher_id is required"))
	}

	out, err := eh.Engine.TakeMarketListing(c.Request().Context(), listingID, userID, req.VoucherID)
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	return c.JSON(http.StatusOK, out)
}

// PendingExchanges handles GET /vouchers/exchange-requests/all
func (eh *exchangeHandler) PendingExchanges(c echo.Context) error {
	pending, err := eh.Engine.PendingExchanges(c.Request().Context())
	if err != nil {
		return respondError(c, eh.logger, err)
	}

	return c.JSON(http.StatusOK, pending)
}
