package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/voucher"
	"goflare.io/voucher/apperr"
)

type ViewHandler interface {
	UserVouchers(c echo.Context) error
	BusinessStats(c echo.Context) error
	Health(c echo.Context) error
}

type viewHandler struct {
	Engine voucher.Engine
	logger *zap.Logger
}

func NewViewHandler(engine voucher.Engine, logger *zap.Logger) ViewHandler {
	return &viewHandler{
		Engine: engine,
		logger: logger,
	}
}

// UserVouchers handles GET /users/:id/vouchers. The view carries redeemable codes, so a user
// may only read their own.
func (vh *viewHandler) UserVouchers(c echo.Context) error {
	actingUserID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	userID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	if userID != actingUserID {
		return respondError(c, vh.logger, apperr.Authorization("you can only view your own vouchers"))
	}

	summary, err := vh.Engine.UserVouchers(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusOK, summary)
}

// BusinessStats handles GET /businesses/:id/voucher-stats
func (vh *viewHandler) BusinessStats(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	businessID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	stats, err := vh.Engine.BusinessStats(c.Request().Context(), businessID, userID)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusOK, stats)
}

// Health handles GET /healthz
func (vh *viewHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
