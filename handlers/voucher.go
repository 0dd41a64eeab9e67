package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/voucher"
	"goflare.io/voucher/apperr"
	"goflare.io/voucher/models"
)

type VoucherHandler interface {
	CreateTemplate(c echo.Context) error
	DeactivateTemplate(c echo.Context) error
	Claim(c echo.Context) error
	Use(c echo.Context) error
	Gift(c echo.Context) error
	IssuePostReward(c echo.Context) error
}

type voucherHandler struct {
	Engine voucher.Engine
	logger *zap.Logger
}

func NewVoucherHandler(engine voucher.Engine, logger *zap.Logger) VoucherHandler {
	return &voucherHandler{
		Engine: engine,
		logger: logger,
	}
}

type createTemplateRequest struct {
	BusinessID      int64     `json:"business_id"`
	Name            string    `json:"name"`
	DiscountPercent float64   `json:"discount_percent"`
	ValidDays       []string  `json:"valid_days"`
	ExpiryDate      time.Time `json:"expiry_date"`
	MaxClaims       *int      `json:"max_claims"`
}

// CreateTemplate handles POST /vouchers
func (vh *voucherHandler) CreateTemplate(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	var req createTemplateRequest
	if err = bind(c, &req); err != nil {
		return respondError(c, vh.logger, err)
	}

	template, err := vh.Engine.CreateTemplate(c.Request().Context(), models.CreateTemplateParams{
		IssuerUserID:    userID,
		BusinessID:      req.BusinessID,
		Name:            req.Name,
		DiscountPercent: req.DiscountPercent,
		ValidDays:       req.ValidDays,
		ExpiryDate:      req.ExpiryDate,
		MaxClaims:       req.MaxClaims,
	})
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusCreated, template)
}

// DeactivateTemplate handles POST /vouchers/:id/deactivate
func (vh *voucherHandler) DeactivateTemplate(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	templateID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	template, err := vh.Engine.DeactivateTemplate(c.Request().Context(), templateID, userID)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusOK, template)
}

// Claim handles POST /vouchers/:id/claim
func (vh *voucherHandler) Claim(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	templateID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	owned, err := vh.Engine.Claim(c.Request().Context(), templateID, userID)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusCreated, owned)
}

// Use handles POST /vouchers/use/:id
func (vh *voucherHandler) Use(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	userVoucherID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	owned, err := vh.Engine.Use(c.Request().Context(), userVoucherID, userID)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusOK, owned)
}

type giftRequest struct {
	ToUserID int64 `json:"to_user_id"`
}

// Gift handles POST /vouchers/:id/gift
func (vh *voucherHandler) Gift(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	userVoucherID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	var req giftRequest
	if err = bind(c, &req); err != nil {
		return respondError(c, vh.logger, err)
	}
	if req.ToUserID <= 0 {
		return respondError(c, vh.logger, apperr.Validation("to_user_id is required"))
	}

	owned, err := vh.Engine.Gift(c.Request().Context(), userVoucherID, userID, req.ToUserID)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusOK, owned)
}

// IssuePostReward handles POST /businesses/:id/post-rewards
func (vh *voucherHandler) IssuePostReward(c echo.Context) error {
	userID, err := actingUser(c)
	if err != nil {
		return respondError(c, vh.logger, err)
	}
	businessID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	owned, err := vh.Engine.IssuePostReward(c.Request().Context(), businessID, userID)
	if err != nil {
		return respondError(c, vh.logger, err)
	}

	return c.JSON(http.StatusCreated, owned)
}
