package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/auth"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindAuthorization:   http.StatusForbidden,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindExpired:         http.StatusGone,
	apperr.KindState:           http.StatusUnprocessableEntity,
}

// respondError writes err as the JSON error envelope. Domain errors keep their kind as the
// code; anything else is logged and reported as an internal error.
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status, ok := statusByKind[appErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, errorResponse{Error: errorBody{Message: appErr.Message, Code: string(appErr.Kind)}})
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
		return c.JSON(httpErr.Code, errorResponse{Error: errorBody{Message: message, Code: "http_error"}})
	}

	logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: errorBody{Message: "internal server error", Code: "internal_error"}})
}

// ErrorHandler renders errors returned by middleware and unmatched routes with the same envelope.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if rErr := respondError(c, logger, err); rErr != nil {
			logger.Error("failed to write error response", zap.Error(rErr))
		}
	}
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func actingUser(c echo.Context) (int64, error) {
	id, ok := auth.UserID(c)
	if !ok {
		return 0, auth.ErrMissingToken
	}
	return id, nil
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request payload")
	}
	return nil
}
