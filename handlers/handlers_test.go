package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/voucher"
	"goflare.io/voucher/apperr"
	"goflare.io/voucher/auth"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
)

// fakeEngine records the last call. Methods a test does not set up panic through the nil Engine.
type fakeEngine struct {
	voucher.Engine
	err error

	params     models.CreateTemplateParams
	args       []int64
	message    *string
	action     enum.ExchangeAction
	owned      *models.OwnedVoucher
	outcome    *models.ExchangeOutcome
	summary    *models.UserVoucherSummary
	pending    []*models.PendingExchange
	bizStats   *models.BusinessVoucherStats
	templateID int64
}

func (f *fakeEngine) CreateTemplate(_ context.Context, params models.CreateTemplateParams) (*models.VoucherTemplate, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &models.VoucherTemplate{ID: f.templateID, Name: params.Name, IsActive: true}, nil
}

func (f *fakeEngine) Claim(_ context.Context, templateID, userID int64) (*models.OwnedVoucher, error) {
	f.args = []int64{templateID, userID}
	return f.owned, f.err
}

func (f *fakeEngine) Use(_ context.Context, userVoucherID, actingUserID int64) (*models.OwnedVoucher, error) {
	f.args = []int64{userVoucherID, actingUserID}
	return f.owned, f.err
}

func (f *fakeEngine) Gift(_ context.Context, userVoucherID, fromUserID, toUserID int64) (*models.OwnedVoucher, error) {
	f.args = []int64{userVoucherID, fromUserID, toUserID}
	return f.owned, f.err
}

func (f *fakeEngine) RequestExchange(_ context.Context, requesterUserID, requesterVoucherID, requestedVoucherID int64, message *string) (*models.ExchangeOutcome, error) {
	f.args = []int64{requesterUserID, requesterVoucherID, requestedVoucherID}
	f.message = message
	return f.outcome, f.err
}

func (f *fakeEngine) RespondToExchange(_ context.Context, requestID, respondingUserID int64, action enum.ExchangeAction) (*models.ExchangeOutcome, error) {
	f.args = []int64{requestID, respondingUserID}
	f.action = action
	return f.outcome, f.err
}

func (f *fakeEngine) ListOnMarket(_ context.Context, userID, voucherID int64, message *string) (*models.ExchangeOutcome, error) {
	f.args = []int64{userID, voucherID}
	f.message = message
	return f.outcome, f.err
}

func (f *fakeEngine) TakeMarketListing(_ context.Context, listingID, takerUserID, takerVoucherID int64) (*models.ExchangeOutcome, error) {
	f.args = []int64{listingID, takerUserID, takerVoucherID}
	return f.outcome, f.err
}

func (f *fakeEngine) UserVouchers(_ context.Context, userID int64) (*models.UserVoucherSummary, error) {
	f.args = []int64{userID}
	return f.summary, f.err
}

func (f *fakeEngine) PendingExchanges(context.Context) ([]*models.PendingExchange, error) {
	return f.pending, f.err
}

func (f *fakeEngine) BusinessStats(_ context.Context, businessID, actingUserID int64) (*models.BusinessVoucherStats, error) {
	f.args = []int64{businessID, actingUserID}
	return f.bizStats, f.err
}

const (
	secret = "handler-secret"
	alice  = int64(1)
)

type testServer struct {
	echo   *echo.Echo
	engine *fakeEngine
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	engine := &fakeEngine{}
	authenticator := auth.NewAuthenticator(secret, logger)
	token, err := authenticator.Sign(alice, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	vh := NewVoucherHandler(engine, logger)
	xh := NewExchangeHandler(engine, logger)
	wh := NewViewHandler(engine, logger)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.GET("/healthz", wh.Health)
	g := e.Group("", authenticator.Middleware())
	g.POST("/vouchers", vh.CreateTemplate)
	g.POST("/vouchers/:id/claim", vh.Claim)
	g.POST("/vouchers/use/:id", vh.Use)
	g.POST("/vouchers/:id/gift", vh.Gift)
	g.POST("/vouchers/:id/request-exchange", xh.RequestExchange)
	g.POST("/vouchers/:id/respond-exchange", xh.RespondToExchange)
	g.POST("/vouchers/:id/send-to-market", xh.SendToMarket)
	g.POST("/vouchers/market/:id/take", xh.TakeMarketListing)
	g.GET("/vouchers/exchange-requests/all", xh.PendingExchanges)
	g.GET("/users/:id/vouchers", wh.UserVouchers)
	g.GET("/businesses/:id/voucher-stats", wh.BusinessStats)

	return &testServer{echo: e, engine: engine, token: token}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func equalArgs(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCreateTemplate(t *testing.T) {
	s := newTestServer(t)
	s.engine.templateID = 9

	rec := s.do(http.MethodPost, "/vouchers", `{
		"business_id": 3,
		"name": "Free coffee",
		"discount_percent": 20,
		"valid_days": ["monday"],
		"expiry_date": "2026-04-01T00:00:00Z",
		"max_claims": 10
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	p := s.engine.params
	if p.IssuerUserID != alice || p.BusinessID != 3 || p.Name != "Free coffee" || p.DiscountPercent != 20 {
		t.Errorf("params = %+v", p)
	}
	if p.MaxClaims == nil || *p.MaxClaims != 10 || len(p.ValidDays) != 1 {
		t.Errorf("params = %+v", p)
	}

	var got models.VoucherTemplate
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.ID != 9 {
		t.Errorf("response = %s", rec.Body.String())
	}
}

func TestRoutesPassActingUser(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   []int64
	}{
		{"claim", http.MethodPost, "/vouchers/5/claim", "", http.StatusCreated, []int64{5, alice}},
		{"use", http.MethodPost, "/vouchers/use/6", "", http.StatusOK, []int64{6, alice}},
		{"gift", http.MethodPost, "/vouchers/6/gift", `{"to_user_id": 2}`, http.StatusOK, []int64{6, alice, 2}},
		{"request exchange", http.MethodPost, "/vouchers/6/request-exchange", `{"requested_voucher_id": 8, "message": "hi"}`, http.StatusCreated, []int64{alice, 6, 8}},
		{"respond", http.MethodPost, "/vouchers/4/respond-exchange", `{"action": "accept"}`, http.StatusOK, []int64{4, alice}},
		{"send to market", http.MethodPost, "/vouchers/6/send-to-market", `{}`, http.StatusCreated, []int64{alice, 6}},
		{"take listing", http.MethodPost, "/vouchers/market/3/take", `{"voucher_id": 6}`, http.StatusOK, []int64{3, alice, 6}},
		{"user vouchers", http.MethodGet, "/users/1/vouchers", "", http.StatusOK, []int64{alice}},
		{"business stats", http.MethodGet, "/businesses/3/voucher-stats", "", http.StatusOK, []int64{3, alice}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.engine.owned = &models.OwnedVoucher{Voucher: &models.UserVoucher{ID: 6}, Template: &models.VoucherTemplate{ID: 5}}
			s.engine.outcome = &models.ExchangeOutcome{Request: &models.ExchangeRequest{ID: 4}}
			s.engine.summary = &models.UserVoucherSummary{UserID: alice}
			s.engine.bizStats = &models.BusinessVoucherStats{BusinessID: 3}

			rec := s.do(tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.status, rec.Body.String())
			}
			if !equalArgs(s.engine.args, tt.want) {
				t.Errorf("engine args = %v, want %v", s.engine.args, tt.want)
			}
		})
	}
}

func TestRequestBodies(t *testing.T) {
	s := newTestServer(t)
	s.engine.outcome = &models.ExchangeOutcome{Request: &models.ExchangeRequest{ID: 4}}

	s.do(http.MethodPost, "/vouchers/6/request-exchange", `{"requested_voucher_id": 8, "message": "swap?"}`)
	if s.engine.message == nil || *s.engine.message != "swap?" {
		t.Errorf("message = %v, want swap?", s.engine.message)
	}

	s.do(http.MethodPost, "/vouchers/4/respond-exchange", `{"action": "reject"}`)
	if s.engine.action != enum.ExchangeActionReject {
		t.Errorf("action = %q, want reject", s.engine.action)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("bad days"), http.StatusBadRequest, "validation_error"},
		{apperr.Authorization("not yours"), http.StatusForbidden, "authorization_error"},
		{apperr.NotFound("no such voucher"), http.StatusNotFound, "not_found"},
		{apperr.Conflict("already claimed"), http.StatusConflict, "conflict"},
		{apperr.State("already used"), http.StatusUnprocessableEntity, "state_error"},
		{apperr.Expired("expired"), http.StatusGone, "expired"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s := newTestServer(t)
			s.engine.err = tt.err

			rec := s.do(http.MethodPost, "/vouchers/5/claim", "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			body := decodeError(t, rec)
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if tt.code == "internal_error" && strings.Contains(body.Message, "connection") {
				t.Errorf("internal error leaked: %q", body.Message)
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"non numeric id", http.MethodPost, "/vouchers/abc/claim", ""},
		{"zero id", http.MethodPost, "/vouchers/0/claim", ""},
		{"gift without recipient", http.MethodPost, "/vouchers/6/gift", `{}`},
		{"exchange without target", http.MethodPost, "/vouchers/6/request-exchange", `{"message": "hi"}`},
		{"take without voucher", http.MethodPost, "/vouchers/market/3/take", `{}`},
		{"malformed json", http.MethodPost, "/vouchers/6/gift", `{"to_user_id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(tt.method, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
			}
			if s.engine.args != nil {
				t.Errorf("engine called with %v", s.engine.args)
			}
		})
	}
}

func TestUserVouchersOnlyOwn(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/users/2/vouchers", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	s.token = "garbage"

	rec := s.do(http.MethodPost, "/vouchers/5/claim", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "unauthenticated" {
		t.Errorf("code = %q, want unauthenticated", body.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	health := httptest.NewRecorder()
	s.echo.ServeHTTP(health, req)
	if health.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200 without a token", health.Code)
	}
}

func TestPendingExchanges(t *testing.T) {
	s := newTestServer(t)
	s.engine.pending = []*models.PendingExchange{{RequestID: 4, Type: enum.ListingTypeMarket}}

	rec := s.do(http.MethodGet, "/vouchers/exchange-requests/all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []models.PendingExchange
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 1 || got[0].Type != enum.ListingTypeMarket {
		t.Errorf("response = %s", rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/nowhere", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	decodeError(t, rec)
}
