package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"goflare.io/voucher"
	"goflare.io/voucher/auth"
	"goflare.io/voucher/exchange"
	"goflare.io/voucher/handlers"
	"goflare.io/voucher/ledger"
	"goflare.io/voucher/models"
	"goflare.io/voucher/notification"
	"goflare.io/voucher/storetest"
	"goflare.io/voucher/template"
	"goflare.io/voucher/view"
)

const (
	businessID = int64(1)
	owner      = int64(100)
	alice      = int64(1)
	bob        = int64(2)
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notification.Notification) {}
func (nopNotifier) Stop()                                             {}

type harness struct {
	server *Server
	auth   *auth.Authenticator
	t      *testing.T
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := storetest.New()
	dir := storetest.NewDirectory()
	dir.AddBusiness(models.Business{ID: businessID, OwnerID: owner, Name: "Corner Cafe"})
	dir.AddUser(alice, "Alice")
	dir.AddUser(bob, "Bob")
	dir.AddUser(owner, "Owner")

	clock := models.SystemClock()
	tm := store.Transactor()
	engine := voucher.NewVoucherEngine(
		template.NewService(store.Templates(), dir, tm, clock, logger),
		ledger.NewService(store.UserVouchers(), store.Templates(), store.Exchanges(), dir, tm, clock, ledger.DefaultRewardPolicy(), logger),
		exchange.NewService(store.Exchanges(), store.UserVouchers(), store.Templates(), tm, clock, logger),
		view.NewService(store.Views(), dir, tm, clock, logger),
		dir,
		nopNotifier{},
		logger,
	)
	authenticator := auth.NewAuthenticator("server-secret", logger)

	s := NewServer(
		handlers.NewVoucherHandler(engine, logger),
		handlers.NewExchangeHandler(engine, logger),
		handlers.NewViewHandler(engine, logger),
		authenticator,
		engine,
		logger,
	)
	return &harness{server: s, auth: authenticator, t: t}
}

func (h *harness) call(userID int64, method, path string, body any, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := h.auth.Sign(userID, time.Hour)
	if err != nil {
		h.t.Fatalf("Sign() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			h.t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestVoucherLifecycle(t *testing.T) {
	h := newHarness(t)

	var tmpl models.VoucherTemplate
	status := h.call(owner, http.MethodPost, "/vouchers", map[string]any{
		"business_id":      businessID,
		"name":             "Free coffee",
		"discount_percent": 50,
		"expiry_date":      time.Now().Add(7 * 24 * time.Hour),
		"max_claims":       2,
	}, &tmpl)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}
	if len(tmpl.SpecialCode) != 19 {
		t.Errorf("special code = %q", tmpl.SpecialCode)
	}

	if status = h.call(alice, http.MethodPost, "/vouchers", map[string]any{
		"business_id":      businessID,
		"name":             "Fake",
		"discount_percent": 50,
		"expiry_date":      time.Now().Add(time.Hour),
	}, nil); status != http.StatusForbidden {
		t.Errorf("create by non-owner status = %d, want 403", status)
	}

	var claimed models.OwnedVoucher
	if status = h.call(alice, http.MethodPost, fmt.Sprintf("/vouchers/%d/claim", tmpl.ID), nil, &claimed); status != http.StatusCreated {
		t.Fatalf("claim status = %d", status)
	}
	if status = h.call(alice, http.MethodPost, fmt.Sprintf("/vouchers/%d/claim", tmpl.ID), nil, nil); status != http.StatusConflict {
		t.Errorf("second claim status = %d, want 409", status)
	}

	voucherPath := fmt.Sprintf("/vouchers/%d", claimed.Voucher.ID)
	if status = h.call(alice, http.MethodPost, voucherPath+"/gift", map[string]any{"to_user_id": bob}, nil); status != http.StatusOK {
		t.Fatalf("gift status = %d", status)
	}

	var summary models.UserVoucherSummary
	if status = h.call(bob, http.MethodGet, fmt.Sprintf("/users/%d/vouchers", bob), nil, &summary); status != http.StatusOK {
		t.Fatalf("view status = %d", status)
	}
	if summary.Stats.Received != 1 || summary.Received[0].GiftedFromName != "Alice" {
		t.Errorf("bob summary = %+v", summary.Stats)
	}

	usePath := fmt.Sprintf("/vouchers/use/%d", claimed.Voucher.ID)
	if status = h.call(bob, http.MethodPost, usePath, nil, nil); status != http.StatusForbidden {
		t.Errorf("use by holder status = %d, want 403", status)
	}
	if status = h.call(owner, http.MethodPost, usePath, nil, nil); status != http.StatusOK {
		t.Fatalf("use status = %d", status)
	}
	if status = h.call(owner, http.MethodPost, usePath, nil, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("second use status = %d, want 422", status)
	}

	var stats models.BusinessVoucherStats
	if status = h.call(owner, http.MethodGet, fmt.Sprintf("/businesses/%d/voucher-stats", businessID), nil, &stats); status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	if len(stats.Templates) != 1 || stats.Templates[0].Used != 1 {
		t.Errorf("stats = %+v", stats.Templates)
	}
}

func TestMarketFlow(t *testing.T) {
	h := newHarness(t)

	var tmpl models.VoucherTemplate
	h.call(owner, http.MethodPost, "/vouchers", map[string]any{
		"business_id":      businessID,
		"name":             "Bagel",
		"discount_percent": 10,
		"expiry_date":      time.Now().Add(48 * time.Hour),
	}, &tmpl)

	var a, b models.OwnedVoucher
	h.call(alice, http.MethodPost, fmt.Sprintf("/vouchers/%d/claim", tmpl.ID), nil, &a)
	h.call(bob, http.MethodPost, fmt.Sprintf("/vouchers/%d/claim", tmpl.ID), nil, &b)

	var listing models.ExchangeOutcome
	if status := h.call(alice, http.MethodPost, fmt.Sprintf("/vouchers/%d/send-to-market", a.Voucher.ID), map[string]any{"message": "any bagel fan?"}, &listing); status != http.StatusCreated {
		t.Fatalf("send-to-market status = %d", status)
	}
	if status := h.call(alice, http.MethodPost, fmt.Sprintf("/vouchers/%d/send-to-market", a.Voucher.ID), nil, nil); status != http.StatusConflict {
		t.Errorf("duplicate listing status = %d, want 409", status)
	}

	var pending []models.PendingExchange
	h.call(bob, http.MethodGet, "/vouchers/exchange-requests/all", nil, &pending)
	if len(pending) != 1 || pending[0].RequestID != listing.Request.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if status := h.call(bob, http.MethodPost, fmt.Sprintf("/vouchers/market/%d/take", listing.Request.ID), map[string]any{"voucher_id": b.Voucher.ID}, nil); status != http.StatusOK {
		t.Fatalf("take status = %d", status)
	}

	pending = nil
	h.call(bob, http.MethodGet, "/vouchers/exchange-requests/all", nil, &pending)
	if len(pending) != 0 {
		t.Errorf("pending after take = %d, want 0", len(pending))
	}

	var summary models.UserVoucherSummary
	h.call(alice, http.MethodGet, fmt.Sprintf("/users/%d/vouchers", alice), nil, &summary)
	if len(summary.Unused) != 1 || summary.Unused[0].ID != b.Voucher.ID {
		t.Errorf("alice unused = %+v, want bob's voucher", summary.Unused)
	}

	if status := h.call(bob, http.MethodPost, fmt.Sprintf("/vouchers/%d/send-to-market", a.Voucher.ID), nil, nil); status != http.StatusCreated {
		t.Errorf("relist by new owner status = %d, want 201", status)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}
