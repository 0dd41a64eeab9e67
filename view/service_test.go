package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/models"
	"goflare.io/voucher/models/enum"
	"goflare.io/voucher/storetest"
)

const (
	businessID    = int64(1)
	businessOwner = int64(100)
	alice         = int64(1)
	bob           = int64(2)
	carol         = int64(3)
)

var now = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   Service
	store *storetest.Store
	dir   *storetest.Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storetest.New(), dir: storetest.NewDirectory()}
	f.dir.AddBusiness(models.Business{ID: businessID, OwnerID: businessOwner, Name: "Corner Cafe"})
	f.dir.AddUser(alice, "Alice")
	f.dir.AddUser(bob, "Bob")
	f.dir.AddUser(carol, "Carol")
	f.dir.AddUser(businessOwner, "Owner")

	clock := func() time.Time { return now }
	f.store.SetClock(clock)
	f.svc = NewService(f.store.Views(), f.dir, f.store.Transactor(), clock, zap.NewNop())
	return f
}

func (f *fixture) template(name string, expiry time.Time) *models.VoucherTemplate {
	return f.store.AddTemplate(models.VoucherTemplate{
		Name:            name,
		BusinessID:      businessID,
		BusinessName:    "Corner Cafe",
		DiscountPercent: 15,
		ExpiryDate:      expiry,
		IsActive:        true,
	})
}

func (f *fixture) voucher(templateID, owner int64, mutate func(v *models.UserVoucher)) *models.UserVoucher {
	v := models.UserVoucher{TemplateID: templateID, UserID: owner}
	if mutate != nil {
		mutate(&v)
	}
	return f.store.AddVoucher(v)
}

func ptr[T any](v T) *T { return &v }

func ids(entries []*models.VoucherEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUserVouchers(t *testing.T) {
	f := newFixture(t)
	tmpl := f.template("Free coffee", now.AddDate(0, 1, 0))
	day := func(d int) time.Time { return now.Add(-time.Duration(d) * 24 * time.Hour) }

	unused := f.voucher(tmpl.ID, alice, func(v *models.UserVoucher) { v.ClaimedAt = day(9) })
	used := f.voucher(tmpl.ID, alice, func(v *models.UserVoucher) {
		v.ClaimedAt = day(8)
		v.IsUsed = true
		v.UsedAt = ptr(day(1))
	})
	received := f.voucher(tmpl.ID, alice, func(v *models.UserVoucher) {
		v.ClaimedBy = bob
		v.ClaimedAt = day(7)
		v.GiftedFrom = ptr(bob)
		v.GiftedAt = ptr(day(2))
	})
	giftedAway := f.voucher(tmpl.ID, carol, func(v *models.UserVoucher) {
		v.ClaimedBy = alice
		v.ClaimedAt = day(6)
		v.GiftedFrom = ptr(alice)
		v.GiftedAt = ptr(day(3))
	})
	// alice's sent voucher now belongs to bob and bob's to alice
	sent := f.voucher(tmpl.ID, bob, func(v *models.UserVoucher) { v.ClaimedBy = alice; v.ClaimedAt = day(5) })
	got := f.voucher(tmpl.ID, alice, func(v *models.UserVoucher) { v.ClaimedBy = bob; v.ClaimedAt = day(4) })
	accepted := f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: sent.ID,
		RequestedVoucherID: ptr(got.ID),
		RequesterUserID:    alice,
		RequestedUserID:    ptr(bob),
		Status:             enum.ExchangeStatusAccepted,
		CreatedAt:          day(2),
		UpdatedAt:          day(1),
	})

	offer := f.voucher(tmpl.ID, bob, func(v *models.UserVoucher) { v.ClaimedAt = day(3) })
	pending := f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: offer.ID,
		RequestedVoucherID: ptr(unused.ID),
		RequesterUserID:    bob,
		RequestedUserID:    ptr(alice),
		Status:             enum.ExchangeStatusPending,
		Message:            ptr("swap?"),
	})
	spent := f.voucher(tmpl.ID, bob, func(v *models.UserVoucher) { v.IsUsed = true; v.ClaimedAt = day(3) })
	f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: spent.ID,
		RequestedVoucherID: ptr(received.ID),
		RequesterUserID:    bob,
		RequestedUserID:    ptr(alice),
		Status:             enum.ExchangeStatusPending,
	})

	summary, err := f.svc.UserVouchers(context.Background(), alice)
	if err != nil {
		t.Fatalf("UserVouchers() error = %v", err)
	}

	checks := []struct {
		name string
		got  []*models.VoucherEntry
		want []int64
	}{
		{"unused", summary.Unused, []int64{got.ID, received.ID, unused.ID}},
		{"used", summary.Used, []int64{used.ID}},
		{"received", summary.Received, []int64{received.ID}},
		{"transferred", summary.Transferred, []int64{giftedAway.ID}},
		{"sent_exchange", summary.SentExchange, []int64{sent.ID}},
		{"received_exchange", summary.ReceivedExchange, nil},
	}
	for _, c := range checks {
		if !equalIDs(ids(c.got), c.want) {
			t.Errorf("%s = %v, want %v", c.name, ids(c.got), c.want)
		}
	}

	r := summary.Received[0]
	if r.GiftedFromName != "Bob" || r.ReceivedAt == nil || !r.ReceivedAt.Equal(day(2)) {
		t.Errorf("received entry = %+v", r)
	}
	if r.Category != enum.VoucherCategoryReceived {
		t.Errorf("received category = %s", r.Category)
	}

	tr := summary.Transferred[0]
	if tr.TransferredTo == nil || *tr.TransferredTo != carol || tr.TransferredToName != "Carol" {
		t.Errorf("transferred entry = %+v", tr)
	}
	if tr.UniqueCode != "" {
		t.Errorf("transferred entry exposes unique code %q", tr.UniqueCode)
	}

	se := summary.SentExchange[0]
	if se.ExchangedFor == nil || se.ExchangedFor.ID != got.ID {
		t.Errorf("sent exchange for = %+v, want voucher %d", se.ExchangedFor, got.ID)
	}
	if se.ExchangedWith == nil || se.ExchangedWith.UserID != bob || se.ExchangedWith.Name != "Bob" {
		t.Errorf("sent exchange with = %+v", se.ExchangedWith)
	}
	if se.ExchangeRequestID == nil || *se.ExchangeRequestID != accepted.ID {
		t.Errorf("sent exchange request id = %v", se.ExchangeRequestID)
	}

	if len(summary.Pending) != 1 {
		t.Fatalf("pending = %d, want 1 (stale request hidden)", len(summary.Pending))
	}
	p := summary.Pending[0]
	if p.RequestID != pending.ID || p.Type != enum.ListingTypeExchange || p.Requester.Name != "Bob" {
		t.Errorf("pending entry = %+v", p)
	}
	if p.RequestedVoucher == nil || p.RequestedVoucher.ID != unused.ID {
		t.Errorf("pending requested voucher = %+v", p.RequestedVoucher)
	}

	want := models.VoucherStats{
		Total:             4,
		Unused:            3,
		Used:              1,
		Received:          1,
		Transferred:       1,
		SentExchanged:     1,
		ReceivedExchanged: 0,
		PendingRequests:   1,
	}
	if summary.Stats != want {
		t.Errorf("stats = %+v, want %+v", summary.Stats, want)
	}

	bobs, err := f.svc.UserVouchers(context.Background(), bob)
	if err != nil {
		t.Fatalf("UserVouchers(bob) error = %v", err)
	}
	if !equalIDs(ids(bobs.ReceivedExchange), []int64{got.ID}) {
		t.Fatalf("bob received_exchange = %v, want [%d]", ids(bobs.ReceivedExchange), got.ID)
	}
	rx := bobs.ReceivedExchange[0]
	if rx.ExchangedFor == nil || rx.ExchangedFor.ID != sent.ID || rx.ExchangedWith.Name != "Alice" {
		t.Errorf("bob received exchange = %+v", rx)
	}
	if len(bobs.Pending) != 0 {
		t.Errorf("bob pending = %d, want 0", len(bobs.Pending))
	}
}

func TestUserVouchersEmpty(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.UserVouchers(context.Background(), carol)
	if err != nil {
		t.Fatalf("UserVouchers() error = %v", err)
	}
	if summary.Unused == nil || summary.Pending == nil || summary.SentExchange == nil {
		t.Error("empty categories should be empty slices, not nil")
	}
	if summary.Stats != (models.VoucherStats{}) {
		t.Errorf("stats = %+v, want zero", summary.Stats)
	}
}

func TestUserVouchersUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UserVouchers(context.Background(), 999)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("UserVouchers() error = %v, want not found", err)
	}
}

func TestPendingExchanges(t *testing.T) {
	f := newFixture(t)
	live := f.template("Free coffee", now.AddDate(0, 1, 0))
	expired := f.template("Old bagel", now.Add(-time.Hour))

	a := f.voucher(live.ID, alice, nil)
	b := f.voucher(live.ID, bob, nil)
	c := f.voucher(live.ID, carol, nil)
	stale := f.voucher(expired.ID, carol, nil)
	moved := f.voucher(live.ID, carol, func(v *models.UserVoucher) { v.ClaimedBy = alice })

	older := f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: a.ID,
		RequestedVoucherID: ptr(b.ID),
		RequesterUserID:    alice,
		RequestedUserID:    ptr(bob),
		Status:             enum.ExchangeStatusPending,
		CreatedAt:          now.Add(-2 * time.Hour),
		UpdatedAt:          now.Add(-2 * time.Hour),
	})
	newer := f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: c.ID,
		RequesterUserID:    carol,
		Status:             enum.ExchangeStatusPending,
		Message:            ptr("anyone?"),
		CreatedAt:          now.Add(-time.Hour),
		UpdatedAt:          now.Add(-time.Hour),
	})
	f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: stale.ID,
		RequesterUserID:    carol,
		Status:             enum.ExchangeStatusPending,
	})
	// listed by alice, since given away
	f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: moved.ID,
		RequesterUserID:    alice,
		Status:             enum.ExchangeStatusPending,
	})
	f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: b.ID,
		RequestedVoucherID: ptr(c.ID),
		RequesterUserID:    bob,
		RequestedUserID:    ptr(carol),
		Status:             enum.ExchangeStatusRejected,
	})

	pending, err := f.svc.PendingExchanges(context.Background())
	if err != nil {
		t.Fatalf("PendingExchanges() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d entries, want 2", len(pending))
	}

	market, exchange := pending[0], pending[1]
	if market.RequestID != newer.ID || market.Type != enum.ListingTypeMarket {
		t.Errorf("first entry = %+v, want market listing %d", market, newer.ID)
	}
	if market.Requested != nil || market.RequestedVoucher != nil {
		t.Errorf("market listing has a counterpart: %+v", market)
	}
	if market.Requester.Name != "Carol" || market.Message == nil || *market.Message != "anyone?" {
		t.Errorf("market listing = %+v", market)
	}

	if exchange.RequestID != older.ID || exchange.Type != enum.ListingTypeExchange {
		t.Errorf("second entry = %+v, want exchange %d", exchange, older.ID)
	}
	if exchange.Requested == nil || exchange.Requested.Name != "Bob" {
		t.Errorf("exchange requested party = %+v", exchange.Requested)
	}
	if exchange.RequesterVoucher.Name != "Free coffee" || exchange.RequestedVoucher.ID != b.ID {
		t.Errorf("exchange vouchers = %+v / %+v", exchange.RequesterVoucher, exchange.RequestedVoucher)
	}
}

func TestBusinessStats(t *testing.T) {
	f := newFixture(t)
	coffee := f.template("Free coffee", now.AddDate(0, 1, 0))
	bagel := f.template("Bagel", now.AddDate(0, 1, 0))
	f.template("Muffin", now.AddDate(0, 1, 0))
	f.store.AddTemplate(models.VoucherTemplate{Name: "Elsewhere", BusinessID: 2, ExpiryDate: now.AddDate(0, 1, 0)})

	f.voucher(coffee.ID, alice, func(v *models.UserVoucher) { v.IsUsed = true })
	f.voucher(coffee.ID, bob, func(v *models.UserVoucher) { v.IsUsed = true })
	b1 := f.voucher(bagel.ID, alice, nil)
	c1 := f.voucher(coffee.ID, carol, nil)
	f.store.AddRequest(models.ExchangeRequest{
		RequesterVoucherID: b1.ID,
		RequestedVoucherID: ptr(c1.ID),
		RequesterUserID:    alice,
		RequestedUserID:    ptr(carol),
		Status:             enum.ExchangeStatusAccepted,
	})
	f.voucher(bagel.ID, bob, func(v *models.UserVoucher) { v.IsUsed = true })

	stats, err := f.svc.BusinessStats(context.Background(), businessID, businessOwner)
	if err != nil {
		t.Fatalf("BusinessStats() error = %v", err)
	}
	if len(stats.Templates) != 3 {
		t.Fatalf("templates = %d, want 3", len(stats.Templates))
	}

	c := stats.Templates[0]
	if c.Claimed != 3 || c.Used != 2 || c.Exchanged != 1 {
		t.Errorf("coffee stats = %+v", c)
	}
	if stats.MostUsed == nil || stats.MostUsed.TemplateID != coffee.ID {
		t.Errorf("most used = %+v, want coffee", stats.MostUsed)
	}
	if stats.LeastUsed == nil || stats.LeastUsed.Name != "Muffin" {
		t.Errorf("least used = %+v, want muffin", stats.LeastUsed)
	}
	// ties keep the lowest template id
	if stats.MostExchanged == nil || stats.MostExchanged.TemplateID != coffee.ID {
		t.Errorf("most exchanged = %+v, want coffee", stats.MostExchanged)
	}
}

func TestBusinessStatsAccess(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		businessID int64
		actor      int64
		kind       apperr.Kind
	}{
		{"not owner", businessID, alice, apperr.KindAuthorization},
		{"unknown business", 42, businessOwner, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.BusinessStats(context.Background(), tt.businessID, tt.actor)
			if !apperr.IsKind(err, tt.kind) {
				t.Fatalf("BusinessStats() error = %v, want %s", err, tt.kind)
			}
		})
	}

	_, err := f.svc.BusinessStats(context.Background(), businessID, alice)
	if !errors.Is(err, ErrNotBusinessOwner) {
		t.Errorf("error = %v, want ErrNotBusinessOwner", err)
	}
}

func TestBusinessStatsEmpty(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.BusinessStats(context.Background(), businessID, businessOwner)
	if err != nil {
		t.Fatalf("BusinessStats() error = %v", err)
	}
	if stats.Templates == nil || len(stats.Templates) != 0 {
		t.Errorf("templates = %v, want empty", stats.Templates)
	}
	if stats.MostUsed != nil || stats.LeastUsed != nil || stats.MostExchanged != nil {
		t.Errorf("extremes set on empty business: %+v", stats)
	}
}
