// Package storetest provides in-memory repositories and a transactor for service tests, and a
// migrated Postgres schema for repository integration tests (see OpenPostgres).
//
// Every transaction holds the store lock for its whole duration and restores a snapshot when
// the callback fails, which gives the same all-or-nothing visibility as a database
// transaction that locks the rows it touches.
package storetest

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"goflare.io/voucher/models"
)

type state struct {
	templates      map[int64]models.VoucherTemplate
	vouchers       map[int64]models.UserVoucher
	requests       map[int64]models.ExchangeRequest
	nextTemplateID int64
	nextVoucherID  int64
	nextRequestID  int64
}

func (s state) clone() state {
	s.templates = maps.Clone(s.templates)
	s.vouchers = maps.Clone(s.vouchers)
	s.requests = maps.Clone(s.requests)
	return s
}

type failure struct {
	call int
	err  error
}

type Store struct {
	mu       sync.Mutex
	inTx     atomic.Bool
	data     state
	failures map[string]failure
	calls    map[string]int
	now      models.Clock
}

func New() *Store {
	return &Store{
		data: state{
			templates: make(map[int64]models.VoucherTemplate),
			vouchers:  make(map[int64]models.UserVoucher),
			requests:  make(map[int64]models.ExchangeRequest),
		},
		failures: make(map[string]failure),
		calls:    make(map[string]int),
		now:      time.Now,
	}
}

// FailOnCall makes the nth call (1-based, counted from now) of the named repository method return err.
func (s *Store) FailOnCall(method string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = failure{call: n, err: err}
	s.calls[method] = 0
}

func (s *Store) fail(method string) error {
	f, ok := s.failures[method]
	if !ok {
		return nil
	}
	s.calls[method]++
	if s.calls[method] == f.call {
		delete(s.failures, method)
		return fmt.Errorf("storetest %s: %w", method, f.err)
	}
	return nil
}

func (s *Store) run(fn func(tx pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTx.Store(true)
	defer s.inTx.Store(false)

	snapshot := s.data.clone()
	if err := fn(nil); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// InTransaction reports whether a transaction is running on the store.
func (s *Store) InTransaction() bool {
	return s.inTx.Load()
}

type Transactor struct {
	store *Store
}

func (s *Store) Transactor() *Transactor {
	return &Transactor{store: s}
}

func (t *Transactor) ExecuteTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	return t.store.run(fn)
}

func (t *Transactor) ExecuteSerializableTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	return t.store.run(fn)
}

func (t *Transactor) ExecuteReadOnlyTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	return t.store.run(fn)
}

// AddTemplate seeds a template, assigning an id when it has none.
func (s *Store) AddTemplate(t models.VoucherTemplate) *models.VoucherTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		s.data.nextTemplateID++
		t.ID = s.data.nextTemplateID
	} else if t.ID > s.data.nextTemplateID {
		s.data.nextTemplateID = t.ID
	}
	if t.SpecialCode == "" {
		t.SpecialCode = fmt.Sprintf("SEED-%04d", t.ID)
	}
	s.data.templates[t.ID] = t
	return &t
}

// AddVoucher seeds a token, defaulting ClaimedBy to the owner.
func (s *Store) AddVoucher(v models.UserVoucher) *models.UserVoucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		s.data.nextVoucherID++
		v.ID = s.data.nextVoucherID
	} else if v.ID > s.data.nextVoucherID {
		s.data.nextVoucherID = v.ID
	}
	if v.ClaimedBy == 0 {
		v.ClaimedBy = v.UserID
	}
	if v.UniqueCode == "" {
		v.UniqueCode = fmt.Sprintf("SEED-V%04d", v.ID)
	}
	if v.ClaimedAt.IsZero() {
		v.ClaimedAt = s.now()
	}
	s.data.vouchers[v.ID] = v
	return &v
}

func (s *Store) AddRequest(r models.ExchangeRequest) *models.ExchangeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.data.nextRequestID++
		r.ID = s.data.nextRequestID
	} else if r.ID > s.data.nextRequestID {
		s.data.nextRequestID = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
		r.UpdatedAt = r.CreatedAt
	}
	s.data.requests[r.ID] = r
	return &r
}

func (s *Store) Template(id int64) (models.VoucherTemplate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.templates[id]
	return t, ok
}

func (s *Store) Voucher(id int64) (models.UserVoucher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.vouchers[id]
	return v, ok
}

func (s *Store) Request(id int64) (models.ExchangeRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.requests[id]
	return r, ok
}

// Vouchers returns every token issued from templateID.
func (s *Store) Vouchers(templateID int64) []models.UserVoucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserVoucher
	for _, v := range s.data.vouchers {
		if v.TemplateID == templateID {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) SetClock(now models.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
