package storetest

import (
	"context"
	"errors"
	"sync"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/models"
)

// Directory is an in-memory business and user directory.
type Directory struct {
	mu         sync.Mutex
	businesses map[int64]models.Business
	users      map[int64]string
	guard      *Store
}

// ErrLookupInTransaction is returned by a guarded Directory called while its store runs a transaction.
var ErrLookupInTransaction = errors.New("storetest: directory lookup inside a transaction")

func NewDirectory() *Directory {
	return &Directory{
		businesses: make(map[int64]models.Business),
		users:      make(map[int64]string),
	}
}

func (d *Directory) AddBusiness(b models.Business) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.businesses[b.ID] = b
}

func (d *Directory) AddUser(id int64, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id] = name
}

// GuardTransactions makes every lookup fail while s runs a transaction. Only use it in tests
// that do not run transactions concurrently.
func (d *Directory) GuardTransactions(s *Store) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.guard = s
}

func (d *Directory) check() error {
	if d.guard != nil && d.guard.InTransaction() {
		return ErrLookupInTransaction
	}
	return nil
}

func (d *Directory) GetBusiness(_ context.Context, id int64) (*models.Business, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	b, ok := d.businesses[id]
	if !ok {
		return nil, apperr.NotFound("business %d not found", id)
	}
	return &b, nil
}

func (d *Directory) UserExists(_ context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return false, err
	}
	_, ok := d.users[id]
	return ok, nil
}

func (d *Directory) DisplayNames(_ context.Context, ids []int64) (map[int64]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := d.users[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}
