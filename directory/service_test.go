package directory

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"

	"goflare.io/voucher/apperr"
	"goflare.io/voucher/models"
)

type fakeRepository struct {
	businesses map[int64]*models.Business
	names      map[int64]string
	err        error
	lastIDs    []int64
}

func (f *fakeRepository) GetBusiness(_ context.Context, id int64) (*models.Business, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.businesses[id], nil
}

func (f *fakeRepository) UserExists(_ context.Context, id int64) (bool, error) {
	_, ok := f.names[id]
	return ok, f.err
}

func (f *fakeRepository) DisplayNames(_ context.Context, ids []int64) (map[int64]string, error) {
	f.lastIDs = ids
	out := make(map[int64]string)
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func TestGetBusiness(t *testing.T) {
	repo := &fakeRepository{businesses: map[int64]*models.Business{7: {ID: 7, OwnerID: 70, Name: "Cafe"}}}
	svc := NewService(repo, zap.NewNop())

	business, err := svc.GetBusiness(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetBusiness() error = %v", err)
	}
	if business.OwnerID != 70 {
		t.Errorf("OwnerID = %d, want 70", business.OwnerID)
	}

	_, err = svc.GetBusiness(context.Background(), 8)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("GetBusiness(unknown) error = %v, want not found", err)
	}

	repo.err = errors.New("connection refused")
	if _, err = svc.GetBusiness(context.Background(), 7); !errors.Is(err, repo.err) {
		t.Errorf("GetBusiness() error = %v, want %v", err, repo.err)
	}
}

func TestDisplayNamesDeduplicates(t *testing.T) {
	repo := &fakeRepository{names: map[int64]string{1: "Ann", 2: "Bo"}}
	svc := NewService(repo, zap.NewNop())

	names, err := svc.DisplayNames(context.Background(), []int64{1, 0, 2, 1, 3})
	if err != nil {
		t.Fatalf("DisplayNames() error = %v", err)
	}
	if !slices.Equal(repo.lastIDs, []int64{1, 2, 3}) {
		t.Errorf("queried ids = %v, want [1 2 3]", repo.lastIDs)
	}
	if names[1] != "Ann" || names[2] != "Bo" {
		t.Errorf("names = %v", names)
	}
	if _, ok := names[3]; ok {
		t.Errorf("names contains unknown user 3")
	}

	repo.lastIDs = nil
	if _, err = svc.DisplayNames(context.Background(), []int64{0}); err != nil {
		t.Fatalf("DisplayNames(zero) error = %v", err)
	}
	if repo.lastIDs != nil {
		t.Errorf("DisplayNames(zero) queried the repository")
	}
}
