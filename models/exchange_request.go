package models

import (
	"time"

	"goflare.io/voucher/models/enum"
)

type ExchangeRequest struct {
	ID                 int64               `json:"id"`
	RequesterVoucherID int64               `json:"requester_voucher_id"`
	RequestedVoucherID *int64              `json:"requested_voucher_id,omitempty"`
	RequesterUserID    int64               `json:"requester_user_id"`
	RequestedUserID    *int64              `json:"requested_user_id,omitempty"`
	Status             enum.ExchangeStatus `json:"status"`
	Message            *string             `json:"message,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// IsMarketListing reports whether the request is an open offer without a named counterpart.
func (r *ExchangeRequest) IsMarketListing() bool {
	return r.RequestedVoucherID == nil
}

func (r *ExchangeRequest) Type() enum.ListingType {
	if r.IsMarketListing() {
		return enum.ListingTypeMarket
	}
	return enum.ListingTypeExchange
}

// ExchangeOutcome is the result of an exchange or market operation. RequestedVoucher is nil for
// an open market listing.
type ExchangeOutcome struct {
	Request          *ExchangeRequest `json:"request"`
	RequesterVoucher *OwnedVoucher    `json:"requester_voucher"`
	RequestedVoucher *OwnedVoucher    `json:"requested_voucher,omitempty"`
}
