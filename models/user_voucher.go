package models

import "time"

type UserVoucher struct {
	ID         int64      `json:"id"`
	TemplateID int64      `json:"template_id"`
	UserID     int64      `json:"user_id"`
	ClaimedBy  int64      `json:"claimed_by"`
	IsUsed     bool       `json:"is_used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ClaimedAt  time.Time  `json:"claimed_at"`
	GiftedAt   *time.Time `json:"gifted_at,omitempty"`
	GiftedFrom *int64     `json:"gifted_from,omitempty"`
	UniqueCode string     `json:"unique_code"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// OwnedVoucher pairs a token with the template it was issued from.
type OwnedVoucher struct {
	Voucher  *UserVoucher     `json:"voucher"`
	Template *VoucherTemplate `json:"template"`
}

// Summary describes the voucher without its redeemable code.
func (o *OwnedVoucher) Summary() *VoucherSummary {
	return &VoucherSummary{
		ID:              o.Voucher.ID,
		TemplateID:      o.Template.ID,
		Name:            o.Template.Name,
		BusinessName:    o.Template.BusinessName,
		BusinessImage:   o.Template.BusinessImage,
		DiscountPercent: o.Template.DiscountPercent,
		ValidDays:       o.Template.ValidDays,
		ExpiryDate:      o.Template.ExpiryDate,
	}
}
