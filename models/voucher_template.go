package models

import "time"

type VoucherTemplate struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	BusinessID      int64     `json:"business_id"`
	BusinessName    string    `json:"business_name"`
	BusinessImage   string    `json:"business_image,omitempty"`
	DiscountPercent float64   `json:"discount_percent"`
	ValidDays       []string  `json:"valid_days"`
	ExpiryDate      time.Time `json:"expiry_date"`
	SpecialCode     string    `json:"special_code"`
	MaxClaims       *int      `json:"max_claims,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsExpired reports whether the template can no longer be claimed or redeemed at now.
func (t *VoucherTemplate) IsExpired(now time.Time) bool {
	return now.After(t.ExpiryDate)
}

// ValidOn reports whether the template may be redeemed on day. An empty ValidDays means any day.
func (t *VoucherTemplate) ValidOn(day time.Weekday) bool {
	if len(t.ValidDays) == 0 {
		return true
	}
	for _, d := range t.ValidDays {
		if d == day.String() {
			return true
		}
	}
	return false
}

// CreateTemplateParams carries the issuer input for a new template.
type CreateTemplateParams struct {
	IssuerUserID    int64     `json:"-"`
	BusinessID      int64     `json:"business_id"`
	Name            string    `json:"name"`
	DiscountPercent float64   `json:"discount_percent"`
	ValidDays       []string  `json:"valid_days,omitempty"`
	ExpiryDate      time.Time `json:"expiry_date"`
	MaxClaims       *int      `json:"max_claims,omitempty"`
}
