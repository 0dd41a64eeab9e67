package models

import (
	"time"

	"goflare.io/voucher/models/enum"
)

// VoucherDetail is a token joined with its template, as read by the view repository.
type VoucherDetail struct {
	UserVoucher
	Name            string
	BusinessID      int64
	BusinessName    string
	BusinessImage   string
	DiscountPercent float64
	ValidDays       []string
	ExpiryDate      time.Time
}

func (d *VoucherDetail) Summary() *VoucherSummary {
	return &VoucherSummary{
		ID:              d.ID,
		TemplateID:      d.TemplateID,
		Name:            d.Name,
		BusinessName:    d.BusinessName,
		BusinessImage:   d.BusinessImage,
		DiscountPercent: d.DiscountPercent,
		ValidDays:       d.ValidDays,
		ExpiryDate:      d.ExpiryDate,
	}
}

type VoucherSummary struct {
	ID              int64     `json:"id"`
	TemplateID      int64     `json:"template_id"`
	Name            string    `json:"name"`
	BusinessName    string    `json:"business_name"`
	BusinessImage   string    `json:"business_image,omitempty"`
	DiscountPercent float64   `json:"discount_percent"`
	ValidDays       []string  `json:"valid_days"`
	ExpiryDate      time.Time `json:"expiry_date"`
}

type VoucherEntry struct {
	VoucherSummary
	Category          enum.VoucherCategory `json:"category"`
	IsUsed            bool                 `json:"is_used"`
	UsedAt            *time.Time           `json:"used_at,omitempty"`
	ClaimedAt         time.Time            `json:"claimed_at"`
	UniqueCode        string               `json:"unique_code,omitempty"`
	GiftedFrom        *int64               `json:"gifted_from,omitempty"`
	GiftedFromName    string               `json:"gifted_from_name,omitempty"`
	ReceivedAt        *time.Time           `json:"received_at,omitempty"`
	TransferredTo     *int64               `json:"transferred_to,omitempty"`
	TransferredToName string               `json:"transferred_to_name,omitempty"`
	TransferredAt     *time.Time           `json:"transferred_at,omitempty"`
	ExchangeRequestID *int64               `json:"exchange_request_id,omitempty"`
	ExchangedAt       *time.Time           `json:"exchanged_at,omitempty"`
	ExchangedWith     *Party               `json:"exchanged_with,omitempty"`
	ExchangedFor      *VoucherSummary      `json:"exchanged_for,omitempty"`
}

type Party struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type PendingExchange struct {
	RequestID        int64            `json:"request_id"`
	Type             enum.ListingType `json:"type"`
	Message          *string          `json:"message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Requester        Party            `json:"requester"`
	Requested        *Party           `json:"requested,omitempty"`
	RequesterVoucher *VoucherSummary  `json:"requester_voucher"`
	RequestedVoucher *VoucherSummary  `json:"requested_voucher,omitempty"`
}

type VoucherStats struct {
	Total             int `json:"total"`
	Unused            int `json:"unused"`
	Used              int `json:"used"`
	Received          int `json:"received"`
	Transferred       int `json:"transferred"`
	SentExchanged     int `json:"sent_exchanged"`
	ReceivedExchanged int `json:"received_exchanged"`
	PendingRequests   int `json:"pending_requests"`
}

type UserVoucherSummary struct {
	UserID           int64              `json:"user_id"`
	Unused           []*VoucherEntry    `json:"unused"`
	Used             []*VoucherEntry    `json:"used"`
	Received         []*VoucherEntry    `json:"received"`
	Transferred      []*VoucherEntry    `json:"transferred"`
	SentExchange     []*VoucherEntry    `json:"sent_exchange"`
	ReceivedExchange []*VoucherEntry    `json:"received_exchange"`
	Pending          []*PendingExchange `json:"pending"`
	Stats            VoucherStats       `json:"stats"`
}

type TemplateStats struct {
	TemplateID int64  `json:"template_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	Claimed    int    `json:"claimed"`
	Used       int    `json:"used"`
	Exchanged  int    `json:"exchanged"`
}

type BusinessVoucherStats struct {
	BusinessID    int64            `json:"business_id"`
	Templates     []*TemplateStats `json:"templates"`
	MostUsed      *TemplateStats   `json:"most_used,omitempty"`
	LeastUsed     *TemplateStats   `json:"least_used,omitempty"`
	MostExchanged *TemplateStats   `json:"most_exchanged,omitempty"`
}
