package models

// Business is the subset of a business listing the voucher engine reads.
type Business struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
	Image   string `json:"image,omitempty"`
}
