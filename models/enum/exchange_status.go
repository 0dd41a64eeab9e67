package enum

type ExchangeStatus string

const (
	ExchangeStatusPending  ExchangeStatus = "pending"
	ExchangeStatusAccepted ExchangeStatus = "accepted"
	ExchangeStatusRejected ExchangeStatus = "rejected"
)

func (s ExchangeStatus) IsTerminal() bool {
	return s == ExchangeStatusAccepted || s == ExchangeStatusRejected
}

type ExchangeAction string

const (
	ExchangeActionAccept ExchangeAction = "accept"
	ExchangeActionReject ExchangeAction = "reject"
)

func (a ExchangeAction) Valid() bool {
	return a == ExchangeActionAccept || a == ExchangeActionReject
}

type ListingType string

const (
	ListingTypeExchange ListingType = "exchange"
	ListingTypeMarket   ListingType = "market"
)
