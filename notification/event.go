package notification

// Event names as seen by socket clients.
const (
	EventVoucherCreated           = "voucher_created"
	EventVoucherDeactivated       = "voucher_deactivated"
	EventVoucherClaimed           = "voucher_claimed"
	EventVoucherClaimedByCustomer = "voucher_claimed_by_customer"
	EventVoucherUsed              = "voucher_used"
	EventCustomerUsedVoucher      = "customer_used_voucher"
	EventVoucherGiftedSuccess     = "voucher_gifted_success"
	EventVoucherReceived          = "voucher_received"
	EventVoucherRewardIssued      = "voucher_reward_issued"

	EventExchangeRequestSent      = "exchange_request_sent"
	EventExchangeRequestReceived  = "exchange_request_received"
	EventExchangeRequestResponded = "exchange_request_responded"

	EventMarketListingAdded        = "market-listing-added"
	EventMyMarketListingAdded      = "my-market-listing-added"
	EventMarketListingClaimed      = "market-listing-claimed"
	EventMarketListingClaimSuccess = "market-listing-claim-success"
)

// Notification is one event fanned out to every recipient.
type Notification struct {
	Event      string
	Recipients []int64
	Payload    any
}

func New(event string, payload any, recipients ...int64) Notification {
	return Notification{Event: event, Recipients: recipients, Payload: payload}
}
