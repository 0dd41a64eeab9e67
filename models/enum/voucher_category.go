package enum

type VoucherCategory string

const (
	VoucherCategoryUnused           VoucherCategory = "unused"
	VoucherCategoryUsed             VoucherCategory = "used"
	VoucherCategoryReceived         VoucherCategory = "received"
	VoucherCategoryTransferred      VoucherCategory = "transferred"
	VoucherCategorySentExchange     VoucherCategory = "sent_exchange"
	VoucherCategoryReceivedExchange VoucherCategory = "received_exchange"
)
