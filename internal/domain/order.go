package domain

// Order is a limit order submitted to the exchange. Only buys are placed;
// positions are held to settlement rather than sold back.
type Order struct {
	DecisionID string
	Ticker     string
	Side       Side
	Contracts  int
	PriceCents int64 // Limit price for the chosen side
}

// OrderStatus is the exchange's answer to a submission.
type OrderStatus string

const (
	OrderAccepted OrderStatus = "accepted"
	OrderRejected OrderStatus = "rejected"
)

// OrderResult carries the exchange response for a submitted order.
type OrderResult struct {
	Status          OrderStatus
	ExchangeOrderID string
	RejectReason    string // Exchange wording, recorded verbatim
}
