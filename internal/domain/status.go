package domain

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderReturned   OrderStatus = "RETURNED"
)

// Only PENDING -> COMPLETED is driven here; the rest belong to the refund
// and fulfilment collaborators.
var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:           {PaymentCompleted: true, PaymentFailed: true},
	PaymentCompleted:         {PaymentRefunded: true, PaymentPartiallyRefunded: true},
	PaymentPartiallyRefunded: {PaymentRefunded: true},
	PaymentFailed:            {},
	PaymentRefunded:          {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}
