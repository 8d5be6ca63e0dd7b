package orders

const (
	TopicOrderCreated    = "order.created"
	TopicPaymentVerified = "order.payment.verified"
)

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
