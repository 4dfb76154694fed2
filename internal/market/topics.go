package market

// All lifecycle events share one topic; consumers branch on event_type.
const TopicOrderLifecycle = "order.lifecycle"

// Partition key = order_id so events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
