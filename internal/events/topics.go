package events

// Topic constants for domain events emitted by the payment flow.
const (
	TopicOrderCreated      = "order.created"
	TopicOrderPaid         = "order.paid"
	TopicPaymentAuthorized = "payment.authorized"
	TopicPaymentFailed     = "payment.failed"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicPaymentAuthorized,
		TopicPaymentFailed,
	}
}
