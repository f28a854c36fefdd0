package payment

import "context"

// Status is the processor's server-side view of an order.
type Status string

// StatusCompleted is the only status that may grant credits.
const StatusCompleted Status = "COMPLETED"

// Order describes what the checkout should charge for.
type Order struct {
	Amount      string
	Currency    string
	Description string
}

// Processor is the external payment service.
type Processor interface {
	CreateOrder(ctx context.Context, order Order) (string, error)
	CaptureOrder(ctx context.Context, orderRef string) (Status, error)
}
