package order

// Status is the merchant-side lifecycle of an order
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// IsValid reports whether s is a known order status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// PaymentStatus mirrors the Stripe payment state stored on the order row
type PaymentStatus string

const (
	PaymentPending        PaymentStatus = "pending"
	PaymentProcessing     PaymentStatus = "processing"
	PaymentRequiresAction PaymentStatus = "requires_action"
	PaymentSucceeded      PaymentStatus = "succeeded"
	PaymentFailed         PaymentStatus = "failed"
	PaymentCanceled       PaymentStatus = "canceled"
)

// IsValid reports whether s is a known payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentRequiresAction, PaymentSucceeded, PaymentFailed, PaymentCanceled:
		return true
	}
	return false
}

// Zinc statuses written to orders.zinc_status
const (
	ZincStatusSubmitting = "submitting"
	ZincStatusProcessing = "processing"
	ZincStatusPlaced     = "placed"
	ZincStatusShipped    = "shipped"
	ZincStatusDelivered  = "delivered"
	ZincStatusCancelled  = "cancelled"
	ZincStatusFailed     = "failed"
)

// TerminalZincStatuses are never polled again
var TerminalZincStatuses = []string{ZincStatusDelivered, ZincStatusCancelled, ZincStatusFailed}

// IsTerminalZincStatus reports whether fulfillment has reached a final state
func IsTerminalZincStatus(s string) bool {
	for _, t := range TerminalZincStatuses {
		if s == t {
			return true
		}
	}
	return false
}
