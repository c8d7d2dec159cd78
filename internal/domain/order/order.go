// Package order holds the order aggregate and the reconciliation rules that act on it.
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a customer order as stored in the orders table
type Order struct {
	shared.BaseEntity
	UserID                uuid.UUID
	OrderNumber           string
	Status                Status
	PaymentStatus         PaymentStatus
	StripeSessionID       string
	StripePaymentIntentID string
	ZincOrderID           string
	ZincStatus            string
	TrackingNumber        string
	TotalAmount           decimal.Decimal
	Currency              string
	Notes                 string
	Items                 []Item
}

// Item is one line of an order
type Item struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	ImageURL    string
}

// Subtotal returns quantity times unit price
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder creates a pending, unpaid order
func NewOrder(userID uuid.UUID, orderNumber string, total decimal.Decimal, currency string) (*Order, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if strings.TrimSpace(orderNumber) == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if total.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Order total cannot be negative")
	}
	if currency == "" {
		currency = "usd"
	}
	return &Order{
		BaseEntity:    shared.NewBaseEntity(),
		UserID:        userID,
		OrderNumber:   orderNumber,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		TotalAmount:   total.Round(2),
		Currency:      strings.ToLower(currency),
	}, nil
}

// HasDuplicateRisk is true while a Zinc submission is in flight without a Zinc order id.
// Resubmitting such an order could place a second Amazon order.
func (o *Order) HasDuplicateRisk() bool {
	return o.ZincStatus == ZincStatusSubmitting && strings.TrimSpace(o.ZincOrderID) == ""
}

// IsCancelled reports whether the order was cancelled
func (o *Order) IsCancelled() bool {
	return o.Status == StatusCancelled
}

// CancelAsDuplicateOf cancels o in favour of the kept order sharing its Zinc order id
func (o *Order) CancelAsDuplicateOf(kept *Order) error {
	if kept == nil || kept.ID == o.ID {
		return shared.NewDomainError("INVALID_DUPLICATE", "Kept order must be a different order")
	}
	if o.ZincOrderID == "" || o.ZincOrderID != kept.ZincOrderID {
		return shared.NewDomainError("INVALID_DUPLICATE", "Orders do not share a Zinc order ID")
	}
	if o.IsCancelled() {
		return shared.ErrInvalidState
	}
	o.Status = StatusCancelled
	o.Notes = appendNote(o.Notes, DuplicateNote(kept.ID))
	o.Touch()
	return nil
}

// DuplicateNote is the note written on an order cancelled as a duplicate
func DuplicateNote(keptID uuid.UUID) string {
	return fmt.Sprintf("Cancelled as duplicate of order %s", keptID)
}

// ApplyPaymentStatus records a verified payment state.
// A succeeded payment moves a pending order into processing; other states leave Status alone.
func (o *Order) ApplyPaymentStatus(status PaymentStatus, paymentIntentID string) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_PAYMENT_STATUS", fmt.Sprintf("Unknown payment status %q", status))
	}
	o.PaymentStatus = status
	if paymentIntentID != "" {
		o.StripePaymentIntentID = paymentIntentID
	}
	if status == PaymentSucceeded && o.Status == StatusPending {
		o.Status = StatusProcessing
	}
	o.Touch()
	return nil
}

// ApplyFulfillmentStatus copies the Zinc status onto the order and derives the order status
func (o *Order) ApplyFulfillmentStatus(zincStatus, trackingNumber string) {
	o.ZincStatus = zincStatus
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	if o.IsCancelled() {
		o.Touch()
		return
	}
	switch zincStatus {
	case ZincStatusShipped:
		o.Status = StatusShipped
	case ZincStatusDelivered:
		o.Status = StatusDelivered
	case ZincStatusFailed:
		o.Status = StatusFailed
	}
	o.Touch()
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

// StaleSubmitting returns the orders with duplicate risk whose last update is older than maxAge
func StaleSubmitting(orders []*Order, now time.Time, maxAge time.Duration) []*Order {
	var out []*Order
	for _, o := range orders {
		if o.HasDuplicateRisk() && now.Sub(o.UpdatedAt) >= maxAge {
			out = append(out, o)
		}
	}
	return out
}
