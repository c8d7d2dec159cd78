package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/shared"
)

// OrderItemView is one order line as returned to clients
type OrderItemView struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// OrderView is an order with its derived reconciliation flags
type OrderView struct {
	ID                    uuid.UUID           `json:"id"`
	UserID                uuid.UUID           `json:"user_id"`
	OrderNumber           string              `json:"order_number"`
	Status                order.Status        `json:"status"`
	PaymentStatus         order.PaymentStatus `json:"payment_status"`
	StripeSessionID       string              `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID string              `json:"stripe_payment_intent_id,omitempty"`
	ZincOrderID           string              `json:"zinc_order_id,omitempty"`
	ZincStatus            string              `json:"zinc_status,omitempty"`
	TrackingNumber        string              `json:"tracking_number,omitempty"`
	TotalAmount           decimal.Decimal     `json:"total_amount" swaggertype:"string"`
	Currency              string              `json:"currency"`
	Notes                 string              `json:"notes,omitempty"`
	HasDuplicateRisk      bool                `json:"has_duplicate_risk"`
	TerminalFulfillment   bool                `json:"terminal_fulfillment"`
	Items                 []OrderItemView     `json:"items"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// OrderQueryService reads single orders for their owner or an admin
type OrderQueryService struct {
	orders order.Repository
}

// NewOrderQueryService creates a new OrderQueryService
func NewOrderQueryService(orders order.Repository) *OrderQueryService {
	return &OrderQueryService{orders: orders}
}

// GetOrder loads one order. Callers other than the owner or an admin get ErrNotFound
// so order ids cannot be probed.
func (s *OrderQueryService) GetOrder(ctx context.Context, id uuid.UUID, caller *Caller) (*OrderView, error) {
	if id == uuid.Nil {
		return nil, shared.NewValidationError("order id is required", nil)
	}
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.canAccess(o.UserID) {
		return nil, shared.ErrNotFound
	}
	return toOrderView(o), nil
}

func toOrderView(o *order.Order) *OrderView {
	v := &OrderView{
		ID:                    o.ID,
		UserID:                o.UserID,
		OrderNumber:           o.OrderNumber,
		Status:                o.Status,
		PaymentStatus:         o.PaymentStatus,
		StripeSessionID:       o.StripeSessionID,
		StripePaymentIntentID: o.StripePaymentIntentID,
		ZincOrderID:           o.ZincOrderID,
		ZincStatus:            o.ZincStatus,
		TrackingNumber:        o.TrackingNumber,
		TotalAmount:           o.TotalAmount,
		Currency:              o.Currency,
		Notes:                 o.Notes,
		HasDuplicateRisk:      o.HasDuplicateRisk(),
		TerminalFulfillment:   order.IsTerminalZincStatus(o.ZincStatus),
		Items:                 make([]OrderItemView, 0, len(o.Items)),
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, OrderItemView{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal(),
			ImageURL:    it.ImageURL,
		})
	}
	return v
}
