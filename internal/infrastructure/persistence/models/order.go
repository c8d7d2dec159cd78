package models

import (
	"github.com/elyphant/backend/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderModel maps the orders table
type OrderModel struct {
	BaseModel
	UserID                uuid.UUID           `gorm:"type:uuid;not null;index"`
	OrderNumber           string              `gorm:"type:varchar(50);not null;uniqueIndex"`
	Status                order.Status        `gorm:"type:varchar(20);not null;index"`
	PaymentStatus         order.PaymentStatus `gorm:"type:varchar(30);not null"`
	StripeSessionID       *string             `gorm:"type:varchar(255);index"`
	StripePaymentIntentID *string             `gorm:"type:varchar(255);index"`
	ZincOrderID           *string             `gorm:"type:varchar(255);index"`
	ZincStatus            string              `gorm:"type:varchar(50)"`
	TrackingNumber        *string             `gorm:"type:varchar(255)"`
	TotalAmount           decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	Currency              string              `gorm:"type:varchar(3);not null"`
	Notes                 string              `gorm:"type:text"`
	Items                 []OrderItemModel    `gorm:"foreignKey:OrderID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel maps the order_items table
type OrderItemModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID   string          `gorm:"type:varchar(100);not null"`
	ProductName string          `gorm:"type:varchar(500);not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ImageURL    string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the row to the order aggregate
func (m *OrderModel) ToDomain() *order.Order {
	o := &order.Order{
		BaseEntity:            m.BaseModel.ToDomain(),
		UserID:                m.UserID,
		OrderNumber:           m.OrderNumber,
		Status:                m.Status,
		PaymentStatus:         m.PaymentStatus,
		StripeSessionID:       deref(m.StripeSessionID),
		StripePaymentIntentID: deref(m.StripePaymentIntentID),
		ZincOrderID:           deref(m.ZincOrderID),
		ZincStatus:            m.ZincStatus,
		TrackingNumber:        deref(m.TrackingNumber),
		TotalAmount:           m.TotalAmount,
		Currency:              m.Currency,
		Notes:                 m.Notes,
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, order.Item{
			ID:          it.ID,
			OrderID:     it.OrderID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			ImageURL:    it.ImageURL,
		})
	}
	return o
}

// OrderModelFromDomain converts the order aggregate to a row
func OrderModelFromDomain(o *order.Order) *OrderModel {
	m := &OrderModel{
		UserID:                o.UserID,
		OrderNumber:           o.OrderNumber,
		Status:                o.Status,
		PaymentStatus:         o.PaymentStatus,
		StripeSessionID:       ref(o.StripeSessionID),
		StripePaymentIntentID: ref(o.StripePaymentIntentID),
		ZincOrderID:           ref(o.ZincOrderID),
		ZincStatus:            o.ZincStatus,
		TrackingNumber:        ref(o.TrackingNumber),
		TotalAmount:           o.TotalAmount,
		Currency:              o.Currency,
		Notes:                 o.Notes,
	}
	m.FromDomainBaseEntity(o.BaseEntity)
	for _, it := range o.Items {
		id := it.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		m.Items = append(m.Items, OrderItemModel{
			ID:          id,
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			ImageURL:    it.ImageURL,
		})
	}
	return m
}

// empty strings are stored as NULL so the partial indexes on these columns stay small
func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
