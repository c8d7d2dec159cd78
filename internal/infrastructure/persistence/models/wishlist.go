package models

import (
	"github.com/elyphant/backend/internal/domain/wishlist"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WishlistModel maps the wishlists table
type WishlistModel struct {
	BaseModel
	UserID      uuid.UUID           `gorm:"type:uuid;not null;index"`
	Title       string              `gorm:"type:varchar(200);not null"`
	Description string              `gorm:"type:text"`
	IsPublic    bool                `gorm:"not null"`
	Items       []WishlistItemModel `gorm:"foreignKey:WishlistID"`
}

// TableName returns the table name for GORM
func (WishlistModel) TableName() string {
	return "wishlists"
}

// WishlistItemModel maps the wishlist_items table
type WishlistItemModel struct {
	BaseModel
	WishlistID uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID  string          `gorm:"type:varchar(100)"`
	Title      string          `gorm:"type:varchar(500);not null"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ImageURL   string          `gorm:"type:text"`
	Brand      string          `gorm:"type:varchar(200)"`
	Quantity   int             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WishlistItemModel) TableName() string {
	return "wishlist_items"
}

// ToDomain converts the row to a wishlist
func (m *WishlistModel) ToDomain() *wishlist.Wishlist {
	w := &wishlist.Wishlist{
		BaseEntity:  m.BaseModel.ToDomain(),
		UserID:      m.UserID,
		Title:       m.Title,
		Description: m.Description,
		IsPublic:    m.IsPublic,
	}
	for i := range m.Items {
		w.Items = append(w.Items, m.Items[i].ToDomain())
	}
	return w
}

// WishlistModelFromDomain converts a wishlist to a row, without items
func WishlistModelFromDomain(w *wishlist.Wishlist) *WishlistModel {
	m := &WishlistModel{
		UserID:      w.UserID,
		Title:       w.Title,
		Description: w.Description,
		IsPublic:    w.IsPublic,
	}
	m.FromDomainBaseEntity(w.BaseEntity)
	return m
}

// ToDomain converts the row to a wishlist item
func (m *WishlistItemModel) ToDomain() *wishlist.Item {
	return &wishlist.Item{
		BaseEntity: m.BaseModel.ToDomain(),
		WishlistID: m.WishlistID,
		ProductID:  m.ProductID,
		Title:      m.Title,
		Price:      m.Price,
		ImageURL:   m.ImageURL,
		Brand:      m.Brand,
		Quantity:   m.Quantity,
	}
}

// WishlistItemModelFromDomain converts a wishlist item to a row
func WishlistItemModelFromDomain(it *wishlist.Item) *WishlistItemModel {
	m := &WishlistItemModel{
		WishlistID: it.WishlistID,
		ProductID:  it.ProductID,
		Title:      it.Title,
		Price:      it.Price,
		ImageURL:   it.ImageURL,
		Brand:      it.Brand,
		Quantity:   it.Quantity,
	}
	m.FromDomainBaseEntity(it.BaseEntity)
	return m
}
