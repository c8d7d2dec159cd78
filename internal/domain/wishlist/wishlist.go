// Package wishlist models user wishlists and their items.
package wishlist

import (
	"net/url"
	"strings"

	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wishlist is a named list of products a user wants to receive
type Wishlist struct {
	shared.BaseEntity
	UserID      uuid.UUID
	Title       string
	Description string
	IsPublic    bool
	Items       []*Item
}

// Item is a product saved to a wishlist
type Item struct {
	shared.BaseEntity
	WishlistID uuid.UUID
	ProductID  string
	Title      string
	Price      decimal.Decimal
	ImageURL   string
	Brand      string
	Quantity   int
}

// NewWishlist creates a wishlist owned by userID
func NewWishlist(userID uuid.UUID, title, description string, isPublic bool) (*Wishlist, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Wishlist title cannot be empty")
	}
	if len(title) > 200 {
		return nil, shared.NewDomainError("INVALID_TITLE", "Wishlist title cannot exceed 200 characters")
	}
	return &Wishlist{
		BaseEntity:  shared.NewBaseEntity(),
		UserID:      userID,
		Title:       title,
		Description: description,
		IsPublic:    isPublic,
	}, nil
}

// NewItem builds an item for this wishlist. Prices with more than two decimal places are rejected.
func (w *Wishlist) NewItem(productID, title string, price decimal.Decimal, imageURL, brand string, quantity int) (*Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Item title cannot be empty")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Item price cannot be negative")
	}
	if !price.Equal(price.Round(2)) {
		return nil, shared.NewDomainError("INVALID_PRICE", "Item price must have at most 2 decimal places")
	}
	if imageURL != "" {
		u, err := url.ParseRequestURI(imageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, shared.NewDomainError("INVALID_IMAGE_URL", "Item image must be an http(s) URL")
		}
	}
	if quantity <= 0 {
		quantity = 1
	}
	return &Item{
		BaseEntity: shared.NewBaseEntity(),
		WishlistID: w.ID,
		ProductID:  productID,
		Title:      title,
		Price:      price.Round(2),
		ImageURL:   imageURL,
		Brand:      brand,
		Quantity:   quantity,
	}, nil
}

// CanView reports whether userID may read the wishlist
func (w *Wishlist) CanView(userID uuid.UUID) bool {
	return w.IsPublic || w.UserID == userID
}

// CanEdit reports whether userID may change the wishlist
func (w *Wishlist) CanEdit(userID uuid.UUID) bool {
	return w.UserID == userID
}
