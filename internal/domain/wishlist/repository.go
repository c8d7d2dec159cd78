package wishlist

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists wishlists and their items
type Repository interface {
	Create(ctx context.Context, w *Wishlist) error
	FindByID(ctx context.Context, id uuid.UUID) (*Wishlist, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*Wishlist, error)
	AddItem(ctx context.Context, item *Item) error
	FindItem(ctx context.Context, wishlistID, itemID uuid.UUID) (*Item, error)
	RemoveItem(ctx context.Context, wishlistID, itemID uuid.UUID) error
}
