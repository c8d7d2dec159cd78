package persistence

import (
	"context"
	"errors"

	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/elyphant/backend/internal/domain/wishlist"
	"github.com/elyphant/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormWishlistRepository implements wishlist.Repository using GORM
type GormWishlistRepository struct {
	db *gorm.DB
}

var _ wishlist.Repository = (*GormWishlistRepository)(nil)

// NewGormWishlistRepository creates a new GormWishlistRepository
func NewGormWishlistRepository(db *gorm.DB) *GormWishlistRepository {
	return &GormWishlistRepository{db: db}
}

// Create inserts a new wishlist
func (r *GormWishlistRepository) Create(ctx context.Context, w *wishlist.Wishlist) error {
	return r.db.WithContext(ctx).Create(models.WishlistModelFromDomain(w)).Error
}

// FindByID loads a wishlist and its items, newest item last
func (r *GormWishlistRepository) FindByID(ctx context.Context, id uuid.UUID) (*wishlist.Wishlist, error) {
	var m models.WishlistModel
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByUser lists a user's wishlists without items
func (r *GormWishlistRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*wishlist.Wishlist, error) {
	var rows []models.WishlistModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*wishlist.Wishlist, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// AddItem inserts an item
func (r *GormWishlistRepository) AddItem(ctx context.Context, item *wishlist.Item) error {
	return r.db.WithContext(ctx).Create(models.WishlistItemModelFromDomain(item)).Error
}

// FindItem loads one item of a wishlist
func (r *GormWishlistRepository) FindItem(ctx context.Context, wishlistID, itemID uuid.UUID) (*wishlist.Item, error) {
	var m models.WishlistItemModel
	if err := r.db.WithContext(ctx).
		Where("wishlist_id = ? AND id = ?", wishlistID, itemID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// RemoveItem deletes one item of a wishlist
func (r *GormWishlistRepository) RemoveItem(ctx context.Context, wishlistID, itemID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("wishlist_id = ? AND id = ?", wishlistID, itemID).
		Delete(&models.WishlistItemModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
