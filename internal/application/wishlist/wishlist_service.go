// Package wishlist implements wishlist use cases with owner-only mutation.
package wishlist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/elyphant/backend/internal/domain/wishlist"
)

// CreateWishlistInput holds the fields for a new wishlist
type CreateWishlistInput struct {
	Title       string
	Description string
	IsPublic    bool
}

// AddItemInput holds the fields for a new wishlist item
type AddItemInput struct {
	ProductID string
	Title     string
	Price     decimal.Decimal
	ImageURL  string
	Brand     string
	Quantity  int
}

// ItemResponse is the API view of a wishlist item
type ItemResponse struct {
	ID         uuid.UUID       `json:"id"`
	WishlistID uuid.UUID       `json:"wishlist_id"`
	ProductID  string          `json:"product_id,omitempty"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price" swaggertype:"string"`
	ImageURL   string          `json:"image_url,omitempty"`
	Brand      string          `json:"brand,omitempty"`
	Quantity   int             `json:"quantity"`
	CreatedAt  time.Time       `json:"created_at"`
}

// WishlistResponse is the API view of a wishlist
type WishlistResponse struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	IsPublic    bool           `json:"is_public"`
	Items       []ItemResponse `json:"items"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Service manages wishlists on behalf of an authenticated user
type Service struct {
	repo   wishlist.Repository
	logger *zap.Logger
}

// NewService creates a new wishlist service
func NewService(repo wishlist.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// Create creates a wishlist owned by userID
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateWishlistInput) (*WishlistResponse, error) {
	w, err := wishlist.NewWishlist(userID, input.Title, input.Description, input.IsPublic)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("Wishlist created", zap.String("wishlist_id", w.ID.String()), zap.String("user_id", userID.String()))
	return toWishlistResponse(w), nil
}

// List returns the user's own wishlists
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]WishlistResponse, error) {
	lists, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]WishlistResponse, 0, len(lists))
	for _, w := range lists {
		out = append(out, *toWishlistResponse(w))
	}
	return out, nil
}

// Get returns a wishlist the user may view
func (s *Service) Get(ctx context.Context, userID, wishlistID uuid.UUID) (*WishlistResponse, error) {
	w, err := s.load(ctx, userID, wishlistID, false)
	if err != nil {
		return nil, err
	}
	return toWishlistResponse(w), nil
}

// AddItem adds an item to a wishlist owned by the user
func (s *Service) AddItem(ctx context.Context, userID, wishlistID uuid.UUID, input AddItemInput) (*ItemResponse, error) {
	w, err := s.load(ctx, userID, wishlistID, true)
	if err != nil {
		return nil, err
	}
	item, err := w.NewItem(input.ProductID, input.Title, input.Price, input.ImageURL, input.Brand, input.Quantity)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddItem(ctx, item); err != nil {
		return nil, err
	}
	resp := toItemResponse(item)
	return &resp, nil
}

// GetItem returns one item of a wishlist the user may view
func (s *Service) GetItem(ctx context.Context, userID, wishlistID, itemID uuid.UUID) (*ItemResponse, error) {
	if _, err := s.load(ctx, userID, wishlistID, false); err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, wishlistID, itemID)
	if err != nil {
		return nil, err
	}
	resp := toItemResponse(item)
	return &resp, nil
}

// RemoveItem deletes an item from a wishlist owned by the user
func (s *Service) RemoveItem(ctx context.Context, userID, wishlistID, itemID uuid.UUID) error {
	if _, err := s.load(ctx, userID, wishlistID, true); err != nil {
		return err
	}
	return s.repo.RemoveItem(ctx, wishlistID, itemID)
}

// load fetches a wishlist and checks access. Private lists look missing to other users.
func (s *Service) load(ctx context.Context, userID, wishlistID uuid.UUID, forEdit bool) (*wishlist.Wishlist, error) {
	w, err := s.repo.FindByID(ctx, wishlistID)
	if err != nil {
		return nil, err
	}
	if !w.CanView(userID) {
		return nil, shared.ErrNotFound
	}
	if forEdit && !w.CanEdit(userID) {
		return nil, shared.ErrForbidden
	}
	return w, nil
}

func toWishlistResponse(w *wishlist.Wishlist) *WishlistResponse {
	items := make([]ItemResponse, 0, len(w.Items))
	for _, it := range w.Items {
		items = append(items, toItemResponse(it))
	}
	return &WishlistResponse{
		ID:          w.ID,
		UserID:      w.UserID,
		Title:       w.Title,
		Description: w.Description,
		IsPublic:    w.IsPublic,
		Items:       items,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func toItemResponse(it *wishlist.Item) ItemResponse {
	return ItemResponse{
		ID:         it.ID,
		WishlistID: it.WishlistID,
		ProductID:  it.ProductID,
		Title:      it.Title,
		Price:      it.Price,
		ImageURL:   it.ImageURL,
		Brand:      it.Brand,
		Quantity:   it.Quantity,
		CreatedAt:  it.CreatedAt,
	}
}
