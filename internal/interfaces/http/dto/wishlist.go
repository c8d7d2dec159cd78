package dto

import "github.com/shopspring/decimal"

// CreateWishlistRequest is the body of POST /api/v1/wishlists
type CreateWishlistRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"max=2000"`
	IsPublic    bool   `json:"is_public"`
}

// AddWishlistItemRequest is the body of POST /api/v1/wishlists/:id/items
type AddWishlistItemRequest struct {
	ProductID string          `json:"product_id" binding:"max=100"`
	Title     string          `json:"title" binding:"required,max=500"`
	Price     decimal.Decimal `json:"price" binding:"decimal_gte0,decimal_places2" swaggertype:"string" example:"19.99"`
	ImageURL  string          `json:"image_url" binding:"omitempty,url,max=2048"`
	Brand     string          `json:"brand" binding:"max=200"`
	Quantity  int             `json:"quantity" binding:"omitempty,min=1,max=99"`
}
