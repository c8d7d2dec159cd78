package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elyphant/backend/internal/application/wishlist"
	"github.com/elyphant/backend/internal/interfaces/http/dto"
)

// WishlistService manages wishlists for an authenticated user
type WishlistService interface {
	Create(ctx context.Context, userID uuid.UUID, input wishlist.CreateWishlistInput) (*wishlist.WishlistResponse, error)
	List(ctx context.Context, userID uuid.UUID) ([]wishlist.WishlistResponse, error)
	Get(ctx context.Context, userID, wishlistID uuid.UUID) (*wishlist.WishlistResponse, error)
	AddItem(ctx context.Context, userID, wishlistID uuid.UUID, input wishlist.AddItemInput) (*wishlist.ItemResponse, error)
	GetItem(ctx context.Context, userID, wishlistID, itemID uuid.UUID) (*wishlist.ItemResponse, error)
	RemoveItem(ctx context.Context, userID, wishlistID, itemID uuid.UUID) error
}

// WishlistHandler serves /api/v1/wishlists
type WishlistHandler struct {
	BaseHandler
	wishlists WishlistService
}

// NewWishlistHandler creates a new WishlistHandler
func NewWishlistHandler(wishlists WishlistService) *WishlistHandler {
	return &WishlistHandler{wishlists: wishlists}
}

// Create godoc
// @Summary      Create wishlist
// @Tags         wishlists
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateWishlistRequest true "Wishlist"
// @Success      201 {object} dto.Response{data=wishlist.WishlistResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Security     BearerAuth
// @Router       /api/v1/wishlists [post]
func (h *WishlistHandler) Create(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	var req dto.CreateWishlistRequest
	if !h.BindJSON(c, &req) {
		return
	}

	w, err := h.wishlists.Create(c.Request.Context(), userID, wishlist.CreateWishlistInput{
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, w)
}

// List godoc
// @Summary      List wishlists
// @Tags         wishlists
// @Produce      json
// @Success      200 {object} dto.Response{data=[]wishlist.WishlistResponse}
// @Failure      401 {object} dto.Response
// @Security     BearerAuth
// @Router       /api/v1/wishlists [get]
func (h *WishlistHandler) List(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}

	lists, err := h.wishlists.List(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, lists)
}

// Get godoc
// @Summary      Get wishlist
// @Tags         wishlists
// @Produce      json
// @Param        id  path  string  true  "Wishlist ID"
// @Success      200 {object} dto.Response{data=wishlist.WishlistResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /api/v1/wishlists/{id} [get]
func (h *WishlistHandler) Get(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	wishlistID, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	w, err := h.wishlists.Get(c.Request.Context(), userID, wishlistID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, w)
}

// AddItem godoc
// @Summary      Add wishlist item
// @Tags         wishlists
// @Accept       json
// @Produce      json
// @Param        id       path  string                      true  "Wishlist ID"
// @Param        request  body  dto.AddWishlistItemRequest  true  "Item"
// @Success      201 {object} dto.Response{data=wishlist.ItemResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /api/v1/wishlists/{id}/items [post]
func (h *WishlistHandler) AddItem(c *gin.Context) {
	userID, ok := h.UserID(c)
	if !ok {
		return
	}
	wishlistID, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.AddWishlistItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	item, err := h.wishlists.AddItem(c.Request.Context(), userID, wishlistID, wishlist.AddItemInput{
		ProductID: req.ProductID,
		Title:     req.Title,
		Price:     req.Price,
		ImageURL:  req.ImageURL,
		Brand:     req.Brand,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, item)
}

// GetItem godoc
// @Summary      Get wishlist item
// @Tags         wishlists
// @Produce      json
// @Param        id      path  string  true  "Wishlist ID"
// @Param        itemId  path  string  true  "Item ID"
// @Success      200 {object} dto.Response{data=wishlist.ItemResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /api/v1/wishlists/{id}/items/{itemId} [get]
func (h *WishlistHandler) GetItem(c *gin.Context) {
	userID, wishlistID, itemID, ok := h.itemParams(c)
	if !ok {
		return
	}

	item, err := h.wishlists.GetItem(c.Request.Context(), userID, wishlistID, itemID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// RemoveItem godoc
// @Summary      Remove wishlist item
// @Tags         wishlists
// @Param        id      path  string  true  "Wishlist ID"
// @Param        itemId  path  string  true  "Item ID"
// @Success      204
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /api/v1/wishlists/{id}/items/{itemId} [delete]
func (h *WishlistHandler) RemoveItem(c *gin.Context) {
	userID, wishlistID, itemID, ok := h.itemParams(c)
	if !ok {
		return
	}

	if err := h.wishlists.RemoveItem(c.Request.Context(), userID, wishlistID, itemID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *WishlistHandler) itemParams(c *gin.Context) (userID, wishlistID, itemID uuid.UUID, ok bool) {
	if userID, ok = h.UserID(c); !ok {
		return
	}
	if wishlistID, ok = h.ParseUUIDParam(c, "id"); !ok {
		return
	}
	itemID, ok = h.ParseUUIDParam(c, "itemId")
	return
}
