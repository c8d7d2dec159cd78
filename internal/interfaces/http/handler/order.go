package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elyphant/backend/internal/application/reconciliation"
)

// OrderReader loads an order for its owner or an admin
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID, caller *reconciliation.Caller) (*reconciliation.OrderView, error)
}

// OrderHandler serves the order read endpoint
type OrderHandler struct {
	BaseHandler
	orders OrderReader
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderReader) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// GetByID godoc
// @Summary      Get order
// @Description  Returns the order to its owner or an admin
// @Tags         orders
// @Produce      json
// @Param        id  path  string  true  "Order ID"
// @Success      200 {object} dto.Response{data=reconciliation.OrderView}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /api/v1/orders/{id} [get]
func (h *OrderHandler) GetByID(c *gin.Context) {
	id, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	view, err := h.orders.GetOrder(c.Request.Context(), id, h.Caller(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}
