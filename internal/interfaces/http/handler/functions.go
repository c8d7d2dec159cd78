package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	"github.com/elyphant/backend/internal/interfaces/http/dto"
)

// CleanupRunner runs the duplicate order cleanup
type CleanupRunner interface {
	Run(ctx context.Context, req reconciliation.CleanupRequest) (*reconciliation.CleanupReport, error)
}

// PaymentVerifier reconciles an order with its Stripe payment
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, req reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error)
	VerifyWithRetry(ctx context.Context, req reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error)
}

// OrderStatusChecker refreshes an order's fulfillment status from Zinc
type OrderStatusChecker interface {
	CheckOrderStatus(ctx context.Context, orderID uuid.UUID, caller *reconciliation.Caller) (*reconciliation.StatusResult, error)
}

// FunctionsHandler serves the /functions/v1 reconciliation endpoints
type FunctionsHandler struct {
	BaseHandler
	cleanup  CleanupRunner
	payments PaymentVerifier
	statuses OrderStatusChecker
}

// NewFunctionsHandler creates a new FunctionsHandler
func NewFunctionsHandler(cleanup CleanupRunner, payments PaymentVerifier, statuses OrderStatusChecker) *FunctionsHandler {
	return &FunctionsHandler{
		cleanup:  cleanup,
		payments: payments,
		statuses: statuses,
	}
}

// RunCleanup godoc
// @Summary      Clean up duplicate orders
// @Description  Groups pending orders by user, amount and minute. In cleanup mode the newest order of each group is kept and the rest are cancelled.
// @Tags         functions
// @Accept       json
// @Produce      json
// @Param        request body dto.CleanupRequest true "Cleanup mode"
// @Success      200 {object} dto.Response{data=reconciliation.CleanupReport}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /functions/v1/order-duplicate-cleanup [post]
func (h *FunctionsHandler) RunCleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if !h.BindJSON(c, &req) {
		return
	}

	report, err := h.cleanup.Run(c.Request.Context(), reconciliation.CleanupRequest{
		Mode:             req.Mode,
		CancelDuplicates: req.CancelDuplicates,
		Caller:           h.Caller(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Duplicate cleanup completed",
		zap.String("run_id", report.RunID.String()),
		zap.String("mode", report.Mode),
		zap.Int("duplicate_groups", report.DuplicateGroups),
		zap.Int("cancelled", report.Cancelled),
	)
	h.Success(c, report)
}

// VerifyPayment godoc
// @Summary      Verify an order payment
// @Description  Looks up the Stripe checkout session or payment intent and applies its payment status to the order
// @Tags         functions
// @Accept       json
// @Produce      json
// @Param        request body dto.VerifyPaymentRequest true "Session or payment intent"
// @Success      200 {object} dto.Response{data=reconciliation.VerifyResult}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      502 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Security     BearerAuth
// @Router       /functions/v1/verify-payment [post]
func (h *FunctionsHandler) VerifyPayment(c *gin.Context) {
	var req dto.VerifyPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	verify := h.payments.VerifyPayment
	if req.Retry {
		verify = h.payments.VerifyWithRetry
	}
	result, err := verify(c.Request.Context(), reconciliation.VerifyRequest{
		SessionID:       req.SessionID,
		PaymentIntentID: req.PaymentIntentID,
		Caller:          h.Caller(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CheckOrderStatus godoc
// @Summary      Check fulfillment status
// @Description  Refreshes the order's status from Zinc. The order id comes from the query string or the JSON body.
// @Tags         functions
// @Accept       json
// @Produce      json
// @Param        orderId  query  string                        false  "Order ID"
// @Param        request  body   dto.CheckOrderStatusRequest  false  "Order ID when the query omits it"
// @Success      200 {object} dto.Response{data=reconciliation.StatusResult}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      502 {object} dto.Response
// @Security     BearerAuth
// @Router       /functions/v1/check-order-status [post]
func (h *FunctionsHandler) CheckOrderStatus(c *gin.Context) {
	var req dto.CheckOrderStatusRequest
	if c.Query("orderId") != "" || c.Request.ContentLength == 0 {
		if !h.BindQuery(c, &req) {
			return
		}
	} else if !h.BindJSON(c, &req) {
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Invalid orderId format")
		return
	}

	result, err := h.statuses.CheckOrderStatus(c.Request.Context(), orderID, h.Caller(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
