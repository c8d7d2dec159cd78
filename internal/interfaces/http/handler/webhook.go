package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	"github.com/elyphant/backend/internal/interfaces/http/dto"
)

// MaxWebhookBodySize caps the Stripe event payload. Stripe events stay well below it.
const MaxWebhookBodySize = 64 * 1024

// StripeSignatureHeader carries the webhook signature
const StripeSignatureHeader = "Stripe-Signature"

// WebhookProcessor verifies and applies one Stripe event
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*reconciliation.WebhookResult, error)
}

// WebhookHandler serves POST /functions/v1/stripe-webhook
type WebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// HandleStripeWebhook verifies the signature over the raw body and applies the event.
// Any verified event is acknowledged with 200 so Stripe stops redelivering it.
//
// @Summary      Stripe webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header  string  true  "Stripe signature"
// @Success      200 {object} dto.Response{data=reconciliation.WebhookResult}
// @Failure      400 {object} dto.Response
// @Failure      413 {object} dto.Response
// @Router       /functions/v1/stripe-webhook [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	log := logger.GetGinLogger(c)

	signature := c.GetHeader(StripeSignatureHeader)
	if signature == "" {
		log.Warn("Stripe webhook without signature header")
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidSignature, "Missing Stripe-Signature header")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxWebhookBodySize+1))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Webhook payload too large")
			return
		}
		log.Error("Failed to read Stripe webhook body", zap.Error(err))
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > MaxWebhookBodySize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Webhook payload too large")
		return
	}

	result, err := h.processor.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		log.Warn("Stripe webhook rejected", zap.Error(err))
		h.HandleError(c, err)
		return
	}

	log.Info("Stripe webhook processed",
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.String("outcome", result.Outcome),
	)
	h.Success(c, result)
}
