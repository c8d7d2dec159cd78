// Package handler adapts HTTP requests to the application services and writes
// the JSON envelope.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/domain/fulfillment"
	"github.com/elyphant/backend/internal/domain/payment"
	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	"github.com/elyphant/backend/internal/interfaces/http/dto"
	"github.com/elyphant/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides the response helpers shared by every handler
type BaseHandler struct{}

// Success sends a 200 envelope
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 envelope
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 with no body
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error envelope with an explicit status
func (h *BaseHandler) Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 envelope
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, message)
}

// HandleError maps err onto a status code and envelope in one place:
// domain errors by code, gateway failures as 502 and everything else as 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &domainErr):
		status := dto.GetHTTPStatus(domainErr.Code)
		if status >= http.StatusInternalServerError {
			logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
		}
		c.JSON(status, dto.NewErrorResponse(domainErr.Code, domainErr.Message, requestID).WithDetails(domainErr.Details))

	case errors.Is(err, payment.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeInvalidSignature, "Invalid webhook signature", requestID))

	case isUpstream(err):
		logger.GetGinLogger(c).Warn("Upstream request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, dto.NewErrorResponse(dto.ErrCodeUpstream, upstreamMessage(err), requestID))

	default:
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, "An unexpected error occurred", requestID))
	}
}

func isUpstream(err error) bool {
	return errors.Is(err, payment.ErrGatewayUnavailable) ||
		errors.Is(err, payment.ErrGatewayRejected) ||
		errors.Is(err, fulfillment.ErrUpstreamUnavailable) ||
		errors.Is(err, fulfillment.ErrUpstreamRejected) ||
		errors.Is(err, reconciliation.ErrRetriesExhausted)
}

func upstreamMessage(err error) string {
	switch {
	case errors.Is(err, fulfillment.ErrUpstreamUnavailable), errors.Is(err, fulfillment.ErrUpstreamRejected):
		return "Fulfillment provider request failed"
	default:
		return "Payment provider request failed"
	}
}

// BindJSON decodes the body into req and writes a 400 envelope on failure.
// It returns false when the handler must stop.
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

// BindQuery decodes query parameters into req like BindJSON
func (h *BaseHandler) BindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) bindError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	if details := middleware.ValidationDetails(err); details != nil {
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", requestID, details))
		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		c.JSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size", requestID))
	case errors.Is(err, io.EOF):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeInvalidJSON, "Request body is required", requestID))
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeInvalidJSON, "Request body is not valid JSON", requestID))
	default:
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeInvalidInput, err.Error(), requestID))
	}
}

// ParseUUIDParam reads a uuid path parameter and writes a 400 envelope when malformed
func (h *BaseHandler) ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// Caller builds the reconciliation caller from the authenticated principal.
// It returns nil on routes without authentication.
func (h *BaseHandler) Caller(c *gin.Context) *reconciliation.Caller {
	p := middleware.GetPrincipal(c)
	if p == nil {
		return nil
	}
	return &reconciliation.Caller{
		UserID:    p.UserID,
		IsAdmin:   p.IsAdmin,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// UserID returns the authenticated user's id
func (h *BaseHandler) UserID(c *gin.Context) (uuid.UUID, bool) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Missing or invalid authorization token")
		return uuid.Nil, false
	}
	return p.UserID, true
}
