package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/fulfillment"
	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/shared"
)

// ErrNoFulfillmentID is returned when an order was never accepted by Zinc
var ErrNoFulfillmentID = shared.NewDomainError("NO_FULFILLMENT_ID", "Order has no Zinc order ID")

// StatusResult is the order state after a Zinc status check
type StatusResult struct {
	OrderID          uuid.UUID    `json:"order_id"`
	ZincOrderID      string       `json:"zinc_order_id"`
	ZincStatus       string       `json:"zinc_status"`
	OrderStatus      order.Status `json:"order_status"`
	TrackingNumber   string       `json:"tracking_number,omitempty"`
	Carrier          string       `json:"carrier,omitempty"`
	ErrorCode        string       `json:"error_code,omitempty"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	HasDuplicateRisk bool         `json:"has_duplicate_risk"`
	CheckedAt        time.Time    `json:"checked_at"`
}

// FulfillmentStatusService syncs Zinc fulfillment state onto orders
type FulfillmentStatusService struct {
	client   fulfillment.Client
	orders   order.Repository
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// FulfillmentStatusServiceConfig contains configuration for FulfillmentStatusService
type FulfillmentStatusServiceConfig struct {
	Client   fulfillment.Client
	Orders   order.Repository
	Recorder Recorder
	Logger   *zap.Logger
}

// NewFulfillmentStatusService creates a new FulfillmentStatusService
func NewFulfillmentStatusService(cfg FulfillmentStatusServiceConfig) *FulfillmentStatusService {
	s := &FulfillmentStatusService{
		client:   cfg.Client,
		orders:   cfg.Orders,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// CheckOrderStatus makes one Zinc lookup and one order update. A nil caller skips the ownership check.
func (s *FulfillmentStatusService) CheckOrderStatus(ctx context.Context, orderID uuid.UUID, caller *Caller) (*StatusResult, error) {
	result, err := s.check(ctx, orderID, caller)
	zincStatus := ""
	if result != nil {
		zincStatus = result.ZincStatus
	}
	s.recorder.RecordFulfillmentCheck(ctx, zincStatus, err)
	return result, err
}

func (s *FulfillmentStatusService) check(ctx context.Context, orderID uuid.UUID, caller *Caller) (*StatusResult, error) {
	if orderID == uuid.Nil {
		return nil, shared.NewValidationError("orderId is required", nil)
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.canAccess(o.UserID) {
		return nil, shared.ErrForbidden
	}

	if o.ZincOrderID == "" {
		return nil, ErrNoFulfillmentID.WithDetails(map[string]any{
			"order_id":           o.ID.String(),
			"zinc_status":        o.ZincStatus,
			"has_duplicate_risk": o.HasDuplicateRisk(),
		})
	}

	remote, err := s.client.GetOrder(ctx, o.ZincOrderID)
	if err != nil {
		s.logger.Warn("Zinc order lookup failed",
			zap.String("order_id", o.ID.String()),
			zap.String("zinc_order_id", o.ZincOrderID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to fetch zinc order %s: %w", o.ZincOrderID, err)
	}

	o.ApplyFulfillmentStatus(remote.Status, remote.TrackingNumber)
	if err := s.orders.UpdateFulfillment(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update order fulfillment: %w", err)
	}

	s.logger.Info("Fulfillment status updated",
		zap.String("order_id", o.ID.String()),
		zap.String("zinc_order_id", o.ZincOrderID),
		zap.String("zinc_status", o.ZincStatus),
		zap.String("order_status", string(o.Status)))

	return &StatusResult{
		OrderID:          o.ID,
		ZincOrderID:      o.ZincOrderID,
		ZincStatus:       o.ZincStatus,
		OrderStatus:      o.Status,
		TrackingNumber:   o.TrackingNumber,
		Carrier:          remote.Carrier,
		ErrorCode:        remote.ErrorCode,
		ErrorMessage:     remote.ErrorMessage,
		HasDuplicateRisk: o.HasDuplicateRisk(),
		CheckedAt:        s.now(),
	}, nil
}

// PendingOrderIDs lists orders whose fulfillment is still in progress
func (s *FulfillmentStatusService) PendingOrderIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	orders, err := s.orders.FindPendingFulfillment(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending fulfillment orders: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids, nil
}
