package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/elyphant/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

var _ order.Repository = (*GormOrderRepository)(nil)

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order with its items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByStripeSessionID finds the order created for a checkout session
func (r *GormOrderRepository) FindByStripeSessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	if sessionID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "stripe_session_id = ?", sessionID)
}

// FindByPaymentIntentID finds the order paid by a payment intent
func (r *GormOrderRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*order.Order, error) {
	if paymentIntentID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "stripe_payment_intent_id = ?", paymentIntentID)
}

func (r *GormOrderRepository) findOne(ctx context.Context, query string, args ...any) (*order.Order, error) {
	var m models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where(query, args...).
		Order("created_at ASC").
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindActiveWithZincOrderID returns non-cancelled orders carrying a Zinc order id, oldest first
func (r *GormOrderRepository) FindActiveWithZincOrderID(ctx context.Context) ([]*order.Order, error) {
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Where("zinc_order_id IS NOT NULL AND zinc_order_id <> '' AND status <> ?", order.StatusCancelled).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// FindSubmittingWithoutZincID returns orders whose Zinc submission never got an order id
func (r *GormOrderRepository) FindSubmittingWithoutZincID(ctx context.Context) ([]*order.Order, error) {
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Where("zinc_status = ? AND (zinc_order_id IS NULL OR zinc_order_id = '') AND status <> ?",
			order.ZincStatusSubmitting, order.StatusCancelled).
		Order("updated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// FindPendingFulfillment returns orders still moving through Zinc, least recently updated first
func (r *GormOrderRepository) FindPendingFulfillment(ctx context.Context, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Where("zinc_order_id IS NOT NULL AND zinc_order_id <> ''").
		Where("zinc_status NOT IN ?", order.TerminalZincStatuses).
		Where("status <> ?", order.StatusCancelled).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// Save inserts or fully updates the order and its items
func (r *GormOrderRepository) Save(ctx context.Context, o *order.Order) error {
	m := models.OrderModelFromDomain(o)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error; err != nil {
			return err
		}
		if len(m.Items) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m.Items).Error
	})
}

// UpdatePayment writes the verified payment state
func (r *GormOrderRepository) UpdatePayment(ctx context.Context, o *order.Order) error {
	return r.update(ctx, o.ID, map[string]any{
		"payment_status":           o.PaymentStatus,
		"stripe_session_id":        nullable(o.StripeSessionID),
		"stripe_payment_intent_id": nullable(o.StripePaymentIntentID),
		"status":                   o.Status,
		"updated_at":               o.UpdatedAt,
	})
}

// UpdateFulfillment writes the Zinc status; last write wins
func (r *GormOrderRepository) UpdateFulfillment(ctx context.Context, o *order.Order) error {
	return r.update(ctx, o.ID, map[string]any{
		"zinc_status":     o.ZincStatus,
		"tracking_number": nullable(o.TrackingNumber),
		"status":          o.Status,
		"updated_at":      o.UpdatedAt,
	})
}

func (r *GormOrderRepository) update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CancelDuplicates cancels the orders in one transaction through Order.CancelAsDuplicateOf.
// Rows already cancelled are skipped, and any failure rolls the whole batch back.
func (r *GormOrderRepository) CancelDuplicates(ctx context.Context, cancellations []order.Cancellation) ([]uuid.UUID, error) {
	if len(cancellations) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, 2*len(cancellations))
	seen := make(map[uuid.UUID]bool, 2*len(cancellations))
	for _, c := range cancellations {
		for _, id := range []uuid.UUID{c.OrderID, c.KeptOrderID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	var cancelled []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.OrderModel
		if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return err
		}
		loaded := make(map[uuid.UUID]*order.Order, len(rows))
		for i := range rows {
			loaded[rows[i].ID] = rows[i].ToDomain()
		}

		for _, c := range cancellations {
			o := loaded[c.OrderID]
			if o == nil || o.IsCancelled() {
				continue
			}
			if err := o.CancelAsDuplicateOf(loaded[c.KeptOrderID]); err != nil {
				return fmt.Errorf("order %s: %w", o.ID, err)
			}
			result := tx.Model(&models.OrderModel{}).
				Where("id = ? AND status <> ?", o.ID, order.StatusCancelled).
				Updates(map[string]any{
					"status":     o.Status,
					"notes":      o.Notes,
					"updated_at": o.UpdatedAt,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				cancelled = append(cancelled, o.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func toDomainOrders(rows []models.OrderModel) []*order.Order {
	out := make([]*order.Order, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
