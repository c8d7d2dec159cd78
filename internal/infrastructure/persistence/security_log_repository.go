package persistence

import (
	"context"

	"github.com/elyphant/backend/internal/domain/security"
	"github.com/elyphant/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSecurityLogRepository implements security.Repository using GORM
type GormSecurityLogRepository struct {
	db *gorm.DB
}

var _ security.Repository = (*GormSecurityLogRepository)(nil)

// NewGormSecurityLogRepository creates a new GormSecurityLogRepository
func NewGormSecurityLogRepository(db *gorm.DB) *GormSecurityLogRepository {
	return &GormSecurityLogRepository{db: db}
}

// Save appends a log entry
func (r *GormSecurityLogRepository) Save(ctx context.Context, l *security.Log) error {
	m, err := models.SecurityLogModelFromDomain(l)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// FindRecent returns the newest entries, optionally filtered by event type
func (r *GormSecurityLogRepository) FindRecent(ctx context.Context, eventType string, limit int) ([]*security.Log, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	var rows []models.SecurityLogModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*security.Log, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}
