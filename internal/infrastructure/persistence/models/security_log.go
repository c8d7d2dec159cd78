package models

import (
	"encoding/json"
	"time"

	"github.com/elyphant/backend/internal/domain/security"
	"github.com/google/uuid"
)

// SecurityLogModel maps the security_logs table. Details are stored as a jsonb string.
type SecurityLogModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID      *uuid.UUID `gorm:"type:uuid;index"`
	EventType   string     `gorm:"type:varchar(100);not null;index"`
	Severity    string     `gorm:"type:varchar(20);not null"`
	DetailsJSON string     `gorm:"column:details;type:jsonb;not null"`
	IPAddress   string     `gorm:"type:varchar(64)"`
	UserAgent   string     `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SecurityLogModel) TableName() string {
	return "security_logs"
}

// SecurityLogModelFromDomain converts a log entry to a row
func SecurityLogModelFromDomain(l *security.Log) (*SecurityLogModel, error) {
	details, err := json.Marshal(l.Details)
	if err != nil {
		return nil, err
	}
	return &SecurityLogModel{
		ID:          l.ID,
		UserID:      l.UserID,
		EventType:   l.EventType,
		Severity:    string(l.Severity),
		DetailsJSON: string(details),
		IPAddress:   l.IPAddress,
		UserAgent:   l.UserAgent,
		CreatedAt:   l.CreatedAt,
	}, nil
}

// ToDomain converts the row to a log entry. Unparseable details come back empty.
func (m *SecurityLogModel) ToDomain() *security.Log {
	details := map[string]any{}
	if m.DetailsJSON != "" {
		_ = json.Unmarshal([]byte(m.DetailsJSON), &details)
	}
	return &security.Log{
		ID:        m.ID,
		UserID:    m.UserID,
		EventType: m.EventType,
		Severity:  security.Severity(m.Severity),
		Details:   details,
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
		CreatedAt: m.CreatedAt,
	}
}
