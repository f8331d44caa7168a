package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/enums"
)

// OutboxEvent is a billing event queued in the same transaction as the
// ledger or invoice write that caused it. FacilityID and Month copy the
// payload's billing period so the publisher and operators can group rows
// without decoding payloads; they stay null for payloads without a period.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	FacilityID    *uuid.UUID                `gorm:"column:facility_id;type:uuid"`
	Month         *string                   `gorm:"column:month;type:char(7)"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// PeriodKey is "facility:month", or empty when the row carries no period.
func (e OutboxEvent) PeriodKey() string {
	if e.FacilityID == nil || *e.FacilityID == uuid.Nil || e.Month == nil || *e.Month == "" {
		return ""
	}
	return e.FacilityID.String() + ":" + *e.Month
}
