package model

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessedEvent is the idempotency ledger: one row per external event id
// that has taken business effect. The unique index makes a duplicate mark a
// no-op, so replayed deliveries short-circuit.
type ProcessedEvent struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	EventID     string         `json:"event_id" gorm:"uniqueIndex;size:191;not null"`
	EventType   string         `json:"event_type" gorm:"index"`
	Payload     datatypes.JSON `json:"payload"`
	ProcessedAt time.Time      `json:"processed_at"`
}
