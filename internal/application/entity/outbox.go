package entity

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
)

// OutboxMessage is never deleted; processed and dead-lettered rows stay as an audit trail.
type OutboxMessage struct {
	ID            int64           `json:"id" db:"id"`
	EventID       uuid.UUID       `json:"eventId" db:"event_id"`
	EventTypeName string          `json:"eventTypeName" db:"event_type_name"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	OccurredOn    time.Time       `json:"occurredOn" db:"occurred_on"`
	ProcessedOn   *time.Time      `json:"processedOn,omitempty" db:"processed_on"`
	Error         string          `json:"error,omitempty" db:"error"`
	ErrorCount    int             `json:"errorCount" db:"error_count"`
	ClaimedBy     string          `json:"claimedBy,omitempty" db:"claimed_by"`
	ClaimedUntil  *time.Time      `json:"claimedUntil,omitempty" db:"claimed_until"`
}

func (m OutboxMessage) DeadLettered(maxRetries int) bool {
	return m.ProcessedOn == nil && m.ErrorCount >= maxRetries
}
