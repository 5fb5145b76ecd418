package domain

import (
	"encoding/json"
	"time"
)

const CurrentEventSchemaVersion = 1

const (
	EventValidationCompleted = "validation.completed"
	AggregateValidationRun   = "validation_run"
)

// Outbox delivery states.
const (
	OutboxPending    = "pending"
	OutboxDispatched = "dispatched"
	OutboxDead       = "dead"
)

// RequestMetadata carries who asked for an operation and on which request.
type RequestMetadata struct {
	Actor         string
	Source        string
	RequestID     string
	CorrelationID string
	OccurredAt    time.Time
}

func (m RequestMetadata) Normalize() RequestMetadata {
	if m.Actor == "" {
		m.Actor = "api"
	}
	if m.Source == "" {
		m.Source = "api"
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	return m
}

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	TenantID      string          `json:"tenant_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Actor         string          `json:"actor"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// ValidationCompletedPayload is the payload of a validation.completed event.
type ValidationCompletedPayload struct {
	RunID          string `json:"run_id"`
	MetadataFile   string `json:"metadata_file"`
	DataFile       string `json:"data_file"`
	Table          string `json:"table"`
	Status         Status `json:"status"`
	ViolationCount int    `json:"violation_count"`
	ErrorCount     int    `json:"error_count"`
}

type OutboxEvent struct {
	ID            int64
	EventID       string
	TenantID      string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
