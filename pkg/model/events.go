package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope published to NATS. The wallet's
// UI layer and any downstream consumers subscribe to these instead of the
// coordinator calling back into them directly.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// SwapStatusEvent is the payload of evt.swap.status_changed.v1.
type SwapStatusEvent struct {
	RequestID    string     `json:"rfq_id"`
	Status       ExecStatus `json:"status"`
	SettlementID string     `json:"settlement_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	Final        bool       `json:"final"`
	Timestamp    time.Time  `json:"timestamp"`
}
