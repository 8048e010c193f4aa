package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a realtime event
type EventType string

// Event types
const (
	EventSnapshot         EventType = "snapshot"
	EventTableOccupied    EventType = "table_occupied"
	EventNewOrder         EventType = "new_order"
	EventItemStatusChange EventType = "item_status_change"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventPaymentRefunded  EventType = "payment_refunded"
	EventCheckClosed      EventType = "check_closed"
	EventTableReleased    EventType = "table_released"
)

// Envelope is the wire form of every realtime event.
// Sequence is the check's sequence number; snapshots carry zero.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Type       EventType       `json:"type"`
	StoreID    string          `json:"store_id"`
	CheckID    string          `json:"check_id,omitempty"`
	Sequence   uint64          `json:"sequence"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// EventPayload carries the check state after the change plus what changed
type EventPayload struct {
	Check          Check            `json:"check"`
	TableNumber    int              `json:"table_number,omitempty"`
	Order          *Order           `json:"order,omitempty"`
	TicketItem     *TicketItem      `json:"ticket_item,omitempty"`
	PreviousStatus TicketItemStatus `json:"previous_status,omitempty"`
	TicketComplete bool             `json:"ticket_complete,omitempty"`
	Payment        *Payment         `json:"payment,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// Snapshot is the full state of a store's open checks and tables
type Snapshot struct {
	StoreID string    `json:"store_id"`
	Tables  []Table   `json:"tables"`
	Checks  []Check   `json:"checks"`
	TakenAt time.Time `json:"taken_at"`
}

// NewEnvelope builds an envelope with a fresh event ID
func NewEnvelope(typ EventType, storeID, checkID string, seq uint64, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Envelope{
		EventID:    uuid.New().String(),
		Type:       typ,
		StoreID:    storeID,
		CheckID:    checkID,
		Sequence:   seq,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// DecodePayload unmarshals an incremental event payload
func (e Envelope) DecodePayload() (*EventPayload, error) {
	var p EventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return &p, nil
}

// DecodeSnapshot unmarshals a snapshot payload
func (e Envelope) DecodeSnapshot() (*Snapshot, error) {
	if e.Type != EventSnapshot {
		return nil, fmt.Errorf("event %s is not a snapshot", e.Type)
	}
	var s Snapshot
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &s, nil
}
