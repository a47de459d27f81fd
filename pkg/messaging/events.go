package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Stock events
	EventMovementRecorded = "stock.movement.recorded"
	EventBatchReceived    = "stock.batch.received"
	EventBatchDepleted    = "stock.batch.depleted"
	EventBatchExpiring    = "stock.batch.expiring"
	EventBatchExpired     = "stock.batch.expired"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock Events

// MovementRecordedEvent is published for every stock-affecting movement.
type MovementRecordedEvent struct {
	MovementID     string `json:"movement_id"`
	BatchID        string `json:"batch_id"`
	NomenclatureID string `json:"nomenclature_id"`
	MovementType   string `json:"movement_type"`
	UnitDelta      int    `json:"unit_delta"`
	VolumeDelta    string `json:"volume_delta,omitempty"`
	Reason         string `json:"reason,omitempty"`
	OperationRef   string `json:"operation_ref,omitempty"`
	PerformedBy    string `json:"performed_by,omitempty"`
}

// BatchReceivedEvent is published when a new batch enters the ledger.
type BatchReceivedEvent struct {
	BatchID        string     `json:"batch_id"`
	NomenclatureID string     `json:"nomenclature_id"`
	BatchNumber    string     `json:"batch_number"`
	Quantity       int        `json:"quantity"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// BatchDepletedEvent is published when a batch reaches zero stock.
type BatchDepletedEvent struct {
	BatchID        string `json:"batch_id"`
	NomenclatureID string `json:"nomenclature_id"`
	BatchNumber    string `json:"batch_number"`
}

// BatchExpiringEvent is published by the expiry scanner for batches
// inside the warning window, and with Expired=true once the date passed.
type BatchExpiringEvent struct {
	BatchID         string    `json:"batch_id"`
	NomenclatureID  string    `json:"nomenclature_id"`
	BatchNumber     string    `json:"batch_number"`
	ExpirationDate  time.Time `json:"expiration_date"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Expired         bool      `json:"expired"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
