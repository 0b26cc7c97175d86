package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the durable log of provider webhook deliveries.
// Rows with a nil ProcessedAt are replayed by the recovery worker.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null;index"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	Attempts        int            `json:"attempts" gorm:"not null;default:0"`
	LastError       *string        `json:"last_error" gorm:"type:text"`
}

func (EventRecord) TableName() string { return "payment_events" }

const EventTypeChargeSucceeded = "charge.succeeded"

// ProviderEvent is a verified webhook envelope.
type ProviderEvent struct {
	ID     string
	Type   string
	Object json.RawMessage
}

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
}

// ReplayResult summarises one replay pass over unprocessed events.
type ReplayResult struct {
	Picked    int
	Succeeded int
	Failed    int
}
