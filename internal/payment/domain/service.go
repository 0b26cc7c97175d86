package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	payoutdomain "github.com/smallbiznis/partnerpay/internal/payout/domain"
	"gorm.io/gorm"
)

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
	ReplayPending(ctx context.Context, receivedBefore time.Time, maxAttempts int, limit int) (ReplayResult, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string) error
	ListReplayable(ctx context.Context, db *gorm.DB, receivedBefore time.Time, maxAttempts int, limit int) ([]EventRecord, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (WebhookAdapter, error)
}

// WebhookAdapter turns one provider's webhook deliveries into provider events.
type WebhookAdapter interface {
	// Verify authenticates the delivery and returns its envelope.
	Verify(ctx context.Context, payload []byte, headers http.Header) (*ProviderEvent, error)
	// Decode reads a payload that was verified when it was first received.
	Decode(payload []byte) (*ProviderEvent, error)
	ParseCharge(event *ProviderEvent) (payoutdomain.ChargeEvent, error)
}
