package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerpay/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at,
			processed_at, attempts, last_error
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// InsertEvent reports false when the provider event is already logged.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?, last_error = NULL
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}

func (r *repo) RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET attempts = attempts + 1, last_error = ?
		 WHERE id = ? AND processed_at IS NULL`,
		lastError,
		id,
	).Error
}

func (r *repo) ListReplayable(ctx context.Context, db *gorm.DB, receivedBefore time.Time, maxAttempts int, limit int) ([]domain.EventRecord, error) {
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at,
			processed_at, attempts, last_error
		 FROM payment_events
		 WHERE processed_at IS NULL AND received_at <= ? AND attempts < ?
		 ORDER BY received_at ASC, id ASC
		 LIMIT ?`,
		receivedBefore,
		maxAttempts,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
