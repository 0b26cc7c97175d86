package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerpay/internal/clock"
	obscontext "github.com/smallbiznis/partnerpay/internal/observability/context"
	"github.com/smallbiznis/partnerpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/partnerpay/internal/observability/metrics"
	"github.com/smallbiznis/partnerpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/partnerpay/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/partnerpay/internal/payout/domain"
	"github.com/smallbiznis/partnerpay/pkg/text"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxLastErrorLen = 1024

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Reconciler payoutdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	reconciler payoutdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		adapters:   p.Adapters,
		reconciler: p.Reconciler,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook verifies a delivery, records it once per provider event id and
// dispatches it. A processing error is stored on the event and returned so the
// provider redelivers; the recovery worker also replays it.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}
	event, err := adapter.Verify(ctx, payload, headers)
	if err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "", obsmetrics.OutcomeRejected)
		return err
	}

	ctx = obscontext.WithEventID(ctx, event.ID)
	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("event_type", event.Type),
	)

	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.ID)
		if err != nil {
			return fmt.Errorf("load payment event: %w", err)
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			log.Info("payment event already processed")
			s.obsMetrics.RecordWebhookEvent(ctx, provider, event.Type, obsmetrics.OutcomeSkipped)
			return paymentdomain.ErrEventAlreadyProcessed
		}
		log.Info("redelivery of unprocessed payment event", zap.Int("attempts", stored.Attempts))
	}

	outcome, err := s.process(ctx, log, adapter, stored, event)
	s.obsMetrics.RecordWebhookEvent(ctx, provider, event.Type, outcome)
	return err
}

// ReplayPending re-dispatches events that were stored but never processed.
// Payloads were verified on receipt and are only decoded here.
func (s *Service) ReplayPending(ctx context.Context, receivedBefore time.Time, maxAttempts int, limit int) (paymentdomain.ReplayResult, error) {
	var result paymentdomain.ReplayResult

	records, err := s.repo.ListReplayable(ctx, s.db, receivedBefore, maxAttempts, limit)
	if err != nil {
		return result, fmt.Errorf("list replayable events: %w", err)
	}
	result.Picked = len(records)

	for i := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stored := &records[i]
		eventCtx := obscontext.WithEventID(ctx, stored.ProviderEventID)
		log := logger.WithContext(eventCtx, s.log).With(
			zap.String("provider", stored.Provider),
			zap.String("event_type", stored.EventType),
			zap.Int("attempts", stored.Attempts),
		)

		if err := s.replay(eventCtx, log, stored); err != nil {
			result.Failed++
			s.obsMetrics.RecordReplay(eventCtx, obsmetrics.OutcomeFailure)
			log.Warn("payment event replay failed", zap.Error(err))
			continue
		}
		result.Succeeded++
		s.obsMetrics.RecordReplay(eventCtx, obsmetrics.OutcomeSuccess)
	}
	return result, nil
}

func (s *Service) replay(ctx context.Context, log *zap.Logger, stored *paymentdomain.EventRecord) error {
	adapter, err := s.adapters.Adapter(stored.Provider)
	if err != nil {
		s.recordFailure(ctx, log, stored, err)
		return err
	}
	event, err := adapter.Decode(stored.Payload)
	if err != nil {
		s.recordFailure(ctx, log, stored, err)
		return err
	}
	_, err = s.process(ctx, log, adapter, stored, event)
	return err
}

func (s *Service) process(
	ctx context.Context,
	log *zap.Logger,
	adapter paymentdomain.WebhookAdapter,
	stored *paymentdomain.EventRecord,
	event *paymentdomain.ProviderEvent,
) (string, error) {
	outcome, err := s.dispatch(ctx, log, adapter, event)
	if err != nil {
		s.recordFailure(ctx, log, stored, err)
		return obsmetrics.OutcomeFailure, err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return obsmetrics.OutcomeFailure, fmt.Errorf("mark payment event processed: %w", err)
	}
	return outcome, nil
}

func (s *Service) dispatch(
	ctx context.Context,
	log *zap.Logger,
	adapter paymentdomain.WebhookAdapter,
	event *paymentdomain.ProviderEvent,
) (string, error) {
	switch event.Type {
	case paymentdomain.EventTypeChargeSucceeded:
		charge, err := adapter.ParseCharge(event)
		if err != nil {
			return obsmetrics.OutcomeFailure, err
		}
		if s.reconciler == nil {
			return obsmetrics.OutcomeFailure, errors.New("payout_reconciler_unavailable")
		}
		if err := s.reconciler.ReconcileCharge(ctx, charge); err != nil {
			return obsmetrics.OutcomeFailure, err
		}
		return obsmetrics.OutcomeSuccess, nil
	default:
		log.Debug("payment event type ignored")
		return obsmetrics.OutcomeSkipped, nil
	}
}

func (s *Service) recordFailure(ctx context.Context, log *zap.Logger, stored *paymentdomain.EventRecord, cause error) {
	msg := text.Truncate(cause.Error(), maxLastErrorLen)
	if err := s.repo.RecordFailure(ctx, s.db, stored.ID, msg); err != nil {
		log.Error("failed to record payment event failure", zap.Error(err))
	}
}
