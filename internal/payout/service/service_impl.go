package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/partnerpay/internal/clock"
	"github.com/smallbiznis/partnerpay/internal/config"
	"github.com/smallbiznis/partnerpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/partnerpay/internal/observability/metrics"
	"github.com/smallbiznis/partnerpay/internal/observability/tracing"
	"github.com/smallbiznis/partnerpay/internal/payout/domain"
	"github.com/smallbiznis/partnerpay/pkg/text"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxFailureReasonLen = 255

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Clock      clock.Clock
	Policy     *config.PayoutPolicyHolder
	Transfers  domain.TransferClient `optional:"true"`
	Notifier   domain.Notifier       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	clock      clock.Clock
	policy     *config.PayoutPolicyHolder
	transfers  domain.TransferClient
	notifier   domain.Notifier
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		repo:       p.Repo,
		clock:      clk,
		policy:     p.Policy,
		transfers:  p.Transfers,
		notifier:   p.Notifier,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer("partnerpay/payout"),
	}
}

// ReconcileCharge pays out every open payout of the invoice the charge settles,
// then completes the invoice. A failed transfer stops the run; payouts already
// completed stay completed and the rest are picked up on redelivery.
func (s *Service) ReconcileCharge(ctx context.Context, charge domain.ChargeEvent) error {
	ctx, span := s.tracer.Start(ctx, "payout.reconcile_charge")
	defer span.End()

	log := logger.WithContext(ctx, s.log).With(zap.String("charge_id", charge.ChargeID))

	invoiceID := strings.TrimSpace(charge.TransferGroup)
	if invoiceID == "" {
		log.Info("charge has no transfer group, nothing to reconcile")
		return nil
	}
	span.SetAttributes(attribute.String("invoice_id", invoiceID))
	log = log.With(zap.String("invoice_id", invoiceID))

	invoice, err := s.repo.FindInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return fail(span, fmt.Errorf("load invoice: %w", err))
	}
	if invoice == nil {
		log.Info("invoice not found, nothing to reconcile")
		return nil
	}
	if invoice.Status == domain.InvoiceStatusCompleted {
		log.Info("invoice already completed, skipping")
		return nil
	}

	payouts, err := s.repo.ListOpenPayouts(ctx, s.db, invoice.ID)
	if err != nil {
		return fail(span, fmt.Errorf("list open payouts: %w", err))
	}

	policy := s.policy.Get()
	if len(payouts) == 0 {
		if err := s.settleWithoutOpenPayouts(ctx, log, policy, invoice, charge); err != nil {
			return fail(span, err)
		}
		return nil
	}

	for _, item := range payouts {
		if err := s.processPayout(ctx, log, policy, charge, item); err != nil {
			return fail(span, err)
		}
	}

	if err := s.completeInvoice(ctx, log, invoice, charge); err != nil {
		return fail(span, err)
	}
	return nil
}

func (s *Service) settleWithoutOpenPayouts(
	ctx context.Context,
	log *zap.Logger,
	policy config.PayoutPolicy,
	invoice *domain.Invoice,
	charge domain.ChargeEvent,
) error {
	if !policy.CompleteSettledInvoices {
		log.Warn("invoice has no open payouts and is still pending, leaving it untouched")
		return nil
	}

	total, completed, err := s.repo.CountPayouts(ctx, s.db, invoice.ID)
	if err != nil {
		return fmt.Errorf("count payouts: %w", err)
	}
	if total == 0 || completed != total {
		log.Warn("invoice has no settled payouts, leaving it untouched",
			zap.Int64("payouts", total),
			zap.Int64("completed", completed),
		)
		return nil
	}
	return s.completeInvoice(ctx, log, invoice, charge)
}

func (s *Service) processPayout(
	ctx context.Context,
	log *zap.Logger,
	policy config.PayoutPolicy,
	charge domain.ChargeEvent,
	item domain.OpenPayout,
) error {
	payout := item.Payout
	ctx, span := s.tracer.Start(ctx, "payout.process", trace.WithAttributes(
		attribute.String("payout_id", payout.ID),
		attribute.String("payout_status", string(payout.Status)),
	))
	defer span.End()

	log = log.With(
		zap.String("payout_id", payout.ID),
		zap.String("partner_id", payout.PartnerID),
		zap.String("status", string(payout.Status)),
	)

	switch payout.Status {
	case domain.PayoutStatusPending, domain.PayoutStatusTransferRequested:
		if err := s.transfer(ctx, log, policy, charge, item); err != nil {
			return fail(span, err)
		}
	case domain.PayoutStatusTransferConfirmed:
		log.Info("transfer already confirmed, finalising payout")
	default:
		return fail(span, fmt.Errorf("%w: payout %s is %s", domain.ErrPayoutStateConflict, payout.ID, payout.Status))
	}

	paidAt := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.CompletePayout(ctx, tx, payout.ID, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payout %s is not confirmed", domain.ErrPayoutStateConflict, payout.ID)
		}
		commissions, err := s.repo.MarkCommissionsPaid(ctx, tx, payout.ID, paidAt)
		if err != nil {
			return err
		}
		log.Debug("commissions paid", zap.Int64("count", commissions))
		return nil
	})
	if err != nil {
		return fail(span, fmt.Errorf("complete payout %s: %w", payout.ID, err))
	}

	s.obsMetrics.RecordPayoutCompleted(ctx)
	log.Info("payout completed", zap.Int64("amount", payout.Amount))

	s.notify(ctx, log, policy, item)
	return nil
}

// transfer moves a pending or requested payout to transfer_confirmed.
// The request state and idempotency key are persisted before the provider is called.
func (s *Service) transfer(
	ctx context.Context,
	log *zap.Logger,
	policy config.PayoutPolicy,
	charge domain.ChargeEvent,
	item domain.OpenPayout,
) error {
	payout := item.Payout

	destination := ""
	if item.Partner.StripeConnectID != nil {
		destination = strings.TrimSpace(*item.Partner.StripeConnectID)
	}
	if destination == "" {
		if err := s.repo.RecordTransferFailure(ctx, s.db, payout.ID, domain.FailureMissingConnectedAccount, s.clock.Now()); err != nil {
			return fmt.Errorf("record transfer failure: %w", err)
		}
		s.obsMetrics.RecordTransfer(ctx, obsmetrics.OutcomeRejected)
		log.Warn("partner has no connected account, transfer not attempted")
		return fmt.Errorf("payout %s: %w", payout.ID, domain.ErrMissingConnectedAccount)
	}
	if s.transfers == nil {
		return domain.ErrTransferClientMissing
	}

	key := domain.IdempotencyKeyFor(payout.ID, payout.TransferAttempts)
	ok, err := s.repo.MarkTransferRequested(ctx, s.db, payout.ID, key, s.clock.Now())
	if err != nil {
		return fmt.Errorf("mark transfer requested: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: payout %s cannot request a transfer", domain.ErrPayoutStateConflict, payout.ID)
	}

	req := domain.TransferRequest{
		Amount:         payout.Amount,
		Currency:       domain.TransferCurrency,
		Destination:    destination,
		TransferGroup:  payout.InvoiceID,
		Description:    fmt.Sprintf(policy.TransferDescription, item.Program.Name),
		IdempotencyKey: key,
		Metadata: map[string]string{
			"payout_id":  payout.ID,
			"partner_id": payout.PartnerID,
		},
	}
	// Funds from an ACH credit transfer are not tied to a charge balance transaction.
	if !charge.ACHCreditTransfer {
		req.SourceTransaction = charge.ChargeID
	}

	transfer, err := s.transfers.CreateTransfer(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrTransferRejected) {
			if recErr := s.repo.RecordTransferFailure(ctx, s.db, payout.ID, text.Truncate(err.Error(), maxFailureReasonLen), s.clock.Now()); recErr != nil {
				log.Error("failed to record transfer rejection", zap.Error(recErr))
			}
			s.obsMetrics.RecordTransfer(ctx, obsmetrics.OutcomeRejected)
		} else {
			s.obsMetrics.RecordTransfer(ctx, obsmetrics.OutcomeFailure)
		}
		log.Error("transfer failed", zap.Error(err))
		return fmt.Errorf("create transfer for payout %s: %w", payout.ID, err)
	}
	if transfer == nil || strings.TrimSpace(transfer.ID) == "" {
		s.obsMetrics.RecordTransfer(ctx, obsmetrics.OutcomeFailure)
		return fmt.Errorf("create transfer for payout %s: %w", payout.ID, domain.ErrTransferFailed)
	}
	s.obsMetrics.RecordTransfer(ctx, obsmetrics.OutcomeSuccess)

	ok, err = s.repo.MarkTransferConfirmed(ctx, s.db, payout.ID, transfer.ID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("confirm transfer %s: %w", transfer.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: payout %s was not awaiting transfer %s", domain.ErrPayoutStateConflict, payout.ID, transfer.ID)
	}
	log.Info("transfer confirmed", zap.String("transfer_id", transfer.ID))
	return nil
}

func (s *Service) notify(ctx context.Context, log *zap.Logger, policy config.PayoutPolicy, item domain.OpenPayout) {
	if s.notifier == nil || item.Partner.Email == nil {
		return
	}
	to := strings.TrimSpace(*item.Partner.Email)
	if to == "" {
		return
	}

	err := s.notifier.NotifyPayoutSent(ctx, domain.PayoutNotification{
		To:          to,
		From:        policy.NotificationFrom,
		Subject:     policy.NotificationSubject,
		ProgramName: item.Program.Name,
		PayoutID:    item.Payout.ID,
		Amount:      item.Payout.Amount,
		Currency:    domain.TransferCurrency,
		PeriodStart: item.Payout.PeriodStart,
		PeriodEnd:   item.Payout.PeriodEnd,
	})
	if err != nil {
		s.obsMetrics.RecordNotification(ctx, obsmetrics.OutcomeFailure)
		log.Warn("payout notification failed", zap.Error(err))
		return
	}
	s.obsMetrics.RecordNotification(ctx, obsmetrics.OutcomeSuccess)
}

func (s *Service) completeInvoice(ctx context.Context, log *zap.Logger, invoice *domain.Invoice, charge domain.ChargeEvent) error {
	var receiptURL *string
	if url := strings.TrimSpace(charge.ReceiptURL); url != "" {
		receiptURL = &url
	}

	completed, err := s.repo.CompleteInvoice(ctx, s.db, invoice.ID, receiptURL, s.clock.Now())
	if err != nil {
		return fmt.Errorf("complete invoice: %w", err)
	}
	if !completed {
		log.Info("invoice was completed concurrently")
		return nil
	}
	s.obsMetrics.RecordInvoiceCompleted(ctx)
	log.Info("invoice completed")
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "reconcile failed")
	return err
}
