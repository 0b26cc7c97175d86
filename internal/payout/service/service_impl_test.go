package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/partnerpay/internal/clock"
	"github.com/smallbiznis/partnerpay/internal/config"
	"github.com/smallbiznis/partnerpay/internal/migration/migrationtest"
	partnerdomain "github.com/smallbiznis/partnerpay/internal/partner/domain"
	"github.com/smallbiznis/partnerpay/internal/payout/domain"
	"github.com/smallbiznis/partnerpay/internal/payout/repository"
	"github.com/smallbiznis/partnerpay/internal/payout/service"
	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeTransfers struct {
	mu       sync.Mutex
	requests []domain.TransferRequest
	// failOn maps a 1-based call number to the error returned for it.
	failOn map[int]error
}

func (f *fakeTransfers) CreateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err, ok := f.failOn[len(f.requests)]; ok {
		return nil, err
	}
	return &domain.Transfer{ID: fmt.Sprintf("tr_%s", req.IdempotencyKey)}, nil
}

func (f *fakeTransfers) calls() []domain.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TransferRequest(nil), f.requests...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.PayoutNotification
	err  error
}

func (f *fakeNotifier) NotifyPayoutSent(ctx context.Context, n domain.PayoutNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

type fixture struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	transfers *fakeTransfers
	notifier  *fakeNotifier
	policy    config.PayoutPolicy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:        migrationtest.OpenDB(t),
		clock:     clock.NewFakeClock(baseTime),
		transfers: &fakeTransfers{},
		notifier:  &fakeNotifier{},
		policy:    config.DefaultPayoutPolicy(),
	}
	f.seedProgram(t)
	return f
}

func (f *fixture) service() domain.Service {
	return service.NewService(service.Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		Repo:      repository.Provide(),
		Clock:     f.clock,
		Policy:    config.NewStaticPayoutPolicyHolder(f.policy),
		Transfers: f.transfers,
		Notifier:  f.notifier,
	})
}

func (f *fixture) seedProgram(t *testing.T) {
	t.Helper()
	require.NoError(t, f.db.Create(&workspacedomain.Workspace{
		ID: "ws_1", Name: "Acme", Slug: "acme", Plan: workspacedomain.PlanBusiness,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}).Error)
	require.NoError(t, f.db.Create(&partnerdomain.Program{
		ID: "prog_1", WorkspaceID: "ws_1", Name: "Acme Partners", Slug: "acme",
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}).Error)
}

func (f *fixture) seedPartner(t *testing.T, id string, email string, connectID string) {
	t.Helper()
	partner := partnerdomain.Partner{ID: id, Name: id, CreatedAt: baseTime, UpdatedAt: baseTime}
	if email != "" {
		partner.Email = &email
	}
	if connectID != "" {
		partner.StripeConnectID = &connectID
	}
	require.NoError(t, f.db.Create(&partner).Error)
}

func (f *fixture) seedInvoice(t *testing.T, id string, status domain.InvoiceStatus) {
	t.Helper()
	require.NoError(t, f.db.Create(&domain.Invoice{
		ID: id, WorkspaceID: "ws_1", ProgramID: "prog_1", Status: status, Amount: 1700,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}).Error)
}

func (f *fixture) seedPayout(t *testing.T, id string, invoiceID string, partnerID string, amount int64, status domain.PayoutStatus, order int) {
	t.Helper()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	created := baseTime.Add(time.Duration(order) * time.Minute)
	require.NoError(t, f.db.Create(&domain.Payout{
		ID: id, InvoiceID: invoiceID, ProgramID: "prog_1", PartnerID: partnerID,
		Amount: amount, Currency: "usd", Status: status,
		PeriodStart: &start, PeriodEnd: &end,
		CreatedAt: created, UpdatedAt: created,
	}).Error)
	payoutID := id
	for i := 0; i < 2; i++ {
		require.NoError(t, f.db.Create(&domain.Commission{
			ID: fmt.Sprintf("cm_%s_%d", id, i), PayoutID: &payoutID, PartnerID: partnerID, ProgramID: "prog_1",
			Amount: amount / 2, Status: domain.CommissionStatusPending,
			CreatedAt: created, UpdatedAt: created,
		}).Error)
	}
}

func (f *fixture) invoice(t *testing.T, id string) domain.Invoice {
	t.Helper()
	var inv domain.Invoice
	require.NoError(t, f.db.First(&inv, "id = ?", id).Error)
	return inv
}

func (f *fixture) payout(t *testing.T, id string) domain.Payout {
	t.Helper()
	var p domain.Payout
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return p
}

func (f *fixture) paidCommissions(t *testing.T, payoutID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&domain.Commission{}).
		Where("payout_id = ? AND status = ?", payoutID, domain.CommissionStatusPaid).
		Count(&count).Error)
	return count
}

// updatedAt snapshots updated_at of every invoice, payout and commission row.
func (f *fixture) updatedAt(t *testing.T) map[string]time.Time {
	t.Helper()
	stamps := map[string]time.Time{}
	for _, table := range []string{"invoices", "payouts", "commissions"} {
		var rows []struct {
			ID        string
			UpdatedAt time.Time
		}
		require.NoError(t, f.db.Table(table).Select("id, updated_at").Scan(&rows).Error)
		require.NotEmpty(t, rows, table)
		for _, row := range rows {
			stamps[table+"/"+row.ID] = row.UpdatedAt
		}
	}
	return stamps
}

// seedInv1 builds invoice inv_1 with a 500 and a 1200 cent payout.
func (f *fixture) seedInv1(t *testing.T) {
	t.Helper()
	f.seedPartner(t, "pn_a", "a@example.com", "acct_a")
	f.seedPartner(t, "pn_b", "b@example.com", "acct_b")
	f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)
	f.seedPayout(t, "po_1", "inv_1", "pn_a", 500, domain.PayoutStatusPending, 1)
	f.seedPayout(t, "po_2", "inv_1", "pn_b", 1200, domain.PayoutStatusPending, 2)
}

func cardCharge() domain.ChargeEvent {
	return domain.ChargeEvent{
		ChargeID:      "ch_1",
		ReceiptURL:    "https://pay.stripe.com/receipts/ch_1",
		TransferGroup: "inv_1",
	}
}

func TestReconcileChargeInv1Scenario(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)

	require.NoError(t, f.service().ReconcileCharge(context.Background(), cardCharge()))

	calls := f.transfers.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, domain.TransferRequest{
		Amount:            500,
		Currency:          "usd",
		Destination:       "acct_a",
		TransferGroup:     "inv_1",
		SourceTransaction: "ch_1",
		Description:       "Partners payout (Acme Partners)",
		IdempotencyKey:    "payout_po_1",
		Metadata:          map[string]string{"payout_id": "po_1", "partner_id": "pn_a"},
	}, calls[0])
	assert.Equal(t, int64(1200), calls[1].Amount)
	assert.Equal(t, "acct_b", calls[1].Destination)
	assert.Equal(t, "ch_1", calls[1].SourceTransaction)

	for _, id := range []string{"po_1", "po_2"} {
		p := f.payout(t, id)
		assert.Equal(t, domain.PayoutStatusCompleted, p.Status, id)
		require.NotNil(t, p.StripeTransferID)
		assert.Equal(t, "tr_payout_"+id, *p.StripeTransferID)
		require.NotNil(t, p.PaidAt)
		assert.True(t, p.PaidAt.Equal(baseTime))
		assert.Equal(t, int64(2), f.paidCommissions(t, id))
	}

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, "a@example.com", f.notifier.sent[0].To)
	assert.Equal(t, "Acme Partners", f.notifier.sent[0].ProgramName)
	assert.Equal(t, int64(500), f.notifier.sent[0].Amount)
	assert.Equal(t, "po_1", f.notifier.sent[0].PayoutID)
	assert.NotNil(t, f.notifier.sent[0].PeriodStart)
	assert.Equal(t, "You've been paid!", f.notifier.sent[1].Subject)

	inv := f.invoice(t, "inv_1")
	assert.Equal(t, domain.InvoiceStatusCompleted, inv.Status)
	require.NotNil(t, inv.ReceiptURL)
	assert.Equal(t, "https://pay.stripe.com/receipts/ch_1", *inv.ReceiptURL)
	require.NotNil(t, inv.PaidAt)
	assert.True(t, inv.PaidAt.Equal(baseTime))
}

func TestReconcileChargeWithoutTransferGroupIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)

	before := f.updatedAt(t)
	f.clock.Advance(time.Hour)

	charge := cardCharge()
	charge.TransferGroup = "  "
	require.NoError(t, f.service().ReconcileCharge(context.Background(), charge))

	assert.Empty(t, f.transfers.calls())
	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, before, f.updatedAt(t))
	assert.Equal(t, domain.InvoiceStatusPending, f.invoice(t, "inv_1").Status)
	assert.Equal(t, domain.PayoutStatusPending, f.payout(t, "po_1").Status)
}

func TestReconcileChargeUnknownInvoiceIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)

	before := f.updatedAt(t)
	f.clock.Advance(time.Hour)

	charge := cardCharge()
	charge.TransferGroup = "inv_missing"
	require.NoError(t, f.service().ReconcileCharge(context.Background(), charge))

	assert.Empty(t, f.transfers.calls())
	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, before, f.updatedAt(t))
	assert.Equal(t, domain.PayoutStatusPending, f.payout(t, "po_2").Status)
}

func TestReconcileChargeTwiceDoesNotRepeatTransfers(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)
	svc := f.service()

	require.NoError(t, svc.ReconcileCharge(context.Background(), cardCharge()))
	firstPaidAt := *f.invoice(t, "inv_1").PaidAt

	f.clock.Advance(time.Hour)
	require.NoError(t, svc.ReconcileCharge(context.Background(), cardCharge()))

	assert.Len(t, f.transfers.calls(), 2)
	assert.Len(t, f.notifier.sent, 2)
	assert.True(t, f.invoice(t, "inv_1").PaidAt.Equal(firstPaidAt))
}

func TestReconcileChargeACHOmitsSourceTransaction(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)

	charge := cardCharge()
	charge.ACHCreditTransfer = true
	require.NoError(t, f.service().ReconcileCharge(context.Background(), charge))

	calls := f.transfers.calls()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Empty(t, call.SourceTransaction)
	}
}

func TestReconcileChargeStopsAtFailedTransfer(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)
	f.seedPartner(t, "pn_c", "", "acct_c")
	f.seedPayout(t, "po_3", "inv_1", "pn_c", 300, domain.PayoutStatusPending, 3)
	f.transfers.failOn = map[int]error{2: fmt.Errorf("%w: connection reset", domain.ErrTransferFailed)}

	err := f.service().ReconcileCharge(context.Background(), cardCharge())
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	assert.Len(t, f.transfers.calls(), 2)
	assert.Equal(t, domain.PayoutStatusCompleted, f.payout(t, "po_1").Status)

	// unknown outcome: the request stays open for an idempotent retry
	failed := f.payout(t, "po_2")
	assert.Equal(t, domain.PayoutStatusTransferRequested, failed.Status)
	require.NotNil(t, failed.IdempotencyKey)
	assert.Equal(t, "payout_po_2", *failed.IdempotencyKey)
	assert.Nil(t, failed.StripeTransferID)
	assert.Equal(t, int64(0), f.paidCommissions(t, "po_2"))

	assert.Equal(t, domain.PayoutStatusPending, f.payout(t, "po_3").Status)
	assert.Equal(t, domain.InvoiceStatusPending, f.invoice(t, "inv_1").Status)
	assert.Len(t, f.notifier.sent, 1)
}

func TestReconcileChargeRedeliveryResumesWithSameIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)
	f.transfers.failOn = map[int]error{2: domain.ErrTransferFailed}
	svc := f.service()

	require.Error(t, svc.ReconcileCharge(context.Background(), cardCharge()))

	f.transfers.failOn = nil
	require.NoError(t, svc.ReconcileCharge(context.Background(), cardCharge()))

	calls := f.transfers.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "payout_po_2", calls[1].IdempotencyKey)
	assert.Equal(t, "payout_po_2", calls[2].IdempotencyKey)
	assert.Equal(t, domain.PayoutStatusCompleted, f.payout(t, "po_2").Status)
	assert.Equal(t, domain.InvoiceStatusCompleted, f.invoice(t, "inv_1").Status)
}

func TestReconcileChargeRejectedTransferReturnsPayoutToPending(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)
	f.transfers.failOn = map[int]error{1: fmt.Errorf("%w: No such destination", domain.ErrTransferRejected)}

	err := f.service().ReconcileCharge(context.Background(), cardCharge())
	require.ErrorIs(t, err, domain.ErrTransferRejected)

	p := f.payout(t, "po_1")
	assert.Equal(t, domain.PayoutStatusPending, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Contains(t, *p.FailureReason, "No such destination")
	assert.Len(t, f.transfers.calls(), 1)
	assert.Equal(t, domain.InvoiceStatusPending, f.invoice(t, "inv_1").Status)
}

func TestReconcileChargeRetryAfterRejectionUsesNewIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)
	f.transfers.failOn = map[int]error{1: fmt.Errorf("%w: insufficient funds", domain.ErrTransferRejected)}
	svc := f.service()

	require.ErrorIs(t, svc.ReconcileCharge(context.Background(), cardCharge()), domain.ErrTransferRejected)
	assert.Equal(t, 1, f.payout(t, "po_1").TransferAttempts)

	// partner reconnected a different account
	require.NoError(t, f.db.Model(&partnerdomain.Partner{}).Where("id = ?", "pn_a").
		Update("stripe_connect_id", "acct_a2").Error)
	f.transfers.failOn = nil
	require.NoError(t, svc.ReconcileCharge(context.Background(), cardCharge()))

	calls := f.transfers.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "payout_po_1", calls[0].IdempotencyKey)
	assert.Equal(t, "payout_po_1_1", calls[1].IdempotencyKey)
	assert.Equal(t, "acct_a2", calls[1].Destination)
	assert.Equal(t, "payout_po_2", calls[2].IdempotencyKey)

	p := f.payout(t, "po_1")
	assert.Equal(t, domain.PayoutStatusCompleted, p.Status)
	require.NotNil(t, p.IdempotencyKey)
	assert.Equal(t, "payout_po_1_1", *p.IdempotencyKey)
}

func TestReconcileChargeMissingAccountDoesNotSpendAttempt(t *testing.T) {
	f := newFixture(t)
	f.seedPartner(t, "pn_a", "", "")
	f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)
	f.seedPayout(t, "po_1", "inv_1", "pn_a", 500, domain.PayoutStatusPending, 1)

	require.ErrorIs(t, f.service().ReconcileCharge(context.Background(), cardCharge()), domain.ErrMissingConnectedAccount)
	assert.Zero(t, f.payout(t, "po_1").TransferAttempts)
}

func TestIdempotencyKeyFor(t *testing.T) {
	assert.Equal(t, "payout_po_1", domain.IdempotencyKeyFor("po_1", 0))
	assert.Equal(t, "payout_po_1_2", domain.IdempotencyKeyFor("po_1", 2))
}

func TestReconcileChargeFinalisesConfirmedPayoutWithoutTransfer(t *testing.T) {
	f := newFixture(t)
	f.seedPartner(t, "pn_a", "a@example.com", "acct_a")
	f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)
	f.seedPayout(t, "po_1", "inv_1", "pn_a", 500, domain.PayoutStatusTransferConfirmed, 1)
	require.NoError(t, f.db.Model(&domain.Payout{}).Where("id = ?", "po_1").
		Update("stripe_transfer_id", "tr_existing").Error)

	require.NoError(t, f.service().ReconcileCharge(context.Background(), cardCharge()))

	assert.Empty(t, f.transfers.calls())
	p := f.payout(t, "po_1")
	assert.Equal(t, domain.PayoutStatusCompleted, p.Status)
	assert.Equal(t, "tr_existing", *p.StripeTransferID)
	assert.Equal(t, int64(2), f.paidCommissions(t, "po_1"))
	assert.Equal(t, domain.InvoiceStatusCompleted, f.invoice(t, "inv_1").Status)
}

func TestReconcileChargeMissingConnectedAccount(t *testing.T) {
	f := newFixture(t)
	f.seedPartner(t, "pn_a", "a@example.com", "")
	f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)
	f.seedPayout(t, "po_1", "inv_1", "pn_a", 500, domain.PayoutStatusPending, 1)

	err := f.service().ReconcileCharge(context.Background(), cardCharge())
	require.ErrorIs(t, err, domain.ErrMissingConnectedAccount)

	assert.Empty(t, f.transfers.calls())
	p := f.payout(t, "po_1")
	assert.Equal(t, domain.PayoutStatusPending, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, domain.FailureMissingConnectedAccount, *p.FailureReason)
}

func TestReconcileChargeIgnoresNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.seedInv1(t)
	f.notifier.err = errors.New("smtp down")

	require.NoError(t, f.service().ReconcileCharge(context.Background(), cardCharge()))

	assert.Len(t, f.notifier.sent, 2)
	assert.Equal(t, domain.InvoiceStatusCompleted, f.invoice(t, "inv_1").Status)
}

func TestReconcileChargeSkipsEmailForPartnerWithoutAddress(t *testing.T) {
	f := newFixture(t)
	f.seedPartner(t, "pn_a", "", "acct_a")
	f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)
	f.seedPayout(t, "po_1", "inv_1", "pn_a", 500, domain.PayoutStatusPending, 1)

	require.NoError(t, f.service().ReconcileCharge(context.Background(), cardCharge()))

	assert.Len(t, f.transfers.calls(), 1)
	assert.Empty(t, f.notifier.sent)
}

func TestReconcileChargeWithNoOpenPayouts(t *testing.T) {
	t.Run("left pending by default", func(t *testing.T) {
		f := newFixture(t)
		f.seedPartner(t, "pn_a", "", "acct_a")
		f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)
		f.seedPayout(t, "po_1", "inv_1", "pn_a", 500, domain.PayoutStatusCompleted, 1)

		require.NoError(t, f.service().ReconcileCharge(context.Background(), cardCharge()))
		assert.Equal(t, domain.InvoiceStatusPending, f.invoice(t, "inv_1").Status)
	})

	t.Run("completed when opted in and all payouts settled", func(t *testing.T) {
		f := newFixture(t)
		f.policy.CompleteSettledInvoices = true
		f.seedPartner(t, "pn_a", "", "acct_a")
		f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)
		f.seedPayout(t, "po_1", "inv_1", "pn_a", 500, domain.PayoutStatusCompleted, 1)

		require.NoError(t, f.service().ReconcileCharge(context.Background(), cardCharge()))
		assert.Equal(t, domain.InvoiceStatusCompleted, f.invoice(t, "inv_1").Status)
		assert.Empty(t, f.transfers.calls())
	})

	t.Run("opted in but invoice has no payouts", func(t *testing.T) {
		f := newFixture(t)
		f.policy.CompleteSettledInvoices = true
		f.seedInvoice(t, "inv_1", domain.InvoiceStatusPending)

		require.NoError(t, f.service().ReconcileCharge(context.Background(), cardCharge()))
		assert.Equal(t, domain.InvoiceStatusPending, f.invoice(t, "inv_1").Status)
	})
}
