package repository

import (
	"context"
	"time"

	partnerdomain "github.com/smallbiznis/partnerpay/internal/partner/domain"
	"github.com/smallbiznis/partnerpay/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, workspace_id, program_id, status, amount, receipt_url, paid_at,
			created_at, updated_at
		 FROM invoices
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

type openPayoutRow struct {
	ID                     string              `gorm:"column:id"`
	InvoiceID              string              `gorm:"column:invoice_id"`
	ProgramID              string              `gorm:"column:program_id"`
	PartnerID              string              `gorm:"column:partner_id"`
	Amount                 int64               `gorm:"column:amount"`
	Currency               string              `gorm:"column:currency"`
	Status                 domain.PayoutStatus `gorm:"column:status"`
	PeriodStart            *time.Time          `gorm:"column:period_start"`
	PeriodEnd              *time.Time          `gorm:"column:period_end"`
	StripeTransferID       *string             `gorm:"column:stripe_transfer_id"`
	IdempotencyKey         *string             `gorm:"column:idempotency_key"`
	FailureReason          *string             `gorm:"column:failure_reason"`
	TransferAttempts       int                 `gorm:"column:transfer_attempts"`
	TransferRequestedAt    *time.Time          `gorm:"column:transfer_requested_at"`
	PaidAt                 *time.Time          `gorm:"column:paid_at"`
	CreatedAt              time.Time           `gorm:"column:created_at"`
	UpdatedAt              time.Time           `gorm:"column:updated_at"`
	ProgramWorkspaceID     string              `gorm:"column:program_workspace_id"`
	ProgramName            string              `gorm:"column:program_name"`
	ProgramSlug            string              `gorm:"column:program_slug"`
	PartnerName            string              `gorm:"column:partner_name"`
	PartnerEmail           *string             `gorm:"column:partner_email"`
	PartnerStripeConnectID *string             `gorm:"column:partner_stripe_connect_id"`
}

func (r *repo) ListOpenPayouts(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.OpenPayout, error) {
	var rows []openPayoutRow
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.invoice_id, p.program_id, p.partner_id, p.amount, p.currency,
			p.status, p.period_start, p.period_end, p.stripe_transfer_id,
			p.idempotency_key, p.failure_reason, p.transfer_attempts, p.transfer_requested_at, p.paid_at,
			p.created_at, p.updated_at,
			pr.workspace_id AS program_workspace_id,
			pr.name AS program_name,
			pr.slug AS program_slug,
			pa.name AS partner_name,
			pa.email AS partner_email,
			pa.stripe_connect_id AS partner_stripe_connect_id
		 FROM payouts p
		 JOIN programs pr ON pr.id = p.program_id
		 JOIN partners pa ON pa.id = p.partner_id
		 WHERE p.invoice_id = ? AND p.status <> ?
		 ORDER BY p.created_at ASC, p.id ASC`,
		invoiceID,
		domain.PayoutStatusCompleted,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.OpenPayout, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.OpenPayout{
			Payout: domain.Payout{
				ID:                  row.ID,
				InvoiceID:           row.InvoiceID,
				ProgramID:           row.ProgramID,
				PartnerID:           row.PartnerID,
				Amount:              row.Amount,
				Currency:            row.Currency,
				Status:              row.Status,
				PeriodStart:         row.PeriodStart,
				PeriodEnd:           row.PeriodEnd,
				StripeTransferID:    row.StripeTransferID,
				IdempotencyKey:      row.IdempotencyKey,
				FailureReason:       row.FailureReason,
				TransferAttempts:    row.TransferAttempts,
				TransferRequestedAt: row.TransferRequestedAt,
				PaidAt:              row.PaidAt,
				CreatedAt:           row.CreatedAt,
				UpdatedAt:           row.UpdatedAt,
			},
			Program: partnerdomain.Program{
				ID:          row.ProgramID,
				WorkspaceID: row.ProgramWorkspaceID,
				Name:        row.ProgramName,
				Slug:        row.ProgramSlug,
			},
			Partner: partnerdomain.Partner{
				ID:              row.PartnerID,
				Name:            row.PartnerName,
				Email:           row.PartnerEmail,
				StripeConnectID: row.PartnerStripeConnectID,
			},
		})
	}
	return items, nil
}

func (r *repo) CountPayouts(ctx context.Context, db *gorm.DB, invoiceID string) (int64, int64, error) {
	var counts struct {
		Total     int64 `gorm:"column:total"`
		Completed int64 `gorm:"column:completed"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed
		 FROM payouts
		 WHERE invoice_id = ?`,
		domain.PayoutStatusCompleted,
		invoiceID,
	).Scan(&counts).Error
	if err != nil {
		return 0, 0, err
	}
	return counts.Total, counts.Completed, nil
}

func (r *repo) MarkTransferRequested(ctx context.Context, db *gorm.DB, payoutID string, idempotencyKey string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, idempotency_key = ?, transfer_requested_at = ?,
			failure_reason = NULL, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.PayoutStatusTransferRequested,
		idempotencyKey,
		at,
		at,
		payoutID,
		domain.PayoutStatusPending,
		domain.PayoutStatusTransferRequested,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkTransferConfirmed(ctx context.Context, db *gorm.DB, payoutID string, transferID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, stripe_transfer_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PayoutStatusTransferConfirmed,
		transferID,
		at,
		payoutID,
		domain.PayoutStatusTransferRequested,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordTransferFailure returns the payout to pending. Leaving
// transfer_requested counts as a spent attempt so the next request gets a
// fresh idempotency key. transfer_attempts is assigned first because MySQL
// evaluates SET clauses left to right.
func (r *repo) RecordTransferFailure(ctx context.Context, db *gorm.DB, payoutID string, reason string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET transfer_attempts = transfer_attempts + CASE WHEN status = ? THEN 1 ELSE 0 END,
			status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.PayoutStatusTransferRequested,
		domain.PayoutStatusPending,
		reason,
		at,
		payoutID,
		domain.PayoutStatusPending,
		domain.PayoutStatusTransferRequested,
	).Error
}

func (r *repo) CompletePayout(ctx context.Context, db *gorm.DB, payoutID string, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PayoutStatusCompleted,
		paidAt,
		paidAt,
		payoutID,
		domain.PayoutStatusTransferConfirmed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkCommissionsPaid(ctx context.Context, db *gorm.DB, payoutID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE commissions
		 SET status = ?, updated_at = ?
		 WHERE payout_id = ? AND status <> ?`,
		domain.CommissionStatusPaid,
		at,
		payoutID,
		domain.CommissionStatusPaid,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) CompleteInvoice(ctx context.Context, db *gorm.DB, invoiceID string, receiptURL *string, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, receipt_url = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.InvoiceStatusCompleted,
		receiptURL,
		paidAt,
		paidAt,
		invoiceID,
		domain.InvoiceStatusCompleted,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
