package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	ReconcileCharge(ctx context.Context, charge ChargeEvent) error
}

type Repository interface {
	FindInvoice(ctx context.Context, db *gorm.DB, id string) (*Invoice, error)
	ListOpenPayouts(ctx context.Context, db *gorm.DB, invoiceID string) ([]OpenPayout, error)
	CountPayouts(ctx context.Context, db *gorm.DB, invoiceID string) (total int64, completed int64, err error)
	MarkTransferRequested(ctx context.Context, db *gorm.DB, payoutID string, idempotencyKey string, at time.Time) (bool, error)
	MarkTransferConfirmed(ctx context.Context, db *gorm.DB, payoutID string, transferID string, at time.Time) (bool, error)
	RecordTransferFailure(ctx context.Context, db *gorm.DB, payoutID string, reason string, at time.Time) error
	CompletePayout(ctx context.Context, db *gorm.DB, payoutID string, paidAt time.Time) (bool, error)
	MarkCommissionsPaid(ctx context.Context, db *gorm.DB, payoutID string, at time.Time) (int64, error)
	CompleteInvoice(ctx context.Context, db *gorm.DB, invoiceID string, receiptURL *string, paidAt time.Time) (bool, error)
}

// TransferClient moves funds to a partner's connected account.
type TransferClient interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}

type Notifier interface {
	NotifyPayoutSent(ctx context.Context, n PayoutNotification) error
}
