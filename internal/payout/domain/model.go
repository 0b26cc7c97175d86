package domain

import (
	"fmt"
	"time"

	partnerdomain "github.com/smallbiznis/partnerpay/internal/partner/domain"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusCompleted InvoiceStatus = "completed"
)

// PayoutStatus follows pending -> transfer_requested -> transfer_confirmed -> completed.
// A rejected transfer moves transfer_requested back to pending.
type PayoutStatus string

const (
	PayoutStatusPending           PayoutStatus = "pending"
	PayoutStatusTransferRequested PayoutStatus = "transfer_requested"
	PayoutStatusTransferConfirmed PayoutStatus = "transfer_confirmed"
	PayoutStatusCompleted         PayoutStatus = "completed"
)

type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

// TransferCurrency is the only currency partner transfers are made in.
const TransferCurrency = "usd"

const FailureMissingConnectedAccount = "missing_connected_account"

type Invoice struct {
	ID          string        `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string        `json:"workspace_id" gorm:"type:text;not null;index"`
	ProgramID   string        `json:"program_id" gorm:"type:text;not null;index"`
	Status      InvoiceStatus `json:"status" gorm:"type:text;not null"`
	Amount      int64         `json:"amount" gorm:"not null"`
	ReceiptURL  *string       `json:"receipt_url,omitempty" gorm:"type:text"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

type Payout struct {
	ID                  string       `json:"id" gorm:"primaryKey;type:text"`
	InvoiceID           string       `json:"invoice_id" gorm:"type:text;not null;index"`
	ProgramID           string       `json:"program_id" gorm:"type:text;not null"`
	PartnerID           string       `json:"partner_id" gorm:"type:text;not null;index"`
	Amount              int64        `json:"amount" gorm:"not null"`
	Currency            string       `json:"currency" gorm:"type:text;not null"`
	Status              PayoutStatus `json:"status" gorm:"type:text;not null"`
	PeriodStart         *time.Time   `json:"period_start,omitempty"`
	PeriodEnd           *time.Time   `json:"period_end,omitempty"`
	StripeTransferID    *string      `json:"stripe_transfer_id,omitempty" gorm:"type:text"`
	IdempotencyKey      *string      `json:"idempotency_key,omitempty" gorm:"type:text"`
	FailureReason       *string      `json:"failure_reason,omitempty" gorm:"type:text"`
	TransferAttempts    int          `json:"transfer_attempts" gorm:"not null;default:0"`
	TransferRequestedAt *time.Time   `json:"transfer_requested_at,omitempty"`
	PaidAt              *time.Time   `json:"paid_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }

type Commission struct {
	ID        string           `json:"id" gorm:"primaryKey;type:text"`
	PayoutID  *string          `json:"payout_id,omitempty" gorm:"type:text;index"`
	PartnerID string           `json:"partner_id" gorm:"type:text;not null"`
	ProgramID string           `json:"program_id" gorm:"type:text;not null"`
	Amount    int64            `json:"amount" gorm:"not null"`
	Status    CommissionStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time        `json:"updated_at" gorm:"not null"`
}

func (Commission) TableName() string { return "commissions" }

// OpenPayout is a payout that is not completed yet, loaded with the program
// and partner the transfer needs.
type OpenPayout struct {
	Payout  Payout
	Program partnerdomain.Program
	Partner partnerdomain.Partner
}

// IdempotencyKeyFor is the provider idempotency key of a payout transfer.
// It stays the same while a request is unresolved and changes once the
// provider has rejected a previous attempt, which bumps attempt.
func IdempotencyKeyFor(payoutID string, attempt int) string {
	if attempt <= 0 {
		return "payout_" + payoutID
	}
	return fmt.Sprintf("payout_%s_%d", payoutID, attempt)
}

// ChargeEvent is the part of a successful charge the reconciliation needs.
type ChargeEvent struct {
	ChargeID          string
	ReceiptURL        string
	TransferGroup     string
	ACHCreditTransfer bool
}

type TransferRequest struct {
	Amount            int64
	Currency          string
	Destination       string
	TransferGroup     string
	SourceTransaction string
	Description       string
	IdempotencyKey    string
	Metadata          map[string]string
}

type Transfer struct {
	ID string
}

type PayoutNotification struct {
	To          string
	From        string
	Subject     string
	ProgramName string
	PayoutID    string
	Amount      int64
	Currency    string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}
