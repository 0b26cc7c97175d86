package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/partnerpay/internal/payout/domain"
	"github.com/smallbiznis/partnerpay/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const templatePayoutSent = "partner_payout_sent"

type Params struct {
	fx.In

	Email email.Provider
	Log   *zap.Logger
}

// EmailNotifier tells partners about payouts through the email provider.
type EmailNotifier struct {
	email email.Provider
	log   *zap.Logger
}

func New(p Params) domain.Notifier {
	return &EmailNotifier{
		email: p.Email,
		log:   p.Log.Named("payout.notifier"),
	}
}

type payoutSentData struct {
	ProgramName string
	Amount      string
	Period      string
	PayoutID    string
}

func (n *EmailNotifier) NotifyPayoutSent(ctx context.Context, msg domain.PayoutNotification) error {
	if strings.TrimSpace(msg.To) == "" {
		return email.ErrNoRecipients
	}
	err := n.email.SendTemplate(ctx, email.Message{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
	}, templatePayoutSent, payoutSentData{
		ProgramName: msg.ProgramName,
		Amount:      FormatAmount(msg.Amount, msg.Currency),
		Period:      FormatPeriod(msg.PeriodStart, msg.PeriodEnd),
		PayoutID:    msg.PayoutID,
	})
	if err != nil {
		return fmt.Errorf("send payout email: %w", err)
	}
	n.log.Debug("payout email sent", zap.String("payout_id", msg.PayoutID))
	return nil
}

// FormatAmount renders minor units, e.g. 1200 usd becomes "$12.00".
func FormatAmount(minor int64, currency string) string {
	value := decimal.New(minor, -2).StringFixed(2)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return "$" + value
	}
	return value + " " + currency
}

func FormatPeriod(start, end *time.Time) string {
	const layout = "Jan 2, 2006"
	switch {
	case start != nil && end != nil:
		return fmt.Sprintf("from %s to %s", start.UTC().Format(layout), end.UTC().Format(layout))
	case start != nil:
		return "since " + start.UTC().Format(layout)
	case end != nil:
		return "until " + end.UTC().Format(layout)
	default:
		return ""
	}
}
