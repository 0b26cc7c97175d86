package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/partnerpay/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/partnerpay/internal/payout/domain"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	ProviderName    = "stripe"
	SignatureHeader = "Stripe-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.ProviderEvent, error) {
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidSignature, err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.ProviderEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Data != nil {
		out.Object = event.Data.Raw
	}
	return out, nil
}

func (a *Adapter) Decode(payload []byte) (*paymentdomain.ProviderEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return &paymentdomain.ProviderEvent{
		ID:     event.ID,
		Type:   strings.TrimSpace(event.Type),
		Object: event.Data.Object,
	}, nil
}

func (a *Adapter) ParseCharge(event *paymentdomain.ProviderEvent) (payoutdomain.ChargeEvent, error) {
	if event == nil || len(event.Object) == 0 {
		return payoutdomain.ChargeEvent{}, paymentdomain.ErrInvalidEvent
	}

	var charge stripeCharge
	if err := json.Unmarshal(event.Object, &charge); err != nil {
		return payoutdomain.ChargeEvent{}, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(charge.ID) == "" {
		return payoutdomain.ChargeEvent{}, paymentdomain.ErrInvalidEvent
	}

	return payoutdomain.ChargeEvent{
		ChargeID:          charge.ID,
		ReceiptURL:        strings.TrimSpace(charge.ReceiptURL),
		TransferGroup:     strings.TrimSpace(charge.TransferGroup),
		ACHCreditTransfer: charge.PaymentMethodDetails.isACHCreditTransfer(),
	}, nil
}

type stripeEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCharge struct {
	ID                   string                `json:"id"`
	ReceiptURL           string                `json:"receipt_url"`
	TransferGroup        string                `json:"transfer_group"`
	PaymentMethodDetails *paymentMethodDetails `json:"payment_method_details"`
}

type paymentMethodDetails struct {
	Type              string          `json:"type"`
	ACHCreditTransfer json.RawMessage `json:"ach_credit_transfer"`
}

func (d *paymentMethodDetails) isACHCreditTransfer() bool {
	if d == nil {
		return false
	}
	if strings.TrimSpace(d.Type) == "ach_credit_transfer" {
		return true
	}
	raw := strings.TrimSpace(string(d.ACHCreditTransfer))
	return raw != "" && raw != "null"
}
