package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/partnerpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chargePayload = `{
	"id": "evt_123",
	"object": "event",
	"type": "charge.succeeded",
	"data": {"object": {
		"id": "ch_1",
		"object": "charge",
		"receipt_url": "https://pay.stripe.com/receipts/ch_1",
		"transfer_group": "inv_1",
		"payment_method_details": {"type": "card", "card": {"brand": "visa"}}
	}}
}`

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(chargePayload)
	timestamp := time.Now().Unix()

	reqHeader := http.Header{}
	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader(secret, payload, timestamp))

	adapter := &Adapter{webhookSecret: secret}
	event, err := adapter.Verify(context.Background(), payload, reqHeader)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, "charge.succeeded", event.Type)
	assert.NotEmpty(t, event.Object)

	reqHeader.Set(SignatureHeader, buildStripeSignatureHeader("wrong", payload, timestamp))
	_, err = adapter.Verify(context.Background(), payload, reqHeader)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	_, err = adapter.Verify(context.Background(), payload, http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestFactoryRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Provider: ProviderName})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestParseCharge(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test"}

	tests := []struct {
		name    string
		object  string
		wantACH bool
	}{{
		name:   "card",
		object: `{"id":"ch_1","receipt_url":"https://r/1","transfer_group":"inv_1","payment_method_details":{"type":"card"}}`,
	}, {
		name:    "ach credit transfer details",
		object:  `{"id":"ch_1","receipt_url":"https://r/1","transfer_group":"inv_1","payment_method_details":{"ach_credit_transfer":{"bank_name":"TEST BANK"}}}`,
		wantACH: true,
	}, {
		name:    "ach credit transfer type",
		object:  `{"id":"ch_1","receipt_url":"https://r/1","transfer_group":"inv_1","payment_method_details":{"type":"ach_credit_transfer"}}`,
		wantACH: true,
	}, {
		name:   "null ach details",
		object: `{"id":"ch_1","receipt_url":"https://r/1","transfer_group":"inv_1","payment_method_details":{"type":"card","ach_credit_transfer":null}}`,
	}, {
		name:   "no payment method details",
		object: `{"id":"ch_1","receipt_url":"https://r/1","transfer_group":"inv_1"}`,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			charge, err := adapter.ParseCharge(&paymentdomain.ProviderEvent{
				ID:     "evt_1",
				Type:   paymentdomain.EventTypeChargeSucceeded,
				Object: []byte(tt.object),
			})
			require.NoError(t, err)
			assert.Equal(t, "ch_1", charge.ChargeID)
			assert.Equal(t, "inv_1", charge.TransferGroup)
			assert.Equal(t, "https://r/1", charge.ReceiptURL)
			assert.Equal(t, tt.wantACH, charge.ACHCreditTransfer)
		})
	}
}

func TestParseChargeWithoutTransferGroup(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test"}
	charge, err := adapter.ParseCharge(&paymentdomain.ProviderEvent{Object: []byte(`{"id":"ch_2"}`)})
	require.NoError(t, err)
	assert.Empty(t, charge.TransferGroup)

	_, err = adapter.ParseCharge(&paymentdomain.ProviderEvent{Object: []byte(`{}`)})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}

func TestDecodeStoredPayload(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec_test"}
	event, err := adapter.Decode([]byte(chargePayload))
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)

	charge, err := adapter.ParseCharge(event)
	require.NoError(t, err)
	assert.Equal(t, "inv_1", charge.TransferGroup)
	assert.False(t, charge.ACHCreditTransfer)

	_, err = adapter.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
