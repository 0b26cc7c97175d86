package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPayoutTemplate(t *testing.T) {
	body, err := Render("partner_payout_sent", map[string]any{
		"ProgramName": "Acme <Partners>",
		"Amount":      "$12.00",
		"Period":      "from Jan 1, 2026 to Jan 31, 2026",
		"PayoutID":    "po_1",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Acme &lt;Partners&gt;")
	assert.Contains(t, body, "$12.00")
	assert.Contains(t, body, "po_1")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestSMTPSendUsesEnvelopeAddress(t *testing.T) {
	var gotFrom string
	var gotTo []string
	var gotMsg []byte
	p := NewSMTP(Config{Host: "smtp.local", Port: 2525, From: "noreply@partnerpay.dev"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.local:2525", addr)
		assert.Nil(t, a)
		gotFrom, gotTo, gotMsg = from, to, msg
		return nil
	}

	err := p.Send(context.Background(), Message{
		From:     "Partners <system@partnerpay.dev>",
		To:       []string{"jane@example.com"},
		Subject:  "You've been paid!",
		HTMLBody: "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "system@partnerpay.dev", gotFrom)
	assert.Equal(t, []string{"jane@example.com"}, gotTo)
	raw := string(gotMsg)
	assert.Contains(t, raw, "Subject: You've been paid!\r\n")
	assert.True(t, strings.HasSuffix(raw, "<p>hi</p>"))
}

func TestSMTPSendRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 25, From: "a@b.c"})
	assert.ErrorIs(t, p.Send(context.Background(), Message{}), ErrNoRecipients)
}
