package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/smallbiznis/partnerpay/internal/config"
	payoutdomain "github.com/smallbiznis/partnerpay/internal/payout/domain"
	stripego "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// TransferClient creates Connect transfers to partner accounts.
type TransferClient struct {
	client *stripego.Client
}

func NewTransferClient(client *stripego.Client) *TransferClient {
	return &TransferClient{client: client}
}

// ProvideTransferClient returns a client backed by the configured secret key.
func ProvideTransferClient(cfg config.Config, log *zap.Logger) payoutdomain.TransferClient {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key == "" {
		log.Named("payment.stripe").Warn("STRIPE_SECRET_KEY not set, partner transfers will fail")
		return NewTransferClient(nil)
	}
	return NewTransferClient(stripego.NewClient(key))
}

func (c *TransferClient) CreateTransfer(ctx context.Context, req payoutdomain.TransferRequest) (*payoutdomain.Transfer, error) {
	if c == nil || c.client == nil {
		return nil, payoutdomain.ErrTransferClientMissing
	}
	transfer, err := c.client.V1Transfers.Create(ctx, buildTransferParams(req))
	if err != nil {
		return nil, classifyTransferError(err)
	}
	return &payoutdomain.Transfer{ID: transfer.ID}, nil
}

func buildTransferParams(req payoutdomain.TransferRequest) *stripego.TransferCreateParams {
	params := &stripego.TransferCreateParams{
		Amount:        stripego.Int64(req.Amount),
		Currency:      stripego.String(req.Currency),
		Destination:   stripego.String(req.Destination),
		TransferGroup: stripego.String(req.TransferGroup),
	}
	if req.Description != "" {
		params.Description = stripego.String(req.Description)
	}
	if req.SourceTransaction != "" {
		params.SourceTransaction = stripego.String(req.SourceTransaction)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	return params
}

// classifyTransferError separates definite rejections from unknown outcomes.
// Rate limits and idempotency conflicts are retried with the same key.
func classifyTransferError(err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		status := stripeErr.HTTPStatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusConflict {
			return fmt.Errorf("%w: %s", payoutdomain.ErrTransferRejected, stripeErr.Msg)
		}
	}
	return fmt.Errorf("%w: %v", payoutdomain.ErrTransferFailed, err)
}
