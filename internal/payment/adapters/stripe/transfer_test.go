package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	payoutdomain "github.com/smallbiznis/partnerpay/internal/payout/domain"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTransferParams(t *testing.T) {
	params := buildTransferParams(payoutdomain.TransferRequest{
		Amount:            500,
		Currency:          "usd",
		Destination:       "acct_1",
		TransferGroup:     "inv_1",
		SourceTransaction: "ch_1",
		Description:       "Partners payout (Acme)",
		IdempotencyKey:    "payout_po_1",
		Metadata:          map[string]string{"payout_id": "po_1"},
	})

	assert.Equal(t, int64(500), *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.Equal(t, "acct_1", *params.Destination)
	assert.Equal(t, "inv_1", *params.TransferGroup)
	assert.Equal(t, "ch_1", *params.SourceTransaction)
	assert.Equal(t, "payout_po_1", *params.IdempotencyKey)
	assert.Equal(t, "po_1", params.Metadata["payout_id"])
}

func TestBuildTransferParamsOmitsSourceTransaction(t *testing.T) {
	params := buildTransferParams(payoutdomain.TransferRequest{
		Amount:        500,
		Currency:      "usd",
		Destination:   "acct_1",
		TransferGroup: "inv_1",
	})
	assert.Nil(t, params.SourceTransaction)
	assert.Nil(t, params.IdempotencyKey)
}

func TestClassifyTransferError(t *testing.T) {
	rejected := classifyTransferError(&stripego.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "No such destination"})
	assert.ErrorIs(t, rejected, payoutdomain.ErrTransferRejected)
	assert.Contains(t, rejected.Error(), "No such destination")

	for _, status := range []int{http.StatusTooManyRequests, http.StatusConflict, http.StatusInternalServerError} {
		err := classifyTransferError(&stripego.Error{HTTPStatusCode: status})
		assert.ErrorIs(t, err, payoutdomain.ErrTransferFailed, "status %d", status)
		assert.NotErrorIs(t, err, payoutdomain.ErrTransferRejected)
	}

	assert.ErrorIs(t, classifyTransferError(errors.New("connection reset")), payoutdomain.ErrTransferFailed)
}

func TestCreateTransferAgainstAPI(t *testing.T) {
	var gotForm map[string]string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transfers", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"amount":             r.PostForm.Get("amount"),
			"destination":        r.PostForm.Get("destination"),
			"source_transaction": r.PostForm.Get("source_transaction"),
		}
		gotKey = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"tr_123","object":"transfer","amount":500,"currency":"usd"}`))
	}))
	defer srv.Close()

	client := NewTransferClient(newTestClient(srv.URL))
	transfer, err := client.CreateTransfer(context.Background(), payoutdomain.TransferRequest{
		Amount:            500,
		Currency:          "usd",
		Destination:       "acct_1",
		TransferGroup:     "inv_1",
		SourceTransaction: "ch_1",
		IdempotencyKey:    "payout_po_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_123", transfer.ID)
	assert.Equal(t, "500", gotForm["amount"])
	assert.Equal(t, "acct_1", gotForm["destination"])
	assert.Equal(t, "ch_1", gotForm["source_transaction"])
	assert.Equal(t, "payout_po_1", gotKey)
}

func TestCreateTransferRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such destination: 'acct_x'"}}`))
	}))
	defer srv.Close()

	client := NewTransferClient(newTestClient(srv.URL))
	_, err := client.CreateTransfer(context.Background(), payoutdomain.TransferRequest{
		Amount:        500,
		Currency:      "usd",
		Destination:   "acct_x",
		TransferGroup: "inv_1",
	})
	assert.ErrorIs(t, err, payoutdomain.ErrTransferRejected)
}

func TestCreateTransferWithoutClient(t *testing.T) {
	_, err := NewTransferClient(nil).CreateTransfer(context.Background(), payoutdomain.TransferRequest{})
	assert.ErrorIs(t, err, payoutdomain.ErrTransferClientMissing)
}

func newTestClient(url string) *stripego.Client {
	backends := stripego.NewBackendsWithConfig(&stripego.BackendConfig{
		URL:               stripego.String(url),
		MaxNetworkRetries: stripego.Int64(0),
	})
	return stripego.NewClient("sk_test_123", stripego.WithBackends(backends))
}
