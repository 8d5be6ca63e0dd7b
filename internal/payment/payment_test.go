package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	sig := Sign("s3cret", "order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature("s3cret", "order_1", "pay_1", sig))
	assert.True(t, VerifySignature("s3cret", "order_1", "pay_1", strings.ToUpper(sig)))

	assert.False(t, VerifySignature("other", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("s3cret", "order_1", "pay_2", sig))
	assert.False(t, VerifySignature("s3cret", "order_1", "pay_1", sig[:62]+"00"))
	assert.False(t, VerifySignature("s3cret", "order_1", "pay_1", "not-hex"))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(10000), MinorUnits(decimal.NewFromInt(100)))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), MinorUnits(decimal.RequireFromString("9.995")))
}

func TestClient_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		var in CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, CreateOrderRequest{Amount: 10000, Currency: "INR", Receipt: "receipt_c1", PaymentCapture: true}, in)

		_ = json.NewEncoder(w).Encode(GatewayOrder{ID: "order_abc", Status: "created", Amount: in.Amount, Currency: in.Currency, Receipt: in.Receipt})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key_id", "key_secret", time.Second)
	out, err := c.CreateOrder(context.Background(), CreateOrderRequest{Amount: 10000, Currency: "INR", Receipt: "receipt_c1", PaymentCapture: true})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", out.ID)
}

func TestClient_CreateOrderFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, `oops`, "status 500"},
		{"gateway error body", http.StatusBadRequest, `{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`, "amount too small"},
		{"not created", http.StatusOK, `{"id":"order_abc","status":"attempted"}`, `status="attempted"`},
		{"missing id", http.StatusOK, `{"status":"created"}`, `id=""`},
		{"bad json", http.StatusOK, `{`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k", "s", time.Second).CreateOrder(context.Background(), CreateOrderRequest{Amount: 1})
			require.ErrorIs(t, err, ErrUnexpectedResponse)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "k", "s", time.Second).CreateOrder(context.Background(), CreateOrderRequest{Amount: 1})
	assert.ErrorContains(t, err, "reach gateway")
}
