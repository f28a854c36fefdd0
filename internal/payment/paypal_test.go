package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayPal struct {
	tokenCalls   atomic.Int32
	captureState string
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		f.tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CAPTURE", req.Intent)
		assert.Equal(t, "9.99", req.PurchaseUnits[0].Amount.Value)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORD-1","status":"CREATED"}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "ORD-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND","message":"order missing"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"ORD-1","status":"` + f.captureState + `"}`))
	})
	return mux
}

func newTestPayPal(t *testing.T, fake *fakePayPal) *PayPal {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	p, err := NewPayPal(PayPalOptions{ClientID: "client", ClientSecret: "secret", BaseURL: srv.URL})
	require.NoError(t, err)
	return p
}

func TestPayPalCreateAndCapture(t *testing.T) {
	fake := &fakePayPal{captureState: "COMPLETED"}
	p := newTestPayPal(t, fake)
	ctx := context.Background()

	ref, err := p.CreateOrder(ctx, Order{Amount: "9.99", Currency: "USD", Description: "Pro"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", ref)

	status, err := p.CaptureOrder(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "token should be cached between calls")
}

func TestPayPalCapturePending(t *testing.T) {
	p := newTestPayPal(t, &fakePayPal{captureState: "PENDING"})
	status, err := p.CaptureOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.NotEqual(t, StatusCompleted, status)
}

func TestPayPalCaptureUnknownOrder(t *testing.T) {
	p := newTestPayPal(t, &fakePayPal{captureState: "COMPLETED"})
	_, err := p.CaptureOrder(context.Background(), "ORD-404")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESOURCE_NOT_FOUND")
}

func TestNewPayPalRequiresCredentials(t *testing.T) {
	_, err := NewPayPal(PayPalOptions{ClientID: "only-id"})
	require.Error(t, err)
}
