package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mysticoracle/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCardTestServer(t *testing.T, handler http.HandlerFunc) (*CardGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw := NewCardGateway(&config.CardProviderConfig{
		BaseURL:        srv.URL,
		SecretKey:      "sk_test_123",
		WebhookSecret:  "whsec_test",
		SuccessURL:     "https://app.example.com/success",
		CancelURL:      "https://app.example.com/cancel",
		TimeoutSeconds: 2,
	})
	return gw, srv
}

func TestCardCreateCheckout(t *testing.T) {
	gw, _ := newCardTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(799), req["amount_cents"])
		assert.Equal(t, "CHK123", req["reference"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":  "sess_abc",
			"url": "https://pay.example.com/s/abc",
		})
	})

	session, err := gw.CreateCheckout(context.Background(), &CheckoutRequest{
		CheckoutNo:  "CHK123",
		AmountCents: 799,
		Currency:    "USD",
		Description: "占卜币套餐-10币",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess_abc", session.ProviderRef)
	assert.Equal(t, "https://pay.example.com/s/abc", session.RedirectURL)
}

func TestCardVerifyPayment(t *testing.T) {
	cases := []struct {
		providerStatus string
		want           string
	}{
		{"paid", VerifyStatusSucceeded},
		{"failed", VerifyStatusFailed},
		{"canceled", VerifyStatusCancelled},
		{"expired", VerifyStatusCancelled},
		{"unpaid", VerifyStatusPending},
	}

	for _, tc := range cases {
		gw, _ := newCardTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/checkout/sessions/sess_abc", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":             "sess_abc",
				"payment_status": tc.providerStatus,
				"amount_cents":   799,
			})
		})

		result, err := gw.VerifyPayment(context.Background(), "sess_abc")
		require.NoError(t, err)
		assert.Equal(t, tc.want, result.Status, "渠道状态 %s", tc.providerStatus)
		assert.Equal(t, int64(799), result.AmountCents)
	}
}

func TestCardVerifyUnreachableIsUnknown(t *testing.T) {
	gw, srv := newCardTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := gw.VerifyPayment(context.Background(), "sess_abc")
	assert.ErrorIs(t, err, ErrVerifyUnknown)
}

func TestCardVerifyServerErrorIsUnknown(t *testing.T) {
	gw, _ := newCardTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := gw.VerifyPayment(context.Background(), "sess_abc")
	assert.ErrorIs(t, err, ErrVerifyUnknown)
}

func signCardPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCardParseWebhook(t *testing.T) {
	gw, _ := newCardTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	payload := []byte(`{"type":"checkout.session.completed","data":{"session_id":"sess_abc","payment_status":"paid"}}`)
	headers := http.Header{}
	headers.Set("X-Webhook-Signature", signCardPayload("whsec_test", payload))

	event, err := gw.ParseWebhook(payload, headers)
	require.NoError(t, err)
	assert.Equal(t, "sess_abc", event.ProviderRef)
	assert.Equal(t, VerifyStatusSucceeded, event.Status)
}

func TestCardParseWebhookRejectsBadSignature(t *testing.T) {
	gw, _ := newCardTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	payload := []byte(`{"type":"checkout.session.completed","data":{"session_id":"sess_abc","payment_status":"paid"}}`)

	// 没有签名头
	_, err := gw.ParseWebhook(payload, http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// 签名不匹配
	headers := http.Header{}
	headers.Set("X-Webhook-Signature", signCardPayload("wrong_secret", payload))
	_, err = gw.ParseWebhook(payload, headers)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// payload 被篡改
	headers.Set("X-Webhook-Signature", signCardPayload("whsec_test", payload))
	tampered := []byte(`{"type":"checkout.session.completed","data":{"session_id":"sess_EVIL","payment_status":"paid"}}`)
	_, err = gw.ParseWebhook(tampered, headers)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
