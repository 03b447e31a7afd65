package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/model"
)

// ============================================================================
// 卡支付渠道适配器
// ============================================================================
//
// 托管收银台模式：创建 session 拿到跳转地址，用户在渠道页面完成支付，
// 结果通过回跳查证 + HMAC 签名的 webhook 两条路径送达。

var (
	ErrInvalidSignature = errors.New("webhook 签名校验失败")
)

type CardGateway struct {
	cfg    *config.CardProviderConfig
	client *http.Client
}

func NewCardGateway(cfg *config.CardProviderConfig) *CardGateway {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CardGateway{
		cfg: cfg,
		// 【关键点】渠道调用必须有界超时：
		// 超时不代表失败，上层把超时当"结果未知"处理，由用户稍后重新查证
		client: &http.Client{Timeout: timeout},
	}
}

func (g *CardGateway) Provider() string {
	return model.ProviderCard
}

type cardSessionRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
}

type cardSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	AmountCents   int64  `json:"amount_cents"`
}

func (g *CardGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	body, err := json.Marshal(&cardSessionRequest{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Reference:   req.CheckoutNo,
		Description: req.Description,
		SuccessURL:  g.cfg.SuccessURL,
		CancelURL:   g.cfg.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	var resp cardSessionResponse
	if err := g.post(ctx, "/v1/checkout/sessions", body, &resp); err != nil {
		return nil, err
	}

	return &CheckoutSession{
		ProviderRef: resp.ID,
		RedirectURL: resp.URL,
	}, nil
}

func (g *CardGateway) VerifyPayment(ctx context.Context, providerRef string) (*VerifyResult, error) {
	var resp cardSessionResponse
	err := g.get(ctx, "/v1/checkout/sessions/"+providerRef, &resp)
	if err != nil {
		// 网络/渠道异常一律按"结果未知"上抛
		return nil, fmt.Errorf("%w: %v", ErrVerifyUnknown, err)
	}

	return &VerifyResult{
		Status:      normalizeCardStatus(resp.PaymentStatus),
		ProviderRef: resp.ID,
		AmountCents: resp.AmountCents,
	}, nil
}

type cardWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		SessionID     string `json:"session_id"`
		PaymentStatus string `json:"payment_status"`
	} `json:"data"`
}

// ParseWebhook 校验 HMAC-SHA256 签名后解析通知
// 签名不过直接拒绝，webhook 是未鉴权入口，不能相信裸 payload
func (g *CardGateway) ParseWebhook(payload []byte, headers http.Header) (*WebhookEvent, error) {
	signature := headers.Get("X-Webhook-Signature")
	if signature == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var event cardWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if event.Data.SessionID == "" {
		return nil, errors.New("webhook 缺少 session_id")
	}

	return &WebhookEvent{
		ProviderRef: event.Data.SessionID,
		Status:      normalizeCardStatus(event.Data.PaymentStatus),
	}, nil
}

func normalizeCardStatus(status string) string {
	switch status {
	case "paid":
		return VerifyStatusSucceeded
	case "failed":
		return VerifyStatusFailed
	case "canceled", "expired":
		return VerifyStatusCancelled
	default:
		return VerifyStatusPending
	}
}

func (g *CardGateway) post(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	return g.do(req, out)
}

func (g *CardGateway) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	return g.do(req, out)
}

func (g *CardGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("卡支付渠道返回异常状态: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
