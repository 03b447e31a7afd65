package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/model"
)

// ============================================================================
// 钱包支付渠道适配器
// ============================================================================
//
// 订单模式：创建 order 拿 approve 链接，用户在钱包侧授权，
// 结果通过查单接口确认。钱包渠道的 webhook 不带本地可验的签名，
// 所以通知只当作触发器，拿到单号后一律回渠道查单确认，不信通知本身。

type WalletGateway struct {
	cfg    *config.WalletProviderConfig
	client *http.Client
}

func NewWalletGateway(cfg *config.WalletProviderConfig) *WalletGateway {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WalletGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *WalletGateway) Provider() string {
	return model.ProviderWallet
}

type walletOrderRequest struct {
	Reference string `json:"reference"`
	Amount    struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
}

type walletOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

func (g *WalletGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	orderReq := &walletOrderRequest{
		Reference:   req.CheckoutNo,
		Description: req.Description,
		ReturnURL:   g.cfg.ReturnURL,
		CancelURL:   g.cfg.CancelURL,
	}
	// 钱包渠道金额是带两位小数的字符串
	orderReq.Amount.Value = fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100)
	orderReq.Amount.Currency = req.Currency

	body, err := json.Marshal(orderReq)
	if err != nil {
		return nil, err
	}

	var resp walletOrderResponse
	if err := g.call(ctx, http.MethodPost, "/v2/checkout/orders", body, &resp); err != nil {
		return nil, err
	}

	approveURL := ""
	for _, link := range resp.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
		}
	}
	if approveURL == "" {
		return nil, errors.New("钱包渠道未返回跳转链接")
	}

	return &CheckoutSession{
		ProviderRef: resp.ID,
		RedirectURL: approveURL,
	}, nil
}

func (g *WalletGateway) VerifyPayment(ctx context.Context, providerRef string) (*VerifyResult, error) {
	var resp walletOrderResponse
	err := g.call(ctx, http.MethodGet, "/v2/checkout/orders/"+providerRef, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifyUnknown, err)
	}

	return &VerifyResult{
		Status:      normalizeWalletStatus(resp.Status),
		ProviderRef: resp.ID,
		AmountCents: parseWalletAmount(resp.Amount.Value),
	}, nil
}

type walletWebhookPayload struct {
	EventType string `json:"event_type"`
	Resource  struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"resource"`
}

// ParseWebhook 解析钱包渠道通知
// 只取出单号，状态一律标记 PENDING，让上层回渠道查单拿权威结果
func (g *WalletGateway) ParseWebhook(payload []byte, headers http.Header) (*WebhookEvent, error) {
	var event walletWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if event.Resource.OrderID == "" {
		return nil, errors.New("webhook 缺少 order_id")
	}

	return &WebhookEvent{
		ProviderRef: event.Resource.OrderID,
		Status:      VerifyStatusPending,
	}, nil
}

func normalizeWalletStatus(status string) string {
	switch status {
	case "COMPLETED":
		return VerifyStatusSucceeded
	case "VOIDED", "DECLINED":
		return VerifyStatusFailed
	case "CANCELLED":
		return VerifyStatusCancelled
	default:
		// CREATED / APPROVED 等中间态
		return VerifyStatusPending
	}
}

func parseWalletAmount(value string) int64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}

func (g *WalletGateway) call(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.Secret)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("钱包渠道返回异常状态: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
