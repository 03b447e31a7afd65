package gateway

import (
	"context"
	"errors"
	"net/http"
)

// ============================================================================
// 支付渠道适配层
// ============================================================================
//
// 两个渠道（卡支付/钱包支付）抹平到同一个契约后面，入账逻辑不关心钱从哪来。
// 渠道侧的确认有两条路径：用户回跳后的主动查证 + 渠道异步 webhook，
// 两条路径都归一成 VerifyResult，由上层用幂等键保证只入账一次。

var (
	// ErrVerifyUnknown 查证超时/网络异常，支付结果未知
	// 【重要】这不等于支付失败！渠道侧可能已经扣款成功，
	// 绝不能向用户宣告"支付失败"，只能引导稍后查看余额
	ErrVerifyUnknown = errors.New("支付结果未知")
)

// 渠道侧归一化状态
const (
	VerifyStatusSucceeded = "SUCCEEDED"
	VerifyStatusPending   = "PENDING"
	VerifyStatusFailed    = "FAILED"
	VerifyStatusCancelled = "CANCELLED"
)

// CheckoutRequest 创建收银台的入参
type CheckoutRequest struct {
	CheckoutNo  string // 我方充值单号，透传给渠道做对账引用
	UserID      int64
	Credits     int64
	AmountCents int64
	Currency    string
	Description string
}

// CheckoutSession 渠道创建收银台的归一化结果
type CheckoutSession struct {
	ProviderRef string // 渠道侧 session/order id，后续查证的关联键
	RedirectURL string // 托管收银台跳转地址
}

// VerifyResult 渠道支付结果的归一化形态
type VerifyResult struct {
	Status      string // VerifyStatus* 之一
	ProviderRef string
	AmountCents int64
}

// WebhookEvent 渠道异步通知解析结果
type WebhookEvent struct {
	ProviderRef string
	Status      string
}

// PaymentGateway 支付渠道契约
type PaymentGateway interface {
	Provider() string

	// CreateCheckout 创建托管收银台，返回跳转地址和渠道侧单号
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)

	// VerifyPayment 同步查证支付结果
	// 网络/渠道异常返回 ErrVerifyUnknown，调用方不得据此判定失败
	VerifyPayment(ctx context.Context, providerRef string) (*VerifyResult, error)

	// ParseWebhook 验签并解析渠道异步通知
	ParseWebhook(payload []byte, headers http.Header) (*WebhookEvent, error)
}

// Registry 渠道注册表
type Registry struct {
	gateways map[string]PaymentGateway
}

func NewRegistry(gateways ...PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[string]PaymentGateway)}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}
	return r
}

func (r *Registry) Get(provider string) (PaymentGateway, bool) {
	g, ok := r.gateways[provider]
	return g, ok
}
