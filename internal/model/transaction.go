package model

import (
	"time"
)

const (
	CheckoutStatusPending   = "PENDING"
	CheckoutStatusSucceeded = "SUCCEEDED"
	CheckoutStatusFailed    = "FAILED"
	CheckoutStatusCancelled = "CANCELLED"
)

// ValidStatusTransitions 充值单状态机
// 状态单向流转：PENDING 是唯一非终态，三个终态之间不能互转
// 占卜币到账只发生在 PENDING -> SUCCEEDED 这一次迁移上
var ValidStatusTransitions = map[string][]string{
	CheckoutStatusPending: {CheckoutStatusSucceeded, CheckoutStatusFailed, CheckoutStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

const (
	ProviderCard   = "CARD"   // 卡支付渠道（托管收银台）
	ProviderWallet = "WALLET" // 钱包支付渠道
)

// PaymentTransaction 充值单表
// 一次真金白银的购买意向，从发起收银台到渠道确认的完整生命周期
//
// 【关键点】CheckoutNo 同时是占卜币入账的幂等键：
// 渠道回调和用户主动查证两条路径都会触发入账，靠它保证只到账一次
type PaymentTransaction struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CheckoutNo     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"checkout_no"`
	UserID         int64      `gorm:"index;not null" json:"user_id"`
	Provider       string     `gorm:"type:varchar(16);not null" json:"provider"`              // CARD / WALLET
	ProviderRef    string     `gorm:"type:varchar(128);index" json:"provider_ref"`            // 渠道侧 session/order id
	PackageID      int64      `gorm:"not null" json:"package_id"`
	Credits        int64      `gorm:"not null" json:"credits"`                                // 下单时快照的到账币数
	PriceCents     int64      `gorm:"not null" json:"price_cents"`                            // 下单时快照的价格
	Currency       string     `gorm:"type:varchar(8);not null" json:"currency"`
	Status         string     `gorm:"type:varchar(20);index;not null" json:"status"`
	CreditsGranted int64      `gorm:"not null;default:0" json:"credits_granted"`              // 仅成功时写入
	FailReason     string     `gorm:"type:varchar(256)" json:"fail_reason"`
	ExpiredAt      time.Time  `gorm:"not null" json:"expired_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transaction"
}
