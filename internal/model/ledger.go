package model

import (
	"time"
)

// ============================================================================
// 账变类型常量
// ============================================================================

const (
	EventCategorySignupBonus     = "SIGNUP_BONUS"           // 注册赠送
	EventCategoryPurchase        = "PURCHASE"               // 充值购买
	EventCategoryDailyBonus      = "DAILY_BONUS"            // 每日签到赠送
	EventCategoryReferral        = "REFERRAL"               // 邀请奖励
	EventCategoryReadingSpend    = "READING_SPEND"          // 牌阵解读消耗
	EventCategoryFollowUpSpend   = "FOLLOWUP_SPEND"         // 追问消耗
	EventCategoryQuestionSummary = "QUESTION_SUMMARY_SPEND" // 问题提炼消耗
	EventCategoryAdminAdjust     = "ADMIN_ADJUST"           // 后台人工调整
)

// SpendCategories 消耗类账变类型（导出个人消费记录时按这个过滤）
var SpendCategories = []string{
	EventCategoryReadingSpend,
	EventCategoryFollowUpSpend,
	EventCategoryQuestionSummary,
}

// ============================================================================
// 账变流水实体
// ============================================================================

// LedgerEvent 占卜币账变流水表
// 记录账户的每一笔余额变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. IdempotencyKey 唯一索引 —— 同一笔支付/请求只能入账一次，
//    支付回调和用户主动查证谁先到谁入账，后到的落在唯一索引上变成 no-op
type LedgerEvent struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"event_no"` // 流水号（全局唯一）
	UserID         int64     `gorm:"index;not null" json:"user_id"`
	Amount         int64     `gorm:"not null" json:"amount"`                                     // 正数入账，负数出账
	Category       string    `gorm:"type:varchar(32);index;not null" json:"category"`            // 账变类型
	Description    string    `gorm:"type:varchar(256)" json:"description"`                       // 备注
	IdempotencyKey *string   `gorm:"type:varchar(128);uniqueIndex" json:"idempotency_key"`       // 幂等键，可空
	ProviderRef    string    `gorm:"type:varchar(128);index" json:"provider_ref"`                // 支付渠道侧单号，可空
	BalanceBefore  int64     `gorm:"not null" json:"balance_before"`                             // 账变前余额
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`                              // 账变后余额
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEvent) TableName() string {
	return "ledger_event"
}
