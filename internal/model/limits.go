package model

import (
	"time"
)

// SpendingLimit 消费限额配置表（每用户一行）
// 三个周期限额互相独立，nil 表示不限；金额约束真金白银消费（分），不约束占卜币
//
// 【不变式】限额一旦设置立即对后续购买生效，不追溯历史消费
type SpendingLimit struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	DailyCents   *int64    `json:"daily_cents"`   // 日限额，nil = 不限
	WeeklyCents  *int64    `json:"weekly_cents"`  // 周限额，nil = 不限
	MonthlyCents *int64    `json:"monthly_cents"` // 月限额，nil = 不限
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SpendingLimit) TableName() string {
	return "spending_limit"
}

// 限额周期
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// SelfExclusion 自我排除记录表（每用户一行）
// 用户主动给自己上的购买封锁，负责任消费功能的一部分
//
// 【不变式】开启后在 EndAt 之前不允许解除（EndAt 为 nil 表示无限期，永远不能解除）
// 这是有意设计的摩擦，不是 bug。到期不做后台清理，消费时惰性判断
type SelfExclusion struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	Enabled   bool       `gorm:"not null;default:false" json:"enabled"`
	StartAt   *time.Time `json:"start_at"`
	EndAt     *time.Time `json:"end_at"` // nil = 无限期
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SelfExclusion) TableName() string {
	return "self_exclusion"
}

// ActiveAt 判断自我排除在指定时刻是否生效
func (e *SelfExclusion) ActiveAt(now time.Time) bool {
	if e == nil || !e.Enabled {
		return false
	}
	if e.EndAt == nil {
		return true
	}
	return now.Before(*e.EndAt)
}
