package model

import (
	"time"
)

// CreditAccount 用户占卜币账户表
// 记录用户的占卜币余额，整个付费体系的核心数据
//
// 【不变式】Balance == TotalEarned - TotalSpent，且 Balance 永远 >= 0
// 余额同时可以由流水表重新算出（见 LedgerEvent），用于对账
type CreditAccount struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex;not null" json:"user_id"`      // 用户ID，身份服务返回
	Balance     int64     `gorm:"not null;default:0" json:"balance"`        // 可用占卜币
	TotalEarned int64     `gorm:"not null;default:0" json:"total_earned"`   // 累计获得
	TotalSpent  int64     `gorm:"not null;default:0" json:"total_spent"`    // 累计消耗
	Version     int       `gorm:"not null;default:0" json:"version"`        // 乐观锁版本号
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditAccount) TableName() string {
	return "credit_account"
}
