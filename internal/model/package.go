package model

import (
	"time"
)

// CreditPackage 占卜币套餐表（目录数据，不属于某个用户）
//
// 【不变式】同一个套餐ID只有一个生效价格；下架套餐不可购买，
// 但历史充值单仍然引用它，所以只改 Active 标记，不删除记录
type CreditPackage struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Credits         int64     `gorm:"not null" json:"credits"`                           // 到账占卜币数
	PriceCents      int64     `gorm:"not null" json:"price_cents"`                       // 价格，分为单位
	Currency        string    `gorm:"type:varchar(8);not null;default:CNY" json:"currency"`
	LabelKey        string    `gorm:"type:varchar(64);not null" json:"label_key"`        // 展示名的 i18n key
	DiscountPercent int       `gorm:"not null;default:0" json:"discount_percent"`        // 折扣百分比，仅展示用
	Badge           string    `gorm:"type:varchar(32)" json:"badge"`                     // 促销角标，如 popular / best_value
	Active          bool      `gorm:"not null;default:true;index" json:"active"`
	SortOrder       int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditPackage) TableName() string {
	return "credit_package"
}
