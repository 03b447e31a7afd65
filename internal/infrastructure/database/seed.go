package database

import (
	"log"

	"mysticoracle/internal/model"

	"gorm.io/gorm"
)

// defaultPackages 首次启动时的默认套餐
// 上线后运营直接改表，这里只保证空库能跑起来
var defaultPackages = []model.CreditPackage{
	{Credits: 3, PriceCents: 299, Currency: "USD", LabelKey: "package_starter", SortOrder: 1, Active: true},
	{Credits: 10, PriceCents: 799, Currency: "USD", LabelKey: "package_basic", DiscountPercent: 20, SortOrder: 2, Active: true},
	{Credits: 25, PriceCents: 1699, Currency: "USD", LabelKey: "package_popular", DiscountPercent: 32, Badge: "popular", SortOrder: 3, Active: true},
	{Credits: 60, PriceCents: 3499, Currency: "USD", LabelKey: "package_value", DiscountPercent: 42, Badge: "best_value", SortOrder: 4, Active: true},
}

// SeedPackages 套餐表为空时写入默认套餐
func SeedPackages(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.CreditPackage{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if err := db.Create(&defaultPackages).Error; err != nil {
		return err
	}

	log.Printf("[Database] 已写入 %d 个默认套餐", len(defaultPackages))
	return nil
}
