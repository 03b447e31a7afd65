package service

import (
	"fmt"
	"testing"

	"mysticoracle/internal/config"
	"mysticoracle/internal/infrastructure/database"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库
// DSN 必须带 cache=shared：gorm 连接池里每个连接各自打开内存库，
// 事务走新连接时会看到一张表都没有；按测试名隔离避免互相串库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存库失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("建表失败: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			SignupGrantCredits:     3,
			DailyBonusCredits:      1,
			ReferralRewardCredits:  5,
			ReferralRefereeCredits: 3,
			SpreadCosts: map[string]int64{
				"single":       1,
				"three_card":   3,
				"celtic_cross": 5,
			},
			FollowUpCost:           1,
			ExtendedQuestionCost:   2,
			QuestionSummaryCost:    1,
			CheckoutTimeoutMinutes: 30,
			MaxRetryCount:          5,
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				CreditGranted: "credit.granted",
				PaymentResult: "payment.result",
			},
		},
	}
}

func int64Ptr(v int64) *int64 { return &v }
