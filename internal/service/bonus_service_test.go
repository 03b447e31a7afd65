package service

import (
	"context"
	"testing"
	"time"

	"mysticoracle/internal/model"
	"mysticoracle/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyBonusOncePerDay(t *testing.T) {
	db := newTestDB(t)
	svc := NewBonusService(db, testConfig())
	ctx := context.Background()
	day1 := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	event, duplicate, err := svc.ClaimDailyBonus(ctx, 100, day1)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, int64(1), event.Amount)

	// 当天再领是 no-op
	_, duplicate, err = svc.ClaimDailyBonus(ctx, 100, day1.Add(5*time.Hour))
	require.NoError(t, err)
	assert.True(t, duplicate)

	// 过了 UTC 零点解锁
	_, duplicate, err = svc.ClaimDailyBonus(ctx, 100, day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, duplicate)

	ledger := NewLedgerService(db, testConfig())
	account, err := ledger.GetAccount(ctx, 100)
	require.NoError(t, err)
	// 注册赠送 3 + 签到 2 天
	assert.Equal(t, int64(5), account.Balance)
}

func TestCreditPublishesGrantedEvent(t *testing.T) {
	db := newTestDB(t)
	svc := NewBonusService(db, testConfig())
	ctx := context.Background()

	event, _, err := svc.ClaimDailyBonus(ctx, 110, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// 每笔入账（注册赠送 + 签到）同事务写一条 credit.granted，幂等命中不会再写
	var messages []model.OutboxMessage
	require.NoError(t, db.Where("topic = ?", "credit.granted").Order("id").Find(&messages).Error)
	require.Len(t, messages, 2)
	assert.Equal(t, event.EventNo, messages[1].MessageKey)
	assert.Equal(t, model.OutboxStatusPending, messages[1].Status)
	assert.Contains(t, messages[1].Payload, `"category":"DAILY_BONUS"`)

	_, duplicate, err := svc.ClaimDailyBonus(ctx, 110, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, duplicate)
	var count int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("topic = ?", "credit.granted").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestReferralRewardedOncePerPair(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	svc := NewBonusService(db, cfg)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	require.NoError(t, svc.ApplyReferral(ctx, 201, 202))

	referrer, err := ledger.GetAccount(ctx, 201)
	require.NoError(t, err)
	referee, err := ledger.GetAccount(ctx, 202)
	require.NoError(t, err)
	assert.Equal(t, int64(3+5), referrer.Balance)
	assert.Equal(t, int64(3+3), referee.Balance)

	// 同一对用户重复提交不再加钱
	require.NoError(t, svc.ApplyReferral(ctx, 201, 202))

	referrer, err = ledger.GetAccount(ctx, 201)
	require.NoError(t, err)
	assert.Equal(t, int64(8), referrer.Balance)

	// 邀请自己直接拒绝
	assert.Error(t, svc.ApplyReferral(ctx, 203, 203))
}

func TestAdminAdjust(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	svc := NewBonusService(db, cfg)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	_, err := svc.AdminAdjust(ctx, 300, 10, "")
	assert.Error(t, err, "缺原因必须拒绝")
	_, err = svc.AdminAdjust(ctx, 300, 0, "零金额")
	assert.Error(t, err)

	event, err := svc.AdminAdjust(ctx, 300, 10, "客诉补偿")
	require.NoError(t, err)
	assert.Equal(t, int64(10), event.Amount)

	event, err = svc.AdminAdjust(ctx, 300, -5, "误发回收")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), event.Amount)
	assert.Equal(t, model.EventCategoryAdminAdjust, event.Category)

	// 扣减不能把余额打成负数
	_, err = svc.AdminAdjust(ctx, 300, -100, "超额回收")
	assert.ErrorIs(t, err, repository.ErrInsufficientCredit)

	account, err := ledger.GetAccount(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(3+10-5), account.Balance)

	result, err := ledger.Reconcile(ctx, 300)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
}
