package service

import (
	"context"
	"testing"
	"time"

	"mysticoracle/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// addSucceededPurchase 直接造一笔成功充值单，金额归属 createdAt 所在窗口
func addSucceededPurchase(t *testing.T, db *gorm.DB, userID, priceCents int64, createdAt time.Time) {
	t.Helper()
	err := db.Create(&model.PaymentTransaction{
		CheckoutNo: "CHK-test-" + createdAt.Format("20060102150405.000000000"),
		UserID:     userID,
		Provider:   model.ProviderCard,
		PackageID:  1,
		Credits:    10,
		PriceCents: priceCents,
		Currency:   "USD",
		Status:     model.CheckoutStatusSucceeded,
		ExpiredAt:  createdAt.Add(30 * time.Minute),
		CreatedAt:  createdAt,
	}).Error
	require.NoError(t, err)
}

func TestSetLimitValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewLimitsService(db)
	ctx := context.Background()

	assert.Error(t, svc.SetLimit(ctx, 1, "HOURLY", int64Ptr(100)))
	assert.Error(t, svc.SetLimit(ctx, 1, model.PeriodDaily, int64Ptr(0)))
	assert.Error(t, svc.SetLimit(ctx, 1, model.PeriodDaily, int64Ptr(-100)))

	require.NoError(t, svc.SetLimit(ctx, 1, model.PeriodDaily, int64Ptr(1000)))
	// null 取消限额
	require.NoError(t, svc.SetLimit(ctx, 1, model.PeriodDaily, nil))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	statuses, err := svc.GetLimitStatus(ctx, 1, now)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.Nil(t, st.CapCents)
	}
}

func TestTierBoundaries(t *testing.T) {
	db := newTestDB(t)
	svc := NewLimitsService(db)
	ctx := context.Background()

	require.NoError(t, svc.SetLimit(ctx, 10, model.PeriodDaily, int64Ptr(100)))

	cases := []struct {
		spent int64
		tier  string
	}{
		{74, TierNone},
		{75, TierSoft},
		{99, TierSoft},
		{100, TierHard},
		{130, TierHard},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.tier, tierOf(int64Ptr(100), tc.spent), "spent=%d", tc.spent)
	}
	// 未设限永远是 none
	assert.Equal(t, TierNone, tierOf(nil, 999999))
}

func TestCheckPurchaseAllowedAgainstDailyCap(t *testing.T) {
	db := newTestDB(t)
	svc := NewLimitsService(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SetLimit(ctx, 20, model.PeriodDaily, int64Ptr(1000)))

	gdb := db
	addSucceededPurchase(t, gdb, 20, 700, now.Add(-2*time.Hour))

	// 700 + 200 = 900 <= 1000 放行
	decision, err := svc.CheckPurchaseAllowed(ctx, 20, 200, now)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// 700 + 301 = 1001 > 1000 拦截
	decision, err = svc.CheckPurchaseAllowed(ctx, 20, 301, now)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyReasonDailyLimit, decision.Reason)

	// 恰好顶到上限放行（<= 语义）
	decision, err = svc.CheckPurchaseAllowed(ctx, 20, 300, now)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// 昨天的消费不计入今天的窗口
	addSucceededPurchase(t, gdb, 20, 5000, now.Add(-36*time.Hour))
	decision, err = svc.CheckPurchaseAllowed(ctx, 20, 300, now)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckPurchaseWeeklyAndMonthly(t *testing.T) {
	db := newTestDB(t)
	svc := NewLimitsService(db)
	ctx := context.Background()
	// 2026-03-10 是周二；本 ISO 周从 03-09（周一）开始
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SetLimit(ctx, 30, model.PeriodWeekly, int64Ptr(2000)))
	require.NoError(t, svc.SetLimit(ctx, 30, model.PeriodMonthly, int64Ptr(3000)))

	// 周一的消费在本周窗口内
	addSucceededPurchase(t, db, 30, 1900, time.Date(2026, 3, 9, 1, 0, 0, 0, time.UTC))

	decision, err := svc.CheckPurchaseAllowed(ctx, 30, 200, now)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyReasonWeeklyLimit, decision.Reason)

	// 上周日的消费不在本周窗口，但在本月窗口
	addSucceededPurchase(t, db, 30, 1000, time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC))

	decision, err = svc.CheckPurchaseAllowed(ctx, 30, 100, now)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// 月累计 2900 + 101 > 3000 触发月限
	decision, err = svc.CheckPurchaseAllowed(ctx, 30, 101, now)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyReasonMonthlyLimit, decision.Reason)
}

func TestSelfExclusionBlocksRegardlessOfAmount(t *testing.T) {
	db := newTestDB(t)
	svc := NewLimitsService(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	days := 7
	_, err := svc.EnableSelfExclusion(ctx, 40, &days, now)
	require.NoError(t, err)

	// 金额再小也拦，且优先于限额判定
	decision, err := svc.CheckPurchaseAllowed(ctx, 40, 1, now)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyReasonSelfExcluded, decision.Reason)

	// 生效期间不能再次开启（包括试图缩短）
	_, err = svc.EnableSelfExclusion(ctx, 40, &days, now.Add(24*time.Hour))
	assert.ErrorIs(t, err, ErrExclusionActive)

	// 期未满不能解除
	err = svc.DisableSelfExclusion(ctx, 40, now.Add(6*24*time.Hour))
	assert.ErrorIs(t, err, ErrSelfExclusionLocked)

	// 到期后惰性失效：先放行购买，再允许解除
	after := now.Add(8 * 24 * time.Hour)
	decision, err = svc.CheckPurchaseAllowed(ctx, 40, 1, after)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	require.NoError(t, svc.DisableSelfExclusion(ctx, 40, after))
}

func TestIndefiniteSelfExclusionNeverUnlocks(t *testing.T) {
	db := newTestDB(t)
	svc := NewLimitsService(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := svc.EnableSelfExclusion(ctx, 41, nil, now)
	require.NoError(t, err)

	err = svc.DisableSelfExclusion(ctx, 41, now.AddDate(10, 0, 0))
	assert.ErrorIs(t, err, ErrSelfExclusionLocked)

	decision, err := svc.CheckPurchaseAllowed(ctx, 41, 1, now.AddDate(10, 0, 0))
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestDisableWithoutActiveExclusion(t *testing.T) {
	db := newTestDB(t)
	svc := NewLimitsService(db)

	err := svc.DisableSelfExclusion(context.Background(), 42, time.Now())
	assert.ErrorIs(t, err, ErrExclusionNotActive)
}

func TestWindowAlignment(t *testing.T) {
	// 周三 UTC 15:04
	now := time.Date(2026, 3, 11, 15, 4, 0, 0, time.UTC)

	from, to := windowFor(model.PeriodDaily, now)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), to)

	from, to = windowFor(model.PeriodWeekly, now)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), to)

	from, to = windowFor(model.PeriodMonthly, now)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), to)

	// 周日属于上周一开始的那一周
	sunday := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	from, _ = windowFor(model.PeriodWeekly, sunday)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), from)
}

func TestExportSpendingHistory(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	ledger := NewLedgerService(db, cfg)
	svc := NewLimitsService(db)
	ctx := context.Background()

	_, err := ledger.GetAccount(ctx, 50)
	require.NoError(t, err)

	key := "spend:export-1"
	_, _, err = ledger.Debit(ctx, 50, 1, model.EventCategoryReadingSpend, "牌阵解读", &key)
	require.NoError(t, err)

	addSucceededPurchase(t, db, 50, 799, time.Now().UTC())

	export, err := svc.ExportSpendingHistory(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), export.UserID)
	// 注册赠送是入账不是消耗，不进导出
	require.Len(t, export.CreditSpends, 1)
	assert.Equal(t, model.EventCategoryReadingSpend, export.CreditSpends[0].Category)
	require.Len(t, export.Purchases, 1)
	assert.Equal(t, int64(799), export.Purchases[0].PriceCents)
}
