package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mysticoracle/internal/model"
	"mysticoracle/internal/repository"

	"gorm.io/gorm"
)

// ============================================================================
// 消费限额 / 自我排除（负责任消费）
// ============================================================================
//
// 真金白银购买前的策略闸门：先判自我排除，再逐周期判限额。
// 被拒绝是预期中的正常结果，返回结构化原因，不走错误通道。
//
// 【窗口口径】日/周/月窗口按 UTC 日历对齐：
//   日 = UTC 0点到次日0点；周 = ISO 周，周一 UTC 0点起；月 = 自然月
// 消费归属于充值单创建时间所在的窗口。自我排除到期不做后台清理，
// 每次购买时惰性判断。

var (
	ErrSelfExclusionLocked = errors.New("自我排除期未满，不能提前解除")
	ErrExclusionNotActive  = errors.New("当前没有生效的自我排除")
	ErrExclusionActive     = errors.New("自我排除生效期间不能修改")
)

// 拒绝原因（结构化返回给前端，对应不同文案）
const (
	DenyReasonSelfExcluded = "self_excluded"
	DenyReasonDailyLimit   = "daily_limit"
	DenyReasonWeeklyLimit  = "weekly_limit"
	DenyReasonMonthlyLimit = "monthly_limit"
)

// 预警档位
const (
	TierNone = "none" // 消费 < 75% 限额
	TierSoft = "soft" // 75% <= 消费 < 100%
	TierHard = "hard" // 消费 >= 100%，后续购买必须拦截
)

// Decision 购买许可判定结果
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"` // 拒绝时为 DenyReason* 之一
}

// PeriodStatus 单个周期的限额状态
type PeriodStatus struct {
	Period     string `json:"period"`
	CapCents   *int64 `json:"cap_cents"`   // nil = 未设限
	SpentCents int64  `json:"spent_cents"` // 当前窗口已消费
	Tier       string `json:"tier"`
}

type LimitsService struct {
	limitsRepo *repository.LimitsRepository
	txnRepo    *repository.TransactionRepository
	ledgerRepo *repository.LedgerRepository
}

func NewLimitsService(db *gorm.DB) *LimitsService {
	return &LimitsService{
		limitsRepo: repository.NewLimitsRepository(db),
		txnRepo:    repository.NewTransactionRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
	}
}

// SetLimit 设置/取消某个周期的限额，立即生效，不追溯
func (s *LimitsService) SetLimit(ctx context.Context, userID int64, period string, amountCents *int64) error {
	switch period {
	case model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly:
	default:
		return fmt.Errorf("未知的限额周期: %s", period)
	}
	if amountCents != nil && *amountCents <= 0 {
		return errors.New("限额金额必须大于0")
	}
	return s.limitsRepo.SetPeriodLimit(ctx, userID, period, amountCents)
}

// GetLimitStatus 三个周期的限额状态和预警档位
func (s *LimitsService) GetLimitStatus(ctx context.Context, userID int64, now time.Time) ([]*PeriodStatus, error) {
	limit, err := s.limitsRepo.GetLimit(ctx, userID)
	if err != nil {
		return nil, err
	}

	statuses := make([]*PeriodStatus, 0, 3)
	for _, period := range []string{model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly} {
		capCents := capForPeriod(limit, period)
		from, to := windowFor(period, now)

		spent, err := s.txnRepo.SumSucceededPrice(ctx, userID, from, to)
		if err != nil {
			return nil, err
		}

		statuses = append(statuses, &PeriodStatus{
			Period:     period,
			CapCents:   capCents,
			SpentCents: spent,
			Tier:       tierOf(capCents, spent),
		})
	}
	return statuses, nil
}

// CheckPurchaseAllowed 购买许可判定
// 自我排除优先且与金额无关；限额判定是"这笔会不会把窗口消费顶破上限"
func (s *LimitsService) CheckPurchaseAllowed(ctx context.Context, userID, amountCents int64, now time.Time) (*Decision, error) {
	exclusion, err := s.limitsRepo.GetExclusion(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exclusion.ActiveAt(now) {
		return &Decision{Allowed: false, Reason: DenyReasonSelfExcluded}, nil
	}

	limit, err := s.limitsRepo.GetLimit(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit == nil {
		return &Decision{Allowed: true}, nil
	}

	checks := []struct {
		period string
		reason string
	}{
		{model.PeriodDaily, DenyReasonDailyLimit},
		{model.PeriodWeekly, DenyReasonWeeklyLimit},
		{model.PeriodMonthly, DenyReasonMonthlyLimit},
	}

	for _, check := range checks {
		capCents := capForPeriod(limit, check.period)
		if capCents == nil {
			continue
		}
		from, to := windowFor(check.period, now)
		spent, err := s.txnRepo.SumSucceededPrice(ctx, userID, from, to)
		if err != nil {
			return nil, err
		}
		if spent+amountCents > *capCents {
			return &Decision{Allowed: false, Reason: check.reason}, nil
		}
	}

	return &Decision{Allowed: true}, nil
}

// EnableSelfExclusion 开启自我排除
// days 为 nil 表示无限期。生效期间不能再修改（包括延长）
func (s *LimitsService) EnableSelfExclusion(ctx context.Context, userID int64, days *int, now time.Time) (*model.SelfExclusion, error) {
	existing, err := s.limitsRepo.GetExclusion(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing.ActiveAt(now) {
		return nil, ErrExclusionActive
	}

	if days != nil && *days <= 0 {
		return nil, errors.New("自我排除时长必须大于0天")
	}

	exclusion := &model.SelfExclusion{
		UserID:  userID,
		Enabled: true,
		StartAt: &now,
	}
	if days != nil {
		end := now.Add(time.Duration(*days) * 24 * time.Hour)
		exclusion.EndAt = &end
	}

	if err := s.limitsRepo.SaveExclusion(ctx, exclusion); err != nil {
		return nil, err
	}
	return exclusion, nil
}

// DisableSelfExclusion 解除自我排除
//
// 【单向门】排除期未满一律拒绝，无限期的永远拒绝——这是给冲动消费
// 设置的摩擦，属于产品设计，不是缺陷
func (s *LimitsService) DisableSelfExclusion(ctx context.Context, userID int64, now time.Time) error {
	exclusion, err := s.limitsRepo.GetExclusion(ctx, userID)
	if err != nil {
		return err
	}
	if exclusion == nil || !exclusion.Enabled {
		return ErrExclusionNotActive
	}
	if exclusion.EndAt == nil || now.Before(*exclusion.EndAt) {
		return ErrSelfExclusionLocked
	}

	exclusion.Enabled = false
	return s.limitsRepo.SaveExclusion(ctx, exclusion)
}

// GetExclusion 查询自我排除状态
func (s *LimitsService) GetExclusion(ctx context.Context, userID int64) (*model.SelfExclusion, error) {
	return s.limitsRepo.GetExclusion(ctx, userID)
}

// SpendingExport 个人消费记录导出（自查用）
type SpendingExport struct {
	UserID       int64                       `json:"user_id"`
	GeneratedAt  time.Time                   `json:"generated_at"`
	CreditSpends []*model.LedgerEvent        `json:"credit_spends"` // 占卜币消耗流水
	Purchases    []*model.PaymentTransaction `json:"purchases"`     // 真金白银充值记录
}

// ExportSpendingHistory 导出用户的消费历史
// 只含消耗类流水和成功充值单，JSON 可序列化，方便用户自留存档
func (s *LimitsService) ExportSpendingHistory(ctx context.Context, userID int64) (*SpendingExport, error) {
	spends, err := s.ledgerRepo.ListByCategories(ctx, userID, model.SpendCategories)
	if err != nil {
		return nil, err
	}
	purchases, err := s.txnRepo.ListSucceeded(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SpendingExport{
		UserID:       userID,
		GeneratedAt:  time.Now().UTC(),
		CreditSpends: spends,
		Purchases:    purchases,
	}, nil
}

func capForPeriod(limit *model.SpendingLimit, period string) *int64 {
	if limit == nil {
		return nil
	}
	switch period {
	case model.PeriodDaily:
		return limit.DailyCents
	case model.PeriodWeekly:
		return limit.WeeklyCents
	case model.PeriodMonthly:
		return limit.MonthlyCents
	}
	return nil
}

// tierOf 预警档位：<75% none，75%-99% soft，>=100% hard
func tierOf(capCents *int64, spent int64) string {
	if capCents == nil || *capCents <= 0 {
		return TierNone
	}
	if spent >= *capCents {
		return TierHard
	}
	if spent*100 >= *capCents*75 {
		return TierSoft
	}
	return TierNone
}

// windowFor 周期对应的 UTC 日历窗口 [from, to)
func windowFor(period string, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch period {
	case model.PeriodDaily:
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1)
	case model.PeriodWeekly:
		// ISO 周：周一为一周的开始
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // 周日算第7天
		}
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -(weekday - 1))
		return from, from.AddDate(0, 0, 7)
	case model.PeriodMonthly:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0)
	}
	return now, now
}
