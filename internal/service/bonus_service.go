package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/model"

	"gorm.io/gorm"
)

// BonusService 赠送/调整服务
// 注册之外的免费占卜币来源：每日签到、邀请奖励、后台人工调整
// 全部走幂等键，重复请求不会重复加钱
type BonusService struct {
	cfg    *config.Config
	ledger *LedgerService
}

func NewBonusService(db *gorm.DB, cfg *config.Config) *BonusService {
	return &BonusService{
		cfg:    cfg,
		ledger: NewLedgerService(db, cfg),
	}
}

// ClaimDailyBonus 每日签到赠送
// 幂等键带 UTC 日期，同一天只能领一次，跨天自动解锁
func (s *BonusService) ClaimDailyBonus(ctx context.Context, userID int64, now time.Time) (*model.LedgerEvent, bool, error) {
	amount := s.cfg.Business.DailyBonusCredits
	if amount <= 0 {
		return nil, false, errors.New("每日签到赠送未开启")
	}

	if _, err := s.ledger.GetAccount(ctx, userID); err != nil {
		return nil, false, err
	}

	key := fmt.Sprintf("daily:%d:%s", userID, now.UTC().Format("2006-01-02"))
	return s.ledger.Credit(ctx, userID, amount,
		model.EventCategoryDailyBonus, "每日签到赠送", &key, "")
}

// ApplyReferral 邀请奖励，邀请人和被邀请人各得一笔
// 幂等键绑定 (邀请人, 被邀请人) 组合，同一对用户只能奖励一次
func (s *BonusService) ApplyReferral(ctx context.Context, referrerID, refereeID int64) error {
	if referrerID == refereeID {
		return errors.New("不能邀请自己")
	}

	if _, err := s.ledger.GetAccount(ctx, referrerID); err != nil {
		return err
	}
	if _, err := s.ledger.GetAccount(ctx, refereeID); err != nil {
		return err
	}

	referrerKey := fmt.Sprintf("referral:referrer:%d:%d", referrerID, refereeID)
	if _, _, err := s.ledger.Credit(ctx, referrerID, s.cfg.Business.ReferralRewardCredits,
		model.EventCategoryReferral, fmt.Sprintf("邀请奖励-邀请用户%d", refereeID), &referrerKey, ""); err != nil {
		return err
	}

	refereeKey := fmt.Sprintf("referral:referee:%d:%d", referrerID, refereeID)
	if _, _, err := s.ledger.Credit(ctx, refereeID, s.cfg.Business.ReferralRefereeCredits,
		model.EventCategoryReferral, fmt.Sprintf("受邀奖励-邀请人%d", referrerID), &refereeKey, ""); err != nil {
		return err
	}

	return nil
}

// AdminAdjust 后台人工调整，正数加币负数扣币，必须写明原因
// 扣币同样受"余额不能为负"约束
func (s *BonusService) AdminAdjust(ctx context.Context, userID, amount int64, description string) (*model.LedgerEvent, error) {
	if amount == 0 {
		return nil, errors.New("调整金额不能为0")
	}
	if description == "" {
		return nil, errors.New("人工调整必须填写原因")
	}

	if _, err := s.ledger.GetAccount(ctx, userID); err != nil {
		return nil, err
	}

	if amount > 0 {
		event, _, err := s.ledger.Credit(ctx, userID, amount,
			model.EventCategoryAdminAdjust, description, nil, "")
		return event, err
	}

	event, _, err := s.ledger.Debit(ctx, userID, -amount,
		model.EventCategoryAdminAdjust, description, nil)
	return event, err
}
