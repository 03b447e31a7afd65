package repository

import (
	"context"
	"errors"

	"mysticoracle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LimitsRepository struct {
	db *gorm.DB
}

func NewLimitsRepository(db *gorm.DB) *LimitsRepository {
	return &LimitsRepository{db: db}
}

// GetLimit 查询用户限额配置，未设置过返回 nil
func (r *LimitsRepository) GetLimit(ctx context.Context, userID int64) (*model.SpendingLimit, error) {
	var limit model.SpendingLimit
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&limit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &limit, nil
}

// SetPeriodLimit 覆盖某个周期的限额，amount 为 nil 表示取消该周期限额
// 其余周期不受影响；行不存在时先创建
func (r *LimitsRepository) SetPeriodLimit(ctx context.Context, userID int64, period string, amount *int64) error {
	var column string
	switch period {
	case model.PeriodDaily:
		column = "daily_cents"
	case model.PeriodWeekly:
		column = "weekly_cents"
	case model.PeriodMonthly:
		column = "monthly_cents"
	default:
		return errors.New("未知的限额周期: " + period)
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.SpendingLimit{UserID: userID}).Error
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&model.SpendingLimit{}).
		Where("user_id = ?", userID).
		Update(column, amount).Error
}

// GetExclusion 查询自我排除记录，从未开启过返回 nil
func (r *LimitsRepository) GetExclusion(ctx context.Context, userID int64) (*model.SelfExclusion, error) {
	var exclusion model.SelfExclusion
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&exclusion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exclusion, nil
}

// SaveExclusion 创建或覆盖自我排除记录
// 能不能覆盖由 service 层判断（排除期内禁止任何修改）
func (r *LimitsRepository) SaveExclusion(ctx context.Context, exclusion *model.SelfExclusion) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(exclusion).Error
}
