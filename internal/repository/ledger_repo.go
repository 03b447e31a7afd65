package repository

import (
	"context"
	"errors"

	"mysticoracle/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create 追加一条账变流水
// 流水表只有这一个写入口：没有 Update/Delete 方法，审计链不可篡改
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, event *model.LedgerEvent) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(event).Error
}

// GetByIdempotencyKey 按幂等键查找已入账的流水，不存在返回 nil
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.LedgerEvent, error) {
	var event model.LedgerEvent
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEvent, int64, error) {
	var events []*model.LedgerEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEvent{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error

	return events, total, err
}

// ListByCategories 按账变类型过滤（个人消费记录导出用）
func (r *LedgerRepository) ListByCategories(ctx context.Context, userID int64, categories []string) ([]*model.LedgerEvent, error) {
	var events []*model.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND category IN ?", userID, categories).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// SumAmounts 流水金额合计，用于和账户余额对账
// 【不变式】任何时刻 SumAmounts(userID) == credit_account.balance
func (r *LedgerRepository) SumAmounts(ctx context.Context, userID int64) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEvent{}).
		Where("user_id = ?", userID).
		Select("SUM(amount)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
