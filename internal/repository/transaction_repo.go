package repository

import (
	"context"
	"errors"
	"time"

	"mysticoracle/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCheckoutNotFound      = errors.New("充值单不存在")
	ErrCheckoutStatusInvalid = errors.New("充值单状态不合法")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, txn *model.PaymentTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *TransactionRepository) GetByCheckoutNo(ctx context.Context, checkoutNo string) (*model.PaymentTransaction, error) {
	var txn model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("checkout_no = ?", checkoutNo).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCheckoutNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// GetByProviderRef 按渠道侧单号查找，webhook 回调时用；不存在返回 nil
func (r *TransactionRepository) GetByProviderRef(ctx context.Context, providerRef string) (*model.PaymentTransaction, error) {
	var txn model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("provider_ref = ?", providerRef).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// UpdateProviderRef 收银台创建成功后回填渠道侧单号
func (r *TransactionRepository) UpdateProviderRef(ctx context.Context, checkoutNo, providerRef string) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("checkout_no = ?", checkoutNo).
		Update("provider_ref", providerRef).Error
}

// UpdateStatus 状态迁移
//
// 【关键点】迁移合法性先查状态机表，再用条件 UPDATE 二次保证：
// WHERE status = fromStatus 使得并发迁移最多一个生效，终态不可被覆盖
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, checkoutNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrCheckoutStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	if toStatus != model.CheckoutStatusPending {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("checkout_no = ? AND status = ?", checkoutNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrCheckoutStatusInvalid
	}

	return nil
}

// GetExpiredPending 查询超时未完成的充值单
func (r *TransactionRepository) GetExpiredPending(ctx context.Context, limit int) ([]*model.PaymentTransaction, error) {
	var txns []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.CheckoutStatusPending, time.Now()).
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PaymentTransaction, int64, error) {
	var txns []*model.PaymentTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PaymentTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txns).Error

	return txns, total, err
}

// SumSucceededPrice 统计窗口内真金白银消费（分）
// 消费限额按成功充值单的价格累计，归属于充值单创建时间所在窗口
func (r *TransactionRepository) SumSucceededPrice(ctx context.Context, userID int64, from, to time.Time) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("user_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
			userID, model.CheckoutStatusSucceeded, from, to).
		Select("SUM(price_cents)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// ListSucceededSince 窗口内成功充值单（消费记录导出用）
func (r *TransactionRepository) ListSucceeded(ctx context.Context, userID int64) ([]*model.PaymentTransaction, error) {
	var txns []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.CheckoutStatusSucceeded).
		Order("created_at ASC").
		Find(&txns).Error
	return txns, err
}
