package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/model"
	"mysticoracle/internal/repository"
	"mysticoracle/pkg/idgen"

	"gorm.io/gorm"
)

// debitMaxAttempts 乐观锁冲突时的重试次数
const debitMaxAttempts = 3

// LedgerService 占卜币账本服务
// 读取和变更用户余额的唯一入口，所有账变必须经过这里落一条流水
type LedgerService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	outboxRepo  *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// GetAccount 查询账户，首次访问时创建并发放注册赠送
//
// 【关键点】注册赠送也是一条流水（幂等键 signup:<userID>），
// 保证"余额 == 流水合计"从账户诞生那一刻就成立
func (s *LedgerService) GetAccount(ctx context.Context, userID int64) (*model.CreditAccount, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Create(ctx, tx, &model.CreditAccount{UserID: userID}); err != nil {
			return fmt.Errorf("创建账户失败: %w", err)
		}

		grant := s.cfg.Business.SignupGrantCredits
		if grant <= 0 {
			return nil
		}

		key := fmt.Sprintf("signup:%d", userID)
		_, _, err := s.CreditInTx(ctx, tx, userID, grant,
			model.EventCategorySignupBonus, "注册赠送", &key, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.accountRepo.GetByUserID(ctx, userID)
}

// Credit 入账
// idempotencyKey 已入账过时不重复加钱，原样返回先前的流水（duplicate=true）
func (s *LedgerService) Credit(ctx context.Context, userID, amount int64, category, description string, idempotencyKey *string, providerRef string) (*model.LedgerEvent, bool, error) {
	var event *model.LedgerEvent
	var duplicate bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		event, duplicate, err = s.CreditInTx(ctx, tx, userID, amount, category, description, idempotencyKey, providerRef)
		return err
	})
	return event, duplicate, err
}

// CreditInTx 在外部事务内入账，供充值到账等需要和其他写入同事务的场景组合使用
func (s *LedgerService) CreditInTx(ctx context.Context, tx *gorm.DB, userID, amount int64, category, description string, idempotencyKey *string, providerRef string) (*model.LedgerEvent, bool, error) {
	if amount <= 0 {
		return nil, false, errors.New("入账金额必须大于0")
	}

	// 幂等检查：同一笔支付/请求只入账一次
	if idempotencyKey != nil {
		existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, *idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	account, err := s.accountRepo.GetByUserIDTx(ctx, tx, userID)
	if err != nil {
		return nil, false, err
	}

	if err := s.accountRepo.Credit(ctx, tx, userID, amount); err != nil {
		return nil, false, fmt.Errorf("入账失败: %w", err)
	}

	event := &model.LedgerEvent{
		EventNo:        idgen.GenerateEventNo(),
		UserID:         userID,
		Amount:         amount,
		Category:       category,
		Description:    description,
		IdempotencyKey: idempotencyKey,
		ProviderRef:    providerRef,
		BalanceBefore:  account.Balance,
		BalanceAfter:   account.Balance + amount,
	}
	if err := s.ledgerRepo.Create(ctx, tx, event); err != nil {
		// 并发的重复入账会落在幂等键唯一索引上，整个事务回滚，余额分文未动
		return nil, false, fmt.Errorf("记录流水失败: %w", err)
	}

	// 入账事件和账变同事务写入 outbox，下游（邮件、分析）按 credit.granted 消费
	if err := s.enqueueCreditGranted(ctx, tx, event); err != nil {
		return nil, false, fmt.Errorf("写入 outbox 失败: %w", err)
	}

	return event, false, nil
}

func (s *LedgerService) enqueueCreditGranted(ctx context.Context, tx *gorm.DB, event *model.LedgerEvent) error {
	topic := s.cfg.Kafka.Topic.CreditGranted
	if topic == "" {
		return nil
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"event_no":      event.EventNo,
		"user_id":       event.UserID,
		"amount":        event.Amount,
		"category":      event.Category,
		"balance_after": event.BalanceAfter,
		"occurred_at":   time.Now().Format(time.RFC3339),
	})
	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: event.EventNo,
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

// Debit 出账
// 余额不足返回 repository.ErrInsufficientCredit，这是正常业务结果，
// 调用方应引导用户购买，而不是当系统错误处理
func (s *LedgerService) Debit(ctx context.Context, userID, amount int64, category, description string, idempotencyKey *string) (*model.LedgerEvent, bool, error) {
	if amount <= 0 {
		return nil, false, errors.New("出账金额必须大于0")
	}

	// 幂等检查（双击/重试场景，请求ID 只扣一次）
	if idempotencyKey != nil {
		existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, *idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	var event *model.LedgerEvent

	// 乐观锁冲突说明有并发账变，重读版本号再试，重试耗尽按繁忙上抛
	for attempt := 0; attempt < debitMaxAttempts; attempt++ {
		account, err := s.accountRepo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		if account.Balance < amount {
			return nil, false, repository.ErrInsufficientCredit
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.accountRepo.Debit(ctx, tx, userID, amount, account.Version); err != nil {
				return err
			}

			event = &model.LedgerEvent{
				EventNo:        idgen.GenerateEventNo(),
				UserID:         userID,
				Amount:         -amount,
				Category:       category,
				Description:    description,
				IdempotencyKey: idempotencyKey,
				BalanceBefore:  account.Balance,
				BalanceAfter:   account.Balance - amount,
			}
			return s.ledgerRepo.Create(ctx, tx, event)
		})

		if err == nil {
			return event, false, nil
		}
		if errors.Is(err, repository.ErrOptimisticLock) {
			continue
		}
		return nil, false, err
	}

	return nil, false, repository.ErrOptimisticLock
}

// ListEvents 分页查询账变流水
func (s *LedgerService) ListEvents(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEvent, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	UserID           int64 `json:"user_id"`
	Balance          int64 `json:"balance"`
	LedgerSum        int64 `json:"ledger_sum"`
	Consistent       bool  `json:"consistent"`
	EarnedMinusSpent int64 `json:"earned_minus_spent"`
}

// Reconcile 校验账户余额与流水合计的一致性
// 缓存的余额字段始终可以由流水重新算出，这是审计的底线保证
func (s *LedgerService) Reconcile(ctx context.Context, userID int64) (*ReconcileResult, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledgerRepo.SumAmounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{
		UserID:           userID,
		Balance:          account.Balance,
		LedgerSum:        sum,
		Consistent:       account.Balance == sum && account.Balance == account.TotalEarned-account.TotalSpent,
		EarnedMinusSpent: account.TotalEarned - account.TotalSpent,
	}, nil
}
