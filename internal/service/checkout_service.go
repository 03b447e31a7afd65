package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/gateway"
	"mysticoracle/internal/infrastructure/lock"
	"mysticoracle/internal/model"
	"mysticoracle/internal/repository"
	"mysticoracle/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrUnknownProvider  = errors.New("未知的支付渠道")
	ErrNotCheckoutOwner = errors.New("充值单不属于当前用户")
)

// CheckoutService 充值购买服务
// 从创建收银台到占卜币到账的完整链路，入账幂等键 = 充值单号
type CheckoutService struct {
	db         *gorm.DB
	rdb        *redis.Client
	cfg        *config.Config
	registry   *gateway.Registry
	ledger     *LedgerService
	catalog    *CatalogService
	limits     *LimitsService
	txnRepo    *repository.TransactionRepository
	outboxRepo *repository.OutboxRepository
}

func NewCheckoutService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, registry *gateway.Registry) *CheckoutService {
	return &CheckoutService{
		db:         db,
		rdb:        rdb,
		cfg:        cfg,
		registry:   registry,
		ledger:     NewLedgerService(db, cfg),
		catalog:    NewCatalogService(db, cfg),
		limits:     NewLimitsService(db),
		txnRepo:    repository.NewTransactionRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

// CreateCheckoutResult 创建收银台的返回
type CreateCheckoutResult struct {
	CheckoutNo  string `json:"checkout_no"`
	RedirectURL string `json:"redirect_url"`
	Credits     int64  `json:"credits"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
}

// CreateCheckout 发起购买
// 限额闸门在最前面：被策略拒绝时返回 Decision 而不是 error，
// 拒绝是预期结果，前端按 reason 提示用户
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID, packageID int64, provider string) (*CreateCheckoutResult, *Decision, error) {
	gw, ok := s.registry.Get(provider)
	if !ok {
		return nil, nil, ErrUnknownProvider
	}

	// 服务端重新取套餐权威价格，前端传来的金额一概不信
	pkg, err := s.catalog.GetPurchasablePackage(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}

	decision, err := s.limits.CheckPurchaseAllowed(ctx, userID, pkg.PriceCents, time.Now())
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, decision, nil
	}

	// 确保账户存在（新用户第一次操作就是买币的情况）
	if _, err := s.ledger.GetAccount(ctx, userID); err != nil {
		return nil, nil, err
	}

	checkoutNo := idgen.GenerateCheckoutNo()
	expiredAt := time.Now().Add(time.Duration(s.cfg.Business.CheckoutTimeoutMinutes) * time.Minute)

	txn := &model.PaymentTransaction{
		CheckoutNo: checkoutNo,
		UserID:     userID,
		Provider:   provider,
		PackageID:  pkg.ID,
		Credits:    pkg.Credits,
		PriceCents: pkg.PriceCents,
		Currency:   pkg.Currency,
		Status:     model.CheckoutStatusPending,
		ExpiredAt:  expiredAt,
	}
	if err := s.txnRepo.Create(ctx, nil, txn); err != nil {
		return nil, nil, fmt.Errorf("创建充值单失败: %w", err)
	}

	session, err := gw.CreateCheckout(ctx, &gateway.CheckoutRequest{
		CheckoutNo:  checkoutNo,
		UserID:      userID,
		Credits:     pkg.Credits,
		AmountCents: pkg.PriceCents,
		Currency:    pkg.Currency,
		Description: fmt.Sprintf("占卜币套餐-%d币", pkg.Credits),
	})
	if err != nil {
		// 收银台都没建起来，渠道侧必然没有扣款，直接关单
		if ferr := s.txnRepo.UpdateStatus(ctx, nil, checkoutNo,
			model.CheckoutStatusPending, model.CheckoutStatusFailed,
			map[string]interface{}{"fail_reason": "创建收银台失败"}); ferr != nil {
			log.Printf("[Checkout] 关闭充值单失败: checkoutNo=%s, err=%v", checkoutNo, ferr)
		}
		return nil, nil, fmt.Errorf("创建收银台失败: %w", err)
	}

	if err := s.txnRepo.UpdateProviderRef(ctx, checkoutNo, session.ProviderRef); err != nil {
		return nil, nil, fmt.Errorf("回填渠道单号失败: %w", err)
	}

	return &CreateCheckoutResult{
		CheckoutNo:  checkoutNo,
		RedirectURL: session.RedirectURL,
		Credits:     pkg.Credits,
		PriceCents:  pkg.PriceCents,
		Currency:    pkg.Currency,
	}, nil, nil
}

// VerifyOutcome 查证/入账结果
type VerifyOutcome struct {
	CheckoutNo     string `json:"checkout_no"`
	Status         string `json:"status"`
	CreditsGranted int64  `json:"credits_granted"`
	Balance        int64  `json:"balance"`
	Duplicate      bool   `json:"duplicate,omitempty"` // 已被另一条路径入账，本次为安全 no-op
}

// VerifyPayment 用户回跳后的主动查证
//
// 【关键点】查证失败（超时/网络）返回 gateway.ErrVerifyUnknown，
// 上层必须按"结果未知"处理——渠道可能已经扣款成功，
// 绝不能告诉用户"支付失败"。重试查证是安全的（幂等键兜底）
func (s *CheckoutService) VerifyPayment(ctx context.Context, userID int64, checkoutNo string) (*VerifyOutcome, error) {
	txn, err := s.txnRepo.GetByCheckoutNo(ctx, checkoutNo)
	if err != nil {
		return nil, err
	}
	if userID != 0 && txn.UserID != userID {
		return nil, ErrNotCheckoutOwner
	}

	// 已是终态直接返回，不再打渠道
	if txn.Status != model.CheckoutStatusPending {
		return s.outcomeFromTxn(ctx, txn, true)
	}

	gw, ok := s.registry.Get(txn.Provider)
	if !ok {
		return nil, ErrUnknownProvider
	}

	// 查证锁：回调和主动查证争抢同一单时只有一方执行入账
	verifyLock := lock.NewVerifyLock(s.rdb, checkoutNo, fmt.Sprintf("verify-%d", userID))
	if err := verifyLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer verifyLock.Unlock(ctx)

	// 获取锁后重读，另一方可能已经完成入账
	txn, err = s.txnRepo.GetByCheckoutNo(ctx, checkoutNo)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.CheckoutStatusPending {
		return s.outcomeFromTxn(ctx, txn, true)
	}

	result, err := gw.VerifyPayment(ctx, txn.ProviderRef)
	if err != nil {
		// 原样上抛 ErrVerifyUnknown，handler 映射为"结果未知"文案
		return nil, err
	}

	return s.applyVerifyResult(ctx, txn, result)
}

// HandleWebhook 渠道异步通知入口
// 验签/解析交给对应渠道适配器；钱包渠道的通知只当触发器，回渠道查单拿权威结果
func (s *CheckoutService) HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	gw, ok := s.registry.Get(provider)
	if !ok {
		return ErrUnknownProvider
	}

	event, err := gw.ParseWebhook(payload, headers)
	if err != nil {
		return err
	}

	txn, err := s.txnRepo.GetByProviderRef(ctx, event.ProviderRef)
	if err != nil {
		return err
	}
	if txn == nil {
		// 不是我们的单（或单还没回填渠道号），忽略
		log.Printf("[Webhook] 未匹配到充值单，忽略: provider=%s, ref=%s", provider, event.ProviderRef)
		return nil
	}
	if txn.Status != model.CheckoutStatusPending {
		// 另一条路径已入账，安全 no-op，只记日志不报错
		log.Printf("[Webhook] 充值单已是终态，跳过: checkoutNo=%s, status=%s", txn.CheckoutNo, txn.Status)
		return nil
	}

	verifyLock := lock.NewVerifyLock(s.rdb, txn.CheckoutNo, "webhook")
	if err := verifyLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("获取查证锁失败: %w", err)
	}
	defer verifyLock.Unlock(ctx)

	txn, err = s.txnRepo.GetByCheckoutNo(ctx, txn.CheckoutNo)
	if err != nil {
		return err
	}
	if txn.Status != model.CheckoutStatusPending {
		return nil
	}

	result := &gateway.VerifyResult{
		Status:      event.Status,
		ProviderRef: event.ProviderRef,
	}
	if event.Status == gateway.VerifyStatusPending {
		// 通知本身不可信或不带终态，回渠道查单确认
		result, err = gw.VerifyPayment(ctx, txn.ProviderRef)
		if err != nil {
			return err
		}
	}

	_, err = s.applyVerifyResult(ctx, txn, result)
	return err
}

// applyVerifyResult 把归一化的渠道结果落到充值单和账本上
//
// 【关键点】成功路径的三件事在同一个数据库事务里：
// 状态迁移（条件 UPDATE，终态只能写一次）+ 占卜币入账（幂等键=充值单号）+ 发件箱。
// 任何一步失败整体回滚，不存在"单成功但币没到"或反过来的中间态
func (s *CheckoutService) applyVerifyResult(ctx context.Context, txn *model.PaymentTransaction, result *gateway.VerifyResult) (*VerifyOutcome, error) {
	switch result.Status {
	case gateway.VerifyStatusSucceeded:
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.txnRepo.UpdateStatus(ctx, tx, txn.CheckoutNo,
				model.CheckoutStatusPending, model.CheckoutStatusSucceeded,
				map[string]interface{}{"credits_granted": txn.Credits}); err != nil {
				return err
			}

			key := txn.CheckoutNo
			if _, _, err := s.ledger.CreditInTx(ctx, tx, txn.UserID, txn.Credits,
				model.EventCategoryPurchase,
				fmt.Sprintf("充值购买-套餐%d", txn.PackageID),
				&key, result.ProviderRef); err != nil {
				return err
			}

			return s.enqueueResultMessage(ctx, tx, txn, model.CheckoutStatusSucceeded)
		})
		if err != nil {
			if errors.Is(err, repository.ErrCheckoutStatusInvalid) {
				// 并发入账输给了另一方，重读后按重复返回
				fresh, ferr := s.txnRepo.GetByCheckoutNo(ctx, txn.CheckoutNo)
				if ferr != nil {
					return nil, ferr
				}
				return s.outcomeFromTxn(ctx, fresh, true)
			}
			return nil, err
		}

		log.Printf("[Checkout] 入账成功: checkoutNo=%s, userID=%d, credits=%d",
			txn.CheckoutNo, txn.UserID, txn.Credits)

		fresh, err := s.txnRepo.GetByCheckoutNo(ctx, txn.CheckoutNo)
		if err != nil {
			return nil, err
		}
		return s.outcomeFromTxn(ctx, fresh, false)

	case gateway.VerifyStatusFailed, gateway.VerifyStatusCancelled:
		target := model.CheckoutStatusFailed
		if result.Status == gateway.VerifyStatusCancelled {
			target = model.CheckoutStatusCancelled
		}
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.txnRepo.UpdateStatus(ctx, tx, txn.CheckoutNo,
				model.CheckoutStatusPending, target,
				map[string]interface{}{"fail_reason": "渠道返回: " + result.Status}); err != nil {
				return err
			}
			return s.enqueueResultMessage(ctx, tx, txn, target)
		})
		if err != nil && !errors.Is(err, repository.ErrCheckoutStatusInvalid) {
			return nil, err
		}

		fresh, err := s.txnRepo.GetByCheckoutNo(ctx, txn.CheckoutNo)
		if err != nil {
			return nil, err
		}
		return s.outcomeFromTxn(ctx, fresh, false)

	default:
		// 渠道侧还在处理中，不落任何状态
		return &VerifyOutcome{
			CheckoutNo: txn.CheckoutNo,
			Status:     model.CheckoutStatusPending,
		}, nil
	}
}

func (s *CheckoutService) outcomeFromTxn(ctx context.Context, txn *model.PaymentTransaction, duplicate bool) (*VerifyOutcome, error) {
	outcome := &VerifyOutcome{
		CheckoutNo:     txn.CheckoutNo,
		Status:         txn.Status,
		CreditsGranted: txn.CreditsGranted,
		Duplicate:      duplicate,
	}
	if txn.Status == model.CheckoutStatusSucceeded {
		account, err := s.ledger.GetAccount(ctx, txn.UserID)
		if err != nil {
			return nil, err
		}
		outcome.Balance = account.Balance
	}
	return outcome, nil
}

func (s *CheckoutService) enqueueResultMessage(ctx context.Context, tx *gorm.DB, txn *model.PaymentTransaction, status string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"checkout_no": txn.CheckoutNo,
		"user_id":     txn.UserID,
		"provider":    txn.Provider,
		"credits":     txn.Credits,
		"price_cents": txn.PriceCents,
		"status":      status,
		"occurred_at": time.Now().Format(time.RFC3339),
	})
	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: txn.CheckoutNo,
		Topic:      s.cfg.Kafka.Topic.PaymentResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

// GetCheckout 查询充值单详情
func (s *CheckoutService) GetCheckout(ctx context.Context, userID int64, checkoutNo string) (*model.PaymentTransaction, error) {
	txn, err := s.txnRepo.GetByCheckoutNo(ctx, checkoutNo)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, ErrNotCheckoutOwner
	}
	return txn, nil
}

// ListCheckouts 用户充值单列表
func (s *CheckoutService) ListCheckouts(ctx context.Context, userID int64, page, pageSize int) ([]*model.PaymentTransaction, int64, error) {
	return s.txnRepo.ListByUserID(ctx, userID, page, pageSize)
}
