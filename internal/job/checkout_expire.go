package job

import (
	"context"
	"errors"
	"log"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/gateway"
	"mysticoracle/internal/model"
	"mysticoracle/internal/repository"
	"mysticoracle/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// CheckoutExpireJob 充值单超时任务
//
// 【关键点】关单前先回渠道查一次：用户可能付了钱但回跳和 webhook 都丢了，
// 这种单直接取消等于吞钱。查证确认成功的正常入账，
// 查证结果未知的留到下一轮，只有确认没付的才取消
type CheckoutExpireJob struct {
	db        *gorm.DB
	txnRepo   *repository.TransactionRepository
	verifier  paymentVerifier
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

// paymentVerifier 关单前回渠道查证的入口，生产上就是 CheckoutService
type paymentVerifier interface {
	VerifyPayment(ctx context.Context, userID int64, checkoutNo string) (*service.VerifyOutcome, error)
}

func NewCheckoutExpireJob(db *gorm.DB, rdb *redis.Client, cfg *config.Config, registry *gateway.Registry) *CheckoutExpireJob {
	return &CheckoutExpireJob{
		db:        db,
		txnRepo:   repository.NewTransactionRepository(db),
		verifier:  service.NewCheckoutService(db, rdb, cfg, registry),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  30 * time.Second,
		batchSize: 50,
	}
}

func (j *CheckoutExpireJob) Start(ctx context.Context) {
	log.Println("[CheckoutExpireJob] 充值单超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[CheckoutExpireJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[CheckoutExpireJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpiredCheckouts(ctx)
		}
	}
}

func (j *CheckoutExpireJob) Stop() {
	close(j.stopCh)
}

func (j *CheckoutExpireJob) closeExpiredCheckouts(ctx context.Context) {
	txns, err := j.txnRepo.GetExpiredPending(ctx, j.batchSize)
	if err != nil {
		log.Printf("[CheckoutExpireJob] 查询超时充值单失败: %v", err)
		return
	}

	if len(txns) == 0 {
		return
	}

	log.Printf("[CheckoutExpireJob] 发现 %d 个超时充值单", len(txns))

	for _, txn := range txns {
		j.closeCheckout(ctx, txn)
	}
}

func (j *CheckoutExpireJob) closeCheckout(ctx context.Context, txn *model.PaymentTransaction) {
	// 有渠道单号的先回渠道确认最终状态
	if txn.ProviderRef != "" {
		outcome, err := j.verifier.VerifyPayment(ctx, 0, txn.CheckoutNo)
		if err != nil {
			if errors.Is(err, gateway.ErrVerifyUnknown) {
				// 结果未知不能武断关单，留到下一轮
				log.Printf("[CheckoutExpireJob] 查证结果未知，跳过: checkoutNo=%s", txn.CheckoutNo)
				return
			}
			log.Printf("[CheckoutExpireJob] 查证失败: checkoutNo=%s, err=%v", txn.CheckoutNo, err)
			return
		}
		if outcome.Status != model.CheckoutStatusPending {
			log.Printf("[CheckoutExpireJob] 查证已出终态: checkoutNo=%s, status=%s", txn.CheckoutNo, outcome.Status)
			return
		}
	}

	err := j.txnRepo.UpdateStatus(ctx, nil, txn.CheckoutNo,
		model.CheckoutStatusPending, model.CheckoutStatusCancelled,
		map[string]interface{}{"fail_reason": "超时未支付"})
	if err != nil {
		if errors.Is(err, repository.ErrCheckoutStatusInvalid) {
			// 取消窗口里被另一条路径入账，这是正常竞态
			return
		}
		log.Printf("[CheckoutExpireJob] 关闭充值单失败: checkoutNo=%s, err=%v", txn.CheckoutNo, err)
		return
	}

	log.Printf("[CheckoutExpireJob] 充值单已超时取消: checkoutNo=%s, userID=%d, credits=%d",
		txn.CheckoutNo, txn.UserID, txn.Credits)
}
