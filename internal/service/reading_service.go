package service

import (
	"context"
	"fmt"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/infrastructure/lock"
	"mysticoracle/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ReadingService 解读消费服务
// 解读/追问的内容生成在外部 AI 服务，这里只负责"扣币"这一步：
// 费用以目录为准，请求ID幂等，按用户加锁防双击
type ReadingService struct {
	rdb     *redis.Client
	cfg     *config.Config
	ledger  *LedgerService
	catalog *CatalogService
}

func NewReadingService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *ReadingService {
	return &ReadingService{
		rdb:     rdb,
		cfg:     cfg,
		ledger:  NewLedgerService(db, cfg),
		catalog: NewCatalogService(db, cfg),
	}
}

// SpendResult 扣币结果
type SpendResult struct {
	EventNo   string `json:"event_no"`
	Cost      int64  `json:"cost"`
	Balance   int64  `json:"balance"`
	Duplicate bool   `json:"duplicate,omitempty"` // 幂等命中，未重复扣费
}

// SpendOnReading 牌阵解读扣费
func (s *ReadingService) SpendOnReading(ctx context.Context, userID int64, requestID, spreadType string) (*SpendResult, error) {
	cost, err := s.catalog.GetSpreadCost(spreadType)
	if err != nil {
		return nil, err
	}
	return s.spend(ctx, userID, requestID, cost,
		model.EventCategoryReadingSpend, fmt.Sprintf("牌阵解读-%s", spreadType))
}

// SpendOnFollowUp 追问扣费
func (s *ReadingService) SpendOnFollowUp(ctx context.Context, userID int64, requestID, readingRef string) (*SpendResult, error) {
	return s.spend(ctx, userID, requestID, s.catalog.GetFollowUpCost(),
		model.EventCategoryFollowUpSpend, fmt.Sprintf("追问-%s", readingRef))
}

// SpendOnExtendedQuestion 扩展提问扣费
func (s *ReadingService) SpendOnExtendedQuestion(ctx context.Context, userID int64, requestID string) (*SpendResult, error) {
	return s.spend(ctx, userID, requestID, s.catalog.GetExtendedQuestionCost(),
		model.EventCategoryReadingSpend, "扩展提问")
}

// SpendOnQuestionSummary 问题提炼扣费
func (s *ReadingService) SpendOnQuestionSummary(ctx context.Context, userID int64, requestID string) (*SpendResult, error) {
	return s.spend(ctx, userID, requestID, s.catalog.GetQuestionSummaryCost(),
		model.EventCategoryQuestionSummary, "问题提炼")
}

func (s *ReadingService) spend(ctx context.Context, userID int64, requestID string, cost int64, category, description string) (*SpendResult, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request_id 不能为空")
	}

	// 账户不存在时顺带创建（注册赠送在这里落地）
	if _, err := s.ledger.GetAccount(ctx, userID); err != nil {
		return nil, err
	}

	// 按用户加锁：双击/重复提交在入口处串行化，数据库幂等键兜底
	spendLock := lock.NewSpendLock(s.rdb, userID, requestID)
	if err := spendLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer spendLock.Unlock(ctx)

	key := "spend:" + requestID
	event, duplicate, err := s.ledger.Debit(ctx, userID, cost, category, description, &key)
	if err != nil {
		return nil, err
	}

	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &SpendResult{
		EventNo:   event.EventNo,
		Cost:      cost,
		Balance:   account.Balance,
		Duplicate: duplicate,
	}, nil
}
