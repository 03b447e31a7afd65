package service

import (
	"context"
	"fmt"

	"mysticoracle/internal/config"
	"mysticoracle/internal/model"
	"mysticoracle/internal/repository"

	"gorm.io/gorm"
)

// CatalogService 定价目录
// 功能费用和套餐的唯一权威来源：前端展示的价格只是参考，
// 任何扣费/下单前都必须从这里重新取值（服务端说了算）
type CatalogService struct {
	cfg         *config.Config
	packageRepo *repository.PackageRepository
}

func NewCatalogService(db *gorm.DB, cfg *config.Config) *CatalogService {
	return &CatalogService{
		cfg:         cfg,
		packageRepo: repository.NewPackageRepository(db),
	}
}

// GetSpreadCost 牌阵解读费用
func (s *CatalogService) GetSpreadCost(spreadType string) (int64, error) {
	cost, ok := s.cfg.Business.SpreadCosts[spreadType]
	if !ok || cost <= 0 {
		return 0, fmt.Errorf("未知的牌阵类型: %s", spreadType)
	}
	return cost, nil
}

// GetFollowUpCost 追问费用
func (s *CatalogService) GetFollowUpCost() int64 {
	return s.cfg.Business.FollowUpCost
}

// GetExtendedQuestionCost 扩展提问费用
func (s *CatalogService) GetExtendedQuestionCost() int64 {
	return s.cfg.Business.ExtendedQuestionCost
}

// GetQuestionSummaryCost 问题提炼费用
func (s *CatalogService) GetQuestionSummaryCost() int64 {
	return s.cfg.Business.QuestionSummaryCost
}

// FeatureCosts 给前端展示用的费用总表
// 改这里的配置只影响之后的消费，历史流水记录的是当时的费用
func (s *CatalogService) FeatureCosts() map[string]interface{} {
	return map[string]interface{}{
		"spread_costs":           s.cfg.Business.SpreadCosts,
		"follow_up_cost":         s.cfg.Business.FollowUpCost,
		"extended_question_cost": s.cfg.Business.ExtendedQuestionCost,
		"question_summary_cost":  s.cfg.Business.QuestionSummaryCost,
	}
}

// ListActivePackages 在售套餐，按运营排序
func (s *CatalogService) ListActivePackages(ctx context.Context) ([]*model.CreditPackage, error) {
	return s.packageRepo.ListActive(ctx)
}

// GetPurchasablePackage 下单前取套餐权威信息，已下架的买不到
func (s *CatalogService) GetPurchasablePackage(ctx context.Context, packageID int64) (*model.CreditPackage, error) {
	return s.packageRepo.GetActiveByID(ctx, packageID)
}
