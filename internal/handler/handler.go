package handler

import (
	"errors"
	"io"
	"strconv"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/gateway"
	"mysticoracle/internal/identity"
	"mysticoracle/internal/model"
	"mysticoracle/internal/repository"
	"mysticoracle/internal/service"
	"mysticoracle/pkg/i18n"
	"mysticoracle/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledgerService   *service.LedgerService
	catalogService  *service.CatalogService
	readingService  *service.ReadingService
	checkoutService *service.CheckoutService
	limitsService   *service.LimitsService
	bonusService    *service.BonusService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, registry *gateway.Registry) *Handler {
	return &Handler{
		ledgerService:   service.NewLedgerService(db, cfg),
		catalogService:  service.NewCatalogService(db, cfg),
		readingService:  service.NewReadingService(db, rdb, cfg),
		checkoutService: service.NewCheckoutService(db, rdb, cfg, registry),
		limitsService:   service.NewLimitsService(db),
		bonusService:    service.NewBonusService(db, cfg),
	}
}

// 测试里可替换的时钟
var timeNow = time.Now

// locale 从请求头取用户语言
func locale(c *gin.Context) string {
	return i18n.Resolve(c.GetHeader("Accept-Language"))
}

// bizError 按错误类型映射业务码和多语言文案
// 未识别的错误一律返回通用重试文案，细节只进日志，不透给用户
func bizError(c *gin.Context, err error) {
	loc := locale(c)
	switch {
	case errors.Is(err, repository.ErrInsufficientCredit):
		response.Error(c, response.CodeInsufficientCredits, i18n.T(loc, i18n.MsgInsufficientCredits))
	case errors.Is(err, repository.ErrPackageNotFound):
		response.Error(c, response.CodePackageNotFound, i18n.T(loc, i18n.MsgPackageNotFound))
	case errors.Is(err, repository.ErrCheckoutNotFound), errors.Is(err, service.ErrNotCheckoutOwner):
		response.Error(c, response.CodeCheckoutNotFound, i18n.T(loc, i18n.MsgCheckoutNotFound))
	case errors.Is(err, gateway.ErrVerifyUnknown):
		// 【关键点】渠道可能已经扣款，绝不能按失败文案返回
		response.Error(c, response.CodeVerifyUnknown, i18n.T(loc, i18n.MsgVerifyUnknown))
	case errors.Is(err, service.ErrSelfExclusionLocked):
		response.Error(c, response.CodeSelfExclusionLocked, i18n.T(loc, i18n.MsgSelfExclusionLocked))
	case errors.Is(err, service.ErrExclusionActive):
		response.Error(c, response.CodeExclusionActive, i18n.T(loc, i18n.MsgExclusionActive))
	case errors.Is(err, service.ErrExclusionNotActive):
		response.Error(c, response.CodeExclusionNotActive, i18n.T(loc, i18n.MsgExclusionNotActive))
	default:
		response.ServerError(c, i18n.T(loc, i18n.MsgGenericRetry))
	}
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询当前用户余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	account, err := h.ledgerService.GetAccount(c.Request.Context(), identity.UserID(c))
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":      account.UserID,
		"balance":      account.Balance,
		"total_earned": account.TotalEarned,
		"total_spent":  account.TotalSpent,
	})
}

// ListLedger 查询当前用户流水
// GET /api/v1/account/ledger?page=1&page_size=20
func (h *Handler) ListLedger(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	events, total, err := h.ledgerService.ListEvents(c.Request.Context(), identity.UserID(c), page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ClaimDailyBonus 每日签到领币
// POST /api/v1/account/daily-bonus
func (h *Handler) ClaimDailyBonus(c *gin.Context) {
	event, duplicate, err := h.bonusService.ClaimDailyBonus(c.Request.Context(), identity.UserID(c), timeNow())
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"event_no":  event.EventNo,
		"amount":    event.Amount,
		"duplicate": duplicate,
	})
}

// ApplyReferralRequest 邀请奖励请求
// referral_code 就是邀请人的用户ID（字符串形式，兼容前端分享链接）
type ApplyReferralRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
}

// ApplyReferral 填写邀请码，双方各得奖励
// POST /api/v1/account/referral
func (h *Handler) ApplyReferral(c *gin.Context) {
	var req ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	referrerID, err := strconv.ParseInt(req.ReferralCode, 10, 64)
	if err != nil || referrerID <= 0 {
		response.ParamError(c, "邀请码格式不正确")
		return
	}

	if err := h.bonusService.ApplyReferral(c.Request.Context(), referrerID, identity.UserID(c)); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "ok"})
}

// AdminAdjustRequest 人工调账请求
type AdminAdjustRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`      // 正数加币，负数扣币
	Description string `json:"description" binding:"required"` // 调整原因，必填
}

// AdminAdjust 管理员人工调账
// POST /api/v1/admin/adjust
func (h *Handler) AdminAdjust(c *gin.Context) {
	var req AdminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	event, err := h.bonusService.AdminAdjust(c.Request.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"event_no":      event.EventNo,
		"amount":        event.Amount,
		"balance_after": event.BalanceAfter,
	})
}

// ============================================================
// 定价目录接口
// ============================================================

// ListPackages 可购买的占卜币套餐列表
// GET /api/v1/catalog/packages
func (h *Handler) ListPackages(c *gin.Context) {
	packages, err := h.catalogService.ListActivePackages(c.Request.Context())
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"list": packages})
}

// GetFeatureCosts 各功能的占卜币价格表
// GET /api/v1/catalog/costs
func (h *Handler) GetFeatureCosts(c *gin.Context) {
	response.Success(c, h.catalogService.FeatureCosts())
}

// ============================================================
// 占卜消费接口
// ============================================================

// SpendReadingRequest 牌阵解读扣费请求
type SpendReadingRequest struct {
	RequestID  string `json:"request_id" binding:"required"` // 幂等ID，客户端生成
	SpreadType string `json:"spread_type" binding:"required"`
}

// SpendReading 牌阵解读扣费
// POST /api/v1/reading/spend
func (h *Handler) SpendReading(c *gin.Context) {
	var req SpendReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.readingService.SpendOnReading(c.Request.Context(), identity.UserID(c), req.RequestID, req.SpreadType)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// SpendFollowUpRequest 追问扣费请求
type SpendFollowUpRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	ReadingID string `json:"reading_id" binding:"required"` // 所属解读
}

// SpendFollowUp 追问扣费
// POST /api/v1/reading/follow-up
func (h *Handler) SpendFollowUp(c *gin.Context) {
	var req SpendFollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.readingService.SpendOnFollowUp(c.Request.Context(), identity.UserID(c), req.RequestID, req.ReadingID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// SpendExtendedQuestion 扩展提问扣费
// POST /api/v1/reading/extended-question
func (h *Handler) SpendExtendedQuestion(c *gin.Context) {
	var req struct {
		RequestID string `json:"request_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.readingService.SpendOnExtendedQuestion(c.Request.Context(), identity.UserID(c), req.RequestID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// SpendQuestionSummary 问题提炼扣费
// POST /api/v1/reading/summarize-question
func (h *Handler) SpendQuestionSummary(c *gin.Context) {
	var req struct {
		RequestID string `json:"request_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.readingService.SpendOnQuestionSummary(c.Request.Context(), identity.UserID(c), req.RequestID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 充值购买接口
// ============================================================

// CreateCheckoutRequest 发起购买请求
type CreateCheckoutRequest struct {
	PackageID int64  `json:"package_id" binding:"required"`
	Provider  string `json:"provider" binding:"required"` // CARD / WALLET
}

// CreateCheckout 发起购买
// POST /api/v1/checkout/create
//
// 金额以服务端套餐价为准，请求里不收金额字段
func (h *Handler) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, decision, err := h.checkoutService.CreateCheckout(c.Request.Context(), identity.UserID(c), req.PackageID, req.Provider)
	if err != nil {
		bizError(c, err)
		return
	}
	if decision != nil && !decision.Allowed {
		// 策略拒绝是预期业务结果，结构化原因放 data，前端按 reason 展示
		response.ErrorData(c, response.CodePurchaseDenied, i18n.T(locale(c), i18n.MsgPurchaseDenied), decision)
		return
	}

	response.Success(c, result)
}

// VerifyCheckoutRequest 支付回跳查证请求
type VerifyCheckoutRequest struct {
	CheckoutNo string `json:"checkout_no" binding:"required"`
}

// VerifyCheckout 用户回跳后主动查证支付结果
// POST /api/v1/checkout/verify
func (h *Handler) VerifyCheckout(c *gin.Context) {
	var req VerifyCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	outcome, err := h.checkoutService.VerifyPayment(c.Request.Context(), identity.UserID(c), req.CheckoutNo)
	if err != nil {
		bizError(c, err)
		return
	}

	loc := locale(c)
	switch outcome.Status {
	case model.CheckoutStatusFailed:
		response.ErrorData(c, response.CodePaymentFailed, i18n.T(loc, i18n.MsgPaymentFailed), outcome)
	case model.CheckoutStatusCancelled:
		response.ErrorData(c, response.CodePaymentCancelled, i18n.T(loc, i18n.MsgPaymentCancelled), outcome)
	default:
		response.Success(c, outcome)
	}
}

// GetCheckout 查询充值单详情
// GET /api/v1/checkout/detail?checkout_no=xxx
func (h *Handler) GetCheckout(c *gin.Context) {
	checkoutNo := c.Query("checkout_no")
	if checkoutNo == "" {
		response.ParamError(c, "checkout_no 参数不能为空")
		return
	}

	txn, err := h.checkoutService.GetCheckout(c.Request.Context(), identity.UserID(c), checkoutNo)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, txn)
}

// ListCheckouts 查询充值单列表
// GET /api/v1/checkout/list?page=1&page_size=10
func (h *Handler) ListCheckouts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	txns, total, err := h.checkoutService.ListCheckouts(c.Request.Context(), identity.UserID(c), page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      txns,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 消费保护接口
// ============================================================

// SetLimitRequest 设置限额请求
type SetLimitRequest struct {
	Period      string `json:"period" binding:"required"` // DAILY / WEEKLY / MONTHLY
	AmountCents *int64 `json:"amount_cents"`              // null 表示取消该周期限额
}

// SetLimit 设置/取消消费限额
// POST /api/v1/limits/set
func (h *Handler) SetLimit(c *gin.Context) {
	var req SetLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.limitsService.SetLimit(c.Request.Context(), identity.UserID(c), req.Period, req.AmountCents); err != nil {
		bizError(c, err)
		return
	}

	msg := i18n.MsgLimitSaved
	if req.AmountCents == nil {
		msg = i18n.MsgLimitRemoved
	}
	response.Success(c, gin.H{"message": i18n.T(locale(c), msg)})
}

// GetLimitStatus 各周期限额与已消费
// GET /api/v1/limits/status
func (h *Handler) GetLimitStatus(c *gin.Context) {
	statuses, err := h.limitsService.GetLimitStatus(c.Request.Context(), identity.UserID(c), timeNow())
	if err != nil {
		bizError(c, err)
		return
	}

	exclusion, err := h.limitsService.GetExclusion(c.Request.Context(), identity.UserID(c))
	if err != nil {
		bizError(c, err)
		return
	}

	resp := gin.H{"periods": statuses}
	if exclusion != nil && exclusion.ActiveAt(timeNow()) {
		resp["self_exclusion"] = exclusion
	}
	response.Success(c, resp)
}

// EnableSelfExclusionRequest 开启自我排除请求
type EnableSelfExclusionRequest struct {
	Days *int `json:"days"` // null 表示无限期
}

// EnableSelfExclusion 开启自我排除
// POST /api/v1/limits/self-exclusion/enable
func (h *Handler) EnableSelfExclusion(c *gin.Context) {
	var req EnableSelfExclusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	exclusion, err := h.limitsService.EnableSelfExclusion(c.Request.Context(), identity.UserID(c), req.Days, timeNow())
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message":   i18n.T(locale(c), i18n.MsgSelfExclusionOn),
		"exclusion": exclusion,
	})
}

// DisableSelfExclusion 解除自我排除（仅排除期已满时允许）
// POST /api/v1/limits/self-exclusion/disable
func (h *Handler) DisableSelfExclusion(c *gin.Context) {
	if err := h.limitsService.DisableSelfExclusion(c.Request.Context(), identity.UserID(c), timeNow()); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": i18n.T(locale(c), i18n.MsgSelfExclusionOff)})
}

// ExportSpending 导出消费历史
// GET /api/v1/limits/export
func (h *Handler) ExportSpending(c *gin.Context) {
	export, err := h.limitsService.ExportSpendingHistory(c.Request.Context(), identity.UserID(c))
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, export)
}

// ============================================================
// 渠道异步通知
// ============================================================

// CardWebhook 银行卡渠道回调
// POST /api/v1/webhook/card
//
// 【关键点】验签失败返回 400 让渠道停止重试；
// 我方内部错误返回 500 让渠道按退避策略继续重试
func (h *Handler) CardWebhook(c *gin.Context) {
	h.handleWebhook(c, model.ProviderCard)
}

// WalletWebhook 钱包渠道回调
// POST /api/v1/webhook/wallet
func (h *Handler) WalletWebhook(c *gin.Context) {
	h.handleWebhook(c, model.ProviderWallet)
}

func (h *Handler) handleWebhook(c *gin.Context, provider string) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(400, "bad request")
		return
	}

	if err := h.checkoutService.HandleWebhook(c.Request.Context(), provider, payload, c.Request.Header); err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			c.String(400, "invalid webhook")
			return
		}
		c.String(500, "internal error")
		return
	}

	c.String(200, "ok")
}
