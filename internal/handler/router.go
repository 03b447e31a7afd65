package handler

import (
	"mysticoracle/internal/config"
	"mysticoracle/internal/gateway"
	"mysticoracle/internal/identity"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
// webhook 路由不走鉴权中间件，安全性由各渠道适配器自己保证（验签/回查）
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, registry *gateway.Registry, verifier identity.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, registry)

	api := r.Group("/api/v1")

	// 渠道异步通知（未鉴权）
	webhook := api.Group("/webhook")
	{
		webhook.POST("/card", h.CardWebhook)
		webhook.POST("/wallet", h.WalletWebhook)
	}

	// 用户接口（需登录）
	auth := api.Group("", identity.AuthMiddleware(verifier))
	{
		account := auth.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/ledger", h.ListLedger)
			account.POST("/daily-bonus", h.ClaimDailyBonus)
			account.POST("/referral", h.ApplyReferral)
		}

		catalog := auth.Group("/catalog")
		{
			catalog.GET("/packages", h.ListPackages)
			catalog.GET("/costs", h.GetFeatureCosts)
		}

		reading := auth.Group("/reading")
		{
			reading.POST("/spend", h.SpendReading)
			reading.POST("/follow-up", h.SpendFollowUp)
			reading.POST("/extended-question", h.SpendExtendedQuestion)
			reading.POST("/summarize-question", h.SpendQuestionSummary)
		}

		checkout := auth.Group("/checkout")
		{
			checkout.POST("/create", h.CreateCheckout)
			checkout.POST("/verify", h.VerifyCheckout)
			checkout.GET("/detail", h.GetCheckout)
			checkout.GET("/list", h.ListCheckouts)
		}

		limits := auth.Group("/limits")
		{
			limits.POST("/set", h.SetLimit)
			limits.GET("/status", h.GetLimitStatus)
			limits.POST("/self-exclusion/enable", h.EnableSelfExclusion)
			limits.POST("/self-exclusion/disable", h.DisableSelfExclusion)
			limits.GET("/export", h.ExportSpending)
		}

		admin := auth.Group("/admin", identity.AdminOnly())
		{
			admin.POST("/adjust", h.AdminAdjust)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
