package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mysticoracle/internal/config"
	"mysticoracle/internal/gateway"
	"mysticoracle/internal/handler"
	"mysticoracle/internal/identity"
	"mysticoracle/internal/infrastructure/cache"
	"mysticoracle/internal/infrastructure/database"
	"mysticoracle/internal/infrastructure/mq"
	"mysticoracle/internal/job"
	"mysticoracle/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)
	if err := database.SeedPackages(db); err != nil {
		log.Fatalf("套餐初始化失败: %v", err)
	}

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)

	// 初始化 Kafka
	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	// 支付渠道注册表
	registry := gateway.NewRegistry(
		gateway.NewCardGateway(&cfg.Payment.Card),
		gateway.NewWalletGateway(&cfg.Payment.Wallet),
	)

	// 身份校验器（外部身份服务内省 + redis 缓存）
	verifier := identity.NewIntrospectVerifier(&cfg.Identity, redisClient)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	expireJob := job.NewCheckoutExpireJob(db, redisClient, cfg, registry)
	go expireJob.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(db, redisClient, cfg, registry, verifier)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
