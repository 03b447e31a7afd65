package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Identity IdentityConfig `mapstructure:"identity"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CreditGranted string `mapstructure:"credit_granted"`
	PaymentResult string `mapstructure:"payment_result"`
}

// IdentityConfig 身份提供方配置
// 鉴权委托给外部身份服务，这里只做 token 内省 + 结果缓存
type IdentityConfig struct {
	IntrospectURL   string `mapstructure:"introspect_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// PaymentConfig 支付渠道配置（卡支付 + 钱包支付两个渠道）
type PaymentConfig struct {
	Card   CardProviderConfig   `mapstructure:"card"`
	Wallet WalletProviderConfig `mapstructure:"wallet"`
}

type CardProviderConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SecretKey      string `mapstructure:"secret_key"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	SuccessURL     string `mapstructure:"success_url"`
	CancelURL      string `mapstructure:"cancel_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type WalletProviderConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ClientID       string `mapstructure:"client_id"`
	Secret         string `mapstructure:"secret"`
	ReturnURL      string `mapstructure:"return_url"`
	CancelURL      string `mapstructure:"cancel_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BusinessConfig 业务参数
// 【注意】价格/费用以这里和套餐表为准，前端展示只是参考，下单前一律服务端重新取值
type BusinessConfig struct {
	SignupGrantCredits     int64            `mapstructure:"signup_grant_credits"`
	DailyBonusCredits      int64            `mapstructure:"daily_bonus_credits"`
	ReferralRewardCredits  int64            `mapstructure:"referral_reward_credits"`
	ReferralRefereeCredits int64            `mapstructure:"referral_referee_credits"`
	SpreadCosts            map[string]int64 `mapstructure:"spread_costs"`
	FollowUpCost           int64            `mapstructure:"follow_up_cost"`
	ExtendedQuestionCost   int64            `mapstructure:"extended_question_cost"`
	QuestionSummaryCost    int64            `mapstructure:"question_summary_cost"`
	CheckoutTimeoutMinutes int              `mapstructure:"checkout_timeout_minutes"`
	MaxRetryCount          int              `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
