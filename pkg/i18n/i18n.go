package i18n

import "strings"

// ============================================================================
// 用户文案多语言
// ============================================================================
//
// 业务错误需要给用户看得懂的文案，运营要求支持两种语言。
// 内部/基础设施错误不在这里，统一返回通用重试文案，细节只进服务端日志。

const (
	LocaleZH = "zh-CN"
	LocaleEN = "en-US"

	DefaultLocale = LocaleZH
)

const (
	MsgInsufficientCredits = "insufficient_credits"
	MsgPurchaseDenied      = "purchase_denied"
	MsgVerifyUnknown       = "verify_unknown"
	MsgPaymentFailed       = "payment_failed"
	MsgPaymentCancelled    = "payment_cancelled"
	MsgSelfExclusionLocked = "self_exclusion_locked"
	MsgExclusionActive     = "exclusion_active"
	MsgExclusionNotActive  = "exclusion_not_active"
	MsgCheckoutNotFound    = "checkout_not_found"
	MsgPackageNotFound     = "package_not_found"
	MsgLimitSaved          = "limit_saved"
	MsgLimitRemoved        = "limit_removed"
	MsgSelfExclusionOn     = "self_exclusion_on"
	MsgSelfExclusionOff    = "self_exclusion_off"
	MsgGenericRetry        = "generic_retry"
)

var messages = map[string]map[string]string{
	LocaleZH: {
		MsgInsufficientCredits: "占卜币余额不足，请先购买占卜币",
		MsgPurchaseDenied:      "本次购买被消费保护策略拒绝",
		MsgVerifyUnknown:       "支付结果暂时无法确认，请稍后在个人中心查看余额",
		MsgPaymentFailed:       "支付失败，未扣除任何费用，可重新发起购买",
		MsgPaymentCancelled:    "支付已取消",
		MsgSelfExclusionLocked: "自我排除期尚未结束，无法提前解除",
		MsgExclusionActive:     "你已处于自我排除中，无需重复开启",
		MsgExclusionNotActive:  "当前没有生效的自我排除",
		MsgCheckoutNotFound:    "充值单不存在",
		MsgPackageNotFound:     "套餐不存在或已下架",
		MsgLimitSaved:          "消费限额已保存，立即生效",
		MsgLimitRemoved:        "消费限额已取消",
		MsgSelfExclusionOn:     "自我排除已开启，期间将无法购买占卜币",
		MsgSelfExclusionOff:    "自我排除已解除",
		MsgGenericRetry:        "系统繁忙，请稍后重试",
	},
	LocaleEN: {
		MsgInsufficientCredits: "Not enough credits, please purchase more first",
		MsgPurchaseDenied:      "This purchase was declined by your spending protection settings",
		MsgVerifyUnknown:       "We could not confirm the payment result yet, please check your balance in your profile later",
		MsgPaymentFailed:       "Payment failed, nothing was charged, you can start a new purchase",
		MsgPaymentCancelled:    "Payment was cancelled",
		MsgSelfExclusionLocked: "Your self-exclusion period has not ended yet and cannot be lifted early",
		MsgExclusionActive:     "Self-exclusion is already active, no need to enable it again",
		MsgExclusionNotActive:  "You do not have an active self-exclusion",
		MsgCheckoutNotFound:    "Checkout not found",
		MsgPackageNotFound:     "This package does not exist or is no longer available",
		MsgLimitSaved:          "Spending limit saved, effective immediately",
		MsgLimitRemoved:        "Spending limit removed",
		MsgSelfExclusionOn:     "Self-exclusion is now active, purchases are blocked for its duration",
		MsgSelfExclusionOff:    "Self-exclusion has been lifted",
		MsgGenericRetry:        "The system is busy, please try again later",
	},
}

// Resolve 从 Accept-Language 头解析支持的语言
func Resolve(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		lang := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch {
		case strings.HasPrefix(lang, "zh"):
			return LocaleZH
		case strings.HasPrefix(lang, "en"):
			return LocaleEN
		}
	}
	return DefaultLocale
}

// T 取指定语言的文案，缺失时回退默认语言
func T(locale, key string) string {
	if m, ok := messages[locale]; ok {
		if msg, ok := m[key]; ok {
			return msg
		}
	}
	return messages[DefaultLocale][key]
}
