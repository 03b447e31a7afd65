package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 业务错误码
// 【注意】这些编码同时是 i18n 消息的 key，前端按 code 匹配文案
const (
	CodeInsufficientCredits = 2001 // 占卜币余额不足，可恢复，引导用户购买
	CodePurchaseDenied      = 2002 // 消费策略拒绝（自我排除/限额），data 携带结构化原因
	CodeVerifyUnknown       = 2003 // 支付结果未知，不能按失败处理
	CodePaymentFailed       = 2004 // 支付失败，可用新单重试
	CodePaymentCancelled    = 2005 // 支付已取消
	CodeSelfExclusionLocked = 2006 // 自我排除期未满，不能解除
	CodeCheckoutNotFound    = 2007
	CodePackageNotFound     = 2008
	CodeDuplicateRequest    = 2009
	CodeExclusionActive     = 2010 // 自我排除已在生效中，重复开启
	CodeExclusionNotActive  = 2011 // 没有生效的自我排除可解除
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorData 带结构化数据的业务错误（如限额拒绝原因）
func ErrorData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Code:    CodeUnauthorized,
		Message: message,
	})
}
