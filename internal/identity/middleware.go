package identity

import (
	"errors"
	"strings"

	"mysticoracle/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextKeyUserID = "auth_user_id"
	ContextKeyAdmin  = "auth_admin"
)

// AuthMiddleware 鉴权中间件
// 所有账务/消费接口都要求有效 token，缺失或无效一律 401
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c, "缺少 Authorization 头")
			return
		}

		info, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				response.Unauthorized(c, "token 无效或已过期")
			} else {
				// 身份服务不可用也只能拒绝请求，不能放行
				response.Unauthorized(c, "身份校验暂时不可用")
			}
			return
		}

		c.Set(ContextKeyUserID, info.UserID)
		c.Set(ContextKeyAdmin, info.Admin)
		c.Next()
	}
}

// AdminOnly 管理员校验，必须挂在 AuthMiddleware 之后
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyAdmin) {
			c.AbortWithStatusJSON(403, response.Response{
				Code:    response.CodeForbidden,
				Message: "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}

// UserID 从上下文取认证用户ID
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ContextKeyUserID)
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
