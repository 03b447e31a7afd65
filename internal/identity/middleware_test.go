package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier 测试桩：按 token 返回固定用户
type stubVerifier struct {
	users map[string]*UserInfo
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*UserInfo, error) {
	if info, ok := s.users[token]; ok {
		return info, nil
	}
	return nil, ErrInvalidToken
}

func newAuthTestRouter(verifier TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := r.Group("", AuthMiddleware(verifier))
	auth.GET("/me", func(c *gin.Context) {
		c.JSON(200, gin.H{"user_id": UserID(c)})
	})
	admin := auth.Group("/admin", AdminOnly())
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	return r
}

func doRequest(r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	verifier := &stubVerifier{users: map[string]*UserInfo{
		"token-user":  {UserID: 42},
		"token-admin": {UserID: 1, Admin: true},
	}}
	r := newAuthTestRouter(verifier)

	// 无 token / 格式不对 / 无效 token 一律 401
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/me", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/me", "Bearer nope").Code)

	// 有效 token 放行并注入用户ID
	w := doRequest(r, "/me", "Bearer token-user")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
}

func TestAdminOnly(t *testing.T) {
	verifier := &stubVerifier{users: map[string]*UserInfo{
		"token-user":  {UserID: 42},
		"token-admin": {UserID: 1, Admin: true},
	}}
	r := newAuthTestRouter(verifier)

	// 普通用户 403，管理员放行
	assert.Equal(t, http.StatusForbidden, doRequest(r, "/admin/ping", "Bearer token-user").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, "/admin/ping", "Bearer token-admin").Code)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Equal(t, "", extractBearerToken(""))
	assert.Equal(t, "", extractBearerToken("abc"))
	assert.Equal(t, "", extractBearerToken("Basic abc"))
}
