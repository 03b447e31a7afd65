package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mysticoracle/internal/config"
	"mysticoracle/internal/gateway"
	"mysticoracle/internal/identity"
	"mysticoracle/internal/infrastructure/database"
	"mysticoracle/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const webhookSecret = "whsec_handler_test"

type stubVerifier struct {
	users map[string]*identity.UserInfo
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*identity.UserInfo, error) {
	if info, ok := s.users[token]; ok {
		return info, nil
	}
	return nil, identity.ErrInvalidToken
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	// cache=shared：事务会从连接池拿新连接，独立内存库会看不到已建的表
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		Business: config.BusinessConfig{
			SignupGrantCredits: 3,
			SpreadCosts:        map[string]int64{"single": 1},
			FollowUpCost:       1,
		},
		Payment: config.PaymentConfig{
			Card: config.CardProviderConfig{WebhookSecret: webhookSecret},
		},
	}

	registry := gateway.NewRegistry(gateway.NewCardGateway(&cfg.Payment.Card))
	verifier := &stubVerifier{users: map[string]*identity.UserInfo{
		"token-alice": {UserID: 42},
		"token-admin": {UserID: 1, Admin: true},
	}}

	return SetupRouter(db, nil, cfg, registry, verifier)
}

func do(r *gin.Engine, method, path, token string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthUnauthenticated(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAccountEndpointsRequireAuth(t *testing.T) {
	r := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/account/balance", "", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/account/balance", "bad-token", nil, nil).Code)

	w := do(r, http.MethodGet, "/api/v1/account/balance", "token-alice", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(42), data["user_id"])
	assert.Equal(t, float64(3), data["balance"], "首次访问自动建户并发注册赠送")
}

func TestAdminEndpointForbiddenForUser(t *testing.T) {
	r := newTestRouter(t)
	body, _ := json.Marshal(map[string]interface{}{"user_id": 42, "amount": 5, "description": "补偿"})

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/v1/admin/adjust", "token-alice", body, nil).Code)

	w := do(r, http.MethodPost, "/api/v1/admin/adjust", "token-admin", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, decodeEnvelope(t, w).Code)
}

func TestSpendFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	// 注意：占卜消费接口依赖 redis 锁，这里只验证参数校验路径
	w := do(r, http.MethodPost, "/api/v1/reading/spend", "token-alice", []byte(`{}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeParamError, decodeEnvelope(t, w).Code)
}

func TestInsufficientCreditsMessageLocalized(t *testing.T) {
	r := newTestRouter(t)

	// 通过管理员调账把余额清零后扣币，走到余额不足分支
	body, _ := json.Marshal(map[string]interface{}{"user_id": 42, "amount": -100, "description": "清零"})
	w := do(r, http.MethodPost, "/api/v1/admin/adjust", "token-admin", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeInsufficientCredits, resp.Code)

	// 英文 Accept-Language 拿英文文案
	w = do(r, http.MethodPost, "/api/v1/admin/adjust", "token-admin", body, map[string]string{"Accept-Language": "en-US"})
	resp = decodeEnvelope(t, w)
	assert.Equal(t, response.CodeInsufficientCredits, resp.Code)
	assert.Contains(t, resp.Message, "credits")
}

func TestCardWebhookSignature(t *testing.T) {
	r := newTestRouter(t)
	payload := []byte(`{"type":"checkout.session.completed","data":{"session_id":"sess_x","payment_status":"paid"}}`)

	// 无签名 / 错签名直接 400，渠道据此停止重试
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/webhook/card", "", payload, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/webhook/card", "", payload,
		map[string]string{"X-Webhook-Signature": "deadbeef"}).Code)

	// 验签通过但单号无匹配：确认收到（200），不报错
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/webhook/card", "", payload,
		map[string]string{"X-Webhook-Signature": sig}).Code)
}

func TestCatalogCosts(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/catalog/costs", "token-alice", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data, "spread_costs")
	assert.Contains(t, data, "follow_up_cost")
}

func TestSelfExclusionStateErrorsAreExplicit(t *testing.T) {
	r := newTestRouter(t)

	// 没有生效的排除就去解除：给明确文案，不是"系统繁忙"
	w := do(r, http.MethodPost, "/api/v1/limits/self-exclusion/disable", "token-alice", nil,
		map[string]string{"Accept-Language": "en-US"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeExclusionNotActive, resp.Code)
	assert.Contains(t, resp.Message, "self-exclusion")

	// 重复开启同样给明确文案
	w = do(r, http.MethodPost, "/api/v1/limits/self-exclusion/enable", "token-alice",
		[]byte(`{"days":30}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, response.CodeSuccess, decodeEnvelope(t, w).Code)

	w = do(r, http.MethodPost, "/api/v1/limits/self-exclusion/enable", "token-alice",
		[]byte(`{"days":7}`), map[string]string{"Accept-Language": "zh-CN"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeEnvelope(t, w)
	assert.Equal(t, response.CodeExclusionActive, resp.Code)
	assert.Contains(t, resp.Message, "自我排除")
}
