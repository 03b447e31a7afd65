package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mysticoracle/internal/config"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 身份提供方适配器
// ============================================================================
//
// 鉴权完全委托外部身份服务：拿到 Bearer token 去内省接口换用户信息。
// 内省结果在 Redis 里短暂缓存，避免每个请求都打一次身份服务。

var (
	ErrInvalidToken = errors.New("token 无效或已过期")
)

// UserInfo 内省结果
type UserInfo struct {
	UserID int64 `json:"user_id"`
	Admin  bool  `json:"admin"`
}

// TokenVerifier token 校验契约，中间件依赖这个接口，便于测试替换
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*UserInfo, error)
}

// IntrospectVerifier 调用身份服务内省接口的实现
type IntrospectVerifier struct {
	cfg    *config.IdentityConfig
	client *http.Client
	rdb    *redis.Client
}

func NewIntrospectVerifier(cfg *config.IdentityConfig, rdb *redis.Client) *IntrospectVerifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IntrospectVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		rdb:    rdb,
	}
}

type introspectResponse struct {
	Active bool  `json:"active"`
	UserID int64 `json:"user_id"`
	Admin  bool  `json:"admin"`
}

func (v *IntrospectVerifier) Verify(ctx context.Context, token string) (*UserInfo, error) {
	cacheKey := "identity:token:" + token

	// 先查缓存
	if cached, err := v.rdb.Get(ctx, cacheKey).Result(); err == nil {
		var info UserInfo
		if err := json.Unmarshal([]byte(cached), &info); err == nil {
			return &info, nil
		}
	}

	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.IntrospectURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("身份服务调用失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("身份服务返回异常状态: %d", resp.StatusCode)
	}

	var result introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.Active || result.UserID == 0 {
		return nil, ErrInvalidToken
	}

	info := &UserInfo{UserID: result.UserID, Admin: result.Admin}

	// 写缓存，失败不影响主流程
	if data, err := json.Marshal(info); err == nil {
		ttl := time.Duration(v.cfg.CacheTTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 60 * time.Second
		}
		v.rdb.Set(ctx, cacheKey, data, ttl)
	}

	return info, nil
}
