package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mysticoracle/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 缓存不可用时内省仍然要能工作（缓存是优化不是依赖），
// 这里故意给一个连不上的 redis
func newIntrospectVerifier(t *testing.T, handler http.HandlerFunc) *IntrospectVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewIntrospectVerifier(&config.IdentityConfig{
		IntrospectURL:   srv.URL,
		TimeoutSeconds:  2,
		CacheTTLSeconds: 60,
	}, rdb)
}

func TestIntrospectVerify(t *testing.T) {
	v := newIntrospectVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "good-token", req["token"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"active":  true,
			"user_id": 42,
			"admin":   false,
		})
	})

	info, err := v.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.UserID)
	assert.False(t, info.Admin)
}

func TestIntrospectRejectsInactiveToken(t *testing.T) {
	v := newIntrospectVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"active": false})
	})

	_, err := v.Verify(context.Background(), "revoked-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIntrospectServiceError(t *testing.T) {
	v := newIntrospectVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := v.Verify(context.Background(), "any-token")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}
