package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景一：用户双击"解读"按钮，两笔消耗请求同时到达
// 场景二：支付渠道回调和用户主动查证同时到达，争抢同一笔充值单的入账
//
// 数据库层已经有乐观锁和幂等键兜底，分布式锁的作用是把并发请求
// 在入口处串行化，避免大量请求打到数据库上互相冲突重试
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本保证"检查+删除"原子性
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 锁持有者标识
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】value 校验防止删掉别人的锁：
// A 获取锁 -> A 处理超时锁过期 -> B 获取锁 -> A 执行完 Unlock
// 不校验 value 的话 A 会把 B 的锁删掉
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数
// ============================================================================

// NewSpendLock 创建消耗锁（按用户维度）
// 同一用户的占卜币消耗串行，不同用户互不影响
func NewSpendLock(client *redis.Client, userID int64, requestID string) *DistributedLock {
	key := fmt.Sprintf("credit:lock:spend:%d", userID)
	// value 使用 requestID，便于追踪是哪个请求持有锁
	return NewDistributedLock(client, key, requestID, 30*time.Second)
}

// NewVerifyLock 创建支付查证锁（按充值单维度）
// 渠道回调和用户主动查证两条路径争抢同一单时，只有一方执行入账流程
func NewVerifyLock(client *redis.Client, checkoutNo, holder string) *DistributedLock {
	key := fmt.Sprintf("checkout:lock:verify:%s", checkoutNo)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
