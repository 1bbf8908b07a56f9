package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 加锁：SET key owner NX EX ttl
// 释放：Lua 脚本比较 owner 后删除，避免锁过期后误删他人的锁
//
// 【用途】同一订单的确认收货结算在多个实例间互斥（HTTP 与 MQ 两个入口可能同时到达）
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     redis.Cmdable
	key        string
	owner      string
	expiration time.Duration
}

func NewDistributedLock(client redis.Cmdable, key, owner string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		owner:      owner,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.owner, l.expiration).Result()
}

// Lock 带重试的加锁
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只释放自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.owner).Err()
}

// ============================================================================
// Locker：按 key 加锁，返回释放函数
// ============================================================================

type RedisLocker struct {
	client        redis.Cmdable
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client redis.Cmdable, expiration time.Duration, maxRetries int) *RedisLocker {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key, owner string) (func(context.Context) error, error) {
	l := NewDistributedLock(r.client, key, owner, r.expiration)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return l.Unlock, nil
}

// FulfillmentKey 订单结算锁
func FulfillmentKey(orderID int64) string {
	return fmt.Sprintf("fulfill:lock:order:%d", orderID)
}
