package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const unlockKey = "unlock:%s:%s" // String: "1" 已解锁 / "0" 未解锁

// UnlockCache 缓存钱包对曲目的解锁结果
type UnlockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUnlockCache 创建解锁缓存
func NewUnlockCache(ttl time.Duration) *UnlockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &UnlockCache{client: RedisClient, ttl: ttl}
}

// UnlockKey returns the cache key for one wallet/track pair.
func UnlockKey(wallet, trackID string) string {
	return fmt.Sprintf(unlockKey, wallet, trackID)
}

// Get 返回缓存的解锁结果，found=false 表示未命中
func (c *UnlockCache) Get(ctx context.Context, wallet, trackID string) (unlocked, found bool, err error) {
	if c.client == nil {
		return false, false, ErrNotConnected
	}

	v, err := c.client.Get(ctx, UnlockKey(wallet, trackID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, false, nil
		}
		return false, false, err
	}
	return v == "1", true, nil
}

// Set 写入解锁结果
func (c *UnlockCache) Set(ctx context.Context, wallet, trackID string, unlocked bool) error {
	if c.client == nil {
		return ErrNotConnected
	}

	v := "0"
	if unlocked {
		v = "1"
	}
	return c.client.Set(ctx, UnlockKey(wallet, trackID), v, c.ttl).Err()
}

// InvalidateWallet 删除钱包的全部解锁缓存
func (c *UnlockCache) InvalidateWallet(ctx context.Context, wallet string) error {
	if c.client == nil {
		return ErrNotConnected
	}

	var cursor uint64
	pattern := UnlockKey(wallet, "*")
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan unlock keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete unlock keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
