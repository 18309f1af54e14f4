package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"VibeLock/core/player"

	"github.com/go-redis/redis/v8"
)

const (
	sessionPlaybackKey = "session:%s:playback" // Hash: 最近一次快照
	sessionEventsChan  = "session:%s:events"   // Pub/Sub: 快照推送
	walletSessionsKey  = "wallet:%s:sessions"  // Set: 钱包当前打开的会话
)

// SessionCache 播放会话在 Redis 中的镜像，供其它实例和 REST 查询使用
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache 创建会话缓存
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{client: RedisClient, ttl: ttl}
}

// PlaybackKey returns the hash key holding a session's latest snapshot.
func PlaybackKey(sessionID string) string {
	return fmt.Sprintf(sessionPlaybackKey, sessionID)
}

// EventsChannel returns the pub/sub channel snapshots are published on.
func EventsChannel(sessionID string) string {
	return fmt.Sprintf(sessionEventsChan, sessionID)
}

// WalletSessionsKey returns the set key listing a wallet's sessions.
func WalletSessionsKey(wallet string) string {
	return fmt.Sprintf(walletSessionsKey, wallet)
}

// SaveSnapshot 写入快照并发布到会话频道
func (c *SessionCache) SaveSnapshot(ctx context.Context, sessionID string, snap player.Snapshot) error {
	if c.client == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	currentID := ""
	if snap.CurrentTrack != nil {
		currentID = snap.CurrentTrack.ID
	}

	key := PlaybackKey(sessionID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"state":         string(data),
		"wallet":        snap.Wallet,
		"current_track": currentID,
		"is_playing":    snap.IsPlaying,
		"updated_at":    time.Now().UnixMilli(),
	})
	pipe.Expire(ctx, key, c.ttl)
	if snap.Wallet != "" {
		walletKey := WalletSessionsKey(snap.Wallet)
		pipe.SAdd(ctx, walletKey, sessionID)
		pipe.Expire(ctx, walletKey, c.ttl)
	}
	pipe.Publish(ctx, EventsChannel(sessionID), data)
	_, err = pipe.Exec(ctx)
	return err
}

// GetSnapshot 读取最近一次快照，不存在时返回 nil
func (c *SessionCache) GetSnapshot(ctx context.Context, sessionID string) (*player.Snapshot, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}

	data, err := c.client.HGet(ctx, PlaybackKey(sessionID), "state").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var snap player.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LastUpdated 返回快照最后写入时间（毫秒），不存在时为 0
func (c *SessionCache) LastUpdated(ctx context.Context, sessionID string) (int64, error) {
	if c.client == nil {
		return 0, ErrNotConnected
	}

	v, err := c.client.HGet(ctx, PlaybackKey(sessionID), "updated_at").Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// WalletSessions 列出钱包打开的所有会话
func (c *SessionCache) WalletSessions(ctx context.Context, wallet string) ([]string, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client.SMembers(ctx, WalletSessionsKey(wallet)).Result()
}

// RemoveSession 会话关闭时清理
func (c *SessionCache) RemoveSession(ctx context.Context, sessionID, wallet string) error {
	if c.client == nil {
		return ErrNotConnected
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, PlaybackKey(sessionID))
	if wallet != "" {
		pipe.SRem(ctx, WalletSessionsKey(wallet), sessionID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe 订阅会话快照推送，调用方负责 Close
func (c *SessionCache) Subscribe(ctx context.Context, sessionID string) (*redis.PubSub, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client.Subscribe(ctx, EventsChannel(sessionID)), nil
}
