package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache 外部服务访问令牌缓存，Redis 启用时跨实例共享，否则保存在进程内
type TokenCache struct {
	mu    sync.Mutex
	local map[string]tokenEntry
	now   func() time.Time
}

type tokenEntry struct {
	token   string
	expires time.Time
}

// NewTokenCache 创建令牌缓存
func NewTokenCache() *TokenCache {
	return &TokenCache{local: make(map[string]tokenEntry), now: time.Now}
}

// GetToken 读取令牌
func (c *TokenCache) GetToken(ctx context.Context, key string) (string, bool, error) {
	if Enabled() {
		val, err := redisClient.Get(ctx, buildKey(key)).Result()
		if err == redis.Nil {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return val, true, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[key]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.local, key)
		return "", false, nil
	}
	return entry.token, true, nil
}

// SetToken 写入令牌
func (c *TokenCache) SetToken(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if Enabled() {
		return redisClient.Set(ctx, buildKey(key), token, ttl).Err()
	}
	c.mu.Lock()
	c.local[key] = tokenEntry{token: token, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// DeleteToken 删除令牌
func (c *TokenCache) DeleteToken(ctx context.Context, key string) error {
	if Enabled() {
		return redisClient.Del(ctx, buildKey(key)).Err()
	}
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
	return nil
}
