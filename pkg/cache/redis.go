// 文件: pkg/cache/redis.go
// 确定性定价结果的 Redis 缓存
// 使用开源库: github.com/redis/go-redis/v9

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/service"
)

// Options Redis 连接与缓存参数
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // 0 表示不过期
	Prefix   string        // 键前缀，例如 bsm:report:
}

// RedisCache 实现 service.Cache
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ service.Cache = (*RedisCache)(nil)

// NewRedisCache 创建缓存，不主动连接；需要时调用 Ping 检查
func NewRedisCache(opts Options) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCacheFromClient(rdb, opts.TTL, opts.Prefix)
}

// NewRedisCacheFromClient 复用已有客户端
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// Ping 检查连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get 读取缓存；键不存在时 ok=false 且 err=nil
func (c *RedisCache) Get(ctx context.Context, key string) (service.Response, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return service.Response{}, false, nil
	}
	if err != nil {
		return service.Response{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var resp service.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		// 损坏的条目当作未命中，并顺手删掉
		_ = c.Invalidate(ctx, key)
		return service.Response{}, false, nil
	}
	return resp, true, nil
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, resp service.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate 删除一个缓存条目
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}
