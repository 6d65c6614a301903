package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/config"
	"github.com/go-redis/redis/v8"
)

// RedisStore 使用 Redis 保存某一作用域的键值
type RedisStore struct {
	Client *redis.Client // 公共字段，便于测试注入 mock 客户端
	Prefix string        // 键前缀，区分作用域和充电桩
	TTL    time.Duration // 0 表示不过期，会话作用域使用
}

// NewRedisClient 创建 Redis 客户端并 ping 验证连接
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// NewRedisStore 创建 RedisStore
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, Prefix: prefix, TTL: ttl}
}

func (r *RedisStore) key(key string) string {
	return r.Prefix + key
}

// Get 读取键值，redis.Nil 视为不存在
func (r *RedisStore) Get(ctx context.Context, key string, def string) (string, error) {
	val, err := r.Client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set 写入键值
func (r *RedisStore) Set(ctx context.Context, key string, value string) error {
	if err := r.Client.Set(ctx, r.key(key), value, r.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// scanBatch 每次 SCAN 建议返回的键数量
const scanBatch = 100

// Clear 以 SCAN 游标分批删除该前缀下的所有键
func (r *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.Client.Scan(ctx, cursor, r.Prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s*: %w", r.Prefix, err)
		}
		if len(keys) > 0 {
			if err := r.Client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close 关闭与存储后端的连接
func (r *RedisStore) Close() error {
	return r.Client.Close()
}
