package storage

import (
	"fmt"

	"github.com/charging-platform/charge-point-simulator/internal/cache"
	"github.com/charging-platform/charge-point-simulator/internal/config"
)

// Stores 一个充电桩使用的两个作用域存储
type Stores struct {
	Durable KeyValueStore
	Session KeyValueStore
	closeFn func() error
}

// Close 释放底层连接
func (s *Stores) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// NewStores 按配置创建持久与会话存储，键前缀包含充电桩ID
func NewStores(cfg *config.Config) (*Stores, error) {
	durablePrefix := cfg.Storage.DurablePrefix + cfg.Simulator.ChargePointID + ":"
	sessionPrefix := cfg.Storage.SessionPrefix + cfg.Simulator.ChargePointID + ":"

	switch cfg.Storage.Driver {
	case "memory":
		shared := cache.NewSimpleCache()
		return &Stores{
			Durable: NewMemoryStoreWithCache(shared, durablePrefix),
			Session: NewMemoryStoreWithCache(shared, sessionPrefix),
		}, nil
	case "redis":
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Durable: NewRedisStore(client, durablePrefix, 0),
			Session: NewRedisStore(client, sessionPrefix, cfg.Storage.SessionTTL),
			closeFn: client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
