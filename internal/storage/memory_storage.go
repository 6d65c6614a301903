package storage

import (
	"context"

	"github.com/charging-platform/charge-point-simulator/internal/cache"
)

// MemoryStore 进程内键值存储，进程退出即丢失
type MemoryStore struct {
	cache  *cache.SimpleCache
	prefix string
}

// NewMemoryStore 创建独立的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.NewSimpleCache()}
}

// NewMemoryStoreWithCache 在共享缓存上按前缀划分作用域
func NewMemoryStoreWithCache(c *cache.SimpleCache, prefix string) *MemoryStore {
	return &MemoryStore{cache: c, prefix: prefix}
}

// Get 读取键值
func (m *MemoryStore) Get(_ context.Context, key string, def string) (string, error) {
	if v, ok := m.cache.GetString(m.prefix + key); ok {
		return v, nil
	}
	return def, nil
}

// Set 写入键值
func (m *MemoryStore) Set(_ context.Context, key string, value string) error {
	m.cache.Set(m.prefix+key, value)
	return nil
}

// Clear 清空本作用域
func (m *MemoryStore) Clear(_ context.Context) error {
	m.cache.DeletePrefix(m.prefix)
	return nil
}
