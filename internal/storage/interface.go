package storage

import (
	"context"
)

// KeyValueStore 充电桩状态的键值存储
// 持久作用域保存可用性，会话作用域保存状态、最近动作、交易号和电表值
type KeyValueStore interface {
	// Get 读取键值，键不存在时返回 def 且不报错
	Get(ctx context.Context, key string, def string) (string, error)

	// Set 写入键值
	Set(ctx context.Context, key string, value string) error
}

// Clearable 可整体清空的存储，用于结束会话
type Clearable interface {
	Clear(ctx context.Context) error
}

// Scope 存储作用域
type Scope string

const (
	ScopeDurable Scope = "durable"
	ScopeSession Scope = "session"
)
