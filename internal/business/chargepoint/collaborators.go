package chargepoint

import (
	"context"

	"github.com/charging-platform/charge-point-simulator/internal/domain/connection"
	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/transport/websocket"
	"github.com/google/uuid"
)

// Connection 引擎使用的单条连接，每次 Connect 重新创建
type Connection interface {
	Connect(ctx context.Context, url string) error
	Send(data []byte) error
	Close(code int, reason string) error
	Events() <-chan websocket.ConnectionEvent
	ReadyState() connection.ReadyState
	Stats() connection.Stats
}

// ConnectionFactory 创建新连接
type ConnectionFactory func() Connection

// WebSocketConnectionFactory 基于 websocket.Client 的连接工厂
func WebSocketConnectionFactory(cfg *websocket.Config, log *logger.Logger) ConnectionFactory {
	return func() Connection {
		return websocket.NewClient(cfg, log)
	}
}

// IdentifierGenerator 生成协议消息ID
type IdentifierGenerator interface {
	Generate() string
}

// UUIDGenerator 生成 36 位 UUID
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.New().String()
}

// EventPublisher 业务事件出口
type EventPublisher interface {
	PublishEvent(event events.Event) error
}
