package message

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
)

// EventProducer 定义了向消息队列发布统一业务事件的接口
type EventProducer interface {
	// PublishEvent 异步发布一个事件
	PublishEvent(event events.Event) error
	// Close 关闭生产者
	Close() error
}

// Command 下发给模拟器的控制指令
type Command struct {
	ChargePointID string          `json:"chargePointId,omitempty"`
	CommandName   string          `json:"commandName"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// CommandHandler 指令处理函数
type CommandHandler func(ctx context.Context, cmd *Command)

// SaramaConsumerGroup 消费者组中用到的 sarama.ConsumerGroup 子集
type SaramaConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Close() error
}
