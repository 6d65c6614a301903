package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
)

// KafkaConsumer 从指令主题消费控制指令
type KafkaConsumer struct {
	consumerGroup SaramaConsumerGroup
	topic         string
	chargePointID string // 只处理发给本桩或未指定桩的指令
	logger        *logger.Logger
	cancel        context.CancelFunc
	done          chan struct{}
	handler       CommandHandler
}

// NewKafkaConsumer 初始化 KafkaConsumer
func NewKafkaConsumer(brokers []string, groupID, topic, chargePointID string, log *logger.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	config.Consumer.Group.Session.Timeout = 10 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama consumer group: %w", err)
	}

	go func() {
		for err := range consumerGroup.Errors() {
			log.Errorf("Sarama consumer group error: %v", err)
		}
	}()

	return NewKafkaConsumerWithGroup(consumerGroup, topic, chargePointID, log), nil
}

// NewKafkaConsumerWithGroup 注入消费者组，测试使用
func NewKafkaConsumerWithGroup(group SaramaConsumerGroup, topic, chargePointID string, log *logger.Logger) *KafkaConsumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &KafkaConsumer{
		consumerGroup: group,
		topic:         topic,
		chargePointID: chargePointID,
		logger:        log,
	}
}

// Start 启动消费者组
func (c *KafkaConsumer) Start(handler CommandHandler) error {
	c.handler = handler

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			// Consume 在 rebalance 后返回，需要循环调用
			if err := c.consumerGroup.Consume(ctx, []string{c.topic}, c); err != nil {
				c.logger.Errorf("Error from Kafka consumer group: %v", err)
			}
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer context cancelled, stopping consumption.")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
	return nil
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	if c.consumerGroup != nil {
		return c.consumerGroup.Close()
	}
	return nil
}

// -- sarama.ConsumerGroupHandler 接口实现 --

func (c *KafkaConsumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group setup completed.")
	return nil
}

func (c *KafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group cleanup completed.")
	return nil
}

// ConsumeClaim 解析指令并交给 handler，无论成功与否都标记消息
func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c.logger.Infof("Consuming commands from partition %d", claim.Partition())

	for message := range claim.Messages() {
		c.handleMessage(session.Context(), message)
		session.MarkMessage(message, "")
	}
	return nil
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var cmd Command
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		c.logger.Errorf("Failed to unmarshal Kafka command: %v, message: %s", err, string(message.Value))
		return
	}
	if cmd.ChargePointID != "" && cmd.ChargePointID != c.chargePointID {
		c.logger.Debugf("Skipping command %s for charge point %s", cmd.CommandName, cmd.ChargePointID)
		return
	}
	if c.handler != nil {
		c.handler(ctx, &cmd)
	}
	c.logger.Debugf("Command consumed: Topic=%s, Partition=%d, Offset=%d", message.Topic, message.Partition, message.Offset)
}

// NewKafkaConsumerForTest 仅为测试目的创建消费者实例，不连接消费者组
func NewKafkaConsumerForTest(chargePointID string, log *logger.Logger, handler CommandHandler) *KafkaConsumer {
	c := NewKafkaConsumerWithGroup(nil, "", chargePointID, log)
	c.handler = handler
	return c
}
