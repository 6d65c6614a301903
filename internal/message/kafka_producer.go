package message

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
)

// KafkaProducer 将模拟器事件发布到 Kafka
type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
}

// NewKafkaProducer 创建一个新的 KafkaProducer
func NewKafkaProducer(brokers []string, topic string, log *logger.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal       // 只等待本地确认
	config.Producer.Compression = sarama.CompressionSnappy   // 压缩
	config.Producer.Flush.Frequency = 500 * time.Millisecond // 刷新频率
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}
	return NewKafkaProducerWithProducer(producer, topic, log), nil
}

// NewKafkaProducerWithProducer 使用已有的 AsyncProducer 创建，便于测试注入
func NewKafkaProducerWithProducer(producer sarama.AsyncProducer, topic string, log *logger.Logger) *KafkaProducer {
	if log == nil {
		log = logger.NewNop()
	}
	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   log,
	}

	go kp.handleSuccesses()
	go kp.handleErrors()

	return kp
}

// PublishEvent 序列化事件并投递到 Input 通道
func (p *KafkaProducer) PublishEvent(event events.Event) error {
	eventData, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.GetChargePointID()), // 同一桩的事件落入同一分区
		Value: sarama.ByteEncoder(eventData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.GetType())},
		},
	}

	p.producer.Input() <- msg
	metrics.EventsPublished.WithLabelValues(string(event.GetType())).Inc()
	return nil
}

// Close 关闭生产者，等待缓冲消息发送完毕
func (p *KafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaProducer) handleSuccesses() {
	for msg := range p.producer.Successes() {
		p.logger.Debugf("Kafka event sent: topic=%s partition=%d offset=%d", msg.Topic, msg.Partition, msg.Offset)
	}
}

func (p *KafkaProducer) handleErrors() {
	for err := range p.producer.Errors() {
		p.logger.Errorf("Failed to send Kafka event to %s: %v", err.Msg.Topic, err.Err)
	}
}
