package events

import (
	"encoding/json"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/protocol"
	"github.com/google/uuid"
)

// Event 统一业务事件接口
type Event interface {
	// GetID 获取事件ID
	GetID() string
	// GetType 获取事件类型
	GetType() EventType
	// GetChargePointID 获取充电桩ID
	GetChargePointID() string
	// GetTimestamp 获取事件时间戳
	GetTimestamp() time.Time
	// GetSeverity 获取事件严重程度
	GetSeverity() EventSeverity
	// GetMetadata 获取事件元数据
	GetMetadata() Metadata
	// GetPayload 获取事件载荷
	GetPayload() interface{}
	// ToJSON 序列化为JSON
	ToJSON() ([]byte, error)
}

// BaseEvent 基础事件结构
type BaseEvent struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	ChargePointID string        `json:"charge_point_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Severity      EventSeverity `json:"severity"`
	Metadata      Metadata      `json:"metadata"`
}

func (e *BaseEvent) GetID() string              { return e.ID }
func (e *BaseEvent) GetType() EventType         { return e.Type }
func (e *BaseEvent) GetChargePointID() string   { return e.ChargePointID }
func (e *BaseEvent) GetTimestamp() time.Time    { return e.Timestamp }
func (e *BaseEvent) GetSeverity() EventSeverity { return e.Severity }
func (e *BaseEvent) GetMetadata() Metadata      { return e.Metadata }

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType EventType, chargePointID string, severity EventSeverity, metadata Metadata) *BaseEvent {
	return &BaseEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		ChargePointID: chargePointID,
		Timestamp:     time.Now().UTC(),
		Severity:      severity,
		Metadata:      metadata,
	}
}

// StatusChangedEvent 充电桩状态变更事件
type StatusChangedEvent struct {
	*BaseEvent
	StatusInfo StatusInfo `json:"status_info"`
}

func (e *StatusChangedEvent) GetPayload() interface{} { return e.StatusInfo }

func (e *StatusChangedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// ConnectorStatusChangedEvent 连接器状态变更事件
type ConnectorStatusChangedEvent struct {
	*BaseEvent
	ConnectorInfo ConnectorInfo `json:"connector_info"`
}

func (e *ConnectorStatusChangedEvent) GetPayload() interface{} { return e.ConnectorInfo }

func (e *ConnectorStatusChangedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// AvailabilityChangedEvent 可用性变更事件
type AvailabilityChangedEvent struct {
	*BaseEvent
	AvailabilityInfo AvailabilityInfo `json:"availability_info"`
}

func (e *AvailabilityChangedEvent) GetPayload() interface{} { return e.AvailabilityInfo }

func (e *AvailabilityChangedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// TransactionStartedEvent 交易开始事件，在中央系统返回交易号后产生
type TransactionStartedEvent struct {
	*BaseEvent
	TransactionInfo TransactionInfo `json:"transaction_info"`
}

func (e *TransactionStartedEvent) GetPayload() interface{} { return e.TransactionInfo }

func (e *TransactionStartedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// TransactionStoppedEvent 交易停止事件
type TransactionStoppedEvent struct {
	*BaseEvent
	TransactionInfo TransactionInfo `json:"transaction_info"`
}

func (e *TransactionStoppedEvent) GetPayload() interface{} { return e.TransactionInfo }

func (e *TransactionStoppedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// ProtocolErrorEvent 协议错误事件
type ProtocolErrorEvent struct {
	*BaseEvent
	ErrorInfo ErrorInfo `json:"error_info"`
}

func (e *ProtocolErrorEvent) GetPayload() interface{} { return e.ErrorInfo }

func (e *ProtocolErrorEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// EventFactory 事件工厂
type EventFactory struct {
	source string
}

// NewEventFactory 创建事件工厂，source 写入每个事件的元数据
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

func (f *EventFactory) metadata() Metadata {
	return Metadata{Source: f.source, ProtocolVersion: protocol.OCPP_VERSION_1_6}
}

// CreateStatusChangedEvent 创建状态变更事件，Error 状态的事件级别为 error
func (f *EventFactory) CreateStatusChangedEvent(chargePointID string, info StatusInfo) *StatusChangedEvent {
	severity := EventSeverityInfo
	if info.Status == "Error" {
		severity = EventSeverityError
	}
	return &StatusChangedEvent{
		BaseEvent:  NewBaseEvent(EventTypeStatusChanged, chargePointID, severity, f.metadata()),
		StatusInfo: info,
	}
}

// CreateConnectorStatusChangedEvent 创建连接器状态变更事件
func (f *EventFactory) CreateConnectorStatusChangedEvent(chargePointID string, info ConnectorInfo) *ConnectorStatusChangedEvent {
	severity := EventSeverityInfo
	if info.Status == ocpp16.ConnectorStatusFaulted || info.Status == ocpp16.ConnectorStatusUnavailable {
		severity = EventSeverityWarning
	}
	return &ConnectorStatusChangedEvent{
		BaseEvent:     NewBaseEvent(EventTypeConnectorStatusChanged, chargePointID, severity, f.metadata()),
		ConnectorInfo: info,
	}
}

// CreateAvailabilityChangedEvent 创建可用性变更事件
func (f *EventFactory) CreateAvailabilityChangedEvent(chargePointID string, info AvailabilityInfo) *AvailabilityChangedEvent {
	return &AvailabilityChangedEvent{
		BaseEvent:        NewBaseEvent(EventTypeAvailabilityChanged, chargePointID, EventSeverityInfo, f.metadata()),
		AvailabilityInfo: info,
	}
}

// CreateTransactionStartedEvent 创建交易开始事件
func (f *EventFactory) CreateTransactionStartedEvent(chargePointID string, info TransactionInfo) *TransactionStartedEvent {
	return &TransactionStartedEvent{
		BaseEvent:       NewBaseEvent(EventTypeTransactionStarted, chargePointID, EventSeverityInfo, f.metadata()),
		TransactionInfo: info,
	}
}

// CreateTransactionStoppedEvent 创建交易停止事件
func (f *EventFactory) CreateTransactionStoppedEvent(chargePointID string, info TransactionInfo) *TransactionStoppedEvent {
	return &TransactionStoppedEvent{
		BaseEvent:       NewBaseEvent(EventTypeTransactionStopped, chargePointID, EventSeverityInfo, f.metadata()),
		TransactionInfo: info,
	}
}

// CreateProtocolErrorEvent 创建协议错误事件
func (f *EventFactory) CreateProtocolErrorEvent(chargePointID, messageID string, info ErrorInfo) *ProtocolErrorEvent {
	md := f.metadata()
	if messageID != "" {
		md.MessageID = &messageID
	}
	return &ProtocolErrorEvent{
		BaseEvent: NewBaseEvent(EventTypeProtocolError, chargePointID, EventSeverityError, md),
		ErrorInfo: info,
	}
}
