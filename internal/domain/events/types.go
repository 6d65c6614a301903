package events

import (
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// EventType 事件类型
type EventType string

const (
	// 充电桩状态事件
	EventTypeStatusChanged EventType = "charge_point.status_changed"

	// 连接器事件
	EventTypeConnectorStatusChanged EventType = "connector.status_changed"
	EventTypeAvailabilityChanged    EventType = "connector.availability_changed"

	// 交易事件
	EventTypeTransactionStarted EventType = "transaction.started"
	EventTypeTransactionStopped EventType = "transaction.stopped"

	// 错误事件
	EventTypeProtocolError EventType = "protocol.error"
)

// EventSeverity 事件严重程度
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
)

// StatusInfo 充电桩状态信息
type StatusInfo struct {
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// ConnectorInfo 连接器状态信息
type ConnectorInfo struct {
	ConnectorID    int                    `json:"connector_id"`
	Status         ocpp16.ConnectorStatus `json:"status"`
	PreviousStatus ocpp16.ConnectorStatus `json:"previous_status,omitempty"`
	Notified       bool                   `json:"notified"`
}

// AvailabilityInfo 可用性信息
type AvailabilityInfo struct {
	ConnectorID  int                     `json:"connector_id"`
	Availability ocpp16.AvailabilityType `json:"availability"`
}

// TransactionInfo 交易信息
type TransactionInfo struct {
	TransactionID *int   `json:"transaction_id,omitempty"`
	ConnectorID   int    `json:"connector_id"`
	IdTag         string `json:"id_tag,omitempty"`
	MeterStart    *int   `json:"meter_start,omitempty"`
	MeterStop     *int   `json:"meter_stop,omitempty"`
}

// ErrorInfo 错误信息
type ErrorInfo struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Metadata 事件元数据
type Metadata struct {
	Source          string                 `json:"source"`               // 事件源标识
	ProtocolVersion string                 `json:"protocol_version"`     // 协议版本
	MessageID       *string                `json:"message_id,omitempty"` // 原始消息ID
	Custom          map[string]interface{} `json:"custom,omitempty"`     // 自定义字段
}
