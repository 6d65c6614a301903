package connection

import (
	"sync"
	"time"
)

// ReadyState 客户端连接的就绪状态
type ReadyState int

const (
	ReadyStateConnecting ReadyState = iota
	ReadyStateOpen
	ReadyStateClosing
	ReadyStateClosed
)

// String 返回就绪状态名称
func (s ReadyState) String() string {
	switch s {
	case ReadyStateConnecting:
		return "connecting"
	case ReadyStateOpen:
		return "open"
	case ReadyStateClosing:
		return "closing"
	case ReadyStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ProtocolVersion 协议版本
type ProtocolVersion string

const (
	ProtocolVersionOCPP16 ProtocolVersion = "ocpp1.6"
)

// Stats 连接统计快照，可直接序列化输出
type Stats struct {
	URL              string     `json:"url"`
	ChargePointID    string     `json:"charge_point_id"`
	State            string     `json:"state"`
	Subprotocol      string     `json:"subprotocol,omitempty"`
	ConnectedAt      *time.Time `json:"connected_at,omitempty"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	MessagesSent     int64      `json:"messages_sent"`
	MessagesReceived int64      `json:"messages_received"`
	BytesSent        int64      `json:"bytes_sent"`
	BytesReceived    int64      `json:"bytes_received"`
	ErrorCount       int        `json:"error_count"`
	LastError        string     `json:"last_error,omitempty"`
	LastCloseCode    int        `json:"last_close_code,omitempty"`
}

// Connection 单条客户端连接的元数据与计数器，并发安全
type Connection struct {
	url           string
	chargePointID string

	mu               sync.RWMutex
	state            ReadyState
	subprotocol      string
	connectedAt      time.Time
	lastActivity     time.Time
	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
	errorCount       int
	lastError        string
	lastCloseCode    int
}

// NewConnection 创建新连接记录，初始为 Connecting
func NewConnection(url, chargePointID string) *Connection {
	return &Connection{
		url:           url,
		chargePointID: chargePointID,
		state:         ReadyStateConnecting,
	}
}

// GetState 获取就绪状态
func (c *Connection) GetState() ReadyState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState 设置就绪状态
func (c *Connection) SetState(state ReadyState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// MarkOpen 记录握手成功
func (c *Connection) MarkOpen(subprotocol string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ReadyStateOpen
	c.subprotocol = subprotocol
	c.connectedAt = at
	c.lastActivity = at
}

// MarkClosed 记录关闭码
func (c *Connection) MarkClosed(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ReadyStateClosed
	c.lastCloseCode = code
}

// IncrementMessagesSent 增加发送计数
func (c *Connection) IncrementMessagesSent(bytes int64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesSent++
	c.bytesSent += bytes
	c.lastActivity = at
}

// IncrementMessagesReceived 增加接收计数
func (c *Connection) IncrementMessagesReceived(bytes int64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesReceived++
	c.bytesReceived += bytes
	c.lastActivity = at
}

// RecordError 记录错误
func (c *Connection) RecordError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
	c.lastError = msg
}

// Snapshot 获取统计快照
func (c *Connection) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		URL:              c.url,
		ChargePointID:    c.chargePointID,
		State:            c.state.String(),
		Subprotocol:      c.subprotocol,
		MessagesSent:     c.messagesSent,
		MessagesReceived: c.messagesReceived,
		BytesSent:        c.bytesSent,
		BytesReceived:    c.bytesReceived,
		ErrorCount:       c.errorCount,
		LastError:        c.lastError,
		LastCloseCode:    c.lastCloseCode,
	}
	if !c.connectedAt.IsZero() {
		t := c.connectedAt
		s.ConnectedAt = &t
	}
	if !c.lastActivity.IsZero() {
		t := c.lastActivity
		s.LastActivity = &t
	}
	return s
}
