package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/config"
	"github.com/charging-platform/charge-point-simulator/internal/domain/connection"
	"github.com/charging-platform/charge-point-simulator/internal/domain/protocol"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected 连接未打开时发送
	ErrNotConnected = errors.New("websocket: not connected")
	// ErrAlreadyStarted 客户端只能连接一次
	ErrAlreadyStarted = errors.New("websocket: client already started")
	// ErrSendBufferFull 发送队列已满
	ErrSendBufferFull = errors.New("websocket: send buffer full")
)

// Config WebSocket 客户端配置
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	CloseTimeout     time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	MaxMessageSize   int64
	SendBuffer       int
	EventBuffer      int
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseTimeout:     5 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		MaxMessageSize:   1024 * 1024, // 1MB
		SendBuffer:       64,
		EventBuffer:      256,
	}
}

// ConfigFrom 由应用配置生成客户端配置
func ConfigFrom(ws config.WebSocketConfig, eventBuffer int) *Config {
	cfg := DefaultConfig()
	if ws.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = ws.HandshakeTimeout
	}
	if ws.WriteTimeout > 0 {
		cfg.WriteTimeout = ws.WriteTimeout
	}
	if ws.ReadBufferSize > 0 {
		cfg.ReadBufferSize = ws.ReadBufferSize
	}
	if ws.WriteBufferSize > 0 {
		cfg.WriteBufferSize = ws.WriteBufferSize
	}
	if ws.MaxMessageSize > 0 {
		cfg.MaxMessageSize = ws.MaxMessageSize
	}
	if ws.SendBuffer > 0 {
		cfg.SendBuffer = ws.SendBuffer
	}
	if eventBuffer > 0 {
		cfg.EventBuffer = eventBuffer
	}
	return cfg
}

// ConnectionEventType 连接事件类型
type ConnectionEventType string

const (
	EventTypeConnected    ConnectionEventType = "connected"
	EventTypeDisconnected ConnectionEventType = "disconnected"
	EventTypeError        ConnectionEventType = "error"
	EventTypeMessage      ConnectionEventType = "message"
)

// ConnectionEvent 连接事件
type ConnectionEvent struct {
	Type       ConnectionEventType
	CloseCode  int                   // disconnected 事件的关闭码
	Message    []byte                // message 事件的文本帧
	Error      error                 // error 事件的原因
	ReadyState connection.ReadyState // error 事件发生时的就绪状态
	Timestamp  time.Time
}

// closeRequest 由发送协程在排空发送队列后写出的关闭帧
type closeRequest struct {
	code   int
	reason string
}

// Client 单次使用的 WebSocket 客户端
// 所有生命周期变化以事件形式发往 Events()，最后一个事件为 disconnected，随后通道关闭
type Client struct {
	config *Config
	dialer *websocket.Dialer
	logger *logger.Logger

	meta    *connection.Connection
	events  chan ConnectionEvent
	sendCh  chan []byte
	closeCh chan closeRequest

	mu        sync.Mutex
	conn      *websocket.Conn
	started   bool
	closeCode int // 本端请求的关闭码，0 表示未请求
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient 创建客户端
func NewClient(cfg *Config, log *logger.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		config: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			Subprotocols:     protocol.Subprotocols(),
		},
		logger:  log,
		events:  make(chan ConnectionEvent, cfg.EventBuffer),
		sendCh:  make(chan []byte, cfg.SendBuffer),
		closeCh: make(chan closeRequest, 1),
		done:    make(chan struct{}),
	}
}

// Events 事件通道
func (c *Client) Events() <-chan ConnectionEvent {
	return c.events
}

// ReadyState 当前就绪状态
func (c *Client) ReadyState() connection.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta == nil {
		return connection.ReadyStateClosed
	}
	return c.meta.GetState()
}

// Stats 连接统计快照
func (c *Client) Stats() connection.Stats {
	c.mu.Lock()
	meta := c.meta
	c.mu.Unlock()
	if meta == nil {
		return connection.Stats{State: connection.ReadyStateClosed.String()}
	}
	return meta.Snapshot()
}

// Connect 异步发起连接，结果通过事件通知
func (c *Client) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.meta = connection.NewConnection(url, "")
	dialCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(dialCtx, url)
	return nil
}

func (c *Client) run(ctx context.Context, url string) {
	defer close(c.done)
	defer close(c.events)

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.mu.Lock()
		requested := c.closeCode
		c.mu.Unlock()
		c.meta.MarkClosed(protocol.CloseCodeAbnormal)

		if requested != 0 {
			c.emit(ConnectionEvent{Type: EventTypeDisconnected, CloseCode: requested})
			return
		}
		c.meta.RecordError(err.Error())
		c.logger.Warnf("WebSocket dial %s failed: %v", url, err)
		c.emit(ConnectionEvent{Type: EventTypeError, Error: err, ReadyState: connection.ReadyStateConnecting})
		c.emit(ConnectionEvent{Type: EventTypeDisconnected, CloseCode: protocol.CloseCodeAbnormal})
		return
	}

	c.mu.Lock()
	c.conn = conn
	requested := c.closeCode
	if requested == 0 {
		c.meta.MarkOpen(conn.Subprotocol(), time.Now().UTC())
	}
	c.mu.Unlock()

	if requested != 0 {
		// Close 在握手期间被调用
		c.writeClose(conn, requested, "")
		conn.Close()
		c.meta.MarkClosed(requested)
		c.emit(ConnectionEvent{Type: EventTypeDisconnected, CloseCode: requested})
		return
	}

	if conn.Subprotocol() != protocol.OCPP_VERSION_1_6 {
		c.logger.Warnf("Central system did not confirm subprotocol %s (got %q)", protocol.OCPP_VERSION_1_6, conn.Subprotocol())
	}
	conn.SetReadLimit(c.config.MaxMessageSize)
	c.logger.Infof("WebSocket connected to %s", url)
	c.emit(ConnectionEvent{Type: EventTypeConnected})

	writerDone := make(chan struct{})
	go c.sendRoutine(ctx, conn, writerDone)

	code := c.receiveRoutine(conn)

	c.cancel()
	<-writerDone
	conn.Close()
	c.meta.MarkClosed(code)
	c.logger.Infof("WebSocket to %s closed with code %d", url, code)
	c.emit(ConnectionEvent{Type: EventTypeDisconnected, CloseCode: code})
}

// receiveRoutine 接收协程，返回关闭码
func (c *Client) receiveRoutine(conn *websocket.Conn) int {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			requested := c.closeCode
			c.mu.Unlock()

			if requested != 0 {
				return requested
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return closeErr.Code
			}
			c.meta.RecordError(err.Error())
			c.emit(ConnectionEvent{Type: EventTypeError, Error: err, ReadyState: c.meta.GetState()})
			return protocol.CloseCodeAbnormal
		}

		c.meta.IncrementMessagesReceived(int64(len(message)), time.Now().UTC())
		if messageType != websocket.TextMessage {
			c.logger.Debugf("Ignoring non-text WebSocket frame type %d", messageType)
			continue
		}
		c.emit(ConnectionEvent{Type: EventTypeMessage, Message: message})
	}
}

// sendRoutine 发送协程 - 统一处理所有文本帧与关闭帧的写入
func (c *Client) sendRoutine(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.sendCh:
			if !c.writeText(conn, data) {
				return
			}
		case req := <-c.closeCh:
			// 关闭帧之后的写入会被拒绝，先写完已排队的帧
			for drained := false; !drained; {
				select {
				case data := <-c.sendCh:
					if !c.writeText(conn, data) {
						return
					}
				default:
					drained = true
				}
			}
			if err := c.writeClose(conn, req.code, req.reason); err != nil {
				c.logger.Errorf("Failed to send close frame: %v", err)
				conn.Close()
				return
			}
			c.awaitPeerClose(conn)
		}
	}
}

// writeText 写入文本帧，失败时关闭底层连接使读协程退出
func (c *Client) writeText(conn *websocket.Conn, data []byte) bool {
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Errorf("Failed to write WebSocket frame: %v", err)
		c.meta.RecordError(err.Error())
		conn.Close()
		return false
	}
	c.meta.IncrementMessagesSent(int64(len(data)), time.Now().UTC())
	return true
}

// awaitPeerClose 等待对端回应关闭帧，超时则强制断开
func (c *Client) awaitPeerClose(conn *websocket.Conn) {
	go func() {
		select {
		case <-c.done:
		case <-time.After(c.config.CloseTimeout):
			conn.Close()
		}
	}()
}

// Send 发送文本帧
func (c *Client) Send(data []byte) error {
	if c.ReadyState() != connection.ReadyStateOpen {
		return ErrNotConnected
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close 以指定关闭码关闭连接，已排队的帧先于关闭帧写出，重复调用无副作用
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	if !c.started || c.closeCode != 0 || c.meta.GetState() == connection.ReadyStateClosed {
		c.mu.Unlock()
		return nil
	}
	c.closeCode = code
	conn := c.conn
	c.meta.SetState(connection.ReadyStateClosing)
	cancel := c.cancel
	c.mu.Unlock()

	if conn == nil {
		cancel()
		return nil
	}

	c.closeCh <- closeRequest{code: code, reason: reason}
	return nil
}

func (c *Client) writeClose(conn *websocket.Conn, code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteTimeout))
}

// emit 投递事件，通道满时阻塞直到消费者读取
func (c *Client) emit(event ConnectionEvent) {
	event.Timestamp = time.Now().UTC()
	c.events <- event
}

// Done 连接彻底结束后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}
