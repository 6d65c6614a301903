package chargepoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/config"
	"github.com/charging-platform/charge-point-simulator/internal/domain/connection"
	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/validation"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
	"github.com/charging-platform/charge-point-simulator/internal/storage"
	"github.com/charging-platform/charge-point-simulator/internal/transport/websocket"
)

// ErrNotRunning 调度循环未运行
var ErrNotRunning = errors.New("chargepoint: engine is not running")

// ErrChargePointIDPinned 存储按充电桩ID划分作用域时不允许切换ID
var ErrChargePointIDPinned = errors.New("chargepoint: charge point id is pinned to its storage scope")

// 会话存储键
const (
	keyStatus        = "Status"
	keyLastAction    = "LastAction"
	keyTransactionID = "TransactionId"
	keyMeterValue    = "MeterValue"
)

const storageTimeout = 2 * time.Second

// Options 引擎配置与协作者
type Options struct {
	ChargePointID    string
	CentralSystemURL string
	Connectors       int
	Vendor           string
	Model            string
	SerialNumber     string
	FirmwareVersion  string
	RemotePolicy     ocpp16.RemoteStartStopStatus
	PlugInDelay      time.Duration
	StopStepDelay    time.Duration
	DefaultIdTag     string
	CommandBuffer    int

	// PinChargePointID 为真时 Connect 拒绝切换充电桩ID，存储键前缀在启动时按ID确定
	PinChargePointID bool

	Durable     storage.KeyValueStore
	Session     storage.KeyValueStore
	Connections ConnectionFactory
	Scheduler   Scheduler
	IDs         IdentifierGenerator
	Publisher   EventPublisher
	Logger      *logger.Logger
	Now         func() time.Time

	// 观察者
	OnStatusChange       func(status Status, detail string)
	OnAvailabilityChange func(connectorID int, availability ocpp16.AvailabilityType)
	OnLog                func(message string)
}

// OptionsFromConfig 由应用配置填充引擎参数，协作者由调用方补齐
func OptionsFromConfig(cfg config.SimulatorConfig) Options {
	policy, err := ocpp16.ParseRemoteStartStopStatus(cfg.RemoteStartStopPolicy)
	if err != nil {
		policy = ocpp16.RemoteStartStopStatusAccepted
	}
	return Options{
		ChargePointID:    cfg.ChargePointID,
		CentralSystemURL: cfg.CentralSystemURL,
		Connectors:       cfg.Connectors,
		Vendor:           cfg.Vendor,
		Model:            cfg.Model,
		SerialNumber:     cfg.SerialNumber,
		FirmwareVersion:  cfg.FirmwareVersion,
		RemotePolicy:     policy,
		PlugInDelay:      cfg.PlugInDelay,
		StopStepDelay:    cfg.StopStepDelay,
		DefaultIdTag:     cfg.DefaultIdTag,
		CommandBuffer:    cfg.FrameBuffer,
	}
}

// Engine 充电桩协议引擎
// 除 Run 与 Submit 外的方法都不是并发安全的，只能在调度循环内或 Run 启动前调用
type Engine struct {
	opts      Options
	logger    *logger.Logger
	validator *validation.Validator
	factory   *events.EventFactory

	chargePointID string
	status        Status
	detail        string

	conn       Connection
	connEvents <-chan websocket.ConnectionEvent
	pending    map[string]PendingCall

	heartbeatInterval int
	heartbeatGen      uint64
	heartbeatCancel   CancelFunc

	transaction *Transaction

	baseCtx  context.Context
	commands chan func()
	stopped  chan struct{}
}

// New 创建引擎，恢复会话中持久化的状态
func New(opts Options) (*Engine, error) {
	if opts.Durable == nil || opts.Session == nil {
		return nil, errors.New("chargepoint: durable and session stores are required")
	}
	if opts.Connections == nil {
		return nil, errors.New("chargepoint: connection factory is required")
	}
	if opts.Connectors < 1 {
		opts.Connectors = 2
	}
	if opts.RemotePolicy == "" {
		opts.RemotePolicy = ocpp16.RemoteStartStopStatusAccepted
	}
	if opts.StopStepDelay <= 0 {
		opts.StopStepDelay = time.Second
	}
	if opts.DefaultIdTag == "" {
		opts.DefaultIdTag = "DEADBEEF"
	}
	if opts.CommandBuffer < 1 {
		opts.CommandBuffer = 64
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewTimerScheduler(opts.CommandBuffer)
	}
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		opts:          opts,
		logger:        opts.Logger.With("component", "chargepoint"),
		validator:     validation.NewValidator(),
		factory:       events.NewEventFactory("charge-point-simulator"),
		chargePointID: opts.ChargePointID,
		pending:       make(map[string]PendingCall),
		baseCtx:       context.Background(),
		commands:      make(chan func(), opts.CommandBuffer),
		stopped:       make(chan struct{}),
	}

	e.status = Status(e.sessionGet(keyStatus, string(StatusDisconnected)))
	if !e.status.IsValid() {
		e.status = StatusDisconnected
	}
	metrics.SetStatus(string(e.status), statusLabels())
	e.restoreTransaction()
	return e, nil
}

// Run 单一调度循环：连接事件、定时事件与外部指令依次处理
func (e *Engine) Run(ctx context.Context) error {
	e.baseCtx = ctx
	defer close(e.stopped)

	timers := e.opts.Scheduler.C()
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case ev, ok := <-e.connEvents:
			if !ok {
				e.connEvents = nil
				continue
			}
			e.HandleConnectionEvent(ev)
		case tev := <-timers:
			e.HandleTimer(tev)
		case cmd := <-e.commands:
			cmd()
		}
	}
}

// Submit 把操作投递到调度循环并等待其结果
func (e *Engine) Submit(ctx context.Context, fn func(*Engine) error) error {
	result := make(chan error, 1)
	cmd := func() { result <- fn(e) }

	select {
	case e.commands <- cmd:
	case <-e.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-e.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown 关闭连接并在有限时间内处理剩余连接事件
func (e *Engine) shutdown() {
	e.cancelHeartbeat()
	if e.conn == nil {
		return
	}
	e.conn.Close(connectionCloseNormal, "simulator shutdown")

	deadline := time.After(3 * time.Second)
	for e.connEvents != nil {
		select {
		case ev, ok := <-e.connEvents:
			if !ok {
				e.connEvents = nil
				continue
			}
			e.HandleConnectionEvent(ev)
		case <-deadline:
			e.logger.Warn("Timed out waiting for connection to close")
			return
		}
	}
}

// ChargePointID 当前充电桩ID
func (e *Engine) ChargePointID() string {
	return e.chargePointID
}

// Status 当前状态
func (e *Engine) Status() Status {
	return e.status
}

// StatusDetail 最近一次状态变化的说明
func (e *Engine) StatusDetail() string {
	return e.detail
}

// SetStatus 迁移状态，持久化并通知观察者
func (e *Engine) SetStatus(status Status, detail string) {
	previous := e.status
	e.status = status
	e.detail = detail
	e.sessionSet(keyStatus, string(status))
	metrics.SetStatus(string(status), statusLabels())

	if detail != "" {
		e.logf("Status %s -> %s: %s", previous, status, detail)
	} else {
		e.logf("Status %s -> %s", previous, status)
	}
	if e.opts.OnStatusChange != nil {
		e.opts.OnStatusChange(status, detail)
	}
	e.publish(e.factory.CreateStatusChangedEvent(e.chargePointID, events.StatusInfo{
		Status:         string(status),
		PreviousStatus: string(previous),
		Detail:         detail,
	}))
}

// SetRemotePolicy 设置远程启停应答策略
func (e *Engine) SetRemotePolicy(policy ocpp16.RemoteStartStopStatus) {
	e.opts.RemotePolicy = policy
}

// RemotePolicy 远程启停应答策略
func (e *Engine) RemotePolicy() ocpp16.RemoteStartStopStatus {
	return e.opts.RemotePolicy
}

// SetPlugInDelay 设置远程启动后模拟插枪的延时
func (e *Engine) SetPlugInDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.opts.PlugInDelay = d
}

// PlugInDelay 模拟插枪延时
func (e *Engine) PlugInDelay() time.Duration {
	return e.opts.PlugInDelay
}

// Connectors 物理连接器数量
func (e *Engine) Connectors() int {
	return e.opts.Connectors
}

// DefaultIdTag 停止交易时的默认标签
func (e *Engine) DefaultIdTag() string {
	return e.opts.DefaultIdTag
}

// Snapshot 引擎状态快照
type Snapshot struct {
	ChargePointID     string                       `json:"chargePointId"`
	Status            Status                       `json:"status"`
	Detail            string                       `json:"detail,omitempty"`
	Connectors        []ConnectorSnapshot          `json:"connectors"`
	TransactionID     *int                         `json:"transactionId,omitempty"`
	MeterValue        int                          `json:"meterValue"`
	HeartbeatInterval int                          `json:"heartbeatInterval"`
	PendingCalls      int                          `json:"pendingCalls"`
	RemotePolicy      ocpp16.RemoteStartStopStatus `json:"remoteStartStopPolicy"`
	PlugInDelay       string                       `json:"plugInDelay"`
	Connection        *connection.Stats            `json:"connection,omitempty"`
}

// ConnectorSnapshot 连接器快照
type ConnectorSnapshot struct {
	ID           int                     `json:"id"`
	Status       ocpp16.ConnectorStatus  `json:"status"`
	Availability ocpp16.AvailabilityType `json:"availability"`
}

// Snapshot 生成快照
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		ChargePointID:     e.chargePointID,
		Status:            e.status,
		Detail:            e.detail,
		TransactionID:     e.TransactionID(),
		MeterValue:        e.MeterValue(),
		HeartbeatInterval: e.heartbeatInterval,
		PendingCalls:      len(e.pending),
		RemotePolicy:      e.opts.RemotePolicy,
		PlugInDelay:       e.opts.PlugInDelay.String(),
	}
	for id := 0; id <= e.opts.Connectors; id++ {
		snap.Connectors = append(snap.Connectors, ConnectorSnapshot{
			ID:           id,
			Status:       e.ConnectorStatus(id),
			Availability: e.Availability(id),
		})
	}
	if e.conn != nil {
		stats := e.conn.Stats()
		snap.Connection = &stats
	}
	return snap
}

// logf 写日志并通知 log 观察者
func (e *Engine) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.logger.Info(msg)
	if e.opts.OnLog != nil {
		e.opts.OnLog(msg)
	}
}

func (e *Engine) publish(event events.Event) {
	if e.opts.Publisher == nil {
		return
	}
	if err := e.opts.Publisher.PublishEvent(event); err != nil {
		e.logger.Errorf("Failed to publish %s event: %v", event.GetType(), err)
	}
}

func (e *Engine) storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storageTimeout)
}

func (e *Engine) sessionGet(key, def string) string {
	return e.storeGet(e.opts.Session, key, def)
}

func (e *Engine) sessionSet(key, value string) {
	e.storeSet(e.opts.Session, key, value)
}

func (e *Engine) storeGet(store storage.KeyValueStore, key, def string) string {
	ctx, cancel := e.storageContext()
	defer cancel()
	value, err := store.Get(ctx, key, def)
	if err != nil {
		e.logger.Errorf("Failed to read %s from storage: %v", key, err)
		return def
	}
	return value
}

func (e *Engine) storeSet(store storage.KeyValueStore, key, value string) {
	ctx, cancel := e.storageContext()
	defer cancel()
	if err := store.Set(ctx, key, value); err != nil {
		e.logger.Errorf("Failed to write %s to storage: %v", key, err)
	}
}

func connectURL(base, chargePointID string) string {
	return strings.TrimRight(base, "/") + "/" + chargePointID
}
