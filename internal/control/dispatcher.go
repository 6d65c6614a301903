package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/business/chargepoint"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/validation"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/message"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
)

// 指令来源
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// 支持的指令
const (
	CommandConnect            = "connect"
	CommandDisconnect         = "disconnect"
	CommandAuthorize          = "authorize"
	CommandStartTransaction   = "startTransaction"
	CommandStopTransaction    = "stopTransaction"
	CommandSetMeterValue      = "setMeterValue"
	CommandSendMeterValue     = "sendMeterValue"
	CommandSendHeartbeat      = "sendHeartbeat"
	CommandSetConnectorStatus = "setConnectorStatus"
	CommandSetAvailability    = "setAvailability"
	CommandSetRemotePolicy    = "setRemotePolicy"
	CommandSetPlugInDelay     = "setPlugInDelay"
)

var (
	// ErrUnknownCommand 未知指令
	ErrUnknownCommand = errors.New("control: unknown command")
	// ErrWrongChargePoint 指令不属于本桩
	ErrWrongChargePoint = errors.New("control: command addressed to another charge point")
)

// Engine 调度循环入口，由 chargepoint.Engine 实现
type Engine interface {
	Submit(ctx context.Context, fn func(*chargepoint.Engine) error) error
}

type connectPayload struct {
	URL           string `json:"url"`
	ChargePointID string `json:"chargePointId"`
}

type idTagPayload struct {
	IdTag string `json:"idTag" validate:"required,ocpp_id_tag"`
}

type startTransactionPayload struct {
	IdTag         string `json:"idTag" validate:"required,ocpp_id_tag"`
	ConnectorID   *int   `json:"connectorId" validate:"omitempty,min=1"`
	ReservationID int    `json:"reservationId" validate:"min=0"`
}

type stopTransactionPayload struct {
	TransactionID *int   `json:"transactionId"`
	IdTag         string `json:"idTag"`
}

type meterValuePayload struct {
	Value        *int `json:"value" validate:"required,min=0"`
	UpdateServer bool `json:"updateServer"`
}

type connectorPayload struct {
	ConnectorID *int `json:"connectorId" validate:"omitempty,min=0"`
}

type connectorStatusPayload struct {
	ConnectorID int    `json:"connectorId" validate:"min=0"`
	Status      string `json:"status" validate:"required"`
	Notify      bool   `json:"notify"`
}

type availabilityPayload struct {
	ConnectorID int    `json:"connectorId" validate:"min=0"`
	Type        string `json:"type" validate:"required"`
}

type policyPayload struct {
	Policy string `json:"policy" validate:"required"`
}

type delayPayload struct {
	Seconds *float64 `json:"seconds" validate:"required,min=0"`
}

// handlerFunc 解析后的指令处理
type handlerFunc func(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error)

// Dispatcher 把控制指令映射为引擎操作
type Dispatcher struct {
	engine        Engine
	chargePointID string
	validator     *validation.Validator
	logger        *logger.Logger
	handlers      map[string]handlerFunc

	stats      DispatcherStats
	statsMutex sync.RWMutex
}

// DispatcherStats 分发器统计信息
type DispatcherStats struct {
	TotalCommands      int64            `json:"total_commands"`
	SuccessfulCommands int64            `json:"successful_commands"`
	FailedCommands     int64            `json:"failed_commands"`
	CommandsBySource   map[string]int64 `json:"commands_by_source"`
	StartTime          time.Time        `json:"start_time"`
	Uptime             time.Duration    `json:"uptime"`
}

// NewDispatcher 创建分发器
func NewDispatcher(engine Engine, chargePointID string, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	d := &Dispatcher{
		engine:        engine,
		chargePointID: chargePointID,
		validator:     validation.NewValidator(),
		logger:        log.With("component", "control"),
		stats: DispatcherStats{
			CommandsBySource: make(map[string]int64),
			StartTime:        time.Now(),
		},
	}
	d.handlers = map[string]handlerFunc{
		strings.ToLower(CommandConnect):            parseConnect,
		strings.ToLower(CommandDisconnect):         parseDisconnect,
		strings.ToLower(CommandAuthorize):          parseAuthorize,
		strings.ToLower(CommandStartTransaction):   parseStartTransaction,
		strings.ToLower(CommandStopTransaction):    parseStopTransaction,
		strings.ToLower(CommandSetMeterValue):      parseSetMeterValue,
		strings.ToLower(CommandSendMeterValue):     parseSendMeterValue,
		strings.ToLower(CommandSendHeartbeat):      parseSendHeartbeat,
		strings.ToLower(CommandSetConnectorStatus): parseSetConnectorStatus,
		strings.ToLower(CommandSetAvailability):    parseSetAvailability,
		strings.ToLower(CommandSetRemotePolicy):    parseSetRemotePolicy,
		strings.ToLower(CommandSetPlugInDelay):     parseSetPlugInDelay,
	}
	return d
}

// SupportedCommands 支持的指令列表
func (d *Dispatcher) SupportedCommands() []string {
	names := []string{
		CommandConnect, CommandDisconnect, CommandAuthorize, CommandStartTransaction,
		CommandStopTransaction, CommandSetMeterValue, CommandSendMeterValue, CommandSendHeartbeat,
		CommandSetConnectorStatus, CommandSetAvailability, CommandSetRemotePolicy, CommandSetPlugInDelay,
	}
	sort.Strings(names)
	return names
}

// Dispatch 解析、校验指令并在调度循环中执行，指令名大小写不敏感
func (d *Dispatcher) Dispatch(ctx context.Context, source string, cmd *message.Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}
	metrics.CommandsConsumed.WithLabelValues(cmd.CommandName, source).Inc()

	err := d.dispatch(ctx, cmd)
	d.updateStats(source, err == nil)
	if err != nil {
		d.logger.Warnf("Command %s from %s failed: %v", cmd.CommandName, source, err)
		return err
	}
	d.logger.Infof("Command %s from %s executed", cmd.CommandName, source)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *message.Command) error {
	if cmd.ChargePointID != "" && d.chargePointID != "" && cmd.ChargePointID != d.chargePointID {
		return fmt.Errorf("%w: %s", ErrWrongChargePoint, cmd.ChargePointID)
	}
	parse, ok := d.handlers[strings.ToLower(cmd.CommandName)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.CommandName)
	}
	op, err := parse(d, cmd.Payload)
	if err != nil {
		return fmt.Errorf("invalid %s payload: %w", cmd.CommandName, err)
	}
	return d.engine.Submit(ctx, op)
}

// KafkaHandler 作为 Kafka 消费者的指令处理函数
func (d *Dispatcher) KafkaHandler() message.CommandHandler {
	return func(ctx context.Context, cmd *message.Command) {
		d.Dispatch(ctx, SourceKafka, cmd)
	}
}

// GetStats 获取分发器统计信息
func (d *Dispatcher) GetStats() DispatcherStats {
	d.statsMutex.RLock()
	defer d.statsMutex.RUnlock()

	stats := d.stats
	stats.Uptime = time.Since(d.stats.StartTime)
	stats.CommandsBySource = make(map[string]int64)
	for source, count := range d.stats.CommandsBySource {
		stats.CommandsBySource[source] = count
	}
	return stats
}

func (d *Dispatcher) updateStats(source string, success bool) {
	d.statsMutex.Lock()
	defer d.statsMutex.Unlock()

	d.stats.TotalCommands++
	if success {
		d.stats.SuccessfulCommands++
	} else {
		d.stats.FailedCommands++
	}
	d.stats.CommandsBySource[source]++
}

// decode 解码可选负载并校验
func (d *Dispatcher) decode(raw json.RawMessage, target interface{}) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, target); err != nil {
			return err
		}
	}
	return d.validator.ValidateStruct(target)
}

func parseConnect(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p connectPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	if p.ChargePointID != "" {
		if err := d.validator.ValidateChargePointID(p.ChargePointID); err != nil {
			return nil, err
		}
	}
	return func(e *chargepoint.Engine) error {
		return e.Connect(p.URL, p.ChargePointID)
	}, nil
}

func parseDisconnect(_ *Dispatcher, _ json.RawMessage) (func(*chargepoint.Engine) error, error) {
	return func(e *chargepoint.Engine) error {
		e.Disconnect()
		return nil
	}, nil
}

func parseAuthorize(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p idTagPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	return func(e *chargepoint.Engine) error {
		return e.Authorize(p.IdTag)
	}, nil
}

func parseStartTransaction(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p startTransactionPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	connectorID := 1
	if p.ConnectorID != nil {
		connectorID = *p.ConnectorID
	}
	return func(e *chargepoint.Engine) error {
		return e.StartTransaction(p.IdTag, connectorID, p.ReservationID)
	}, nil
}

func parseStopTransaction(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p stopTransactionPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	return func(e *chargepoint.Engine) error {
		tag := p.IdTag
		if tag == "" {
			tag = e.DefaultIdTag()
		}
		if p.TransactionID != nil {
			e.StopTransactionWithID(*p.TransactionID, tag)
			return nil
		}
		return e.StopTransaction(tag)
	}, nil
}

func parseSetMeterValue(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p meterValuePayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	return func(e *chargepoint.Engine) error {
		e.SetMeterValue(*p.Value, p.UpdateServer)
		return nil
	}, nil
}

func parseSendMeterValue(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p connectorPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	connectorID := 1
	if p.ConnectorID != nil {
		connectorID = *p.ConnectorID
	}
	return func(e *chargepoint.Engine) error {
		return e.SendMeterValue(connectorID)
	}, nil
}

func parseSendHeartbeat(_ *Dispatcher, _ json.RawMessage) (func(*chargepoint.Engine) error, error) {
	return func(e *chargepoint.Engine) error {
		e.SendHeartbeat()
		return nil
	}, nil
}

func parseSetConnectorStatus(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p connectorStatusPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	return func(e *chargepoint.Engine) error {
		return e.SetConnectorStatus(p.ConnectorID, ocpp16.ConnectorStatus(p.Status), p.Notify)
	}, nil
}

func parseSetAvailability(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p availabilityPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	availability, err := ocpp16.ParseAvailabilityType(p.Type)
	if err != nil {
		return nil, err
	}
	return func(e *chargepoint.Engine) error {
		return e.SetConnectorAvailability(p.ConnectorID, availability)
	}, nil
}

func parseSetRemotePolicy(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p policyPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	policy, err := ocpp16.ParseRemoteStartStopStatus(p.Policy)
	if err != nil {
		return nil, err
	}
	return func(e *chargepoint.Engine) error {
		e.SetRemotePolicy(policy)
		return nil
	}, nil
}

func parseSetPlugInDelay(d *Dispatcher, raw json.RawMessage) (func(*chargepoint.Engine) error, error) {
	var p delayPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}
	delay := time.Duration(*p.Seconds * float64(time.Second))
	return func(e *chargepoint.Engine) error {
		e.SetPlugInDelay(delay)
		return nil
	}, nil
}
