package chargepoint

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// ErrNoActiveTransaction 没有可停止的交易
var ErrNoActiveTransaction = errors.New("chargepoint: no active transaction")

// Transaction 当前活动交易，ID 在中央系统确认前为空
type Transaction struct {
	ID          *int
	IdTag       string
	ConnectorID int
	MeterStart  int
}

func (e *Engine) restoreTransaction() {
	if id := e.TransactionID(); id != nil {
		e.transaction = &Transaction{ID: id, ConnectorID: 1}
	}
}

// TransactionID 持久化的交易号
func (e *Engine) TransactionID() *int {
	raw := e.sessionGet(keyTransactionID, "")
	if raw == "" {
		return nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		e.logger.Warnf("Ignoring invalid stored transaction id %q", raw)
		return nil
	}
	return &id
}

// ActiveTransaction 当前交易
func (e *Engine) ActiveTransaction() *Transaction {
	return e.transaction
}

// StartTransaction 乐观地进入 InTransaction，发送 StartTransaction 并把连接器置为 Charging
func (e *Engine) StartTransaction(idTag string, connectorID, reservationID int) error {
	if connectorID < 1 || connectorID > e.opts.Connectors {
		return fmt.Errorf("unknown connector %d", connectorID)
	}
	if err := e.validator.ValidateIdTag(idTag); err != nil {
		return err
	}

	e.SetStatus(StatusInTransaction, "")
	meterStart := e.MeterValue()
	e.transaction = &Transaction{IdTag: idTag, ConnectorID: connectorID, MeterStart: meterStart}

	e.sendCall(ocpp16.ActionStartTransaction, ocpp16.StartTransactionRequest{
		ConnectorId:   connectorID,
		IdTag:         idTag,
		MeterStart:    meterStart,
		ReservationId: reservationID,
		Timestamp:     ocpp16.NewDateTime(e.opts.Now()),
	}, PendingCall{ConnectorID: connectorID, IdTag: idTag})

	if err := e.SetConnectorStatus(connectorID, ocpp16.ConnectorStatusCharging, true); err != nil {
		return err
	}
	// 最近动作保持为 StartTransaction，而不是随后的 StatusNotification
	e.sessionSet(keyLastAction, string(ocpp16.ActionStartTransaction))
	return nil
}

// handleStartTransactionResult 不带交易号的结果被忽略
func (e *Engine) handleStartTransactionResult(call PendingCall, resp ocpp16.StartTransactionResponse) {
	if resp.TransactionId == nil {
		e.logger.Warn("Ignoring StartTransaction result without transactionId")
		return
	}
	if resp.IdTagInfo != nil && resp.IdTagInfo.Status != ocpp16.AuthorizationStatusAccepted {
		e.logf("StartTransaction idTag %s reported %s", call.IdTag, resp.IdTagInfo.Status)
	}

	id := *resp.TransactionId
	e.sessionSet(keyTransactionID, strconv.Itoa(id))
	if e.transaction == nil || e.transaction.ConnectorID != call.ConnectorID {
		e.transaction = &Transaction{IdTag: call.IdTag, ConnectorID: call.ConnectorID}
	}
	e.transaction.ID = &id
	e.SetStatus(StatusInTransaction, "")

	meterStart := e.transaction.MeterStart
	e.publish(e.factory.CreateTransactionStartedEvent(e.chargePointID, events.TransactionInfo{
		TransactionID: &id,
		ConnectorID:   call.ConnectorID,
		IdTag:         call.IdTag,
		MeterStart:    &meterStart,
	}))
}

// StopTransaction 使用持久化的交易号停止交易
func (e *Engine) StopTransaction(idTag string) error {
	id := e.TransactionID()
	if id == nil {
		return ErrNoActiveTransaction
	}
	e.StopTransactionWithID(*id, idTag)
	return nil
}

// StopTransactionWithID 进入 Authorized 并发送 StopTransaction，随后模拟拔枪：
// 一个步进延时后连接器 Finishing，再一个步进延时后 Available
func (e *Engine) StopTransactionWithID(transactionID int, idTag string) {
	e.SetStatus(StatusAuthorized, "")

	connectorID := 1
	if e.transaction != nil && e.transaction.ConnectorID > 0 {
		connectorID = e.transaction.ConnectorID
	}
	meterStop := e.MeterValue()

	e.sendCall(ocpp16.ActionStopTransaction, ocpp16.StopTransactionRequest{
		IdTag:         idTag,
		MeterStop:     meterStop,
		Timestamp:     ocpp16.NewDateTime(e.opts.Now()),
		TransactionId: transactionID,
	}, PendingCall{ConnectorID: connectorID, IdTag: idTag})

	e.publish(e.factory.CreateTransactionStoppedEvent(e.chargePointID, events.TransactionInfo{
		TransactionID: &transactionID,
		ConnectorID:   connectorID,
		IdTag:         idTag,
		MeterStop:     &meterStop,
	}))

	e.opts.Scheduler.After(e.opts.StopStepDelay, TimerEvent{Kind: TimerStopFinishing, ConnectorID: connectorID})
}

func (e *Engine) handleStopTransactionResult(call PendingCall) {
	connectorID := call.ConnectorID
	if connectorID < 1 {
		connectorID = 1
	}
	e.SetConnectorStatus(connectorID, ocpp16.ConnectorStatusAvailable, false)
	e.transaction = nil
	e.sessionSet(keyTransactionID, "")
}

// HandleTimer 处理定时事件
func (e *Engine) HandleTimer(ev TimerEvent) {
	switch ev.Kind {
	case TimerHeartbeatDue:
		if ev.Generation != e.heartbeatGen || e.heartbeatCancel == nil {
			return
		}
		e.SendHeartbeat()

	case TimerStopFinishing:
		e.SetConnectorStatus(ev.ConnectorID, ocpp16.ConnectorStatusFinishing, true)
		e.opts.Scheduler.After(e.opts.StopStepDelay, TimerEvent{Kind: TimerStopAvailable, ConnectorID: ev.ConnectorID})

	case TimerStopAvailable:
		e.SetConnectorStatus(ev.ConnectorID, ocpp16.ConnectorStatusAvailable, true)

	case TimerRemoteStartDue:
		if err := e.StartTransaction(ev.IdTag, ev.ConnectorID, 0); err != nil {
			e.logger.Warnf("Remote start failed: %v", err)
		}

	default:
		e.logger.Warnf("Unknown timer event %s", ev.Kind)
	}
}
