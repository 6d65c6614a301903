package chargepoint

import (
	"fmt"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
)

// PendingCall 等待应答的出站请求
type PendingCall struct {
	Action      ocpp16.Action
	ConnectorID int
	IdTag       string
	SentAt      time.Time
}

// track 登记待应答请求，并记录最近一次动作
func (e *Engine) track(messageID string, call PendingCall) {
	e.pending[messageID] = call
	metrics.PendingCalls.Set(float64(len(e.pending)))
	e.sessionSet(keyLastAction, string(call.Action))
}

// resolve 取出并移除待应答请求
func (e *Engine) resolve(messageID string) (PendingCall, bool) {
	call, ok := e.pending[messageID]
	if ok {
		delete(e.pending, messageID)
		metrics.PendingCalls.Set(float64(len(e.pending)))
	}
	return call, ok
}

func (e *Engine) clearPending() {
	if len(e.pending) > 0 {
		e.logger.Debugf("Dropping %d unanswered calls", len(e.pending))
	}
	e.pending = make(map[string]PendingCall)
	metrics.PendingCalls.Set(0)
}

// PendingCalls 待应答请求数量
func (e *Engine) PendingCalls() int {
	return len(e.pending)
}

// LastAction 最近一次发出的动作
func (e *Engine) LastAction() ocpp16.Action {
	return ocpp16.Action(e.sessionGet(keyLastAction, ""))
}

func (e *Engine) handleCallResult(env *serialization.Envelope) {
	call, ok := e.resolve(env.MessageID)
	if !ok {
		e.logger.Warnf("Received result for unknown message %s", env.MessageID)
		return
	}

	switch call.Action {
	case ocpp16.ActionBootNotification:
		var resp ocpp16.BootNotificationResponse
		if e.decodeResult(env, call, &resp) {
			e.handleBootResult(resp)
		}
	case ocpp16.ActionAuthorize:
		var resp ocpp16.AuthorizeResponse
		if e.decodeResult(env, call, &resp) {
			e.handleAuthorizeResult(resp)
		}
	case ocpp16.ActionStartTransaction:
		var resp ocpp16.StartTransactionResponse
		if e.decodeResult(env, call, &resp) {
			e.handleStartTransactionResult(call, resp)
		}
	case ocpp16.ActionStopTransaction:
		e.handleStopTransactionResult(call)
	case ocpp16.ActionHeartbeat, ocpp16.ActionMeterValues, ocpp16.ActionStatusNotification:
		// 无需处理
	default:
		e.logger.Warnf("Unhandled result for action %s", call.Action)
	}
}

func (e *Engine) decodeResult(env *serialization.Envelope, call PendingCall, target interface{}) bool {
	if err := serialization.DecodePayload(env.Payload, target); err != nil {
		e.logger.Warnf("Invalid %s result: %v", call.Action, err)
		return false
	}
	return true
}

// handleCallError CALLERROR 无论对应哪个请求都进入 Error 状态
func (e *Engine) handleCallError(env *serialization.Envelope) {
	call, ok := e.resolve(env.MessageID)
	action := "unknown"
	if ok {
		action = string(call.Action)
	}
	metrics.CallErrors.WithLabelValues(env.ErrorCode).Inc()
	e.logger.Warnf("CALLERROR for %s (%s): %s %s", env.MessageID, action, env.ErrorCode, env.ErrorDescription)

	e.publish(e.factory.CreateProtocolErrorEvent(e.chargePointID, env.MessageID, events.ErrorInfo{
		Code:        env.ErrorCode,
		Description: env.ErrorDescription,
	}))
	e.SetStatus(StatusError, fmt.Sprintf("%s: %s", env.ErrorCode, env.ErrorDescription))
}

// SendBootNotification 发送启动通知
func (e *Engine) SendBootNotification() {
	e.sendCall(ocpp16.ActionBootNotification, ocpp16.BootNotificationRequest{
		ChargePointVendor:       e.opts.Vendor,
		ChargePointModel:        e.opts.Model,
		ChargePointSerialNumber: e.opts.SerialNumber,
		FirmwareVersion:         e.opts.FirmwareVersion,
	}, PendingCall{})
}

func (e *Engine) handleBootResult(resp ocpp16.BootNotificationResponse) {
	if resp.Status != ocpp16.RegistrationStatusAccepted {
		e.SetStatus(StatusError, fmt.Sprintf("BootNotification %s", resp.Status))
		e.Disconnect()
		return
	}
	e.SetHeartbeat(resp.Interval)
	e.SetStatus(StatusConnected, "")
}

// Authorize 发送授权请求
func (e *Engine) Authorize(idTag string) error {
	if err := e.validator.ValidateIdTag(idTag); err != nil {
		return err
	}
	e.sendCall(ocpp16.ActionAuthorize, ocpp16.AuthorizeRequest{IdTag: idTag}, PendingCall{IdTag: idTag})
	return nil
}

func (e *Engine) handleAuthorizeResult(resp ocpp16.AuthorizeResponse) {
	if resp.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted {
		e.SetStatus(StatusAuthorized, "")
		return
	}
	e.SetStatus(StatusError, fmt.Sprintf("Authorization %s", resp.IdTagInfo.Status))
}
