package chargepoint

import (
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
)

const configuredHeartbeatInterval = "900"

// handleCall 按动作名分发中央系统发起的请求
func (e *Engine) handleCall(env *serialization.Envelope) {
	e.logger.Debugf("Server request %s (%s)", env.Action, env.MessageID)

	switch env.Action {
	case ocpp16.ActionReset:
		var req ocpp16.ResetRequest
		if e.decodeRequest(env, &req) {
			e.handleReset(env.MessageID, req)
		}
	case ocpp16.ActionRemoteStartTransaction:
		var req ocpp16.RemoteStartTransactionRequest
		if e.decodeRequest(env, &req) {
			e.handleRemoteStart(env.MessageID, req)
		}
	case ocpp16.ActionRemoteStopTransaction:
		var req ocpp16.RemoteStopTransactionRequest
		if e.decodeRequest(env, &req) {
			e.handleRemoteStop(env.MessageID, req)
		}
	case ocpp16.ActionTriggerMessage:
		var req ocpp16.TriggerMessageRequest
		if e.decodeRequest(env, &req) {
			e.handleTriggerMessage(env.MessageID, req)
		}
	case ocpp16.ActionChangeAvailability:
		var req ocpp16.ChangeAvailabilityRequest
		if e.decodeRequest(env, &req) {
			e.handleChangeAvailability(env.MessageID, req)
		}
	case ocpp16.ActionUnlockConnector:
		var req ocpp16.UnlockConnectorRequest
		if e.decodeRequest(env, &req) {
			e.sendCallResult(env.MessageID, ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlocked})
		}
	case ocpp16.ActionGetConfiguration:
		var req ocpp16.GetConfigurationRequest
		if e.decodeRequest(env, &req) {
			e.handleGetConfiguration(env.MessageID)
		}
	default:
		e.logger.Warnf("Unsupported server action %s", env.Action)
		e.sendCallError(env.MessageID, ocpp16.ErrorCodeNotImplemented, "")
	}
}

// decodeRequest 解码并校验请求负载，失败时回复 CALLERROR
func (e *Engine) decodeRequest(env *serialization.Envelope, target interface{}) bool {
	if err := serialization.DecodePayload(env.Payload, target); err != nil {
		e.logger.Warnf("Malformed %s payload: %v", env.Action, err)
		e.sendCallError(env.MessageID, ocpp16.ErrorCodeFormationViolation, err.Error())
		return false
	}
	if err := e.validator.ValidateStruct(target); err != nil {
		e.logger.Warnf("Invalid %s payload: %v", env.Action, err)
		e.sendCallError(env.MessageID, ocpp16.ErrorCodePropertyConstraintViolation, err.Error())
		return false
	}
	return true
}

func (e *Engine) handleReset(messageID string, req ocpp16.ResetRequest) {
	e.sendCallResult(messageID, ocpp16.ResetResponse{Status: ocpp16.ResetStatusAccepted})
	e.logf("%s reset requested", req.Type)
	e.Disconnect()
}

func (e *Engine) handleRemoteStart(messageID string, req ocpp16.RemoteStartTransactionRequest) {
	connectorID := 1
	if req.ConnectorId != nil {
		connectorID = *req.ConnectorId
	}

	policy := e.opts.RemotePolicy
	if policy == ocpp16.RemoteStartStopStatusAccepted && (connectorID < 1 || connectorID > e.opts.Connectors) {
		e.logf("Remote start for %s rejected: unknown connector %d", req.IdTag, connectorID)
		policy = ocpp16.RemoteStartStopStatusRejected
	} else if policy != ocpp16.RemoteStartStopStatusAccepted {
		e.logf("Remote start for %s rejected by policy", req.IdTag)
	}
	e.sendCallResult(messageID, ocpp16.RemoteStartStopResponse{Status: policy})
	if policy != ocpp16.RemoteStartStopStatusAccepted {
		return
	}

	e.logf("Remote start for %s on connector %d in %s", req.IdTag, connectorID, e.opts.PlugInDelay)
	e.opts.Scheduler.After(e.opts.PlugInDelay, TimerEvent{
		Kind:        TimerRemoteStartDue,
		ConnectorID: connectorID,
		IdTag:       req.IdTag,
	})
}

func (e *Engine) handleRemoteStop(messageID string, req ocpp16.RemoteStopTransactionRequest) {
	policy := e.opts.RemotePolicy
	e.sendCallResult(messageID, ocpp16.RemoteStartStopResponse{Status: policy})
	if policy != ocpp16.RemoteStartStopStatusAccepted {
		e.logf("Remote stop of transaction %d rejected by policy", *req.TransactionId)
		return
	}
	e.StopTransactionWithID(*req.TransactionId, e.opts.DefaultIdTag)
}

func (e *Engine) handleTriggerMessage(messageID string, req ocpp16.TriggerMessageRequest) {
	switch req.RequestedMessage {
	case ocpp16.MessageTriggerBootNotification:
		e.sendCallResult(messageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted})
		e.SendBootNotification()
	case ocpp16.MessageTriggerHeartbeat:
		e.sendCallResult(messageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted})
		e.SendHeartbeat()
	case ocpp16.MessageTriggerMeterValues:
		connectorID := 1
		if req.ConnectorId != nil && *req.ConnectorId > 0 {
			connectorID = *req.ConnectorId
		}
		e.sendCallResult(messageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted})
		e.SendMeterValue(connectorID)
	case ocpp16.MessageTriggerStatusNotification:
		connectorID := 0
		if req.ConnectorId != nil {
			connectorID = *req.ConnectorId
		}
		if !e.validConnector(connectorID) {
			e.sendCallResult(messageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusRejected})
			return
		}
		e.sendCallResult(messageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted})
		e.sendStatusNotification(connectorID, e.ConnectorStatus(connectorID))
	case ocpp16.MessageTriggerDiagnosticsStatusNotification, ocpp16.MessageTriggerFirmwareStatusNotification:
		e.sendCallResult(messageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted})
	default:
		e.sendCallResult(messageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusNotImplemented})
	}
}

func (e *Engine) handleChangeAvailability(messageID string, req ocpp16.ChangeAvailabilityRequest) {
	if !e.validConnector(req.ConnectorId) {
		e.sendCallResult(messageID, ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusRejected})
		return
	}
	e.sendCallResult(messageID, ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted})
	e.SetConnectorAvailability(req.ConnectorId, req.Type)
}

func (e *Engine) handleGetConfiguration(messageID string) {
	value := configuredHeartbeatInterval
	e.sendCallResult(messageID, ocpp16.GetConfigurationResponse{
		ConfigurationKey: []ocpp16.KeyValue{
			{Key: "HeartbeatInterval", Readonly: false, Value: &value},
		},
	})
}
