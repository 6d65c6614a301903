package chargepoint

import (
	"fmt"

	"github.com/charging-platform/charge-point-simulator/internal/domain/connection"
	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/protocol"
	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
	"github.com/charging-platform/charge-point-simulator/internal/transport/websocket"
)

const connectionCloseNormal = protocol.CloseCodeNormal

// Connect 连接中央系统，url 为空时使用配置的地址，chargePointID 为空时沿用当前ID
func (e *Engine) Connect(url, chargePointID string) error {
	if e.conn != nil {
		state := e.conn.ReadyState()
		if state == connection.ReadyStateOpen || state == connection.ReadyStateConnecting {
			e.SetStatus(StatusError, "Socket already opened. Closing it. Retry later")
			e.conn.Close(connectionCloseNormal, "")
			return nil
		}
		// 旧连接的最终关闭事件不会再被处理，在这里完成它的收尾
		e.dropConnection()
		if e.status != StatusDisconnected {
			e.SetStatus(StatusDisconnected, "")
		}
	}

	if url == "" {
		url = e.opts.CentralSystemURL
	}
	if chargePointID != "" && chargePointID != e.chargePointID {
		if e.opts.PinChargePointID {
			return fmt.Errorf("%w: %s", ErrChargePointIDPinned, e.chargePointID)
		}
		e.chargePointID = chargePointID
	}
	if url == "" || e.chargePointID == "" {
		return fmt.Errorf("central system url and charge point id are required")
	}

	conn := e.opts.Connections()
	e.conn = conn
	e.connEvents = conn.Events()

	target := connectURL(url, e.chargePointID)
	e.logf("Connecting to %s", target)
	if err := conn.Connect(e.baseCtx, target); err != nil {
		e.dropConnection()
		e.SetStatus(StatusError, fmt.Sprintf("Connect failed: %v", err))
		return nil
	}
	return nil
}

// Disconnect 以 3001 主动关闭连接，状态在关闭事件到达后变为 Disconnected
func (e *Engine) Disconnect() {
	if e.conn == nil {
		e.logf("Disconnect requested without an open connection")
		return
	}
	if err := e.conn.Close(connectionCloseNormal, ""); err != nil {
		e.logger.Warnf("Failed to close connection: %v", err)
	}
}

// dropConnection 丢弃当前连接并执行关闭后的清理，未读事件在后台排空
func (e *Engine) dropConnection() {
	e.cancelHeartbeat()
	e.clearPending()
	if e.connEvents != nil {
		go drain(e.connEvents)
	}
	e.conn = nil
	e.connEvents = nil
}

func drain(ch <-chan websocket.ConnectionEvent) {
	for range ch {
	}
}

// HandleConnectionEvent 处理连接事件
func (e *Engine) HandleConnectionEvent(ev websocket.ConnectionEvent) {
	switch ev.Type {
	case websocket.EventTypeConnected:
		e.SetStatus(StatusConnecting, "")
		e.SendBootNotification()

	case websocket.EventTypeError:
		e.SetStatus(StatusError, errorDetail(ev))

	case websocket.EventTypeDisconnected:
		e.cancelHeartbeat()
		e.clearPending()
		e.conn = nil
		e.connEvents = nil
		if protocol.IsNormalClose(ev.CloseCode) {
			e.SetStatus(StatusDisconnected, "")
		} else {
			e.SetStatus(StatusError, fmt.Sprintf("Connection closed with code %d", ev.CloseCode))
		}

	case websocket.EventTypeMessage:
		e.handleFrame(ev.Message)
	}
}

// errorDetail 按出错时的就绪状态给出说明
func errorDetail(ev websocket.ConnectionEvent) string {
	reason := ""
	if ev.Error != nil {
		reason = ": " + ev.Error.Error()
	}
	switch ev.ReadyState {
	case connection.ReadyStateOpen:
		return "Connection error while open" + reason
	case connection.ReadyStateClosed:
		return "Connection closed with error" + reason
	default:
		return "Connection error" + reason
	}
}

// handleFrame 解码入站报文并分发
func (e *Engine) handleFrame(frame []byte) {
	e.logger.Frame("in", frame)

	env, err := serialization.Decode(frame)
	if err != nil {
		e.logger.Warnf("Dropping malformed frame: %v", err)
		e.publish(e.factory.CreateProtocolErrorEvent(e.chargePointID, "", events.ErrorInfo{
			Code:        string(ocpp16.ErrorCodeFormationViolation),
			Description: err.Error(),
		}))
		return
	}
	metrics.FramesReceived.WithLabelValues(env.Type.String()).Inc()

	switch env.Type {
	case ocpp16.Call:
		e.handleCall(env)
	case ocpp16.CallResult:
		e.handleCallResult(env)
	case ocpp16.CallError:
		e.handleCallError(env)
	}
}

// sendCall 编码并发送 CALL，发送成功后登记待应答请求
func (e *Engine) sendCall(action ocpp16.Action, payload interface{}, call PendingCall) {
	id := e.opts.IDs.Generate()
	frame, err := serialization.EncodeCall(id, action, payload)
	if err != nil {
		e.logger.ErrorWithErr(err, "Failed to encode "+string(action))
		return
	}
	if !e.send(frame, ocpp16.Call) {
		return
	}
	call.Action = action
	call.SentAt = e.opts.Now()
	e.track(id, call)
}

func (e *Engine) sendCallResult(messageID string, payload interface{}) {
	frame, err := serialization.EncodeCallResult(messageID, payload)
	if err != nil {
		e.logger.ErrorWithErr(err, "Failed to encode call result")
		return
	}
	e.send(frame, ocpp16.CallResult)
}

func (e *Engine) sendCallError(messageID string, code ocpp16.ErrorCode, description string) {
	frame, err := serialization.EncodeCallError(messageID, code, description)
	if err != nil {
		e.logger.ErrorWithErr(err, "Failed to encode call error")
		return
	}
	e.send(frame, ocpp16.CallError)
}

// send 写出一帧，未连接时进入 Error 状态而不返回错误
func (e *Engine) send(frame []byte, messageType ocpp16.MessageType) bool {
	e.logger.Frame("out", frame)
	if e.conn == nil || e.conn.ReadyState() != connection.ReadyStateOpen {
		e.SetStatus(StatusError, "No connection")
		return false
	}
	if err := e.conn.Send(frame); err != nil {
		e.SetStatus(StatusError, fmt.Sprintf("Send failed: %v", err))
		return false
	}
	metrics.FramesSent.WithLabelValues(messageType.String()).Inc()
	return true
}
