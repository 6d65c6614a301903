package chargepoint

import (
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
)

// SetHeartbeat 取消已有的心跳定时器并按新的周期（秒）重新启动，周期不大于 0 时只取消
func (e *Engine) SetHeartbeat(periodSeconds int) {
	e.cancelHeartbeat()
	e.heartbeatInterval = periodSeconds
	if periodSeconds <= 0 {
		e.logger.Warnf("Heartbeat disabled, interval %d", periodSeconds)
		return
	}
	e.heartbeatGen++
	e.heartbeatCancel = e.opts.Scheduler.Every(time.Duration(periodSeconds)*time.Second, TimerEvent{
		Kind:       TimerHeartbeatDue,
		Generation: e.heartbeatGen,
	})
	e.logger.Infof("Heartbeat every %ds", periodSeconds)
}

// HeartbeatInterval 当前心跳周期（秒）
func (e *Engine) HeartbeatInterval() int {
	return e.heartbeatInterval
}

// HeartbeatActive 是否有心跳定时器在运行
func (e *Engine) HeartbeatActive() bool {
	return e.heartbeatCancel != nil
}

func (e *Engine) cancelHeartbeat() {
	if e.heartbeatCancel != nil {
		e.heartbeatCancel()
		e.heartbeatCancel = nil
	}
}

// SendHeartbeat 发送心跳
func (e *Engine) SendHeartbeat() {
	e.sendCall(ocpp16.ActionHeartbeat, ocpp16.HeartbeatRequest{}, PendingCall{})
	metrics.HeartbeatsSent.Inc()
}
