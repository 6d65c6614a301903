package chargepoint

import (
	"fmt"
	"strconv"

	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

func connectorStatusKey(id int) string {
	return "Connector" + strconv.Itoa(id) + "Status"
}

func connectorAvailabilityKey(id int) string {
	return "Connector" + strconv.Itoa(id) + "Availability"
}

// validConnector 0 表示充电桩本身，1..N 为物理连接器
func (e *Engine) validConnector(id int) bool {
	return id >= 0 && id <= e.opts.Connectors
}

// ConnectorStatus 连接器状态，默认 Available
func (e *Engine) ConnectorStatus(id int) ocpp16.ConnectorStatus {
	return ocpp16.ConnectorStatus(e.sessionGet(connectorStatusKey(id), string(ocpp16.ConnectorStatusAvailable)))
}

// SetConnectorStatus 更新连接器状态，notify 为真时上报 StatusNotification
func (e *Engine) SetConnectorStatus(id int, status ocpp16.ConnectorStatus, notify bool) error {
	if !e.validConnector(id) {
		return fmt.Errorf("unknown connector %d", id)
	}
	previous := e.ConnectorStatus(id)
	e.sessionSet(connectorStatusKey(id), string(status))
	e.logger.Debugf("Connector %d status %s -> %s", id, previous, status)

	if notify {
		e.sendStatusNotification(id, status)
	}
	e.publish(e.factory.CreateConnectorStatusChangedEvent(e.chargePointID, events.ConnectorInfo{
		ConnectorID:    id,
		Status:         status,
		PreviousStatus: previous,
		Notified:       notify,
	}))
	return nil
}

func (e *Engine) sendStatusNotification(id int, status ocpp16.ConnectorStatus) {
	e.sendCall(ocpp16.ActionStatusNotification, ocpp16.StatusNotificationRequest{
		ConnectorId: id,
		ErrorCode:   ocpp16.ChargePointErrorCodeNoError,
		Status:      status,
		Timestamp:   ocpp16.NewDateTime(e.opts.Now()),
	}, PendingCall{ConnectorID: id})
}

// Availability 连接器可用性，默认 Operative
func (e *Engine) Availability(id int) ocpp16.AvailabilityType {
	value := e.storeGet(e.opts.Durable, connectorAvailabilityKey(id), string(ocpp16.AvailabilityTypeOperative))
	return ocpp16.AvailabilityType(value)
}

// SetConnectorAvailability 更新可用性
// Inoperative 使连接器变为 Unavailable 并上报；Operative 把 Unavailable 的连接器恢复为 Available。
// 连接器 0 的可用性级联到所有物理连接器。
func (e *Engine) SetConnectorAvailability(id int, availability ocpp16.AvailabilityType) error {
	if !e.validConnector(id) {
		return fmt.Errorf("unknown connector %d", id)
	}
	if availability != ocpp16.AvailabilityTypeOperative && availability != ocpp16.AvailabilityTypeInoperative {
		return fmt.Errorf("unknown availability %q", availability)
	}

	e.storeSet(e.opts.Durable, connectorAvailabilityKey(id), string(availability))
	e.logf("Connector %d availability set to %s", id, availability)
	if e.opts.OnAvailabilityChange != nil {
		e.opts.OnAvailabilityChange(id, availability)
	}
	e.publish(e.factory.CreateAvailabilityChangedEvent(e.chargePointID, events.AvailabilityInfo{
		ConnectorID:  id,
		Availability: availability,
	}))

	switch availability {
	case ocpp16.AvailabilityTypeInoperative:
		e.SetConnectorStatus(id, ocpp16.ConnectorStatusUnavailable, true)
	case ocpp16.AvailabilityTypeOperative:
		if e.ConnectorStatus(id) == ocpp16.ConnectorStatusUnavailable {
			e.SetConnectorStatus(id, ocpp16.ConnectorStatusAvailable, true)
		}
	}

	if id == 0 {
		for c := 1; c <= e.opts.Connectors; c++ {
			e.SetConnectorAvailability(c, availability)
		}
	}
	return nil
}
