package chargepoint

import (
	"fmt"
	"strconv"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// MeterValue 当前电表读数，默认 0
func (e *Engine) MeterValue() int {
	raw := e.sessionGet(keyMeterValue, "0")
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.logger.Warnf("Ignoring invalid stored meter value %q", raw)
		return 0
	}
	return v
}

// SetMeterValue 写入电表读数，updateServer 为真时立即上报
func (e *Engine) SetMeterValue(value int, updateServer bool) {
	e.sessionSet(keyMeterValue, strconv.Itoa(value))
	e.logger.Debugf("Meter value set to %d", value)
	if updateServer {
		connectorID := 1
		if e.transaction != nil && e.transaction.ConnectorID > 0 {
			connectorID = e.transaction.ConnectorID
		}
		e.SendMeterValue(connectorID)
	}
}

// SendMeterValue 上报一次电表值，带上当前交易号
func (e *Engine) SendMeterValue(connectorID int) error {
	if !e.validConnector(connectorID) {
		return fmt.Errorf("unknown connector %d", connectorID)
	}
	e.sendCall(ocpp16.ActionMeterValues, ocpp16.MeterValuesRequest{
		ConnectorId:   connectorID,
		TransactionId: e.TransactionID(),
		MeterValue: []ocpp16.MeterValue{{
			Timestamp: ocpp16.NewDateTime(e.opts.Now()),
			SampledValue: []ocpp16.SampledValue{{
				Value:     strconv.Itoa(e.MeterValue()),
				Context:   ocpp16.ReadingContextSamplePeriodic,
				Measurand: ocpp16.MeasurandEnergyActiveImportRegister,
				Location:  ocpp16.LocationOutlet,
				Unit:      ocpp16.UnitOfMeasureKWh,
			}},
		}},
	}, PendingCall{ConnectorID: connectorID})
	return nil
}
