package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseEvent_Implementation(t *testing.T) {
	metadata := Metadata{
		Source:          "simulator",
		ProtocolVersion: "ocpp1.6",
		MessageID:       stringPtr("msg-123"),
	}

	event := NewBaseEvent(EventTypeStatusChanged, "CP001", EventSeverityInfo, metadata)

	assert.Len(t, event.GetID(), 36)
	assert.Equal(t, EventTypeStatusChanged, event.GetType())
	assert.Equal(t, "CP001", event.GetChargePointID())
	assert.Equal(t, EventSeverityInfo, event.GetSeverity())
	assert.Equal(t, metadata, event.GetMetadata())
	assert.WithinDuration(t, time.Now(), event.GetTimestamp(), time.Second)
}

func TestStatusChangedEvent(t *testing.T) {
	factory := NewEventFactory("simulator")

	event := factory.CreateStatusChangedEvent("CP001", StatusInfo{Status: "Connected", PreviousStatus: "Connecting"})
	assert.Equal(t, EventTypeStatusChanged, event.GetType())
	assert.Equal(t, EventSeverityInfo, event.GetSeverity())
	assert.Equal(t, "simulator", event.GetMetadata().Source)
	assert.Equal(t, "ocpp1.6", event.GetMetadata().ProtocolVersion)

	errEvent := factory.CreateStatusChangedEvent("CP001", StatusInfo{Status: "Error", Detail: "No connection"})
	assert.Equal(t, EventSeverityError, errEvent.GetSeverity())

	data, err := errEvent.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "charge_point.status_changed", decoded["type"])
	info := decoded["status_info"].(map[string]interface{})
	assert.Equal(t, "No connection", info["detail"])
}

func TestConnectorStatusChangedEvent(t *testing.T) {
	factory := NewEventFactory("simulator")

	event := factory.CreateConnectorStatusChangedEvent("CP001", ConnectorInfo{
		ConnectorID:    1,
		Status:         ocpp16.ConnectorStatusUnavailable,
		PreviousStatus: ocpp16.ConnectorStatusAvailable,
		Notified:       true,
	})

	assert.Equal(t, EventSeverityWarning, event.GetSeverity())
	payload, ok := event.GetPayload().(ConnectorInfo)
	require.True(t, ok)
	assert.Equal(t, 1, payload.ConnectorID)
	assert.True(t, payload.Notified)
}

func TestAvailabilityChangedEvent(t *testing.T) {
	factory := NewEventFactory("simulator")

	event := factory.CreateAvailabilityChangedEvent("CP001", AvailabilityInfo{ConnectorID: 2, Availability: ocpp16.AvailabilityTypeInoperative})
	data, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"availability":"Inoperative"`)
	assert.Contains(t, string(data), `"connector_id":2`)
}

func TestTransactionEvents(t *testing.T) {
	factory := NewEventFactory("simulator")

	started := factory.CreateTransactionStartedEvent("CP001", TransactionInfo{
		TransactionID: intPtr(42),
		ConnectorID:   1,
		IdTag:         "TAG1",
		MeterStart:    intPtr(0),
	})
	assert.Equal(t, EventTypeTransactionStarted, started.GetType())
	info := started.GetPayload().(TransactionInfo)
	assert.Equal(t, 42, *info.TransactionID)

	stopped := factory.CreateTransactionStoppedEvent("CP001", TransactionInfo{
		TransactionID: intPtr(42),
		ConnectorID:   1,
		MeterStop:     intPtr(150),
	})
	data, err := stopped.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"meter_stop":150`)
	assert.NotContains(t, string(data), "meter_start")
}

func TestProtocolErrorEvent(t *testing.T) {
	factory := NewEventFactory("simulator")

	event := factory.CreateProtocolErrorEvent("CP001", "msg-9", ErrorInfo{Code: "GenericError", Description: "boom"})
	assert.Equal(t, EventSeverityError, event.GetSeverity())
	require.NotNil(t, event.GetMetadata().MessageID)
	assert.Equal(t, "msg-9", *event.GetMetadata().MessageID)

	noID := factory.CreateProtocolErrorEvent("CP001", "", ErrorInfo{Code: "GenericError"})
	assert.Nil(t, noID.GetMetadata().MessageID)
}

func TestEventInterface(t *testing.T) {
	factory := NewEventFactory("simulator")

	all := []Event{
		factory.CreateStatusChangedEvent("CP001", StatusInfo{Status: "Connected"}),
		factory.CreateConnectorStatusChangedEvent("CP001", ConnectorInfo{ConnectorID: 1}),
		factory.CreateAvailabilityChangedEvent("CP001", AvailabilityInfo{}),
		factory.CreateTransactionStartedEvent("CP001", TransactionInfo{}),
		factory.CreateTransactionStoppedEvent("CP001", TransactionInfo{}),
		factory.CreateProtocolErrorEvent("CP001", "", ErrorInfo{}),
	}

	ids := map[string]bool{}
	for _, e := range all {
		assert.Equal(t, "CP001", e.GetChargePointID())
		assert.NotNil(t, e.GetPayload())
		_, err := e.ToJSON()
		assert.NoError(t, err)
		ids[e.GetID()] = true
	}
	assert.Len(t, ids, len(all))
}

func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
