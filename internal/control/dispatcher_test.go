package control

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/business/chargepoint"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/message"
	"github.com/charging-platform/charge-point-simulator/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runningEngine 启动一个不连接中央系统的真实引擎
func runningEngine(t *testing.T) *chargepoint.Engine {
	t.Helper()
	engine, err := chargepoint.New(chargepoint.Options{
		ChargePointID: "CP001",
		Connectors:    2,
		Durable:       storage.NewMemoryStore(),
		Session:       storage.NewMemoryStore(),
		Connections:   func() chargepoint.Connection { return nil },
		Scheduler:     chargepoint.NewManualScheduler(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return engine
}

func command(name string, payload string) *message.Command {
	cmd := &message.Command{CommandName: name}
	if payload != "" {
		cmd.Payload = json.RawMessage(payload)
	}
	return cmd
}

func inspect(t *testing.T, engine *chargepoint.Engine, fn func(e *chargepoint.Engine)) {
	t.Helper()
	err := engine.Submit(context.Background(), func(e *chargepoint.Engine) error {
		fn(e)
		return nil
	})
	require.NoError(t, err)
}

func TestDispatch_EngineSettings(t *testing.T) {
	engine := runningEngine(t)
	d := NewDispatcher(engine, "CP001", nil)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, SourceHTTP, command("setRemotePolicy", `{"policy":"Rejected"}`)))
	require.NoError(t, d.Dispatch(ctx, SourceHTTP, command("SETPLUGINDELAY", `{"seconds":2.5}`)))
	require.NoError(t, d.Dispatch(ctx, SourceKafka, command("setMeterValue", `{"value":150}`)))
	require.NoError(t, d.Dispatch(ctx, SourceKafka, command("setConnectorStatus", `{"connectorId":1,"status":"Charging"}`)))

	inspect(t, engine, func(e *chargepoint.Engine) {
		assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, e.RemotePolicy())
		assert.Equal(t, 2500*time.Millisecond, e.PlugInDelay())
		assert.Equal(t, 150, e.MeterValue())
		assert.Equal(t, ocpp16.ConnectorStatusCharging, e.ConnectorStatus(1))
	})

	stats := d.GetStats()
	assert.Equal(t, int64(4), stats.TotalCommands)
	assert.Equal(t, int64(4), stats.SuccessfulCommands)
	assert.Equal(t, int64(2), stats.CommandsBySource[SourceHTTP])
	assert.Equal(t, int64(2), stats.CommandsBySource[SourceKafka])
}

func TestDispatch_SetAvailabilityCascades(t *testing.T) {
	engine := runningEngine(t)
	d := NewDispatcher(engine, "CP001", nil)

	require.NoError(t, d.Dispatch(context.Background(), SourceHTTP,
		command("setAvailability", `{"connectorId":0,"type":"inoperative"}`)))

	inspect(t, engine, func(e *chargepoint.Engine) {
		for id := 0; id <= 2; id++ {
			assert.Equal(t, ocpp16.AvailabilityTypeInoperative, e.Availability(id))
		}
	})
}

func TestDispatch_Errors(t *testing.T) {
	engine := runningEngine(t)
	d := NewDispatcher(engine, "CP001", nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		cmd    *message.Command
		target error
	}{
		{"unknown command", command("selfDestruct", ""), ErrUnknownCommand},
		{"other charge point", &message.Command{ChargePointID: "CP999", CommandName: "sendHeartbeat"}, ErrWrongChargePoint},
		{"no active transaction", command("stopTransaction", ""), chargepoint.ErrNoActiveTransaction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Dispatch(ctx, SourceHTTP, tt.cmd)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	invalid := []struct {
		name string
		cmd  *message.Command
	}{
		{"missing idTag", command("authorize", `{}`)},
		{"idTag too long", command("authorize", `{"idTag":"ABCDEFGHIJKLMNOPQRSTUVWXYZ"}`)},
		{"negative meter", command("setMeterValue", `{"value":-1}`)},
		{"missing meter", command("setMeterValue", `{}`)},
		{"bad policy", command("setRemotePolicy", `{"policy":"Maybe"}`)},
		{"bad availability", command("setAvailability", `{"connectorId":1,"type":"Broken"}`)},
		{"malformed json", command("setPlugInDelay", `{"seconds":`)},
		{"bad charge point id", command("connect", `{"chargePointId":"CP 1"}`)},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, d.Dispatch(ctx, SourceHTTP, tt.cmd))
		})
	}

	connectorErr := d.Dispatch(ctx, SourceHTTP, command("setConnectorStatus", `{"connectorId":7,"status":"Available"}`))
	assert.Error(t, connectorErr)

	stats := d.GetStats()
	assert.Equal(t, int64(0), stats.SuccessfulCommands)
	assert.Equal(t, stats.TotalCommands, stats.FailedCommands)
}

type stoppedEngine struct{}

func (stoppedEngine) Submit(context.Context, func(*chargepoint.Engine) error) error {
	return chargepoint.ErrNotRunning
}

func TestDispatch_EngineNotRunning(t *testing.T) {
	d := NewDispatcher(stoppedEngine{}, "CP001", nil)

	err := d.Dispatch(context.Background(), SourceKafka, command("sendHeartbeat", ""))
	assert.True(t, errors.Is(err, chargepoint.ErrNotRunning))

	assert.Error(t, d.Dispatch(context.Background(), SourceKafka, nil))
}

type recordingEngine struct {
	calls int
}

func (r *recordingEngine) Submit(context.Context, func(*chargepoint.Engine) error) error {
	r.calls++
	return nil
}

func TestKafkaHandler(t *testing.T) {
	rec := &recordingEngine{}
	d := NewDispatcher(rec, "CP001", nil)
	handler := d.KafkaHandler()

	handler(context.Background(), &message.Command{ChargePointID: "CP001", CommandName: "sendHeartbeat"})
	handler(context.Background(), &message.Command{CommandName: "disconnect"})
	handler(context.Background(), &message.Command{CommandName: "unknown"})

	assert.Equal(t, 2, rec.calls)
	stats := d.GetStats()
	assert.Equal(t, int64(3), stats.CommandsBySource[SourceKafka])
	assert.Equal(t, int64(1), stats.FailedCommands)
}

func TestSupportedCommands(t *testing.T) {
	d := NewDispatcher(&recordingEngine{}, "", nil)
	names := d.SupportedCommands()
	assert.Len(t, names, 12)
	assert.Contains(t, names, CommandStartTransaction)
	assert.Contains(t, names, CommandSetPlugInDelay)
}
