package chargepoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
	"github.com/charging-platform/charge-point-simulator/internal/storage"
	"github.com/charging-platform/charge-point-simulator/internal/transport/websocket"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// centralSystem 进程内中央系统，按 action 回复固定结果
type centralSystem struct {
	server *httptest.Server

	mu        sync.Mutex
	conn      *gorilla.Conn
	paths     []string
	actions   []ocpp16.Action
	results   []string
	closeCode int

	writeMu sync.Mutex
}

func newCentralSystem(t *testing.T) *centralSystem {
	t.Helper()
	cs := &centralSystem{}
	upgrader := gorilla.Upgrader{Subprotocols: []string{"ocpp1.6"}}

	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		cs.mu.Lock()
		cs.conn = conn
		cs.paths = append(cs.paths, r.URL.Path)
		cs.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*gorilla.CloseError); ok {
					cs.mu.Lock()
					cs.closeCode = ce.Code
					cs.mu.Unlock()
				}
				return
			}
			env, err := serialization.Decode(data)
			if err != nil {
				continue
			}
			if env.Type == ocpp16.CallResult {
				cs.mu.Lock()
				cs.results = append(cs.results, string(data))
				cs.mu.Unlock()
				continue
			}
			if env.Type != ocpp16.Call {
				continue
			}
			cs.mu.Lock()
			cs.actions = append(cs.actions, env.Action)
			cs.mu.Unlock()

			reply, err := serialization.EncodeCallResult(env.MessageID, resultFor(env.Action))
			if err != nil {
				return
			}
			if err := cs.write(conn, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *centralSystem) write(conn *gorilla.Conn, frame []byte) error {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	return conn.WriteMessage(gorilla.TextMessage, frame)
}

// call 向充电桩发送请求
func (cs *centralSystem) call(t *testing.T, frame string) {
	t.Helper()
	cs.mu.Lock()
	conn := cs.conn
	cs.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, cs.write(conn, []byte(frame)))
}

// snapshot 返回已收到的结果帧和关闭码
func (cs *centralSystem) snapshot() ([]string, int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.results...), cs.closeCode
}

func resultFor(action ocpp16.Action) interface{} {
	accepted := map[string]interface{}{"status": "Accepted"}
	switch action {
	case ocpp16.ActionBootNotification:
		return map[string]interface{}{"status": "Accepted", "currentTime": time.Now().UTC().Format(time.RFC3339), "interval": 300}
	case ocpp16.ActionAuthorize, ocpp16.ActionStopTransaction:
		return map[string]interface{}{"idTagInfo": accepted}
	case ocpp16.ActionStartTransaction:
		return map[string]interface{}{"transactionId": 42, "idTagInfo": accepted}
	default:
		return map[string]interface{}{}
	}
}

func (cs *centralSystem) url() string {
	return "ws" + strings.TrimPrefix(cs.server.URL, "http") + "/ocpp"
}

func (cs *centralSystem) received(action ocpp16.Action) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, a := range cs.actions {
		if a == action {
			n++
		}
	}
	return n
}

func (cs *centralSystem) lastCloseCode() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.closeCode
}

func TestChargingSession_OverWebSocket(t *testing.T) {
	cs := newCentralSystem(t)

	engine, err := New(Options{
		ChargePointID:    "CP-E2E",
		CentralSystemURL: cs.url(),
		StopStepDelay:    20 * time.Millisecond,
		Durable:          storage.NewMemoryStore(),
		Session:          storage.NewMemoryStore(),
		Connections:      WebSocketConnectionFactory(websocket.DefaultConfig(), nil),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	status := func() Status {
		var s Status
		engine.Submit(context.Background(), func(e *Engine) error {
			s = e.Status()
			return nil
		})
		return s
	}
	submit := func(fn func(e *Engine) error) {
		require.NoError(t, engine.Submit(context.Background(), fn))
	}

	// 连接并完成 BootNotification
	submit(func(e *Engine) error { return e.Connect("", "") })
	assert.Eventually(t, func() bool { return status() == StatusConnected }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, cs.received(ocpp16.ActionBootNotification))
	cs.mu.Lock()
	assert.Equal(t, []string{"/ocpp/CP-E2E"}, cs.paths)
	cs.mu.Unlock()

	// 开始交易
	submit(func(e *Engine) error { return e.StartTransaction("TAG1", 1, 0) })
	assert.Eventually(t, func() bool { return status() == StatusInTransaction }, 5*time.Second, 10*time.Millisecond)
	submit(func(e *Engine) error {
		require.NotNil(t, e.TransactionID())
		assert.Equal(t, 42, *e.TransactionID())
		return nil
	})

	// 停止交易，连接器经 Finishing 回到 Available
	submit(func(e *Engine) error { return e.StopTransaction("TAG1") })
	assert.Eventually(t, func() bool {
		return cs.received(ocpp16.ActionStatusNotification) >= 3
	}, 5*time.Second, 10*time.Millisecond)
	submit(func(e *Engine) error {
		assert.Equal(t, ocpp16.ConnectorStatusAvailable, e.ConnectorStatus(1))
		assert.Nil(t, e.TransactionID())
		assert.Equal(t, StatusAuthorized, e.Status())
		return nil
	})
	assert.Equal(t, 1, cs.received(ocpp16.ActionStopTransaction))

	// 主动断开，中央系统看到 3001
	submit(func(e *Engine) error {
		e.Disconnect()
		return nil
	})
	assert.Eventually(t, func() bool { return status() == StatusDisconnected }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return cs.lastCloseCode() == 3001 }, 5*time.Second, 10*time.Millisecond)
}

// startSession 启动引擎并连接到中央系统，返回状态读取函数
func startSession(t *testing.T, cs *centralSystem) (*Engine, func() Status) {
	t.Helper()
	engine, err := New(Options{
		ChargePointID:    "CP-E2E",
		CentralSystemURL: cs.url(),
		Durable:          storage.NewMemoryStore(),
		Session:          storage.NewMemoryStore(),
		Connections:      WebSocketConnectionFactory(websocket.DefaultConfig(), nil),
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

	status := func() Status {
		var s Status
		engine.Submit(context.Background(), func(e *Engine) error {
			s = e.Status()
			return nil
		})
		return s
	}
	require.NoError(t, engine.Submit(context.Background(), func(e *Engine) error { return e.Connect("", "") }))
	require.Eventually(t, func() bool { return status() == StatusConnected }, 5*time.Second, 10*time.Millisecond)
	return engine, status
}

func TestReset_AcknowledgedBeforeClose(t *testing.T) {
	cs := newCentralSystem(t)
	_, status := startSession(t, cs)

	cs.call(t, `[2,"reset1","Reset",{"type":"Soft"}]`)

	assert.Eventually(t, func() bool {
		_, code := cs.snapshot()
		return code == 3001
	}, 5*time.Second, 10*time.Millisecond)

	results, _ := cs.snapshot()
	require.Len(t, results, 1)
	assert.JSONEq(t, `[3,"reset1",{"status":"Accepted"}]`, results[0])
	assert.Eventually(t, func() bool { return status() == StatusDisconnected }, 5*time.Second, 10*time.Millisecond)
}
