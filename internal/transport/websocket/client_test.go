package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/config"
	"github.com/charging-platform/charge-point-simulator/internal/domain/connection"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer 启动一个模拟中央系统，handler 拿到服务端连接
func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"ocpp1.6"},
		CheckOrigin:  func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http") + "/ocpp/CP001"
}

func nextEvent(t *testing.T, c *Client) ConnectionEvent {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection event")
	}
	return ConnectionEvent{}
}

func echoHandler(conn *websocket.Conn) {
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

func TestClient_ConnectSendClose(t *testing.T) {
	_, url := newTestServer(t, echoHandler)

	c := NewClient(nil, nil)
	assert.ErrorIs(t, c.Send([]byte("x")), ErrNotConnected)

	require.NoError(t, c.Connect(context.Background(), url))
	assert.ErrorIs(t, c.Connect(context.Background(), url), ErrAlreadyStarted)

	ev := nextEvent(t, c)
	require.Equal(t, EventTypeConnected, ev.Type)
	assert.Equal(t, connection.ReadyStateOpen, c.ReadyState())
	assert.Equal(t, "ocpp1.6", c.Stats().Subprotocol)

	frame := []byte(`[2,"abc","Heartbeat",{}]`)
	require.NoError(t, c.Send(frame))

	ev = nextEvent(t, c)
	require.Equal(t, EventTypeMessage, ev.Type)
	assert.Equal(t, frame, ev.Message)

	require.NoError(t, c.Close(3001, ""))
	ev = nextEvent(t, c)
	require.Equal(t, EventTypeDisconnected, ev.Type)
	assert.Equal(t, 3001, ev.CloseCode)

	_, ok := <-c.Events()
	assert.False(t, ok)
	assert.Equal(t, connection.ReadyStateClosed, c.ReadyState())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.MessagesSent)
	assert.Equal(t, int64(1), stats.MessagesReceived)
	assert.Equal(t, 3001, stats.LastCloseCode)

	// 重复关闭无副作用
	assert.NoError(t, c.Close(3001, ""))
}

func TestClient_ServerClose(t *testing.T) {
	_, url := newTestServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.ReadMessage()
	})

	c := NewClient(DefaultConfig(), nil)
	require.NoError(t, c.Connect(context.Background(), url))

	assert.Equal(t, EventTypeConnected, nextEvent(t, c).Type)
	ev := nextEvent(t, c)
	require.Equal(t, EventTypeDisconnected, ev.Type)
	assert.Equal(t, websocket.CloseInternalServerErr, ev.CloseCode)
}

func TestClient_DialFailure(t *testing.T) {
	server, url := newTestServer(t, echoHandler)
	server.Close()

	c := NewClient(nil, nil)
	require.NoError(t, c.Connect(context.Background(), url))

	ev := nextEvent(t, c)
	require.Equal(t, EventTypeError, ev.Type)
	assert.Error(t, ev.Error)
	assert.Equal(t, connection.ReadyStateConnecting, ev.ReadyState)

	ev = nextEvent(t, c)
	require.Equal(t, EventTypeDisconnected, ev.Type)
	assert.Equal(t, 1006, ev.CloseCode)

	assert.Equal(t, 1, c.Stats().ErrorCount)
}

func TestClient_AbruptDrop(t *testing.T) {
	_, url := newTestServer(t, func(conn *websocket.Conn) {
		// 不发送关闭帧直接断开
		conn.UnderlyingConn().Close()
	})

	c := NewClient(nil, nil)
	require.NoError(t, c.Connect(context.Background(), url))
	assert.Equal(t, EventTypeConnected, nextEvent(t, c).Type)

	ev := nextEvent(t, c)
	require.Equal(t, EventTypeDisconnected, ev.Type)
	assert.Equal(t, 1006, ev.CloseCode)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.WebSocketConfig{HandshakeTimeout: time.Second, SendBuffer: 8}, 16)

	assert.Equal(t, time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 8, cfg.SendBuffer)
	assert.Equal(t, 16, cfg.EventBuffer)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

func TestClient_CloseFlushesQueuedFrames(t *testing.T) {
	received := make(chan string, 16)
	closeCode := make(chan int, 1)
	_, url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					closeCode <- ce.Code
				}
				close(received)
				return
			}
			received <- string(msg)
		}
	})

	c := NewClient(nil, nil)
	require.NoError(t, c.Connect(context.Background(), url))
	require.Equal(t, EventTypeConnected, nextEvent(t, c).Type)

	frames := []string{
		`[3,"reset1",{"status":"Accepted"}]`,
		`[2,"a","Heartbeat",{}]`,
		`[2,"b","Heartbeat",{}]`,
	}
	for _, f := range frames {
		require.NoError(t, c.Send([]byte(f)))
	}
	require.NoError(t, c.Close(3001, ""))

	var got []string
	for msg := range received {
		got = append(got, msg)
	}
	assert.Equal(t, frames, got)

	select {
	case code := <-closeCode:
		assert.Equal(t, 3001, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not see a close frame")
	}

	ev := nextEvent(t, c)
	require.Equal(t, EventTypeDisconnected, ev.Type)
	assert.Equal(t, 3001, ev.CloseCode)
	assert.ErrorIs(t, c.Send([]byte("late")), ErrNotConnected)
}
