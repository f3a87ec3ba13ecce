package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacedrift/internal/config"
	"spacedrift/internal/net"
)

func startServer(t *testing.T, cfg config.Config) (*Hub, string) {
	t.Helper()
	h := newTestHub(t, cfg)
	router := NewRouter(nil)
	require.NoError(t, NewHubController(h).Resolve(router))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, typ string, v map[string]any) {
	t.Helper()
	v["type"] = typ
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func read(t *testing.T, conn *websocket.Conn) net.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := net.DecodeServer(data)
	require.NoError(t, err, string(data))
	return msg
}

func TestWebsocketRoomScenario(t *testing.T) {
	_, url := startServer(t, testConfig())
	host := dial(t, url)
	guest := dial(t, url)

	write(t, host, net.TypeHostRoom, map[string]any{"roomId": "R1", "peerId": "A", "meta": map[string]any{"name": "Ann"}})
	ack, ok := read(t, host).(*net.HostRoomAck)
	require.True(t, ok)
	assert.Equal(t, "R1", ack.RoomID)

	write(t, guest, net.TypeJoinRoom, map[string]any{"roomId": "R1", "peerId": "B"})
	list, ok := read(t, guest).(*net.PlayerList)
	require.True(t, ok)
	assert.Equal(t, "A", list.HostID)
	assert.Len(t, list.Players, 2)

	joined, ok := read(t, host).(*net.PlayerJoined)
	require.True(t, ok)
	assert.Equal(t, "B", joined.Player.ID)

	write(t, guest, net.TypeGameState, map[string]any{"roomId": "R1", "playerId": "B", "player": map[string]any{"x": 1}})
	state, ok := read(t, host).(*net.GameStateRelay)
	require.True(t, ok)
	assert.Equal(t, "B", state.PlayerID)

	require.NoError(t, guest.Close())
	left, ok := read(t, host).(*net.PlayerLeft)
	require.True(t, ok)
	assert.Equal(t, "B", left.PlayerID)
	assert.Equal(t, "A", left.HostID)
}

func TestWebsocketRejectsBadFrames(t *testing.T) {
	_, url := startServer(t, testConfig())
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errMsg, ok := read(t, conn).(*net.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, net.CodeBadRequest, errMsg.Code)

	write(t, conn, "TELEPORT", map[string]any{})
	errMsg, ok = read(t, conn).(*net.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, net.CodeUnknownType, errMsg.Code)
}

func TestWebsocketMessageRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MessageRate = 0.001
	cfg.MessageBurst = 1
	_, url := startServer(t, cfg)
	conn := dial(t, url)

	write(t, conn, net.TypeHostRoom, map[string]any{"roomId": "R1", "peerId": "A"})
	write(t, conn, net.TypeLeaveRoom, map[string]any{"roomId": "R1", "peerId": "A"})

	_, ok := read(t, conn).(*net.HostRoomAck)
	require.True(t, ok)
	errMsg, ok := read(t, conn).(*net.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, net.CodeRateLimit, errMsg.Code)
	assert.Equal(t, "Too many messages", errMsg.Message)
}

func TestLivenessTerminatesSilentClient(t *testing.T) {
	h, url := startServer(t, testConfig())
	dial(t, url)

	require.Eventually(t, func() bool { return len(h.connections()) == 1 }, time.Second, 5*time.Millisecond)

	// The client never reads, so it never answers the first ping.
	h.sweep()
	assert.Len(t, h.connections(), 1)
	h.sweep()

	require.Eventually(t, func() bool { return len(h.connections()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestLivenessKeepsResponsiveClient(t *testing.T) {
	h, url := startServer(t, testConfig())
	conn := dial(t, url)
	// Reading lets the default ping handler answer with a pong.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return len(h.connections()) == 1 }, time.Second, 5*time.Millisecond)
	c := h.connections()[0]

	for i := 0; i < 3; i++ {
		h.sweep()
		require.Eventually(t, c.alive.Load, time.Second, 5*time.Millisecond, "pong %d", i)
	}
	assert.Len(t, h.connections(), 1)
}

func TestLivenessIgnoresFramesWithoutPong(t *testing.T) {
	h, url := startServer(t, testConfig())
	conn := dial(t, url)

	require.Eventually(t, func() bool { return len(h.connections()) == 1 }, time.Second, 5*time.Millisecond)

	h.sweep()
	write(t, conn, net.TypeLeaveRoom, map[string]any{"roomId": "R1", "peerId": "A"})
	require.Eventually(t, func() bool { return h.Stats().Messages == 1 }, time.Second, 5*time.Millisecond)
	h.sweep()

	require.Eventually(t, func() bool { return len(h.connections()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSlowConnectionIsClosed(t *testing.T) {
	cfg := testConfig()
	cfg.SendBuffer = 1
	h := newTestHub(t, cfg)

	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	c := NewConnection(<-conns, h)
	require.True(t, c.Send([]byte(`{}`)))
	for i := 0; i < maxDrops; i++ {
		assert.False(t, c.Send([]byte(`{}`)))
	}

	require.Eventually(t, func() bool {
		select {
		case <-c.done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.False(t, c.Send([]byte(`{}`)))
}
