package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacedrift/internal/config"
	"spacedrift/internal/net"
	"spacedrift/internal/server"
)

func TestBackoffDoublesAndResets(t *testing.T) {
	b := NewBackoff()

	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 16 * time.Second, 16 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func startHub(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	hub := server.NewHub(cfg, nil, nil)
	t.Cleanup(hub.Shutdown)

	router := server.NewRouter(nil)
	require.NoError(t, server.NewHubController(hub).Resolve(router))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return wsURL(srv)
}

func startConnector(t *testing.T, url string) *Connector {
	t.Helper()
	c := NewConnector(url, nil)
	c.backoff.Base = 10 * time.Millisecond
	c.backoff.Max = 40 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-done
	})
	return c
}

func waitConnected(t *testing.T, c *Connector) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == Connected }, 2*time.Second, 5*time.Millisecond)
}

func TestSessionHostAndJoin(t *testing.T) {
	url := startHub(t)
	a := NewSession(startConnector(t, url), "A", "Ann", nil)
	b := NewSession(startConnector(t, url), "B", "Bob", nil)
	ctx := context.Background()

	require.NoError(t, a.HostRoom(ctx, "R1"))
	assert.True(t, a.IsHost())

	require.NoError(t, b.JoinRoom(ctx, "R1"))
	roomID, hostID := b.Room()
	assert.Equal(t, "R1", roomID)
	assert.Equal(t, "A", hostID)
	assert.Len(t, b.Players(), 2)
	require.Eventually(t, func() bool { return len(a.Players()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.StartGame(nil))
	require.Eventually(t, b.Started, time.Second, 5*time.Millisecond)

	require.NoError(t, a.LeaveRoom())
	require.Eventually(t, b.IsHost, time.Second, 5*time.Millisecond, "host passes to the next member")
}

func TestSessionErrors(t *testing.T) {
	url := startHub(t)
	a := NewSession(startConnector(t, url), "A", "Ann", nil)
	b := NewSession(startConnector(t, url), "B", "Bob", nil)
	ctx := context.Background()

	assert.ErrorIs(t, a.JoinRoom(ctx, "missing"), ErrRoomNotFound)

	require.NoError(t, a.HostRoom(ctx, "R1"))
	assert.ErrorIs(t, b.HostRoom(ctx, "R1"), ErrRoomExists)
	assert.EqualError(t, b.HostRoom(ctx, "R1"), "host room R1: room already exists")

	assert.ErrorIs(t, NewSession(NewConnector(url, nil), "C", "", nil).LeaveRoom(), ErrNotInRoom)
}

func TestSessionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	s := NewSession(startConnector(t, wsURL(srv)), "A", "Ann", nil)
	s.timeout = 100 * time.Millisecond

	err := s.HostRoom(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrTimeout)
	roomID, _ := s.Room()
	assert.Empty(t, roomID)
}

func TestSendBeforeConnectIsRetried(t *testing.T) {
	url := startHub(t)
	c := NewConnector(url, nil)
	s := NewSession(c, "A", "Ann", nil)

	result := make(chan error, 1)
	go func() { result <- s.HostRoom(context.Background(), "R1") }()

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, Disconnected, c.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("send was never retried")
	}
}

func TestConnectorReconnects(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		count++
		first := count == 1
		mu.Unlock()
		if first {
			conn.Close()
			return
		}
		data, _ := net.Encode(&net.HostRoomAck{RoomID: "again"})
		conn.WriteMessage(websocket.TextMessage, data)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c := NewConnector(wsURL(srv), nil)
	c.backoff.Base = 10 * time.Millisecond

	var states []State
	var statesMu sync.Mutex
	c.OnStateChange(func(s State) {
		statesMu.Lock()
		defer statesMu.Unlock()
		states = append(states, s)
	})
	p := c.Expect(func(m net.Message) (bool, error) {
		ack, ok := m.(*net.HostRoomAck)
		return ok && ack.RoomID == "again", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer waitCancel()
	require.NoError(t, p.Wait(waitCtx))

	statesMu.Lock()
	defer statesMu.Unlock()
	assert.Equal(t, []State{Connecting, Connected, Disconnected, Connecting, Connected}, states)
}

func TestMatchmakingFlow(t *testing.T) {
	url := startHub(t)
	a := NewSession(startConnector(t, url), "A", "Ann", nil)
	b := NewSession(startConnector(t, url), "B", "Bob", nil)

	rooms := make(chan string, 2)
	for _, s := range []*Session{a, b} {
		s.OnRoom(func(roomID string, host bool) { rooms <- roomID })
	}
	waitConnected(t, a.conn)
	waitConnected(t, b.conn)

	require.NoError(t, a.FindMatch())
	require.Eventually(t, a.Queued, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.FindMatch())

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case r := <-rooms:
			got = append(got, r)
		case <-time.After(3 * time.Second):
			t.Fatalf("only %d of 2 sessions reached the room", i)
		}
	}
	assert.Equal(t, got[0], got[1])
	assert.True(t, strings.HasPrefix(got[0], "match_"))
	assert.True(t, a.IsHost())
	assert.False(t, b.Queued())
}

// scriptedHub answers each decoded client frame with the frames reply returns.
func scriptedHub(t *testing.T, reply func(net.Message) []net.Message) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := net.DecodeClient(data)
			if err != nil {
				continue
			}
			for _, out := range reply(msg) {
				frame, _ := net.Encode(out)
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return wsURL(srv)
}

func TestUnrelatedErrorDoesNotFailRoomRequests(t *testing.T) {
	url := scriptedHub(t, func(m net.Message) []net.Message {
		switch m := m.(type) {
		case *net.HostRoomMessage:
			return []net.Message{
				&net.ErrorMessage{Code: net.CodeRateLimit, Message: "Rate limit exceeded"},
				&net.HostRoomAck{RoomID: m.RoomID},
			}
		case *net.JoinRoomMessage:
			return []net.Message{
				&net.ErrorMessage{Code: net.CodeNotMember, Message: "Not a member"},
				&net.PlayerList{HostID: "H", Players: []net.PlayerInfo{{ID: "H", Name: "Host"}, {ID: m.PeerID, Name: "Ann"}}},
			}
		}
		return nil
	})
	s := NewSession(startConnector(t, url), "A", "Ann", nil)
	ctx := context.Background()

	require.NoError(t, s.HostRoom(ctx, "R1"))
	require.NoError(t, s.LeaveRoom())
	require.NoError(t, s.JoinRoom(ctx, "R2"))
	roomID, hostID := s.Room()
	assert.Equal(t, "R2", roomID)
	assert.Equal(t, "H", hostID)
}

func TestRoomErrorStillFailsJoin(t *testing.T) {
	url := scriptedHub(t, func(m net.Message) []net.Message {
		if _, ok := m.(*net.JoinRoomMessage); ok {
			return []net.Message{&net.ErrorMessage{Code: net.CodeRoomFull, Message: "Room is full"}}
		}
		return nil
	})
	s := NewSession(startConnector(t, url), "A", "Ann", nil)

	assert.ErrorIs(t, s.JoinRoom(context.Background(), "R1"), ErrRoomFull)
}

func TestDuplicatePlayerJoinedIsIgnored(t *testing.T) {
	url := scriptedHub(t, func(m net.Message) []net.Message {
		switch m := m.(type) {
		case *net.HostRoomMessage:
			return []net.Message{&net.HostRoomAck{RoomID: m.RoomID}}
		case *net.StartGameMessage:
			joined := &net.PlayerJoined{Player: net.PlayerInfo{ID: "B", Name: "Bob"}}
			return []net.Message{joined, joined}
		}
		return nil
	})
	s := NewSession(startConnector(t, url), "A", "Ann", nil)

	require.NoError(t, s.HostRoom(context.Background(), "R1"))
	require.NoError(t, s.StartGame(nil))
	require.Eventually(t, func() bool { return len(s.Players()) >= 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.Players(), 2)
}
