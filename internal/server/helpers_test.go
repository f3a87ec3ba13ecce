package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spacedrift/internal/config"
	"spacedrift/internal/net"
	"spacedrift/internal/ratelimit"
)

// fakePeer records every frame the hub sends it.
type fakePeer struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, append([]byte(nil), data...))
	return true
}

func (p *fakePeer) messages(t *testing.T) []net.Message {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]net.Message, 0, len(p.frames))
	for _, f := range p.frames {
		msg, err := net.DecodeServer(f)
		require.NoError(t, err, string(f))
		out = append(out, msg)
	}
	return out
}

func (p *fakePeer) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range p.messages(t) {
		out = append(out, m.MessageType())
	}
	return out
}

func (p *fakePeer) last(t *testing.T) net.Message {
	t.Helper()
	msgs := p.messages(t)
	require.NotEmpty(t, msgs, "peer %s received nothing", p.id)
	return msgs[len(msgs)-1]
}

func (p *fakePeer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HostConfirmTimeout = time.Minute
	return cfg
}

func newTestHub(t *testing.T, cfg config.Config) *Hub {
	t.Helper()
	h := NewHub(cfg, ratelimit.New(nil, nil), nil)
	t.Cleanup(h.Shutdown)
	return h
}

// do encodes v as a client frame with the given type and feeds it to the hub.
func do(t *testing.T, h *Hub, p Peer, typ string, v map[string]any) {
	t.Helper()
	if v == nil {
		v = map[string]any{}
	}
	v["type"] = typ
	data, err := json.Marshal(v)
	require.NoError(t, err)
	h.Handle(context.Background(), p, data)
}

func lastError(t *testing.T, p *fakePeer) *net.ErrorMessage {
	t.Helper()
	msg := p.last(t)
	errMsg, ok := msg.(*net.ErrorMessage)
	require.True(t, ok, "expected ERROR, got %s", msg.MessageType())
	return errMsg
}
