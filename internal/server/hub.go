package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"spacedrift/internal/config"
	"spacedrift/internal/net"
	"spacedrift/internal/ratelimit"
)

const (
	findMatchWindow = 3 * time.Second
	hostReadyWindow = 2 * time.Second
	limiterTimeout  = 500 * time.Millisecond
)

// Stats is the /stats payload.
type Stats struct {
	Rooms          int   `json:"rooms"`
	Queue          int   `json:"queue"`
	PendingMatches int   `json:"pendingMatches"`
	Connections    int   `json:"connections"`
	Messages       int64 `json:"messages"`
	Rejected       int64 `json:"rejected"`
}

// Hub routes decoded client messages to the room registry and the
// matchmaker, and cleans up after connections that go away.
type Hub struct {
	Rooms   *Registry
	Matches *Matchmaker

	cfg     config.Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger

	connsMu sync.Mutex
	conns   map[*Connection]struct{}

	messages *atomic.Int64
	rejected *atomic.Int64
}

func NewHub(cfg config.Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.New(nil, logger)
	}
	return &Hub{
		Rooms: NewRegistry(cfg.RoomMaxMembers, logger.Named("rooms")),
		Matches: NewMatchmaker(MatchConfig{
			MinPlayers:         cfg.MinPlayers,
			MaxPlayers:         cfg.MaxPlayers,
			HostConfirmTimeout: cfg.HostConfirmTimeout,
		}, logger.Named("matchmaking")),
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger,
		conns:    make(map[*Connection]struct{}),
		messages: atomic.NewInt64(0),
		rejected: atomic.NewInt64(0),
	}
}

// Handle decodes one frame from peer and dispatches it. Protocol failures are
// answered with an ERROR frame and change no state.
func (h *Hub) Handle(ctx context.Context, peer Peer, data []byte) {
	h.messages.Inc()

	msg, err := net.DecodeClient(data)
	if err == nil {
		err = h.Dispatch(ctx, peer, msg)
	}
	if err == nil {
		return
	}

	h.rejected.Inc()
	perr := protocolError(err)
	h.logger.Debug("request rejected",
		zap.String("conn", peer.ID()), zap.String("code", perr.Code), zap.Error(err))
	send(peer, perr.Frame())
}

// Dispatch applies one client message on behalf of peer.
func (h *Hub) Dispatch(ctx context.Context, peer Peer, msg net.Message) error {
	switch m := msg.(type) {
	case *net.HostRoomMessage:
		return h.Rooms.Create(m.RoomID, NewMember(m.PeerID, m.Meta, peer))

	case *net.JoinRoomMessage:
		return h.Rooms.Join(m.RoomID, NewMember(m.PeerID, m.Meta, peer))

	case *net.LeaveRoomMessage:
		// Leaves are idempotent: repeats and strangers are ignored quietly.
		if err := h.Rooms.Leave(m.RoomID, m.PeerID, peer); err != nil {
			h.logger.Debug("leave ignored", zap.String("room", m.RoomID), zap.String("peer", m.PeerID), zap.Error(err))
		}
		return nil

	case *net.StartGameMessage:
		return h.Rooms.StartGame(m.RoomID, m.PeerID, peer, m.Settings)

	case *net.GameStateMessage:
		return h.Rooms.RelayFrom(m.RoomID, m.PlayerID, peer,
			&net.GameStateRelay{PlayerID: m.PlayerID, Player: m.Player})

	case *net.ProjectilesMessage:
		return h.Rooms.RelayFrom(m.RoomID, m.PlayerID, peer,
			&net.ProjectilesRelay{PlayerID: m.PlayerID, Projectiles: m.Projectiles})

	case *net.DamageMessage:
		return h.Rooms.SendTo(m.RoomID, m.PlayerID, peer, m.TargetID,
			&net.DamageReport{AttackerID: m.PlayerID, Damage: m.Damage, Timestamp: m.Timestamp})

	case *net.PlayerDeathMessage:
		return h.Rooms.RelayToAll(m.RoomID, "", peer,
			&net.PlayerDeathNotice{VictimID: m.VictimID, KillerID: m.KillerID}, false)

	case *net.SpawnPickupMessage:
		return h.Rooms.RelayToAll(m.RoomID, "", peer, &net.PickupSpawned{Pickup: m.Pickup}, false)

	case *net.MatchTimerMessage:
		return h.Rooms.RelayToAll(m.RoomID, m.Sender(), peer, &net.TimerUpdate{TimeLeft: m.TimeLeft}, true)

	case *net.PlaySoundMessage:
		return h.Rooms.RelayFrom(m.RoomID, m.PlayerID, peer,
			&net.SoundPlayed{PlayerID: m.PlayerID, Sound: m.Sound, Volume: m.Volume})

	case *net.FindMatchMessage:
		if !h.allowOnce(ctx, "peer:"+m.PeerID+":find", findMatchWindow) {
			return net.NewProtocolError(net.CodeRateLimit, "Find requests too frequent", ErrRateLimited)
		}
		if err := h.Matches.Find(m.PeerID, peer, m.Meta); err != nil {
			if errors.Is(err, ErrAlreadyQueued) {
				return nil
			}
			return err
		}
		return nil

	case *net.CancelMatchMessage:
		h.Matches.Cancel(m.PeerID, peer)
		return nil

	case *net.HostReadyMessage:
		if !h.Matches.IsPendingHost(m.PeerID) {
			return nil
		}
		if !h.allowOnce(ctx, "peer:"+m.PeerID+":hostready", hostReadyWindow) {
			return nil
		}
		if err := h.Matches.HostReady(m.PeerID, peer, m.RoomID); err != nil && !errors.Is(err, ErrNoPendingMatch) {
			return err
		}
		return nil

	default:
		return net.NewProtocolError(net.CodeUnknownType, "Unknown message type: "+msg.MessageType(), net.ErrUnknownType)
	}
}

func (h *Hub) allowOnce(ctx context.Context, key string, window time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, limiterTimeout)
	defer cancel()
	return h.limiter.CheckOnce(ctx, key, window)
}

// Disconnect removes every trace of peer: queue entry, pending match and
// room memberships.
func (h *Hub) Disconnect(peer Peer) {
	h.Matches.Disconnect(peer)
	if rooms := h.Rooms.RemovePeer(peer); len(rooms) > 0 {
		h.logger.Info("peer disconnected from rooms", zap.String("conn", peer.ID()), zap.Strings("rooms", rooms))
	}
}

func (h *Hub) register(c *Connection) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) unregister(c *Connection) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	delete(h.conns, c)
}

func (h *Hub) connections() []*Connection {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	out := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Stats() Stats {
	h.connsMu.Lock()
	conns := len(h.conns)
	h.connsMu.Unlock()

	return Stats{
		Rooms:          h.Rooms.Len(),
		Queue:          h.Matches.QueueLen(),
		PendingMatches: h.Matches.PendingCount(),
		Connections:    conns,
		Messages:       h.messages.Load(),
		Rejected:       h.rejected.Load(),
	}
}

// RunLiveness pings every connection each interval and terminates those
// that did not answer the previous ping.
func (h *Hub) RunLiveness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	for _, c := range h.connections() {
		if !c.alive.Swap(false) {
			h.logger.Info("terminating unresponsive connection", zap.String("conn", c.id))
			c.Close()
			continue
		}
		c.ping()
	}
}

// Shutdown stops matchmaking timers and closes every connection.
func (h *Hub) Shutdown() {
	h.Matches.Close()
	for _, c := range h.connections() {
		c.Close()
	}
}
