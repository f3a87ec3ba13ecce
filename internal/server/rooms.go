package server

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"spacedrift/internal/net"
)

// Peer is one live hub connection. Send must never block.
type Peer interface {
	ID() string
	Send(data []byte) bool
}

type Member struct {
	Identity string
	Name     string
	Avatar   *string
	Meta     net.Meta
	Peer     Peer
}

// NewMember builds a member from the identity and meta of a HOST_ROOM or
// JOIN_ROOM request.
func NewMember(identity string, meta net.Meta, peer Peer) *Member {
	m := &Member{
		Identity: identity,
		Name:     net.DisplayName(meta.String("name")),
		Meta:     meta,
		Peer:     peer,
	}
	if avatar := meta.String("avatar"); avatar != "" {
		m.Avatar = &avatar
	}
	if m.Meta == nil {
		m.Meta = net.Meta{}
	}
	return m
}

func (m *Member) Info() net.PlayerInfo {
	return net.PlayerInfo{ID: m.Identity, Name: m.Name, Avatar: m.Avatar, Meta: m.Meta}
}

// Room is guarded by its own mutex so unrelated rooms never contend. A room
// whose last member left is marked closed before it is unlinked from the
// registry, so late lookups see it as gone.
type Room struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	hostID   string
	members  []*Member
	settings json.RawMessage
	closed   bool
}

func (r *Room) indexOf(identity string) int {
	for i, m := range r.members {
		if m.Identity == identity {
			return i
		}
	}
	return -1
}

func (r *Room) member(identity string) *Member {
	if i := r.indexOf(identity); i >= 0 {
		return r.members[i]
	}
	return nil
}

// memberOn returns the member registered under identity on peer, or nil.
func (r *Room) memberOn(identity string, peer Peer) *Member {
	m := r.member(identity)
	if m == nil || m.Peer != peer {
		return nil
	}
	return m
}

func (r *Room) hasPeer(peer Peer) bool {
	for _, m := range r.members {
		if m.Peer == peer {
			return true
		}
	}
	return false
}

func (r *Room) players() []net.PlayerInfo {
	out := make([]net.PlayerInfo, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Info())
	}
	return out
}

// broadcast must be called with r.mu held.
func (r *Room) broadcast(data []byte, exclude string) {
	for _, m := range r.members {
		if exclude != "" && m.Identity == exclude {
			continue
		}
		m.Peer.Send(data)
	}
}

// remove must be called with r.mu held. It reports whether the member was
// present and reassigns the host to the earliest remaining member.
func (r *Room) remove(identity string) bool {
	i := r.indexOf(identity)
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	if len(r.members) == 0 {
		r.closed = true
		r.hostID = ""
		return true
	}
	if r.hostID == identity {
		r.hostID = r.members[0].Identity
	}
	return true
}

// RoomSnapshot is a copy of a room's state for inspection.
type RoomSnapshot struct {
	ID       string
	HostID   string
	Members  []string
	Settings json.RawMessage
}

// Registry maps room ids to rooms. Lock order is reg.mu before room.mu.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	maxMembers int
	logger     *zap.Logger
	now        func() time.Time
}

func NewRegistry(maxMembers int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:      make(map[string]*Room),
		maxMembers: maxMembers,
		logger:     logger,
		now:        time.Now,
	}
}

func (reg *Registry) get(roomID string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[roomID]
}

// withRoom runs fn with the room locked. Missing and closed rooms are
// ErrRoomNotFound.
func (reg *Registry) withRoom(roomID string, fn func(room *Room) error) error {
	room := reg.get(roomID)
	if room == nil {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return ErrRoomNotFound
	}
	return fn(room)
}

// unlink drops room from the map if it is still the registered instance.
func (reg *Registry) unlink(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rooms[room.ID] == room {
		delete(reg.rooms, room.ID)
	}
}

// Create registers a new room with host as its only member and acknowledges
// it to the host.
func (reg *Registry) Create(roomID string, host *Member) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.rooms[roomID]; ok {
		existing.mu.Lock()
		closed := existing.closed
		existing.mu.Unlock()
		if !closed {
			return ErrRoomExists
		}
	}
	room := &Room{
		ID:        roomID,
		CreatedAt: reg.now(),
		hostID:    host.Identity,
		members:   []*Member{host},
	}
	reg.rooms[roomID] = room
	send(host.Peer, &net.HostRoomAck{RoomID: roomID})

	reg.logger.Info("room created", zap.String("room", roomID), zap.String("host", host.Identity))
	return nil
}

// Join adds m to the room. The joiner receives the full member list and the
// existing members receive PLAYER_JOINED.
func (reg *Registry) Join(roomID string, m *Member) error {
	return reg.withRoom(roomID, func(room *Room) error {
		if room.indexOf(m.Identity) >= 0 {
			return ErrAlreadyInRoom
		}
		if reg.maxMembers > 0 && len(room.members) >= reg.maxMembers {
			return ErrRoomFull
		}
		room.members = append(room.members, m)

		send(m.Peer, &net.PlayerList{Players: room.players(), HostID: room.hostID})
		joined, err := net.Encode(&net.PlayerJoined{Player: m.Info()})
		if err != nil {
			return err
		}
		room.broadcast(joined, m.Identity)

		reg.logger.Info("player joined",
			zap.String("room", roomID), zap.String("peer", m.Identity), zap.Int("members", len(room.members)))
		return nil
	})
}

// Leave removes identity from the room. Only the connection that joined
// under identity may remove it.
func (reg *Registry) Leave(roomID, identity string, peer Peer) error {
	room := reg.get(roomID)
	if room == nil {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return ErrRoomNotFound
	}
	if peer != nil && room.memberOn(identity, peer) == nil {
		room.mu.Unlock()
		return ErrNotMember
	}
	reg.leaveLocked(room, identity)
	closed := room.closed
	room.mu.Unlock()

	if closed {
		reg.unlink(room)
	}
	return nil
}

// leaveLocked must be called with room.mu held.
func (reg *Registry) leaveLocked(room *Room, identity string) {
	if !room.remove(identity) {
		return
	}
	if room.closed {
		reg.logger.Info("room deleted", zap.String("room", room.ID), zap.String("last", identity))
		return
	}

	left, err := net.Encode(&net.PlayerLeft{PlayerID: identity, HostID: room.hostID})
	if err != nil {
		reg.logger.Error("encode PLAYER_LEFT", zap.Error(err))
		return
	}
	room.broadcast(left, "")
	reg.logger.Info("player left",
		zap.String("room", room.ID), zap.String("peer", identity), zap.String("host", room.hostID))
}

// RemovePeer runs Leave for every membership held by peer and returns the
// affected room ids.
func (reg *Registry) RemovePeer(peer Peer) []string {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	var affected []string
	for _, room := range rooms {
		room.mu.Lock()
		if room.closed || !room.hasPeer(peer) {
			room.mu.Unlock()
			continue
		}
		var identities []string
		for _, m := range room.members {
			if m.Peer == peer {
				identities = append(identities, m.Identity)
			}
		}
		for _, identity := range identities {
			reg.leaveLocked(room, identity)
		}
		closed := room.closed
		room.mu.Unlock()

		if closed {
			reg.unlink(room)
		}
		affected = append(affected, room.ID)
	}
	return affected
}

// Broadcast sends msg to every member except exclude.
func (reg *Registry) Broadcast(roomID string, msg net.Message, exclude string) error {
	data, err := net.Encode(msg)
	if err != nil {
		return err
	}
	return reg.withRoom(roomID, func(room *Room) error {
		room.broadcast(data, exclude)
		return nil
	})
}

// StartGame records settings and broadcasts START_GAME to every member,
// host included.
func (reg *Registry) StartGame(roomID, requester string, peer Peer, settings json.RawMessage) error {
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	data, err := net.Encode(&net.GameStarted{Settings: settings})
	if err != nil {
		return err
	}
	return reg.withRoom(roomID, func(room *Room) error {
		if room.hostID != requester || room.memberOn(requester, peer) == nil {
			return ErrNotHost
		}
		room.settings = settings
		room.broadcast(data, "")
		reg.logger.Info("game started", zap.String("room", roomID), zap.Int("members", len(room.members)))
		return nil
	})
}

// RelayFrom broadcasts msg on behalf of sender, who must be a member under
// that identity on peer. The sender does not get its own message back.
func (reg *Registry) RelayFrom(roomID, sender string, peer Peer, msg net.Message) error {
	data, err := net.Encode(msg)
	if err != nil {
		return err
	}
	return reg.withRoom(roomID, func(room *Room) error {
		if room.memberOn(sender, peer) == nil {
			return ErrNotMember
		}
		room.broadcast(data, sender)
		return nil
	})
}

// RelayToAll broadcasts msg to every member. peer must hold a membership in
// the room, and when hostOnly is set, it must be the host's connection
// under identity.
func (reg *Registry) RelayToAll(roomID, identity string, peer Peer, msg net.Message, hostOnly bool) error {
	data, err := net.Encode(msg)
	if err != nil {
		return err
	}
	return reg.withRoom(roomID, func(room *Room) error {
		if hostOnly {
			if room.hostID != identity || room.memberOn(identity, peer) == nil {
				return ErrNotHost
			}
		} else if !room.hasPeer(peer) {
			return ErrNotMember
		}
		room.broadcast(data, "")
		return nil
	})
}

// SendTo delivers msg from sender to a single target member. A target that
// is not in the room is dropped silently.
func (reg *Registry) SendTo(roomID, sender string, peer Peer, target string, msg net.Message) error {
	data, err := net.Encode(msg)
	if err != nil {
		return err
	}
	return reg.withRoom(roomID, func(room *Room) error {
		if room.memberOn(sender, peer) == nil {
			return ErrNotMember
		}
		if m := room.member(target); m != nil {
			m.Peer.Send(data)
		}
		return nil
	})
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Snapshot returns a copy of the room, or false when it does not exist.
func (reg *Registry) Snapshot(roomID string) (RoomSnapshot, bool) {
	var snap RoomSnapshot
	err := reg.withRoom(roomID, func(room *Room) error {
		snap.ID = room.ID
		snap.HostID = room.hostID
		snap.Settings = room.settings
		for _, m := range room.members {
			snap.Members = append(snap.Members, m.Identity)
		}
		return nil
	})
	return snap, err == nil
}

// send encodes msg and hands it to peer. Hub-built frames always encode.
func send(peer Peer, msg net.Message) bool {
	data, err := net.Encode(msg)
	if err != nil {
		return false
	}
	return peer.Send(data)
}
