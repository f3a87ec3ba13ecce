package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"spacedrift/internal/net"
)

const requestTimeout = 5 * time.Second

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomFull     = errors.New("room is full")
	ErrTimeout      = errors.New("timed out waiting for the server")
	ErrNotInRoom    = errors.New("not in a room")
)

// ServerError is an ERROR frame without a friendlier mapping.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func serverError(m *net.ErrorMessage) error {
	switch m.Code {
	case net.CodeNotFound:
		return ErrRoomNotFound
	case net.CodeAlreadyExists:
		return ErrRoomExists
	case net.CodeRoomFull:
		return ErrRoomFull
	}
	return &ServerError{Code: m.Code, Message: m.Message}
}

// roomError reports whether an ERROR frame can be the answer to HOST_ROOM or
// JOIN_ROOM. Others, such as a relay's NOT_MEMBER, belong to other requests.
func roomError(m *net.ErrorMessage) bool {
	switch m.Code {
	case net.CodeNotFound, net.CodeAlreadyExists, net.CodeAlreadyInRoom, net.CodeRoomFull, net.CodeBadRequest:
		return true
	}
	return false
}

// Session runs the room and matchmaking flows for one local identity on top
// of a Connector.
type Session struct {
	conn    *Connector
	logger  *zap.Logger
	id      string
	meta    net.Meta
	timeout time.Duration

	mu      sync.Mutex
	roomID  string
	hostID  string
	players []net.PlayerInfo
	queued  bool
	started bool
	onRoom  func(roomID string, host bool)
}

func NewSession(conn *Connector, id, name string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	meta := net.Meta{}
	if raw, err := json.Marshal(net.DisplayName(name)); err == nil {
		meta["name"] = raw
	}
	s := &Session{
		conn:    conn,
		logger:  logger.With(zap.String("peer", id)),
		id:      id,
		meta:    meta,
		timeout: requestTimeout,
	}
	conn.OnMessage(s.handle)
	return s
}

func (s *Session) ID() string { return s.id }

// OnRoom registers fn to run after the session enters a room through a match.
func (s *Session) OnRoom(fn func(roomID string, host bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRoom = fn
}

func (s *Session) enteredRoom(roomID string, host bool) {
	s.mu.Lock()
	fn := s.onRoom
	s.mu.Unlock()
	if fn != nil {
		fn(roomID, host)
	}
}

// Room returns the current room id and host id.
func (s *Session) Room() (roomID, hostID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.hostID
}

func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID != "" && s.hostID == s.id
}

func (s *Session) Players() []net.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]net.PlayerInfo(nil), s.players...)
}

func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) request(ctx context.Context, msg net.Message, match Matcher) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p := s.conn.Expect(match)
	if err := s.conn.Send(msg); err != nil {
		s.conn.release(p)
		return err
	}
	err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// HostRoom creates roomID with this session as host.
func (s *Session) HostRoom(ctx context.Context, roomID string) error {
	err := s.request(ctx, &net.HostRoomMessage{RoomID: roomID, PeerID: s.id, Meta: s.meta},
		func(m net.Message) (bool, error) {
			switch m := m.(type) {
			case *net.HostRoomAck:
				return m.RoomID == roomID, nil
			case *net.ErrorMessage:
				if roomError(m) {
					return true, serverError(m)
				}
			}
			return false, nil
		})
	if err != nil {
		return fmt.Errorf("host room %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.roomID, s.hostID = roomID, s.id
	s.players = []net.PlayerInfo{{ID: s.id, Name: s.meta.String("name"), Meta: s.meta}}
	s.started = false
	s.mu.Unlock()
	s.logger.Info("hosting room", zap.String("room", roomID))
	return nil
}

// JoinRoom enters an existing room. It returns once PLAYER_LIST arrives.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	var list *net.PlayerList
	err := s.request(ctx, &net.JoinRoomMessage{RoomID: roomID, PeerID: s.id, Meta: s.meta},
		func(m net.Message) (bool, error) {
			switch m := m.(type) {
			case *net.PlayerList:
				list = m
				return true, nil
			case *net.ErrorMessage:
				if roomError(m) {
					return true, serverError(m)
				}
			}
			return false, nil
		})
	if err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.roomID, s.hostID = roomID, list.HostID
	s.players = list.Players
	s.started = false
	s.mu.Unlock()
	s.logger.Info("joined room", zap.String("room", roomID), zap.String("host", list.HostID))
	return nil
}

// LeaveRoom is fire-and-forget; the hub ignores repeats.
func (s *Session) LeaveRoom() error {
	s.mu.Lock()
	roomID := s.roomID
	s.roomID, s.hostID, s.players, s.started = "", "", nil, false
	s.mu.Unlock()
	if roomID == "" {
		return ErrNotInRoom
	}
	return s.conn.Send(&net.LeaveRoomMessage{RoomID: roomID, PeerID: s.id})
}

func (s *Session) StartGame(settings json.RawMessage) error {
	roomID, _ := s.Room()
	if roomID == "" {
		return ErrNotInRoom
	}
	return s.conn.Send(&net.StartGameMessage{RoomID: roomID, PeerID: s.id, Settings: settings})
}

// FindMatch queues this session. MAKE_HOST and MATCH_FOUND are handled in
// the background and end in HostRoom or JoinRoom.
func (s *Session) FindMatch() error {
	s.mu.Lock()
	s.queued = true
	s.mu.Unlock()
	return s.conn.Send(&net.FindMatchMessage{PeerID: s.id, Meta: s.meta})
}

func (s *Session) CancelMatch() error {
	s.mu.Lock()
	s.queued = false
	s.mu.Unlock()
	return s.conn.Send(&net.CancelMatchMessage{PeerID: s.id})
}

func (s *Session) Queued() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued
}

// Send relays a game message for the current room.
func (s *Session) Send(msg net.Message) error {
	return s.conn.Send(msg)
}

// handle runs on the connector's read goroutine.
func (s *Session) handle(msg net.Message) {
	switch m := msg.(type) {
	case *net.MakeHost:
		s.logger.Info("chosen as match host", zap.String("room", m.RoomID), zap.Strings("peers", m.Peers))
		go s.hostMatch(m.RoomID)

	case *net.MatchFound:
		s.mu.Lock()
		s.queued = false
		s.mu.Unlock()
		go s.joinMatch(m.RoomID)

	case *net.HostConfirmed:
		s.mu.Lock()
		s.queued = false
		s.mu.Unlock()

	case *net.MatchTimeout:
		s.logger.Info("match timed out, back in queue")

	case *net.PeerCancelled:
		s.logger.Info("match cancelled by peer", zap.String("cancelled", m.PeerID))

	case *net.PlayerJoined:
		s.mu.Lock()
		if !s.hasPlayer(m.Player.ID) {
			s.players = append(s.players, m.Player)
		}
		s.mu.Unlock()

	case *net.PlayerLeft:
		s.mu.Lock()
		for i, p := range s.players {
			if p.ID == m.PlayerID {
				s.players = append(s.players[:i], s.players[i+1:]...)
				break
			}
		}
		if m.HostID != "" {
			s.hostID = m.HostID
		}
		s.mu.Unlock()

	case *net.GameStarted:
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
	}
}

func (s *Session) hasPlayer(id string) bool {
	for _, p := range s.players {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) hostMatch(roomID string) {
	ctx := context.Background()
	if err := s.HostRoom(ctx, roomID); err != nil {
		s.logger.Warn("hosting matched room failed", zap.Error(err))
		return
	}
	if err := s.conn.Send(&net.HostReadyMessage{PeerID: s.id, RoomID: roomID}); err != nil {
		s.logger.Warn("host ready failed", zap.Error(err))
		return
	}
	s.enteredRoom(roomID, true)
}

func (s *Session) joinMatch(roomID string) {
	if err := s.JoinRoom(context.Background(), roomID); err != nil {
		s.logger.Warn("joining matched room failed", zap.Error(err))
		return
	}
	s.enteredRoom(roomID, false)
}
