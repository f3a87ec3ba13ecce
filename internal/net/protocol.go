package net

import "encoding/json"

// Message types. Several tags are used in both directions with different
// payloads (the hub strips routing fields before relaying).
const (
	TypeHostRoom      = "HOST_ROOM"
	TypeHostRoomAck   = "HOST_ROOM_ACK"
	TypeJoinRoom      = "JOIN_ROOM"
	TypePlayerList    = "PLAYER_LIST"
	TypePlayerJoined  = "PLAYER_JOINED"
	TypeLeaveRoom     = "LEAVE_ROOM"
	TypePlayerLeft    = "PLAYER_LEFT"
	TypeStartGame     = "START_GAME"
	TypeGameState     = "GAME_STATE"
	TypeProjectiles   = "PROJECTILES"
	TypeDamage        = "DAMAGE"
	TypePlayerDeath   = "PLAYER_DEATH"
	TypeSpawnPickup   = "SPAWN_PICKUP"
	TypeMatchTimer    = "MATCH_TIMER"
	TypePlaySound     = "PLAY_SOUND"
	TypeFindMatch     = "FIND_MATCH"
	TypeCancelMatch   = "CANCEL_MATCH"
	TypeHostReady     = "HOST_READY"
	TypeMakeHost      = "MAKE_HOST"
	TypeAwaitHost     = "AWAIT_HOST"
	TypeMatchFound    = "MATCH_FOUND"
	TypeHostConfirmed = "HOST_CONFIRMED"
	TypeMatchTimeout  = "MATCH_TIMEOUT"
	TypePeerCancelled = "PEER_CANCELLED"
	TypeError         = "ERROR"
)

// Message is one variant of the wire protocol.
type Message interface {
	MessageType() string
}

// Meta is the free-form metadata bag a peer attaches to HOST_ROOM,
// JOIN_ROOM and FIND_MATCH. Only "name" and "avatar" are interpreted.
type Meta map[string]json.RawMessage

// String returns the string value stored under key, or "" when the key is
// missing or not a JSON string.
func (m Meta) String(key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Client → Hub messages

type HostRoomMessage struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
	Meta   Meta   `json:"meta,omitempty"`
}

type JoinRoomMessage struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
	Meta   Meta   `json:"meta,omitempty"`
}

type LeaveRoomMessage struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

type StartGameMessage struct {
	RoomID   string          `json:"roomId"`
	PeerID   string          `json:"peerId"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// GameStateMessage carries one per-frame player snapshot. Player is relayed
// untouched.
type GameStateMessage struct {
	RoomID   string          `json:"roomId"`
	PlayerID string          `json:"playerId"`
	Player   json.RawMessage `json:"player"`
}

type ProjectilesMessage struct {
	RoomID      string          `json:"roomId"`
	PlayerID    string          `json:"playerId"`
	Projectiles json.RawMessage `json:"projectiles"`
}

// DamageMessage is sent only by the owner of the projectile that hit.
type DamageMessage struct {
	RoomID    string  `json:"roomId"`
	PlayerID  string  `json:"playerId"`
	TargetID  string  `json:"targetId"`
	Damage    float64 `json:"damage"`
	Timestamp int64   `json:"timestamp"`
}

type PlayerDeathMessage struct {
	RoomID   string `json:"roomId"`
	VictimID string `json:"victimId"`
	KillerID string `json:"killerId,omitempty"`
}

type SpawnPickupMessage struct {
	RoomID string          `json:"roomId"`
	Pickup json.RawMessage `json:"pickup"`
}

// MatchTimerMessage accepts the sender under either peerId or playerId.
type MatchTimerMessage struct {
	RoomID   string  `json:"roomId"`
	PeerID   string  `json:"peerId,omitempty"`
	PlayerID string  `json:"playerId,omitempty"`
	TimeLeft float64 `json:"timeLeft"`
}

// Sender returns the identity claiming to be host.
func (m *MatchTimerMessage) Sender() string {
	if m.PeerID != "" {
		return m.PeerID
	}
	return m.PlayerID
}

type PlaySoundMessage struct {
	RoomID   string  `json:"roomId"`
	PlayerID string  `json:"playerId"`
	Sound    string  `json:"sound"`
	Volume   float64 `json:"volume"`
}

type FindMatchMessage struct {
	PeerID string `json:"peerId"`
	Meta   Meta   `json:"meta,omitempty"`
}

type CancelMatchMessage struct {
	PeerID string `json:"peerId"`
}

type HostReadyMessage struct {
	PeerID string `json:"peerId"`
	RoomID string `json:"roomId,omitempty"`
}

func (*HostRoomMessage) MessageType() string    { return TypeHostRoom }
func (*JoinRoomMessage) MessageType() string    { return TypeJoinRoom }
func (*LeaveRoomMessage) MessageType() string   { return TypeLeaveRoom }
func (*StartGameMessage) MessageType() string   { return TypeStartGame }
func (*GameStateMessage) MessageType() string   { return TypeGameState }
func (*ProjectilesMessage) MessageType() string { return TypeProjectiles }
func (*DamageMessage) MessageType() string      { return TypeDamage }
func (*PlayerDeathMessage) MessageType() string { return TypePlayerDeath }
func (*SpawnPickupMessage) MessageType() string { return TypeSpawnPickup }
func (*MatchTimerMessage) MessageType() string  { return TypeMatchTimer }
func (*PlaySoundMessage) MessageType() string   { return TypePlaySound }
func (*FindMatchMessage) MessageType() string   { return TypeFindMatch }
func (*CancelMatchMessage) MessageType() string { return TypeCancelMatch }
func (*HostReadyMessage) MessageType() string   { return TypeHostReady }
