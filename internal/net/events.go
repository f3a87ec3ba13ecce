package net

import "encoding/json"

// Hub → Client messages

// PlayerInfo is the public view of a room member.
type PlayerInfo struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
	Meta   Meta    `json:"meta,omitempty"`
}

type HostRoomAck struct {
	RoomID string `json:"roomId"`
}

type PlayerList struct {
	Players []PlayerInfo `json:"players"`
	HostID  string       `json:"hostId,omitempty"`
}

type PlayerJoined struct {
	Player PlayerInfo `json:"player"`
}

// PlayerLeft also reports the host after the departure so clients notice a
// reassignment without another round trip.
type PlayerLeft struct {
	PlayerID string `json:"playerId"`
	HostID   string `json:"hostId,omitempty"`
}

type GameStarted struct {
	Settings json.RawMessage `json:"settings"`
}

type GameStateRelay struct {
	PlayerID string          `json:"playerId"`
	Player   json.RawMessage `json:"player"`
}

type ProjectilesRelay struct {
	PlayerID    string          `json:"playerId"`
	Projectiles json.RawMessage `json:"projectiles"`
}

// DamageReport is the authoritative hit notification delivered to the
// victim only.
type DamageReport struct {
	AttackerID string  `json:"attackerId"`
	Damage     float64 `json:"damage"`
	Timestamp  int64   `json:"timestamp"`
}

type PlayerDeathNotice struct {
	VictimID string `json:"victimId"`
	KillerID string `json:"killerId,omitempty"`
}

type PickupSpawned struct {
	Pickup json.RawMessage `json:"pickup"`
}

type TimerUpdate struct {
	TimeLeft float64 `json:"timeLeft"`
}

type SoundPlayed struct {
	PlayerID string  `json:"playerId"`
	Sound    string  `json:"sound"`
	Volume   float64 `json:"volume"`
}

type MakeHost struct {
	RoomID string   `json:"roomId"`
	Peers  []string `json:"peers"`
}

type AwaitHost struct {
	HostID string `json:"hostId"`
}

type MatchFound struct {
	RoomID string `json:"roomId"`
	HostID string `json:"hostId"`
}

type HostConfirmed struct {
	RoomID string   `json:"roomId"`
	Peers  []string `json:"peers"`
}

type MatchTimeout struct{}

type PeerCancelled struct {
	PeerID string `json:"peerId"`
}

// ErrorMessage is the ERROR frame. Code is one of the Code* constants.
type ErrorMessage struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (*HostRoomAck) MessageType() string       { return TypeHostRoomAck }
func (*PlayerList) MessageType() string        { return TypePlayerList }
func (*PlayerJoined) MessageType() string      { return TypePlayerJoined }
func (*PlayerLeft) MessageType() string        { return TypePlayerLeft }
func (*GameStarted) MessageType() string       { return TypeStartGame }
func (*GameStateRelay) MessageType() string    { return TypeGameState }
func (*ProjectilesRelay) MessageType() string  { return TypeProjectiles }
func (*DamageReport) MessageType() string      { return TypeDamage }
func (*PlayerDeathNotice) MessageType() string { return TypePlayerDeath }
func (*PickupSpawned) MessageType() string     { return TypeSpawnPickup }
func (*TimerUpdate) MessageType() string       { return TypeMatchTimer }
func (*SoundPlayed) MessageType() string       { return TypePlaySound }
func (*MakeHost) MessageType() string          { return TypeMakeHost }
func (*AwaitHost) MessageType() string         { return TypeAwaitHost }
func (*MatchFound) MessageType() string        { return TypeMatchFound }
func (*HostConfirmed) MessageType() string     { return TypeHostConfirmed }
func (*MatchTimeout) MessageType() string      { return TypeMatchTimeout }
func (*PeerCancelled) MessageType() string     { return TypePeerCancelled }
func (*ErrorMessage) MessageType() string      { return TypeError }
