package net

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type string `json:"type"`
}

type factory func() Message

var clientMessages = map[string]factory{
	TypeHostRoom:    func() Message { return &HostRoomMessage{} },
	TypeJoinRoom:    func() Message { return &JoinRoomMessage{} },
	TypeLeaveRoom:   func() Message { return &LeaveRoomMessage{} },
	TypeStartGame:   func() Message { return &StartGameMessage{} },
	TypeGameState:   func() Message { return &GameStateMessage{} },
	TypeProjectiles: func() Message { return &ProjectilesMessage{} },
	TypeDamage:      func() Message { return &DamageMessage{} },
	TypePlayerDeath: func() Message { return &PlayerDeathMessage{} },
	TypeSpawnPickup: func() Message { return &SpawnPickupMessage{} },
	TypeMatchTimer:  func() Message { return &MatchTimerMessage{} },
	TypePlaySound:   func() Message { return &PlaySoundMessage{} },
	TypeFindMatch:   func() Message { return &FindMatchMessage{} },
	TypeCancelMatch: func() Message { return &CancelMatchMessage{} },
	TypeHostReady:   func() Message { return &HostReadyMessage{} },
}

var serverMessages = map[string]factory{
	TypeHostRoomAck:   func() Message { return &HostRoomAck{} },
	TypePlayerList:    func() Message { return &PlayerList{} },
	TypePlayerJoined:  func() Message { return &PlayerJoined{} },
	TypePlayerLeft:    func() Message { return &PlayerLeft{} },
	TypeStartGame:     func() Message { return &GameStarted{} },
	TypeGameState:     func() Message { return &GameStateRelay{} },
	TypeProjectiles:   func() Message { return &ProjectilesRelay{} },
	TypeDamage:        func() Message { return &DamageReport{} },
	TypePlayerDeath:   func() Message { return &PlayerDeathNotice{} },
	TypeSpawnPickup:   func() Message { return &PickupSpawned{} },
	TypeMatchTimer:    func() Message { return &TimerUpdate{} },
	TypePlaySound:     func() Message { return &SoundPlayed{} },
	TypeMakeHost:      func() Message { return &MakeHost{} },
	TypeAwaitHost:     func() Message { return &AwaitHost{} },
	TypeMatchFound:    func() Message { return &MatchFound{} },
	TypeHostConfirmed: func() Message { return &HostConfirmed{} },
	TypeMatchTimeout:  func() Message { return &MatchTimeout{} },
	TypePeerCancelled: func() Message { return &PeerCancelled{} },
	TypeError:         func() Message { return &ErrorMessage{} },
}

type validator interface {
	Validate() error
}

// Encode marshals m with its "type" tag as the first field.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	tag, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, fmt.Errorf("encode tag: %w", err)
	}

	buf := make([]byte, 0, len(body)+len(tag)+9)
	buf = append(buf, `{"type":`...)
	buf = append(buf, tag...)
	if len(body) > 2 {
		buf = append(buf, ',')
		buf = append(buf, body[1:]...)
	} else {
		buf = append(buf, '}')
	}
	return buf, nil
}

// DecodeClient parses a client → hub frame and validates it. Every failure
// is a *ProtocolError.
func DecodeClient(data []byte) (Message, error) {
	return decode(data, clientMessages)
}

// DecodeServer parses a hub → client frame.
func DecodeServer(data []byte) (Message, error) {
	return decode(data, serverMessages)
}

func decode(data []byte, table map[string]factory) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badRequest("Malformed message", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if env.Type == "" {
		return nil, badRequest("Missing message type", ErrMissingField)
	}

	newMessage, ok := table[env.Type]
	if !ok {
		return nil, NewProtocolError(CodeUnknownType, "Unknown message type: "+truncate(env.Type, 32), ErrUnknownType)
	}

	msg := newMessage()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, badRequest("Malformed "+env.Type+" message", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if v, ok := msg.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
