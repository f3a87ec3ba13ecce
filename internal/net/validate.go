package net

import (
	"encoding/json"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxIDLength    = 64
	MaxNameLength  = 24
	MaxMetaKeys    = 16
	MaxDamage      = 1000
	MaxSoundLength = 32
	DefaultName    = "Player"
)

// SanitizeName trims the name, strips control characters and anything
// outside letters, digits, space and _-.'" then caps the length. It returns
// "" when nothing survives.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	count := 0
	for _, r := range name {
		if count >= MaxNameLength {
			break
		}
		if !allowedNameRune(r) {
			continue
		}
		b.WriteRune(r)
		count++
	}
	return strings.TrimSpace(b.String())
}

// DisplayName is SanitizeName with the default applied.
func DisplayName(name string) string {
	if clean := SanitizeName(name); clean != "" {
		return clean
	}
	return DefaultName
}

func allowedNameRune(r rune) bool {
	if unicode.IsControl(r) {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '_', '-', '.', '\'', '"':
		return true
	}
	return false
}

// ValidID reports whether s is usable as a room or peer identity.
func ValidID(s string) bool {
	if s == "" || len(s) > MaxIDLength || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func requireIDs(message string, ids ...string) error {
	for _, id := range ids {
		if !ValidID(id) {
			return badRequest(message, ErrMissingField)
		}
	}
	return nil
}

// normalizeMeta caps the bag and rewrites "name" in sanitized form.
func normalizeMeta(m Meta) error {
	if len(m) > MaxMetaKeys {
		return badRequest("Too many meta fields", ErrOutOfRange)
	}
	if _, ok := m["name"]; ok {
		clean := SanitizeName(m.String("name"))
		if clean == "" {
			delete(m, "name")
			return nil
		}
		raw, err := json.Marshal(clean)
		if err != nil {
			return badRequest("Invalid name", err)
		}
		m["name"] = raw
	}
	return nil
}

func (m *HostRoomMessage) Validate() error {
	if err := requireIDs("Missing roomId or peerId", m.RoomID, m.PeerID); err != nil {
		return err
	}
	return normalizeMeta(m.Meta)
}

func (m *JoinRoomMessage) Validate() error {
	if err := requireIDs("Missing roomId or peerId", m.RoomID, m.PeerID); err != nil {
		return err
	}
	return normalizeMeta(m.Meta)
}

func (m *LeaveRoomMessage) Validate() error {
	return requireIDs("Missing roomId or peerId", m.RoomID, m.PeerID)
}

func (m *StartGameMessage) Validate() error {
	return requireIDs("Missing roomId or peerId", m.RoomID, m.PeerID)
}

func (m *GameStateMessage) Validate() error {
	if err := requireIDs("Missing roomId or playerId", m.RoomID, m.PlayerID); err != nil {
		return err
	}
	if len(m.Player) == 0 {
		return badRequest("Missing player", ErrMissingField)
	}
	return nil
}

func (m *ProjectilesMessage) Validate() error {
	if err := requireIDs("Missing roomId or playerId", m.RoomID, m.PlayerID); err != nil {
		return err
	}
	if len(m.Projectiles) == 0 {
		return badRequest("Missing projectiles", ErrMissingField)
	}
	return nil
}

func (m *DamageMessage) Validate() error {
	if err := requireIDs("Missing roomId, playerId or targetId", m.RoomID, m.PlayerID, m.TargetID); err != nil {
		return err
	}
	if !finite(m.Damage) || m.Damage <= 0 || m.Damage > MaxDamage {
		return badRequest("Invalid damage", ErrOutOfRange)
	}
	if m.TargetID == m.PlayerID {
		return badRequest("Cannot damage self", ErrOutOfRange)
	}
	return nil
}

func (m *PlayerDeathMessage) Validate() error {
	if err := requireIDs("Missing roomId or victimId", m.RoomID, m.VictimID); err != nil {
		return err
	}
	if m.KillerID != "" && !ValidID(m.KillerID) {
		return badRequest("Invalid killerId", ErrOutOfRange)
	}
	return nil
}

func (m *SpawnPickupMessage) Validate() error {
	if err := requireIDs("Missing roomId", m.RoomID); err != nil {
		return err
	}
	if len(m.Pickup) == 0 {
		return badRequest("Missing pickup", ErrMissingField)
	}
	return nil
}

func (m *MatchTimerMessage) Validate() error {
	if err := requireIDs("Missing roomId or peerId", m.RoomID, m.Sender()); err != nil {
		return err
	}
	if !finite(m.TimeLeft) || m.TimeLeft < 0 {
		return badRequest("Invalid timeLeft", ErrOutOfRange)
	}
	return nil
}

func (m *PlaySoundMessage) Validate() error {
	if err := requireIDs("Missing roomId or playerId", m.RoomID, m.PlayerID); err != nil {
		return err
	}
	if m.Sound == "" || len(m.Sound) > MaxSoundLength {
		return badRequest("Invalid sound", ErrOutOfRange)
	}
	if !finite(m.Volume) {
		return badRequest("Invalid volume", ErrOutOfRange)
	}
	m.Volume = math.Max(0, math.Min(1, m.Volume))
	return nil
}

func (m *FindMatchMessage) Validate() error {
	if err := requireIDs("Missing peerId", m.PeerID); err != nil {
		return err
	}
	return normalizeMeta(m.Meta)
}

func (m *CancelMatchMessage) Validate() error {
	return requireIDs("Missing peerId", m.PeerID)
}

func (m *HostReadyMessage) Validate() error {
	if err := requireIDs("Missing peerId", m.PeerID); err != nil {
		return err
	}
	if m.RoomID != "" && !ValidID(m.RoomID) {
		return badRequest("Invalid roomId", ErrOutOfRange)
	}
	return nil
}
