package config

import (
	"strings"
)

const (
	SERVER_URL_NAME    = "SERVER_URL"
	SERVER_URL_DEFAULT = "ws://localhost:3000/ws"
)

const (
	ModeHost  = "host"
	ModeJoin  = "join"
	ModeMatch = "match"
)

// ClientConfig holds the debug client settings.
type ClientConfig struct {
	ServerURL string
	Room      string
	Name      string
	Mode      string
}

func LoadClient() ClientConfig {
	cfg := ClientConfig{
		ServerURL: Env(SERVER_URL_NAME, SERVER_URL_DEFAULT),
		Room:      Env("ROOM", "lobby"),
		Name:      Env("NAME", "Player"),
		Mode:      strings.ToLower(Env("MODE", ModeMatch)),
	}
	switch cfg.Mode {
	case ModeHost, ModeJoin, ModeMatch:
	default:
		cfg.Mode = ModeMatch
	}
	return cfg
}
