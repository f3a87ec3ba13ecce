package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	PORT_NAME    = "PORT"
	PORT_DEFAULT = "3000"

	REDIS_URL_NAME = "REDIS_URL"

	DATA_DIR_NAME    = "DATA_DIR"
	DATA_DIR_DEFAULT = "./data"

	LOG_LEVEL_NAME    = "LOG_LEVEL"
	LOG_LEVEL_DEFAULT = "info"

	LOG_FORMAT_NAME    = "LOG_FORMAT"
	LOG_FORMAT_DEFAULT = "json"
)

// Config holds the hub process settings.
type Config struct {
	Port     string
	RedisURL string
	DataDir  string

	MinPlayers         int
	MaxPlayers         int
	HostConfirmTimeout time.Duration
	PingInterval       time.Duration
	RoomMaxMembers     int
	SendBuffer         int
	MessageRate        float64
	MessageBurst       int
}

// Default returns the settings used when the environment is empty.
func Default() Config {
	return Config{
		Port:               PORT_DEFAULT,
		DataDir:            DATA_DIR_DEFAULT,
		MinPlayers:         2,
		MaxPlayers:         6,
		HostConfirmTimeout: 15 * time.Second,
		PingInterval:       30 * time.Second,
		RoomMaxMembers:     6,
		SendBuffer:         256,
		MessageRate:        120,
		MessageBurst:       240,
	}
}

// Env returns the value of variableName, or defaultValue when it is unset.
func Env(variableName, defaultValue string) string {
	if variable := os.Getenv(variableName); variable != "" {
		return variable
	}
	return defaultValue
}

// Load reads the hub settings from the environment. Values that do not parse
// or are out of range are logged and replaced by their defaults.
func Load(logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := Default()
	l := loader{logger: logger}

	cfg.Port = Env(PORT_NAME, cfg.Port)
	cfg.RedisURL = Env(REDIS_URL_NAME, "")
	cfg.DataDir = Env(DATA_DIR_NAME, cfg.DataDir)

	cfg.MinPlayers = l.int("MATCH_MIN_PLAYERS", cfg.MinPlayers, 2)
	cfg.MaxPlayers = l.int("MATCH_MAX_PLAYERS", cfg.MaxPlayers, 2)
	if cfg.MaxPlayers < cfg.MinPlayers {
		logger.Warn("MATCH_MAX_PLAYERS below MATCH_MIN_PLAYERS, raising it",
			zap.Int("min", cfg.MinPlayers), zap.Int("max", cfg.MaxPlayers))
		cfg.MaxPlayers = cfg.MinPlayers
	}
	cfg.HostConfirmTimeout = l.duration("HOST_CONFIRM_TIMEOUT", cfg.HostConfirmTimeout)
	cfg.PingInterval = l.duration("PING_INTERVAL", cfg.PingInterval)
	cfg.RoomMaxMembers = l.int("ROOM_MAX_MEMBERS", cfg.RoomMaxMembers, 1)
	cfg.SendBuffer = l.int("SEND_BUFFER", cfg.SendBuffer, 1)
	cfg.MessageRate = l.float("MESSAGE_RATE", cfg.MessageRate)
	cfg.MessageBurst = l.int("MESSAGE_BURST", cfg.MessageBurst, 1)

	logger.Info("config loaded",
		zap.String("port", cfg.Port),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.String("dataDir", cfg.DataDir),
		zap.Int("minPlayers", cfg.MinPlayers),
		zap.Int("maxPlayers", cfg.MaxPlayers),
		zap.Duration("hostConfirmTimeout", cfg.HostConfirmTimeout),
	)
	return cfg
}

type loader struct {
	logger *zap.Logger
}

func (l loader) int(name string, def, min int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		l.logger.Warn("invalid integer setting, using default",
			zap.String("name", name), zap.String("value", raw), zap.Int("default", def))
		return def
	}
	return v
}

func (l loader) float(name string, def float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		l.logger.Warn("invalid number setting, using default",
			zap.String("name", name), zap.String("value", raw), zap.Float64("default", def))
		return def
	}
	return v
}

func (l loader) duration(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		l.logger.Warn("invalid duration setting, using default",
			zap.String("name", name), zap.String("value", raw), zap.Duration("default", def))
		return def
	}
	return v
}
