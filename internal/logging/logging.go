package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spacedrift/internal/config"
)

type Config struct {
	Level       string
	Format      string
	ServiceName string
}

// FromEnv reads LOG_LEVEL and LOG_FORMAT.
func FromEnv(service string) Config {
	return Config{
		Level:       config.Env(config.LOG_LEVEL_NAME, config.LOG_LEVEL_DEFAULT),
		Format:      config.Env(config.LOG_FORMAT_NAME, config.LOG_FORMAT_DEFAULT),
		ServiceName: service,
	}
}

// New builds a zap logger. The console format uses the development encoder,
// anything else logs JSON.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "time"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if cfg.ServiceName != "" {
		logger = logger.With(zap.String("service", cfg.ServiceName))
	}
	return logger, nil
}
