// Package server provides configuration helpers that define runtime defaults,
// validation, and buffering parameters for the relay.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	defaultTCPAddr           = "127.0.0.1:5000"
	defaultHTTPAddr          = ":8080"
	defaultSendBufferSize    = 256
	defaultInboundBufferSize = 1024
	defaultWriteTimeout      = 10 * time.Second
	defaultShutdownTimeout   = 10 * time.Second

	// ConnIDModeUUID issues a random UUID to each accepted connection.
	ConnIDModeUUID = "uuid"
	// ConnIDModeEndpoint uses the peer's host:port as the connection ID.
	ConnIDModeEndpoint = "endpoint"
)

// Config holds the relay settings.
type Config struct {
	TCPAddr        string   `env:"TCP_ADDR" default:"127.0.0.1:5000"`
	HTTPAddr       string   `env:"HTTP_ADDR" default:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"http://localhost:8080"`

	// MaxLineSize caps inbound lines in bytes; zero means unbounded.
	MaxLineSize       int `env:"MAX_LINE_SIZE" default:"0"`
	SendBufferSize    int `env:"SEND_BUFFER_SIZE" default:"256"`
	InboundBufferSize int `env:"INBOUND_BUFFER_SIZE" default:"1024"`

	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" default:"0s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// BroadcastSentinel controls whether a client's "close" line is relayed
	// to everyone before the client is shut down.
	BroadcastSentinel bool   `env:"BROADCAST_SENTINEL" default:"true"`
	ConnIDMode        string `env:"CONN_ID_MODE" default:"uuid"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func defaultConfig() Config {
	return Config{
		TCPAddr:           defaultTCPAddr,
		HTTPAddr:          defaultHTTPAddr,
		AllowedOrigins:    []string{"http://localhost:8080"},
		SendBufferSize:    defaultSendBufferSize,
		InboundBufferSize: defaultInboundBufferSize,
		WriteTimeout:      defaultWriteTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
		BroadcastSentinel: true,
		ConnIDMode:        ConnIDModeUUID,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = defaultTCPAddr
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}

	if cfg.MaxLineSize < 0 {
		cfg.MaxLineSize = 0
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.InboundBufferSize <= 0 {
		cfg.InboundBufferSize = defaultInboundBufferSize
	}

	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = 0
	}

	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	switch cfg.ConnIDMode {
	case ConnIDModeUUID, ConnIDModeEndpoint:
	default:
		slog.Warn("Unknown connection ID mode; using uuid", "mode", cfg.ConnIDMode)
		cfg.ConnIDMode = ConnIDModeUUID
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, reading a
// .env file first when one exists. Unset variables keep their defaults and
// out-of-range values are replaced by defaults.
func NewConfigFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}
