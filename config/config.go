package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Supported client transports.
const (
	TransportFastHTTP = "fasthttp"
	TransportNhooyr   = "nhooyr"
)

// RealtimeConfig configures the client connection manager.
type RealtimeConfig struct {
	URL                      string `toml:"url"                         env:"CHATSOCKET_URL"`
	Credential               string `toml:"credential"                  env:"CHATSOCKET_TOKEN"`
	BaseReconnectIntervalMs  int    `toml:"base_reconnect_interval_ms"  env:"CHATSOCKET_RECONNECT_INTERVAL_MS"`
	MaxReconnectAttempts     int    `toml:"max_reconnect_attempts"      env:"CHATSOCKET_MAX_RECONNECT_ATTEMPTS"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"  env:"CHATSOCKET_HEARTBEAT_INTERVAL_SECONDS"`
	WriteTimeoutSeconds      int    `toml:"write_timeout_seconds"       env:"CHATSOCKET_WRITE_TIMEOUT_SECONDS"`
	HandshakeTimeoutSeconds  int    `toml:"handshake_timeout_seconds"   env:"CHATSOCKET_HANDSHAKE_TIMEOUT_SECONDS"`
	Transport                string `toml:"transport"                   env:"CHATSOCKET_TRANSPORT"`
}

// RelayConfig configures the development relay server.
type RelayConfig struct {
	Addr                string `toml:"addr"                  env:"CHATSOCKET_RELAY_ADDR"`
	MaxConnections      int    `toml:"max_connections"       env:"CHATSOCKET_RELAY_MAX_CONNECTIONS"`
	ReadBufferSize      int    `toml:"read_buffer_size"      env:"CHATSOCKET_RELAY_READ_BUFFER_SIZE"`
	WriteBufferSize     int    `toml:"write_buffer_size"     env:"CHATSOCKET_RELAY_WRITE_BUFFER_SIZE"`
	SendBufferSize      int    `toml:"send_buffer_size"      env:"CHATSOCKET_RELAY_SEND_BUFFER_SIZE"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds" env:"CHATSOCKET_RELAY_WRITE_TIMEOUT_SECONDS"`
	JWTSecret           string `toml:"jwt_secret"            env:"CHATSOCKET_RELAY_JWT_SECRET"`
}

// File is the on-disk configuration.
type File struct {
	Realtime RealtimeConfig `toml:"realtime"`
	Relay    RelayConfig    `toml:"relay"`
}

// DefaultRealtimeConfig returns the client defaults.
func DefaultRealtimeConfig() *RealtimeConfig {
	return &RealtimeConfig{
		URL:                      "ws://localhost:3001/ws",
		BaseReconnectIntervalMs:  3000,
		MaxReconnectAttempts:     5,
		HeartbeatIntervalSeconds: 30,
		WriteTimeoutSeconds:      10,
		HandshakeTimeoutSeconds:  10,
		Transport:                TransportFastHTTP,
	}
}

// DefaultRelayConfig returns the relay defaults.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Addr:                ":3001",
		MaxConnections:      1000,
		ReadBufferSize:      1024,
		WriteBufferSize:     1024,
		SendBufferSize:      256,
		WriteTimeoutSeconds: 10,
	}
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() *File {
	return &File{
		Realtime: *DefaultRealtimeConfig(),
		Relay:    *DefaultRelayConfig(),
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (skipped when path is empty or the file does not exist), then CHATSOCKET_*
// environment variables.
func Load(path string) (*File, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("cannot read config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}

	cfg.Realtime.ApplyDefaults()
	cfg.Relay.ApplyDefaults()
	if err := cfg.Realtime.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders the configuration as TOML.
func (f *File) Marshal() ([]byte, error) {
	return toml.Marshal(f)
}

// ApplyDefaults fills zero values. Zero or negative numbers mean "use the
// default".
func (c *RealtimeConfig) ApplyDefaults() {
	def := DefaultRealtimeConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.BaseReconnectIntervalMs <= 0 {
		c.BaseReconnectIntervalMs = def.BaseReconnectIntervalMs
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		c.HeartbeatIntervalSeconds = def.HeartbeatIntervalSeconds
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = def.WriteTimeoutSeconds
	}
	if c.HandshakeTimeoutSeconds <= 0 {
		c.HandshakeTimeoutSeconds = def.HandshakeTimeoutSeconds
	}
	if c.Transport == "" {
		c.Transport = def.Transport
	}
}

// Validate checks the endpoint and transport.
func (c *RealtimeConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid realtime url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("realtime url must use ws:// or wss://, got %q", c.URL)
	}
	switch c.Transport {
	case TransportFastHTTP, TransportNhooyr:
	default:
		return fmt.Errorf("unknown transport %q (valid: %s, %s)", c.Transport, TransportFastHTTP, TransportNhooyr)
	}
	return nil
}

// BaseReconnectInterval is the first retry delay.
func (c *RealtimeConfig) BaseReconnectInterval() time.Duration {
	return time.Duration(c.BaseReconnectIntervalMs) * time.Millisecond
}

// HeartbeatInterval is the ping period.
func (c *RealtimeConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// WriteTimeout bounds a single frame write.
func (c *RealtimeConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// HandshakeTimeout bounds the opening handshake.
func (c *RealtimeConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

// ApplyDefaults fills zero values.
func (c *RelayConfig) ApplyDefaults() {
	def := DefaultRelayConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = def.MaxConnections
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = def.WriteBufferSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = def.WriteTimeoutSeconds
	}
}

// WriteTimeout bounds a single frame write on the relay.
func (c *RelayConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}
