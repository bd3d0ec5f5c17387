package config

import (
	"os"
	"strconv"
	"time"
)

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	MaxConnections  int `json:"max_connections"`
	ReadBufferSize  int `json:"read_buffer_size"`
	WriteBufferSize int `json:"write_buffer_size"`

	// Per-connection heartbeat probing.
	HeartbeatInterval   time.Duration `json:"heartbeat_interval"`
	HeartbeatTimeout    time.Duration `json:"heartbeat_timeout"`
	MaxMissedHeartbeats int           `json:"max_missed_heartbeats"`

	// Outbound queue and redelivery.
	QueueSize       int           `json:"queue_size"`
	RetryBackoffMax time.Duration `json:"retry_backoff_max"`
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		MaxConnections:      1000,
		ReadBufferSize:      1024,
		WriteBufferSize:     1024,
		HeartbeatInterval:   30 * time.Second,
		HeartbeatTimeout:    10 * time.Second,
		MaxMissedHeartbeats: 3,
		QueueSize:           1000,
		RetryBackoffMax:     10 * time.Second,
	}
}

// FromEnv loads socket configuration from environment variables, falling
// back to defaults for any missing or unparsable values.
func FromEnv() *SocketConfig {
	cfg := DefaultConfig()

	if v, ok := envInt("SOCKET_MAX_CONNECTIONS"); ok {
		cfg.MaxConnections = v
	}
	if v, ok := envInt("SOCKET_READ_BUFFER"); ok {
		cfg.ReadBufferSize = v
	}
	if v, ok := envInt("SOCKET_WRITE_BUFFER"); ok {
		cfg.WriteBufferSize = v
	}
	if v, ok := envSeconds("SOCKET_HEARTBEAT_INTERVAL"); ok {
		cfg.HeartbeatInterval = v
	}
	if v, ok := envSeconds("SOCKET_HEARTBEAT_TIMEOUT"); ok {
		cfg.HeartbeatTimeout = v
	}
	if v, ok := envInt("SOCKET_MAX_MISSED_HEARTBEATS"); ok {
		cfg.MaxMissedHeartbeats = v
	}
	if v, ok := envInt("SOCKET_QUEUE_SIZE"); ok {
		cfg.QueueSize = v
	}
	if v, ok := envSeconds("SOCKET_RETRY_BACKOFF_MAX"); ok {
		cfg.RetryBackoffMax = v
	}
	return cfg
}

// ReconnectConfig controls client-side reconnection backoff.
type ReconnectConfig struct {
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	MaxAttempts int           `json:"max_attempts"`
}

// DefaultReconnectConfig returns the default reconnection policy.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		MaxAttempts: 10,
	}
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envSeconds(key string) (time.Duration, bool) {
	v, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(v) * time.Second, true
}
