package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxConnections != 1000 {
		t.Errorf("expected 1000, got %d", cfg.MaxConnections)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.HeartbeatTimeout != 10*time.Second {
		t.Errorf("expected 10s, got %v", cfg.HeartbeatTimeout)
	}
	if cfg.MaxMissedHeartbeats != 3 {
		t.Errorf("expected 3, got %d", cfg.MaxMissedHeartbeats)
	}
	if cfg.QueueSize != 1000 {
		t.Errorf("expected 1000, got %d", cfg.QueueSize)
	}
	if cfg.ReadBufferSize != 1024 || cfg.WriteBufferSize != 1024 {
		t.Errorf("expected 1024 buffers, got %d/%d", cfg.ReadBufferSize, cfg.WriteBufferSize)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SOCKET_MAX_CONNECTIONS", "50")
	t.Setenv("SOCKET_HEARTBEAT_INTERVAL", "5")
	t.Setenv("SOCKET_HEARTBEAT_TIMEOUT", "2")
	t.Setenv("SOCKET_MAX_MISSED_HEARTBEATS", "7")
	t.Setenv("SOCKET_QUEUE_SIZE", "64")
	t.Setenv("SOCKET_RETRY_BACKOFF_MAX", "4")

	cfg := FromEnv()
	if cfg.MaxConnections != 50 {
		t.Errorf("expected 50, got %d", cfg.MaxConnections)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.HeartbeatTimeout != 2*time.Second {
		t.Errorf("expected 2s, got %v", cfg.HeartbeatTimeout)
	}
	if cfg.MaxMissedHeartbeats != 7 {
		t.Errorf("expected 7, got %d", cfg.MaxMissedHeartbeats)
	}
	if cfg.QueueSize != 64 {
		t.Errorf("expected 64, got %d", cfg.QueueSize)
	}
	if cfg.RetryBackoffMax != 4*time.Second {
		t.Errorf("expected 4s, got %v", cfg.RetryBackoffMax)
	}
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SOCKET_MAX_CONNECTIONS", "not-a-number")

	cfg := FromEnv()
	if cfg.MaxConnections != 1000 {
		t.Errorf("expected default 1000, got %d", cfg.MaxConnections)
	}
}

func TestDefaultReconnectConfig(t *testing.T) {
	cfg := DefaultReconnectConfig()
	if cfg.BaseDelay != time.Second {
		t.Errorf("expected 1s, got %v", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("expected 60s, got %v", cfg.MaxDelay)
	}
	if cfg.MaxAttempts != 10 {
		t.Errorf("expected 10, got %d", cfg.MaxAttempts)
	}
}
