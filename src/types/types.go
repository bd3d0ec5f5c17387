package types

import "time"

// Reserved message types consumed or emitted by the connection core itself.
// Everything else is an application type dispatched to registered handlers.
const (
	TypeHeartbeat         = "heartbeat"
	TypeHeartbeatResponse = "heartbeat_response"
	TypeError             = "error"
	TypeWelcome           = "welcome"
)

// ConnectionState tracks the lifecycle of a connection. Transitions are
// one-way: Connecting -> Connected -> Disconnected.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// HeartbeatConfig controls liveness probing for a single connection.
type HeartbeatConfig struct {
	Interval  time.Duration // probe period
	Timeout   time.Duration // silence tolerated before a miss is counted
	MaxMissed int           // consecutive misses before teardown
}

// ConnectionInfo is a read-only snapshot of a connection's state.
type ConnectionInfo struct {
	ClientID          string    `json:"client_id"`
	State             string    `json:"state"`
	QueueSize         int       `json:"queue_size"`
	PendingMessages   int       `json:"pending_messages"`
	MissedHeartbeats  int       `json:"missed_heartbeats"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	CreatedAt         time.Time `json:"created_at"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
}

// Statistics holds fleet-wide counters. All are monotonic except
// ActiveConnections.
type Statistics struct {
	TotalConnections  int64 `json:"total_connections"`
	ActiveConnections int64 `json:"active_connections"`
	MessagesSent      int64 `json:"messages_sent"`
	MessagesReceived  int64 `json:"messages_received"`
	Reconnections     int64 `json:"reconnections"`
}

// FleetInfo aggregates statistics with per-connection snapshots.
type FleetInfo struct {
	Statistics        Statistics                `json:"statistics"`
	ActiveConnections map[string]ConnectionInfo `json:"active_connections"`
}

// HealthReport is the coarse externally facing health signal. Status is
// "healthy" iff no connection is unhealthy, otherwise "degraded".
type HealthReport struct {
	Status               string     `json:"status"`
	HealthyConnections   int        `json:"healthy_connections"`
	UnhealthyConnections int        `json:"unhealthy_connections"`
	TotalConnections     int        `json:"total_connections"`
	Statistics           Statistics `json:"statistics"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() ([]byte, error)
	Close() error
}
