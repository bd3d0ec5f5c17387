package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/copilot-socket/config"
	"github.com/orchestra-mcp/copilot-socket/src/types"
	"github.com/rs/zerolog"
)

// Connection lifecycle events for RegisterConnectionCallback.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// MessageHandler processes an inbound application message. A non-nil
// response is queued back onto the originating connection.
type MessageHandler func(c *Connection, m *types.Message) (*types.Message, error)

// ConnectionCallback observes a connection lifecycle event.
type ConnectionCallback func(c *Connection)

// MessageBridge publishes broadcasts to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(m *types.Message) error
	Available() bool
}

// Manager owns the connection table, the message-type handler map, the
// lifecycle callback map, and fleet statistics. All shared state lives
// behind one mutex; the manager is always an explicit instance, never a
// package-level global.
type Manager struct {
	cfg    *config.SocketConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
	handlers    map[string]MessageHandler
	callbacks   map[string]ConnectionCallback
	stats       types.Statistics
	bridge      MessageBridge
}

// NewManager creates a manager with the given socket configuration.
func NewManager(cfg *config.SocketConfig, logger zerolog.Logger) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger.With().Str("component", "hub").Logger(),
		connections: make(map[string]*Connection),
		handlers:    make(map[string]MessageHandler),
		callbacks:   make(map[string]ConnectionCallback),
	}
}

// RegisterMessageHandler registers a handler for a message type.
// Last write wins per type.
func (mgr *Manager) RegisterMessageHandler(msgType string, h MessageHandler) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.handlers[msgType] = h
}

// RegisterConnectionCallback registers a callback for a lifecycle event
// (EventConnect, EventDisconnect). Last write wins per event.
func (mgr *Manager) RegisterConnectionCallback(event string, cb ConnectionCallback) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.callbacks[event] = cb
}

// SetBridge attaches a cross-instance broadcast bridge.
func (mgr *Manager) SetBridge(b MessageBridge) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.bridge = b
}

// HandleNewConnection wraps an accepted transport in a Connection, inserts
// it into the table, starts its workers, and fires the connect callback.
// A duplicate client id replaces the prior entry; the replacement is
// counted as a reconnection and the client's attempt counter is carried
// over.
func (mgr *Manager) HandleNewConnection(transport types.Conn, clientID string) *Connection {
	conn := NewConnection(clientID, transport, ConnectionOptions{
		Heartbeat: types.HeartbeatConfig{
			Interval:  mgr.cfg.HeartbeatInterval,
			Timeout:   mgr.cfg.HeartbeatTimeout,
			MaxMissed: mgr.cfg.MaxMissedHeartbeats,
		},
		QueueSize:       mgr.cfg.QueueSize,
		RetryBackoffMax: mgr.cfg.RetryBackoffMax,
	}, mgr.logger)

	mgr.mu.Lock()
	old, dup := mgr.connections[clientID]
	mgr.connections[clientID] = conn
	mgr.stats.TotalConnections++
	mgr.stats.ActiveConnections++
	if dup {
		mgr.stats.Reconnections++
	}
	cb := mgr.callbacks[EventConnect]
	mgr.mu.Unlock()

	if dup {
		conn.setReconnectAttempts(old.Info().ReconnectAttempts + 1)
		mgr.logger.Warn().Str("client_id", clientID).Msg("duplicate client id, replacing entry")
	}

	conn.Start()
	mgr.logger.Info().Str("client_id", clientID).Msg("connection established")

	if cb != nil {
		cb(conn)
	}

	conn.SendMessage(types.NewMessage(types.TypeWelcome, map[string]any{
		"client_id":   clientID,
		"server_time": float64(time.Now().UnixNano()) / float64(time.Second),
		"features":    []any{"heartbeat", "message_queuing", "auto_reconnect"},
	}))

	return conn
}

// HandleDisconnection tears down the connection currently registered for
// the client id. It is a no-op for an unknown id.
func (mgr *Manager) HandleDisconnection(clientID string) {
	mgr.mu.RLock()
	conn, ok := mgr.connections[clientID]
	mgr.mu.RUnlock()
	if !ok {
		return
	}
	mgr.DropConnection(conn)
}

// DropConnection tears down this specific connection. The read pump of a
// replaced connection must come through here rather than by client id: the
// table entry may already map to a reconnect's successor, and only the
// given connection is torn down. Counters are adjusted once per live
// connection, and the entry is removed only while it still maps to conn.
func (mgr *Manager) DropConnection(conn *Connection) {
	wasLive := conn.State() != types.StateDisconnected
	conn.HandleDisconnect()

	mgr.mu.Lock()
	if wasLive && mgr.stats.ActiveConnections > 0 {
		mgr.stats.ActiveConnections--
	}
	cb := mgr.callbacks[EventDisconnect]
	if cur, ok := mgr.connections[conn.ClientID]; ok && cur == conn {
		delete(mgr.connections, conn.ClientID)
	}
	mgr.mu.Unlock()

	if cb != nil {
		cb(conn)
	}

	mgr.logger.Info().Str("client_id", conn.ClientID).Msg("disconnection handled")
}
