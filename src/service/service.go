package service

import (
	"fmt"

	"github.com/orchestra-mcp/copilot-socket/src/hub"
	"github.com/orchestra-mcp/copilot-socket/src/types"
	"github.com/rs/zerolog"
)

// Service provides the high-level integration API for collaborators:
// handler and callback registration, targeted send, broadcast, and the
// read-only operational surface.
type Service struct {
	manager *hub.Manager
	logger  zerolog.Logger
}

// New creates a service backed by the given connection manager.
func New(m *hub.Manager, logger zerolog.Logger) *Service {
	return &Service{manager: m, logger: logger}
}

// Manager returns the underlying connection manager.
func (s *Service) Manager() *hub.Manager { return s.manager }

// RegisterHandler registers a message handler for a message type.
func (s *Service) RegisterHandler(msgType string, h hub.MessageHandler) {
	s.manager.RegisterMessageHandler(msgType, h)
	s.logger.Debug().Str("type", msgType).Msg("handler registered")
}

// OnConnect registers the connect lifecycle callback.
func (s *Service) OnConnect(cb hub.ConnectionCallback) {
	s.manager.RegisterConnectionCallback(hub.EventConnect, cb)
}

// OnDisconnect registers the disconnect lifecycle callback.
func (s *Service) OnDisconnect(cb hub.ConnectionCallback) {
	s.manager.RegisterConnectionCallback(hub.EventDisconnect, cb)
}

// SendToClient queues a message for a specific client.
func (s *Service) SendToClient(clientID, msgType string, data map[string]any) error {
	msg := types.NewMessage(msgType, data)
	if ok := s.manager.SendToClient(clientID, msg); !ok {
		return fmt.Errorf("client %s not found or queue full", clientID)
	}
	return nil
}

// Broadcast fans a message out to every connected client not excluded,
// returning the recipient count.
func (s *Service) Broadcast(msgType string, data map[string]any, exclude ...string) int {
	return s.manager.BroadcastMessage(types.NewMessage(msgType, data), exclude)
}

// ConnectionInfo returns a snapshot for one client, or an error.
func (s *Service) ConnectionInfo(clientID string) (types.ConnectionInfo, error) {
	info, ok := s.manager.GetConnectionInfo(clientID)
	if !ok {
		return types.ConnectionInfo{}, fmt.Errorf("client %s not found", clientID)
	}
	return info, nil
}

// ConnectionsInfo returns aggregate statistics plus per-connection
// snapshots.
func (s *Service) ConnectionsInfo() types.FleetInfo {
	return s.manager.GetAllConnectionsInfo()
}

// Health reports fleet health.
func (s *Service) Health() types.HealthReport {
	return s.manager.HealthCheck()
}

// Stats returns the fleet counters.
func (s *Service) Stats() types.Statistics {
	return s.manager.Stats()
}
