package hub

import (
	"fmt"

	"github.com/orchestra-mcp/copilot-socket/src/types"
)

// ProcessMessage dispatches an inbound message to its registered handler
// and queues any response back onto the originating connection. Unknown
// types and handler failures both produce a structured error reply; no
// message type can crash dispatch.
func (mgr *Manager) ProcessMessage(c *Connection, m *types.Message) {
	mgr.mu.Lock()
	mgr.stats.MessagesReceived++
	handler, ok := mgr.handlers[m.Type]
	mgr.mu.Unlock()

	if !ok {
		mgr.logger.Warn().
			Str("client_id", c.ClientID).
			Str("type", m.Type).
			Msg("unknown message type")
		c.SendMessage(errorReply(m, "unknown_message_type",
			fmt.Sprintf("unknown message type: %s", m.Type)))
		return
	}

	resp, err := mgr.invoke(handler, c, m)
	if err != nil {
		mgr.logger.Error().
			Err(err).
			Str("client_id", c.ClientID).
			Str("type", m.Type).
			Msg("handler error")
		c.SendMessage(errorReply(m, "handler_error", err.Error()))
		return
	}
	if resp != nil {
		c.SendMessage(resp)
	}
}

// invoke runs a handler with a recover guard so a panicking handler is
// contained at the dispatch boundary.
func (mgr *Manager) invoke(h MessageHandler, c *Connection, m *types.Message) (resp *types.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(c, m)
}

// BroadcastMessage fans a message out to every connected client not in
// exclude. Delivery is best-effort per recipient, not transactional;
// messages_sent grows by the actual recipient count. When a bridge is
// attached the message is also published to other instances.
func (mgr *Manager) BroadcastMessage(m *types.Message, exclude []string) int {
	n := mgr.fanOut(m, exclude)
	mgr.publishToBridge(m)
	return n
}

// BroadcastToLocal delivers a bridged message to local connections only.
// It does not re-publish, preventing infinite relay loops.
func (mgr *Manager) BroadcastToLocal(m *types.Message) {
	mgr.fanOut(m, nil)
}

func (mgr *Manager) fanOut(m *types.Message, exclude []string) int {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	mgr.mu.RLock()
	conns := make([]*Connection, 0, len(mgr.connections))
	for id, c := range mgr.connections {
		if !excluded[id] {
			conns = append(conns, c)
		}
	}
	mgr.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if c.State() != types.StateConnected {
			continue
		}
		// Each recipient gets its own copy so retry bookkeeping on one
		// connection cannot leak into another.
		cp := *m
		if c.SendMessage(&cp) {
			delivered++
		}
	}

	mgr.mu.Lock()
	mgr.stats.MessagesSent += int64(delivered)
	mgr.mu.Unlock()
	return delivered
}

// SendToClient queues a message for one client. It returns false with no
// counter change if the client is unknown or the queue refused the
// message.
func (mgr *Manager) SendToClient(clientID string, m *types.Message) bool {
	mgr.mu.RLock()
	conn, ok := mgr.connections[clientID]
	mgr.mu.RUnlock()
	if !ok {
		return false
	}
	if !conn.SendMessage(m) {
		return false
	}

	mgr.mu.Lock()
	mgr.stats.MessagesSent++
	mgr.mu.Unlock()
	return true
}

func (mgr *Manager) publishToBridge(m *types.Message) {
	mgr.mu.RLock()
	b := mgr.bridge
	mgr.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(m); err != nil {
		mgr.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

func errorReply(orig *types.Message, code, text string) *types.Message {
	return types.NewMessage(types.TypeError, map[string]any{
		"error":               code,
		"original_message_id": orig.ID,
		"message":             text,
	})
}
