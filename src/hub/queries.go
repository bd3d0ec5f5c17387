package hub

import (
	"time"

	"github.com/orchestra-mcp/copilot-socket/src/types"
)

// GetConnectionInfo returns a snapshot for one client, or false.
func (mgr *Manager) GetConnectionInfo(clientID string) (types.ConnectionInfo, bool) {
	mgr.mu.RLock()
	conn, ok := mgr.connections[clientID]
	mgr.mu.RUnlock()
	if !ok {
		return types.ConnectionInfo{}, false
	}
	return conn.Info(), true
}

// GetAllConnectionsInfo returns aggregate statistics plus per-connection
// snapshots. Safe for frequent polling.
func (mgr *Manager) GetAllConnectionsInfo() types.FleetInfo {
	mgr.mu.RLock()
	stats := mgr.stats
	conns := make(map[string]*Connection, len(mgr.connections))
	for id, c := range mgr.connections {
		conns[id] = c
	}
	mgr.mu.RUnlock()

	infos := make(map[string]types.ConnectionInfo, len(conns))
	for id, c := range conns {
		infos[id] = c.Info()
	}
	return types.FleetInfo{
		Statistics:        stats,
		ActiveConnections: infos,
	}
}

// Stats returns a copy of the fleet counters.
func (mgr *Manager) Stats() types.Statistics {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.stats
}

// ClientCount returns the number of tracked connections.
func (mgr *Manager) ClientCount() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.connections)
}

// HealthCheck reports fleet health. A connection is healthy iff it is
// connected and has heard a heartbeat within twice its timeout; the 2x
// window is deliberately looser than the internal missed-heartbeat
// trigger, making this a coarser externally facing signal.
func (mgr *Manager) HealthCheck() types.HealthReport {
	mgr.mu.RLock()
	stats := mgr.stats
	conns := make([]*Connection, 0, len(mgr.connections))
	for _, c := range mgr.connections {
		conns = append(conns, c)
	}
	mgr.mu.RUnlock()

	healthy, unhealthy := 0, 0
	for _, c := range conns {
		if c.State() == types.StateConnected &&
			time.Since(c.LastHeartbeat()) < 2*c.HeartbeatTimeout() {
			healthy++
		} else {
			unhealthy++
		}
	}

	status := "healthy"
	if unhealthy > 0 {
		status = "degraded"
	}
	return types.HealthReport{
		Status:               status,
		HealthyConnections:   healthy,
		UnhealthyConnections: unhealthy,
		TotalConnections:     len(conns),
		Statistics:           stats,
	}
}
