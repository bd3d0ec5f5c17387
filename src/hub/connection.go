package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/orchestra-mcp/copilot-socket/src/types"
	"github.com/rs/zerolog"
)

// errTransportClosed is returned by raw writes after teardown has begun.
var errTransportClosed = errors.New("transport closed")

// Connection is the per-client state machine. It owns an ordered outbound
// queue, a pending-retry set, and heartbeat bookkeeping, and runs two
// worker goroutines (heartbeat ticker, queue drainer) for its lifetime.
type Connection struct {
	ClientID string

	conn   types.Conn
	logger zerolog.Logger

	hbCfg           types.HeartbeatConfig
	queueCap        int
	retryBackoffMax time.Duration
	createdAt       time.Time

	mu                sync.Mutex
	state             types.ConnectionState
	queue             []*types.Message
	pending           map[string]*types.Message
	lastHeartbeat     time.Time
	missedHeartbeats  int
	reconnectAttempts int

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ConnectionOptions carries per-connection tuning from the manager.
type ConnectionOptions struct {
	Heartbeat       types.HeartbeatConfig
	QueueSize       int
	RetryBackoffMax time.Duration
}

// NewConnection wraps an accepted transport. The connection starts in the
// Connecting state; Start moves it to Connected and launches its workers.
func NewConnection(clientID string, conn types.Conn, opts ConnectionOptions, logger zerolog.Logger) *Connection {
	if opts.Heartbeat.Interval <= 0 {
		opts.Heartbeat.Interval = 30 * time.Second
	}
	if opts.Heartbeat.Timeout <= 0 {
		opts.Heartbeat.Timeout = 10 * time.Second
	}
	if opts.Heartbeat.MaxMissed <= 0 {
		opts.Heartbeat.MaxMissed = 3
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.RetryBackoffMax <= 0 {
		opts.RetryBackoffMax = 10 * time.Second
	}
	return &Connection{
		ClientID:        clientID,
		conn:            conn,
		logger:          logger.With().Str("client_id", clientID).Logger(),
		hbCfg:           opts.Heartbeat,
		queueCap:        opts.QueueSize,
		retryBackoffMax: opts.RetryBackoffMax,
		createdAt:       time.Now(),
		state:           types.StateConnecting,
		pending:         make(map[string]*types.Message),
		lastHeartbeat:   time.Now(),
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
}

// Start transitions the connection to Connected and launches the heartbeat
// ticker and queue drainer.
func (c *Connection) Start() {
	c.mu.Lock()
	if c.state != types.StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = types.StateConnected
	c.mu.Unlock()

	c.wg.Add(2)
	go c.heartbeatLoop()
	go c.drainLoop()
}

// State returns the current lifecycle state.
func (c *Connection) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastHeartbeat returns the time of the last observed heartbeat response.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// HeartbeatTimeout exposes the configured probe timeout.
func (c *Connection) HeartbeatTimeout() time.Duration {
	return c.hbCfg.Timeout
}

// SendMessage queues a message for delivery. It never blocks on the
// transport; the queue is the backpressure boundary between producers and
// the drainer. Returns false if the connection is torn down or the queue
// is full.
func (c *Connection) SendMessage(m *types.Message) bool {
	c.mu.Lock()
	if c.state == types.StateDisconnected {
		c.mu.Unlock()
		return false
	}
	if len(c.queue) >= c.queueCap {
		c.mu.Unlock()
		c.logger.Warn().Str("message_id", m.ID).Msg("outbound queue full, dropping")
		return false
	}
	c.queue = append(c.queue, m)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// HandleMessage parses a raw inbound frame. Malformed JSON or a missing
// type yields nil. Heartbeat responses are consumed here and never reach
// application dispatch; every other message is returned for the manager.
func (c *Connection) HandleMessage(raw []byte) *types.Message {
	m := types.ParseMessage(raw)
	if m == nil {
		c.logger.Warn().Msg("dropping malformed frame")
		return nil
	}

	if m.Type == types.TypeHeartbeatResponse {
		c.mu.Lock()
		// A response landing after teardown has begun is ignored.
		if c.state != types.StateDisconnected {
			c.lastHeartbeat = time.Now()
			c.missedHeartbeats = 0
		}
		c.mu.Unlock()
		return nil
	}
	return m
}

// HandleDisconnect is the single teardown path. It is idempotent and safe
// to invoke concurrently from the heartbeat-timeout branch and an external
// close: only the first caller to observe a live state performs work.
func (c *Connection) HandleDisconnect() {
	c.mu.Lock()
	if c.state == types.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = types.StateDisconnected
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.done) })

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("transport close")
	}
	c.logger.Info().Msg("connection torn down")
}

// Wait blocks until both worker goroutines have exited.
func (c *Connection) Wait() {
	c.wg.Wait()
}

// Info returns a read-only snapshot without mutating state.
func (c *Connection) Info() types.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.ConnectionInfo{
		ClientID:          c.ClientID,
		State:             c.state.String(),
		QueueSize:         len(c.queue),
		PendingMessages:   len(c.pending),
		MissedHeartbeats:  c.missedHeartbeats,
		ReconnectAttempts: c.reconnectAttempts,
		CreatedAt:         c.createdAt,
		LastHeartbeat:     c.lastHeartbeat,
	}
}

// setReconnectAttempts records the client's reconnect counter mirror.
func (c *Connection) setReconnectAttempts(n int) {
	c.mu.Lock()
	c.reconnectAttempts = n
	c.mu.Unlock()
}

// heartbeatLoop sends a probe every interval and counts consecutive
// misses. The timeout test is strict: a response landing exactly at the
// boundary counts as on-time.
func (c *Connection) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.hbCfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.state != types.StateConnected {
			c.mu.Unlock()
			return
		}
		silence := time.Since(c.lastHeartbeat)
		c.mu.Unlock()

		c.SendMessage(types.NewMessage(types.TypeHeartbeat, map[string]any{
			"timestamp": float64(time.Now().UnixNano()) / float64(time.Second),
		}))

		if silence > c.hbCfg.Timeout {
			c.mu.Lock()
			c.missedHeartbeats++
			missed := c.missedHeartbeats
			c.mu.Unlock()

			c.logger.Warn().Int("missed", missed).Msg("missed heartbeat")
			if missed >= c.hbCfg.MaxMissed {
				c.logger.Error().Msg("too many missed heartbeats, disconnecting")
				c.HandleDisconnect()
				return
			}
		} else {
			c.mu.Lock()
			c.missedHeartbeats = 0
			c.mu.Unlock()
		}
	}
}

// drainLoop pops the outbound queue FIFO and attempts raw delivery. A
// failed write re-queues the message at the front while its retry budget
// lasts, with bounded exponential backoff between attempts.
func (c *Connection) drainLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			m := c.popQueue()
			if m == nil {
				break
			}

			if err := c.writeRaw(m); err != nil {
				if m.RetryCount < m.MaxRetries {
					m.RetryCount++
					c.markPending(m)
					c.logger.Warn().
						Str("message_id", m.ID).
						Int("retry", m.RetryCount).
						Msg("delivery failed, retrying")

					select {
					case <-c.done:
						return
					case <-time.After(c.retryBackoff(m.RetryCount)):
					}
					c.pushFront(m)
					continue
				}
				c.clearPending(m.ID)
				c.logger.Error().
					Str("message_id", m.ID).
					Msg("delivery failed, retry budget exhausted, dropping")
				continue
			}
			c.clearPending(m.ID)
		}
	}
}

// writeRaw performs a synchronous transport write. It returns failure
// rather than panicking when the transport is closed.
func (c *Connection) writeRaw(m *types.Message) error {
	c.mu.Lock()
	if c.state == types.StateDisconnected {
		c.mu.Unlock()
		return errTransportClosed
	}
	c.mu.Unlock()

	if err := c.conn.WriteJSON(m); err != nil {
		return err
	}
	c.logger.Debug().Str("message_id", m.ID).Str("type", m.Type).Msg("sent")
	return nil
}

func (c *Connection) popQueue() *types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	m := c.queue[0]
	c.queue = c.queue[1:]
	return m
}

func (c *Connection) pushFront(m *types.Message) {
	c.mu.Lock()
	c.queue = append([]*types.Message{m}, c.queue...)
	c.mu.Unlock()
}

func (c *Connection) markPending(m *types.Message) {
	c.mu.Lock()
	c.pending[m.ID] = m
	c.mu.Unlock()
}

func (c *Connection) clearPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Connection) retryBackoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > c.retryBackoffMax {
		d = c.retryBackoffMax
	}
	return d
}
