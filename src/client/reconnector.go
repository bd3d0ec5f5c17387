package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/copilot-socket/config"
	"github.com/orchestra-mcp/copilot-socket/src/types"
	"github.com/rs/zerolog"
)

// MessageHandler receives application messages from the server.
type MessageHandler func(m *types.Message)

// wsConn is the subset of the WebSocket connection the reconnector uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Reconnector is the peer-side counterpart of the connection core. It
// keeps exactly one live transport handle, answers server heartbeat
// probes, and re-establishes a dropped transport with exponential backoff
// until the attempt budget runs out.
type Reconnector struct {
	url    string
	cfg    config.ReconnectConfig
	logger zerolog.Logger

	dial func(url string) (wsConn, error)

	mu        sync.Mutex
	conn      wsConn
	attempts  int
	onMessage MessageHandler
}

// NewReconnector creates a reconnector for the given WebSocket URL.
func NewReconnector(url string, cfg *config.ReconnectConfig, logger zerolog.Logger) *Reconnector {
	if cfg == nil {
		cfg = config.DefaultReconnectConfig()
	}
	return &Reconnector{
		url:    url,
		cfg:    *cfg,
		logger: logger.With().Str("component", "reconnector").Logger(),
		dial: func(url string) (wsConn, error) {
			c, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// OnMessage registers the handler for inbound application messages.
// Heartbeat probes are answered internally and never reach the handler.
func (r *Reconnector) OnMessage(h MessageHandler) {
	r.mu.Lock()
	r.onMessage = h
	r.mu.Unlock()
}

// Attempts returns the current consecutive reconnect attempt count.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Run dials the server and reads frames until the context is cancelled or
// the reconnect budget is exhausted, in which case a terminal error is
// returned. On a successful open the attempt counter resets to zero.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		conn, err := r.dial(r.url)
		if err == nil {
			r.mu.Lock()
			r.conn = conn
			r.attempts = 0
			r.mu.Unlock()
			r.logger.Info().Str("url", r.url).Msg("connected")

			err = r.readLoop(ctx, conn)
			// The old handle must be fully closed before a new dial
			// replaces it.
			r.closeConn()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn().Err(err).Msg("connection lost")
		} else {
			r.logger.Warn().Err(err).Msg("dial failed")
		}

		r.mu.Lock()
		if r.attempts >= r.cfg.MaxAttempts {
			attempts := r.attempts
			r.mu.Unlock()
			return fmt.Errorf("reconnect budget exhausted after %d attempts", attempts)
		}
		delay := backoffDelay(r.attempts, r.cfg.BaseDelay, r.cfg.MaxDelay)
		r.attempts++
		attempt := r.attempts
		r.mu.Unlock()

		r.logger.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("scheduling reconnect")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Send writes a message on the live transport.
func (r *Reconnector) Send(m *types.Message) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteJSON(m)
}

func (r *Reconnector) readLoop(ctx context.Context, conn wsConn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		m := types.ParseMessage(raw)
		if m == nil {
			continue
		}

		if m.Type == types.TypeHeartbeat {
			resp := types.NewMessage(types.TypeHeartbeatResponse, map[string]any{
				"timestamp": m.Timestamp,
			})
			if err := conn.WriteJSON(resp); err != nil {
				return err
			}
			continue
		}

		r.mu.Lock()
		h := r.onMessage
		r.mu.Unlock()
		if h != nil {
			h(m)
		}
	}
}

func (r *Reconnector) closeConn() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// backoffDelay returns min(base * 2^attempt, max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}
