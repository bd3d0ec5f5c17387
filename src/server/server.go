package server

import (
	"strings"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/copilot-socket/config"
	"github.com/orchestra-mcp/copilot-socket/src/hub"
	"github.com/orchestra-mcp/copilot-socket/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server exposes the WebSocket endpoint plus the read-only operational
// HTTP surface.
type Server struct {
	cfg      *config.SocketConfig
	manager  *hub.Manager
	service  *service.Service
	logger   zerolog.Logger
	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader
}

// New builds a server around the given manager and service.
func New(cfg *config.SocketConfig, mgr *hub.Manager, svc *service.Service, logger zerolog.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:     cfg,
		manager: mgr,
		service: svc,
		logger:  logger.With().Str("component", "server").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}

	app := fiber.New()
	app.Get("/ws/info", s.handleInfo)
	app.Get("/health", s.handleHealth)
	app.Get("/connections", s.handleConnections)
	s.app = app
	return s
}

// Handler returns the combined fasthttp handler. The WebSocket upgrade is
// served at the raw fasthttp level since Fiber v3 does not expose
// *fasthttp.RequestCtx; everything else goes through the Fiber app.
func (s *Server) Handler() fasthttp.RequestHandler {
	appHandler := s.app.Handler()
	wsHandler := s.wsHandler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}
}

// Listen serves the combined handler on addr.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("listening")
	return fasthttp.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   s.manager.ClientCount(),
	})
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(s.service.Health())
}

func (s *Server) handleConnections(c fiber.Ctx) error {
	return c.JSON(s.service.ConnectionsInfo())
}

// wsHandler upgrades a request at /ws and runs the inbound frame loop for
// the resulting connection.
func (s *Server) wsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if s.manager.ClientCount() >= s.cfg.MaxConnections {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"error":"too_many_connections"}`)
			return
		}

		clientID := string(ctx.QueryArgs().Peek("client_id"))
		if clientID == "" {
			clientID = uuid.New().String()
		}

		err := s.upgrader.Upgrade(ctx, func(wsc *websocket.Conn) {
			s.serveConnection(&socketConn{conn: wsc}, clientID)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// serveConnection registers the transport with the manager and pumps
// inbound frames until the transport dies, then funnels teardown through
// the manager's disconnect path.
func (s *Server) serveConnection(transport *socketConn, clientID string) {
	conn := s.manager.HandleNewConnection(transport, clientID)
	// Tear down by connection identity: after a reconnect with the same
	// client id the table entry belongs to the successor, and this pump
	// must not evict it.
	defer s.manager.DropConnection(conn)

	for {
		raw, err := transport.ReadMessage()
		if err != nil {
			s.logger.Debug().Err(err).Str("client_id", clientID).Msg("read loop ended")
			return
		}
		if m := conn.HandleMessage(raw); m != nil {
			s.manager.ProcessMessage(conn, m)
		}
	}
}

// socketConn adapts fasthttp/websocket.Conn to types.Conn. Writes are
// serialized since the drainer and control frames may race.
type socketConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *socketConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *socketConn) ReadMessage() ([]byte, error) {
	_, raw, err := c.conn.ReadMessage()
	return raw, err
}

func (c *socketConn) Close() error {
	return c.conn.Close()
}
