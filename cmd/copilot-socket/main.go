package main

import (
	"os"

	"github.com/orchestra-mcp/copilot-socket/config"
	"github.com/orchestra-mcp/copilot-socket/src/bridge"
	"github.com/orchestra-mcp/copilot-socket/src/hub"
	"github.com/orchestra-mcp/copilot-socket/src/server"
	"github.com/orchestra-mcp/copilot-socket/src/service"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := config.FromEnv()
	manager := hub.NewManager(cfg, logger)
	svc := service.New(manager, logger)

	// Attempt Redis bridge connection (non-fatal if unavailable).
	initBridge(manager, logger)

	addr := os.Getenv("SOCKET_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := server.New(cfg, manager, svc, logger)
	if err := srv.Listen(addr); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

// initBridge tries to start the Redis pub/sub bridge. If Redis is not
// reachable, the manager runs in standalone mode.
func initBridge(manager *hub.Manager, logger zerolog.Logger) {
	cfg := bridge.RedisConfigFromEnv()
	rb := bridge.NewRedisBridge(cfg, manager, logger)

	if err := rb.Start(); err != nil {
		logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}

	manager.SetBridge(rb)
	logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}
