package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/match"
)

// Service is the match gateway: sockets, the dispatch engine and the
// management RPCs.
type Service struct {
	connectionManager *ConnectionManager
	engine            *Engine
	wsHandler         *WebSocketHandler
	matchService      *MatchService
}

// Config holds configuration for the match gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	EngineConfig     EngineConfig
}

// DefaultConfig returns default configuration for the match gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		EngineConfig:     DefaultEngineConfig(),
	}
}

// NewService creates a new match gateway service. history may be nil.
func NewService(config Config, registry *match.Registry, games GameCatalog, history HistoryAppender, clock clockwork.Clock) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	engine := NewEngine(config.EngineConfig, registry, connectionManager, history, clock)
	connectionManager.SetActionSink(engine)

	return &Service{
		connectionManager: connectionManager,
		engine:            engine,
		wsHandler:         NewWebSocketHandler(connectionManager),
		matchService:      NewMatchService(engine, games),
	}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting match gateway service")

	go s.connectionManager.Start(ctx)
	s.engine.Run(ctx)

	log.Info().Msg("match gateway service stopped")
}

// RegisterRoutes registers the WebSocket and RPC routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	path, handler := NewMatchServiceHandler(s.matchService)
	mux.Handle(path, handler)
	log.Info().Str("rpc_path", path).Msg("match gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
