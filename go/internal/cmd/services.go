package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/config"
	"github.com/mcdev12/livequiz/go/internal/history"
	"github.com/mcdev12/livequiz/go/internal/match"
	"github.com/mcdev12/livequiz/go/internal/match/gateway"
)

type Services struct {
	Gateway *gateway.Service
	History *history.Appender

	closers []func() error
}

func setupServices(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, database *sql.DB) (*Services, error) {
	// Storage → history sinks → appender → registry → gateway
	services := &Services{}

	sinks := []history.Sink{history.NewPostgresStore(database)}
	if cfg.NATS.Enabled {
		jsCfg := history.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.Stream
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		publisher, err := history.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create history publisher: %w", err)
		}
		sinks = append(sinks, publisher)
		services.closers = append(services.closers, publisher.Close)
	}
	appenderCfg := history.DefaultAppenderConfig()
	appenderCfg.BufferSize = cfg.Match.HistoryBuffer
	services.History = history.NewAppender(appenderCfg, sinks...)

	if cfg.Match.AdminSecretHash == "" {
		log.Warn().Msg("no admin secret hash configured, DeleteAllMatches is disabled")
	}
	registry := match.NewRegistry([]byte(cfg.Match.AdminSecretHash))

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.EngineConfig.TickInterval = cfg.Match.TickInterval
	gatewayCfg.EngineConfig.PanicTickInterval = cfg.Match.PanicTickInterval
	gatewayCfg.EngineConfig.TypingQuietPeriod = cfg.Match.TypingQuietPeriod

	services.Gateway = gateway.NewService(
		gatewayCfg,
		registry,
		catalog.NewRepository(pool),
		services.History,
		clockwork.NewRealClock(),
	)
	return services, nil
}

func (s *Services) Close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("failed to close service")
		}
	}
}
