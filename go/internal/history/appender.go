package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/models"
)

// Sink persists or forwards finished match records.
type Sink interface {
	Name() string
	Save(ctx context.Context, h models.MatchHistory) error
}

// AppenderConfig tunes the background writer.
type AppenderConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// DefaultAppenderConfig returns default appender configuration
func DefaultAppenderConfig() AppenderConfig {
	return AppenderConfig{
		BufferSize:   128,
		WriteTimeout: 5 * time.Second,
	}
}

// Appender queues history records and writes them to every sink from a single
// worker, so callers never wait on storage.
type Appender struct {
	queue  chan models.MatchHistory
	sinks  []Sink
	config AppenderConfig
	done   chan struct{}
}

// NewAppender creates an appender fanning out to sinks.
func NewAppender(config AppenderConfig, sinks ...Sink) *Appender {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultAppenderConfig().BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultAppenderConfig().WriteTimeout
	}
	return &Appender{
		queue:  make(chan models.MatchHistory, config.BufferSize),
		sinks:  sinks,
		config: config,
		done:   make(chan struct{}),
	}
}

// Append enqueues h without blocking. A full queue drops the record.
func (a *Appender) Append(h models.MatchHistory) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	select {
	case a.queue <- h:
	default:
		log.Warn().
			Str("history_id", h.ID.String()).
			Str("access_code", h.AccessCode).
			Msg("history queue full, dropping record")
	}
}

// Run writes queued records until ctx is done, then flushes what is left.
func (a *Appender) Run(ctx context.Context) {
	defer close(a.done)
	log.Info().Int("sinks", len(a.sinks)).Msg("history appender started")

	for {
		select {
		case <-ctx.Done():
			a.flush()
			log.Info().Msg("history appender stopped")
			return
		case h := <-a.queue:
			a.write(ctx, h)
		}
	}
}

// Done is closed once Run has returned.
func (a *Appender) Done() <-chan struct{} {
	return a.done
}

func (a *Appender) flush() {
	for {
		select {
		case h := <-a.queue:
			a.write(context.Background(), h)
		default:
			return
		}
	}
}

func (a *Appender) write(ctx context.Context, h models.MatchHistory) {
	for _, sink := range a.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, a.config.WriteTimeout)
		err := sink.Save(writeCtx, h)
		cancel()
		if err != nil {
			log.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("history_id", h.ID.String()).
				Msg("failed to write match history")
			continue
		}
		log.Debug().
			Str("sink", sink.Name()).
			Str("history_id", h.ID.String()).
			Msg("match history written")
	}
}
