package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/match"
	"github.com/mcdev12/livequiz/go/internal/match/timer"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// ErrEngineStopped is returned by Do once the dispatch loop has exited.
var ErrEngineStopped = errors.New("engine stopped")

// Hub delivers events to sockets and tracks room membership.
type Hub interface {
	Join(connID, room string)
	Leave(connID, room string)
	InRoom(connID, room string) bool
	ToRoom(room string, event Event)
	ToParticipant(connID string, event Event)
}

// HistoryAppender receives the record of every finished match.
type HistoryAppender interface {
	Append(h models.MatchHistory)
}

// EngineConfig holds the timing knobs of the engine.
type EngineConfig struct {
	TickInterval      time.Duration
	PanicTickInterval time.Duration
	TypingQuietPeriod int // seconds a typing flag survives without a keystroke
	InboxSize         int
}

// DefaultEngineConfig returns the production timings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval:      time.Second,
		PanicTickInterval: 250 * time.Millisecond,
		TypingQuietPeriod: 5,
		InboxSize:         1024,
	}
}

type role int

const (
	rolePlayer role = iota
	roleManager
	roleTester
)

func (r role) String() string {
	switch r {
	case roleManager:
		return "manager"
	case roleTester:
		return "tester"
	default:
		return "player"
	}
}

// participant is a socket bound to a room.
type participant struct {
	connID string
	room   string
	name   string
	role   role
}

func (p *participant) isOrganizer() bool {
	return p.role == roleManager || p.role == roleTester
}

type work struct {
	connID string
	room   string
	action Action
	call   func() error
	done   chan error
}

// Engine owns every live match, the timers and the participant table. All of
// them are only touched from the goroutine running Run.
type Engine struct {
	config   EngineConfig
	registry *match.Registry
	timers   *timer.Scheduler
	hub      Hub
	history  HistoryAppender
	clock    clockwork.Clock

	participants map[string]*participant
	// question id already announced as fully answered, per room
	announced map[string]string

	inbox   chan work
	stopped chan struct{}
}

// NewEngine wires an engine. history may be nil.
func NewEngine(config EngineConfig, registry *match.Registry, hub Hub, history HistoryAppender, clock clockwork.Clock) *Engine {
	if config.InboxSize <= 0 {
		config.InboxSize = DefaultEngineConfig().InboxSize
	}
	return &Engine{
		config:       config,
		registry:     registry,
		timers:       timer.NewScheduler(clock),
		hub:          hub,
		history:      history,
		clock:        clock,
		participants: make(map[string]*participant),
		announced:    make(map[string]string),
		inbox:        make(chan work, config.InboxSize),
		stopped:      make(chan struct{}),
	}
}

// Run processes actions, timer ticks and calls until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	log.Info().Msg("match engine started")
	defer func() {
		e.timers.StopAll()
		close(e.stopped)
		log.Info().Msg("match engine stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case w := <-e.inbox:
			e.process(w)
		case t := <-e.timers.Ticks():
			if err := e.recovered("tick", func() error { return e.onTick(t) }); err != nil {
				log.Warn().Err(err).Str("timer", t.Key.String()).Msg("timer tick dropped")
			}
		}
	}
}

// Submit queues an action sent by connection connID for room.
func (e *Engine) Submit(connID, room string, action Action) {
	select {
	case e.inbox <- work{connID: connID, room: room, action: action}:
	case <-e.stopped:
	}
}

// Do runs fn on the dispatch goroutine and waits for its result.
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	w := work{call: fn, done: make(chan error, 1)}
	select {
	case e.inbox <- w:
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-w.done:
		return err
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) process(w work) {
	if w.call != nil {
		w.done <- e.recovered("call", w.call)
		return
	}
	what := string(w.action.actionType())
	err := e.recovered(what, func() error {
		return e.dispatch(w.connID, w.room, w.action)
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("action", what).
			Str("connection_id", w.connID).
			Str("room", w.room).
			Msg("match action rejected")
	}
}

// recovered runs fn and turns a panic into an error so one bad work item
// never stops the loop.
func (e *Engine) recovered(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("work", what).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic in match engine")
			err = fmt.Errorf("%s: panic: %v", what, r)
		}
	}()
	return fn()
}

func (e *Engine) dispatch(connID, room string, action Action) error {
	switch a := action.(type) {
	case JoinRoom:
		return e.joinRoom(connID, room, a)
	case SendChatMessage:
		return e.sendChatMessage(connID, room, a)
	case SwitchQuestion:
		return e.switchQuestion(connID, room)
	case ActivatePanicMode:
		return e.activatePanicMode(connID, room)
	case SubmitAnswer:
		return e.submitAnswer(connID, room, a)
	case StartRoomTimer:
		return e.startRoomTimer(connID, room, a)
	case StartTypingTimer:
		return e.startTypingTimer(connID, room)
	case StopTimer:
		return e.stopTimer(connID, room, a)
	case CancelGame:
		return e.cancelGame(connID, room)
	case FinishMatch:
		return e.finishMatch(connID, room)
	case BeginMatch:
		return e.beginMatch(connID, room)
	case RemovePlayer:
		return e.removePlayer(connID, room, a)
	case UpdateScore:
		return e.updateScore(connID, room, a)
	case SetFinalAnswer:
		return e.setFinalAnswer(connID, room, a)
	case PlayerLeft:
		return e.playerLeft(connID, room, a)
	case ChangeChatAccessibility:
		return e.changeChatAccessibility(connID, room, a)
	case BeginFreeTextEvaluation:
		return e.setFreeTextEvaluation(connID, room, true)
	case FinishFreeTextEvaluation:
		return e.setFreeTextEvaluation(connID, room, false)
	case ToggleRoomLock:
		return e.toggleRoomLock(connID, room)
	case Disconnected:
		return e.disconnect(connID)
	default:
		return fmt.Errorf("unhandled action %T", action)
	}
}

// CreateMatch registers a new match for game and returns its access code.
func (e *Engine) CreateMatch(ctx context.Context, game models.Game, testing bool) (string, error) {
	var code string
	err := e.Do(ctx, func() error {
		c, err := e.registry.NewAccessCode()
		if err != nil {
			return err
		}
		if err := e.registry.Create(match.New(c, game, testing)); err != nil {
			return err
		}
		code = c
		return nil
	})
	if err != nil {
		return "", err
	}
	log.Info().Str("room", code).Str("game_id", game.ID).Bool("testing", testing).Msg("match created")
	return code, nil
}

// AccessCodeExists reports whether a match is registered under code.
func (e *Engine) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := e.Do(ctx, func() error {
		exists = e.registry.AccessCodeExists(code)
		return nil
	})
	return exists, err
}

// DeleteAllMatches closes every match when secret matches the admin secret.
func (e *Engine) DeleteAllMatches(ctx context.Context, secret string) (int, error) {
	var deleted int
	err := e.Do(ctx, func() error {
		codes, err := e.registry.DeleteAll(secret)
		if err != nil {
			return err
		}
		for _, code := range codes {
			e.releaseRoom(code, GameCancelled{Reason: "all matches deleted"})
		}
		deleted = len(codes)
		return nil
	})
	if err == nil {
		log.Info().Int("deleted", deleted).Msg("all matches deleted")
	}
	return deleted, err
}

// Snapshot returns the public state of the match under code.
func (e *Engine) Snapshot(ctx context.Context, code string) (Snapshot, error) {
	var s Snapshot
	err := e.Do(ctx, func() error {
		m, err := e.registry.Get(code)
		if err != nil {
			return err
		}
		remaining, running := e.timers.Remaining(timer.RoomKey(code))
		s = newSnapshot(m, remaining, running)
		return nil
	})
	return s, err
}
