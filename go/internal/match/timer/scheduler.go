package timer

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrInvalidState is returned when a countdown cannot be started as requested.
var ErrInvalidState = errors.New("invalid timer state")

const ticksBufferSize = 256

// Key identifies a countdown. Room timers leave Participant empty; typing
// timers carry the participant's connection id.
type Key struct {
	Room        string
	Participant string
}

// RoomKey returns the key of the room countdown.
func RoomKey(room string) Key {
	return Key{Room: room}
}

// TypingKey returns the key of a participant's typing countdown.
func TypingKey(room, participant string) Key {
	return Key{Room: room, Participant: participant}
}

// IsTyping reports whether the key belongs to the typing family.
func (k Key) IsTyping() bool {
	return k.Participant != ""
}

func (k Key) String() string {
	if k.IsTyping() {
		return fmt.Sprintf("%s/%s", k.Room, k.Participant)
	}
	return k.Room
}

// Tick is a fire of a handle's ticker, waiting to be delivered by the owner loop.
type Tick struct {
	Key    Key
	handle *handle
}

// Update is the countdown value produced by Start or Deliver.
type Update struct {
	Key       Key
	Remaining int
	Done      bool
}

type handle struct {
	remaining int
	ticker    clockwork.Ticker
	done      chan struct{}
}

// Scheduler runs one repeating countdown per key.
//
// Start, Stop, StopRoom and Deliver must be called from a single goroutine,
// the owner's dispatch loop. Ticker goroutines never touch the counts: they
// only forward fires on Ticks, so a tick and any other event of the owner are
// never interleaved.
type Scheduler struct {
	clock   clockwork.Clock
	handles map[Key]*handle
	ticks   chan Tick
}

// NewScheduler creates a scheduler driven by clock.
func NewScheduler(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:   clock,
		handles: make(map[Key]*handle),
		ticks:   make(chan Tick, ticksBufferSize),
	}
}

// Ticks delivers ticker fires. The owner passes each one to Deliver.
func (s *Scheduler) Ticks() <-chan Tick {
	return s.ticks
}

// Start begins a countdown from count for key, cancelling any running one for
// the same key. The returned update carries the initial value; a countdown
// started at zero is done immediately and leaves no handle behind.
func (s *Scheduler) Start(key Key, count int, interval time.Duration) (Update, error) {
	if count < 0 {
		return Update{}, fmt.Errorf("start timer %s with count %d: %w", key, count, ErrInvalidState)
	}
	if interval <= 0 {
		return Update{}, fmt.Errorf("start timer %s with interval %s: %w", key, interval, ErrInvalidState)
	}

	s.Stop(key)
	if count == 0 {
		return Update{Key: key, Remaining: 0, Done: true}, nil
	}

	h := &handle{
		remaining: count,
		ticker:    s.clock.NewTicker(interval),
		done:      make(chan struct{}),
	}
	s.handles[key] = h
	go s.forward(key, h)

	log.Debug().
		Str("timer", key.String()).
		Int("count", count).
		Dur("interval", interval).
		Msg("timer started")
	return Update{Key: key, Remaining: count}, nil
}

// forward relays ticker fires until the handle is cancelled.
func (s *Scheduler) forward(key Key, h *handle) {
	for {
		select {
		case <-h.done:
			return
		case <-h.ticker.Chan():
			select {
			case s.ticks <- Tick{Key: key, handle: h}:
			case <-h.done:
				return
			}
		}
	}
}

// Deliver applies a tick. Ticks of cancelled or replaced handles are dropped
// and reported as not ok.
func (s *Scheduler) Deliver(t Tick) (Update, bool) {
	h, exists := s.handles[t.Key]
	if !exists || h != t.handle {
		log.Debug().Str("timer", t.Key.String()).Msg("dropping stale tick")
		return Update{}, false
	}
	h.remaining--
	u := Update{Key: t.Key, Remaining: h.remaining}
	if h.remaining <= 0 {
		u.Remaining = 0
		u.Done = true
		s.Stop(t.Key)
	}
	return u, true
}

// Stop cancels the countdown for key. Stopping an idle key is a no-op.
func (s *Scheduler) Stop(key Key) {
	h, exists := s.handles[key]
	if !exists {
		return
	}
	h.ticker.Stop()
	close(h.done)
	delete(s.handles, key)
	log.Debug().Str("timer", key.String()).Msg("timer stopped")
}

// StopRoom cancels the room countdown and every typing countdown of room.
func (s *Scheduler) StopRoom(room string) {
	for key := range s.handles {
		if key.Room == room {
			s.Stop(key)
		}
	}
}

// Remaining returns the count left on key, if it is running.
func (s *Scheduler) Remaining(key Key) (int, bool) {
	h, exists := s.handles[key]
	if !exists {
		return 0, false
	}
	return h.remaining, true
}

// Active reports whether key has a running countdown.
func (s *Scheduler) Active(key Key) bool {
	_, exists := s.handles[key]
	return exists
}

// Len returns the number of running countdowns.
func (s *Scheduler) Len() int {
	return len(s.handles)
}

// StopAll cancels every countdown, on shutdown.
func (s *Scheduler) StopAll() {
	for key := range s.handles {
		s.Stop(key)
	}
}
