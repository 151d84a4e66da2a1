package timer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextTick(t *testing.T, s *Scheduler) Tick {
	t.Helper()
	select {
	case tk := <-s.Ticks():
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}
	return Tick{}
}

func advanceAndDeliver(t *testing.T, s *Scheduler, clock *clockwork.FakeClock, d time.Duration) Update {
	t.Helper()
	clock.Advance(d)
	u, ok := s.Deliver(nextTick(t, s))
	require.True(t, ok)
	return u
}

func TestScheduler_CountsDownToZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)
	key := RoomKey("1234")

	u, err := s.Start(key, 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Update{Key: key, Remaining: 3}, u)
	assert.True(t, s.Active(key))

	assert.Equal(t, Update{Key: key, Remaining: 2}, advanceAndDeliver(t, s, clock, time.Second))
	assert.Equal(t, Update{Key: key, Remaining: 1}, advanceAndDeliver(t, s, clock, time.Second))

	remaining, ok := s.Remaining(key)
	require.True(t, ok)
	assert.Equal(t, 1, remaining)

	assert.Equal(t, Update{Key: key, Remaining: 0, Done: true}, advanceAndDeliver(t, s, clock, time.Second))
	assert.False(t, s.Active(key))
	assert.Zero(t, s.Len())
}

func TestScheduler_StartAtZero(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClock())

	u, err := s.Start(RoomKey("1234"), 0, time.Second)
	require.NoError(t, err)
	assert.True(t, u.Done)
	assert.Zero(t, u.Remaining)
	assert.False(t, s.Active(RoomKey("1234")))
}

func TestScheduler_InvalidStart(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClock())

	_, err := s.Start(RoomKey("1234"), -1, time.Second)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Start(RoomKey("1234"), 5, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, s.Len())
}

func TestScheduler_RestartReplacesHandle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)
	key := RoomKey("1234")

	_, err := s.Start(key, 10, time.Second)
	require.NoError(t, err)
	clock.Advance(time.Second)
	stale := nextTick(t, s)

	_, err = s.Start(key, 5, 250*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Deliver(stale)
	assert.False(t, ok, "tick of the replaced handle is dropped")
	remaining, _ := s.Remaining(key)
	assert.Equal(t, 5, remaining)

	assert.Equal(t, Update{Key: key, Remaining: 4}, advanceAndDeliver(t, s, clock, 250*time.Millisecond))
}

func TestScheduler_StopIsIdempotentAndDropsInFlightTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)
	key := TypingKey("1234", "conn-1")

	_, err := s.Start(key, 5, time.Second)
	require.NoError(t, err)
	clock.Advance(time.Second)
	inFlight := nextTick(t, s)

	s.Stop(key)
	s.Stop(key)
	s.Stop(RoomKey("never-started"))

	_, ok := s.Deliver(inFlight)
	assert.False(t, ok)
	assert.False(t, s.Active(key))
}

func TestScheduler_StopRoom(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClock())
	for _, key := range []Key{RoomKey("1111"), TypingKey("1111", "a"), TypingKey("1111", "b"), RoomKey("2222"), TypingKey("2222", "a")} {
		_, err := s.Start(key, 5, time.Second)
		require.NoError(t, err)
	}

	s.StopRoom("1111")

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Active(RoomKey("2222")))
	assert.True(t, s.Active(TypingKey("2222", "a")))
	assert.False(t, s.Active(TypingKey("1111", "a")))

	s.StopAll()
	assert.Zero(t, s.Len())
}

func TestKey_FamiliesNeverCollide(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClock())

	_, err := s.Start(RoomKey("12"), 5, time.Second)
	require.NoError(t, err)
	_, err = s.Start(TypingKey("1", "2"), 7, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	assert.False(t, RoomKey("12").IsTyping())
	assert.True(t, TypingKey("1", "2").IsTyping())
}
