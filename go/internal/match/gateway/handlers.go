package gateway

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcdev12/livequiz/go/internal/match"
	"github.com/mcdev12/livequiz/go/internal/match/timer"
	"github.com/mcdev12/livequiz/go/internal/models"
)

const (
	// MaxChatMessageLength is counted in runes.
	MaxChatMessageLength = 200

	// Panic mode needs at least this many seconds left on the room countdown.
	PanicMinRemainingQCM = 10
	PanicMinRemainingQRL = 20
)

// member returns the participant bound to connID in room and its match.
func (e *Engine) member(connID, room string) (*participant, *match.Match, error) {
	p := e.participants[connID]
	if p == nil || p.room != room || !e.hub.InRoom(connID, room) {
		return nil, nil, fmt.Errorf("connection %s is not in room %s: %w", connID, room, match.ErrNotFound)
	}
	m, err := e.registry.Get(room)
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}

func (e *Engine) organizer(connID, room string) (*participant, *match.Match, error) {
	p, m, err := e.member(connID, room)
	if err != nil {
		return nil, nil, err
	}
	if !p.isOrganizer() {
		return nil, nil, fmt.Errorf("player %q cannot manage room %s: %w", p.name, room, match.ErrUnauthorized)
	}
	return p, m, nil
}

func (e *Engine) player(connID, room string) (*participant, *match.Match, error) {
	p, m, err := e.member(connID, room)
	if err != nil {
		return nil, nil, err
	}
	if p.role != rolePlayer {
		return nil, nil, fmt.Errorf("%s has no roster entry in room %s: %w", p.role, room, match.ErrInvalidState)
	}
	return p, m, nil
}

// currentQuestion returns the question being played in a begun match.
func currentQuestion(m *match.Match) (models.Question, error) {
	if !m.Begun {
		return models.Question{}, fmt.Errorf("match %s has not begun: %w", m.AccessCode, match.ErrInvalidState)
	}
	return m.CurrentQuestion()
}

func (e *Engine) attach(p *participant) {
	e.participants[p.connID] = p
	e.hub.Join(p.connID, p.room)
}

func (e *Engine) detach(p *participant) {
	e.timers.Stop(timer.TypingKey(p.room, p.connID))
	e.hub.Leave(p.connID, p.room)
	delete(e.participants, p.connID)
}

func (e *Engine) participantNamed(room, name string) *participant {
	for _, p := range e.participants {
		if p.room == room && p.role == rolePlayer && p.name == name {
			return p
		}
	}
	return nil
}

// toOrganizer sends live answer data to the manager or tester of m only.
func (e *Engine) toOrganizer(m *match.Match, event Event) {
	if m.ManagerID == "" {
		return
	}
	if _, online := e.participants[m.ManagerID]; online {
		e.hub.ToParticipant(m.ManagerID, event)
	}
}

func (e *Engine) publishAnswers(m *match.Match, q models.Question) {
	e.toOrganizer(m, AnswersUpdated{QuestionID: q.ID, Answers: answersOf(m, q.ID)})

	chart := ChartDataUpdated{QuestionID: q.ID}
	if match.IsQCM(q) {
		chart.ChoiceCounts, _ = m.ChoiceHistogram(q.ID)
	} else {
		chart.Typing, chart.Idle = m.TypingHistogram(q.ID)
	}
	e.toOrganizer(m, chart)
}

func (e *Engine) nextQuestionEvent(m *match.Match, q models.Question) NextQuestion {
	duration := m.Game.QuestionDuration(m.CurrentQuestionIndex)
	return NextQuestion{
		Index:    m.CurrentQuestionIndex,
		Total:    len(m.Game.Questions),
		Question: newQuestionView(q, duration),
		Duration: duration,
	}
}

// checkAllResponded announces, once per question, that every active player
// has locked in an answer. Nothing is announced while free-text answers are
// being graded.
func (e *Engine) checkAllResponded(m *match.Match) {
	if m.IsEvaluatingFreeText {
		return
	}
	q, err := currentQuestion(m)
	if err != nil || e.announced[m.AccessCode] == q.ID {
		return
	}
	if !m.AllPlayersResponded(q.ID) {
		return
	}
	e.announced[m.AccessCode] = q.ID
	e.timers.Stop(timer.RoomKey(m.AccessCode))

	event := AllPlayersResponded{QuestionID: q.ID}
	if match.IsQCM(q) {
		event.CorrectChoices = q.CorrectChoices()
	}
	e.hub.ToRoom(m.AccessCode, event)
}

// startTimer starts key, reporting a rejected count or interval as
// match.ErrInvalidState.
func (e *Engine) startTimer(key timer.Key, count int, interval time.Duration) (timer.Update, error) {
	u, err := e.timers.Start(key, count, interval)
	if err != nil {
		return u, fmt.Errorf("%w: %w", match.ErrInvalidState, err)
	}
	return u, nil
}

// closeRoom deletes the match and releases everything bound to it.
func (e *Engine) closeRoom(room string, event Event) error {
	if err := e.registry.Delete(room); err != nil {
		return err
	}
	e.releaseRoom(room, event)
	return nil
}

// releaseRoom stops the timers of an already deleted match, sends event to its
// members and unbinds them.
func (e *Engine) releaseRoom(room string, event Event) {
	e.timers.StopRoom(room)
	delete(e.announced, room)
	e.hub.ToRoom(room, event)
	for _, p := range e.participants {
		if p.room == room {
			e.detach(p)
		}
	}
}

func (e *Engine) joinRoom(connID, room string, a JoinRoom) error {
	if p := e.participants[connID]; p != nil {
		return fmt.Errorf("join %s: connection already in room %s: %w", room, p.room, match.ErrConflict)
	}
	m, err := e.registry.Get(room)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}

	name := strings.TrimSpace(a.Name)
	if match.IsReservedName(name) {
		return e.joinOrganizer(connID, m, name)
	}
	if !m.IsAccessible {
		return fmt.Errorf("join %s as %q: room is locked: %w", room, name, match.ErrInvalidState)
	}
	if !m.IsPlayerNameValid(name) {
		return fmt.Errorf("join %s as %q: name unavailable: %w", room, name, match.ErrConflict)
	}
	if err := m.AddPlayer(match.NewPlayer(name)); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	e.attach(&participant{connID: connID, room: room, name: name, role: rolePlayer})
	e.hub.ToRoom(room, RosterChanged{Players: rosterOf(m)})
	return nil
}

// joinOrganizer binds the manager, or the tester of a testing match. Neither
// enters the roster.
func (e *Engine) joinOrganizer(connID string, m *match.Match, name string) error {
	r := roleManager
	if strings.EqualFold(name, match.TesterName) {
		r = roleTester
	}
	if (r == roleTester) != m.IsTestingMode {
		return fmt.Errorf("join %s as %s: %w", m.AccessCode, r, match.ErrUnauthorized)
	}
	if m.ManagerID != "" {
		if _, online := e.participants[m.ManagerID]; online {
			return fmt.Errorf("join %s as %s: seat taken: %w", m.AccessCode, r, match.ErrConflict)
		}
	}
	m.ManagerID = connID
	e.attach(&participant{connID: connID, room: m.AccessCode, name: r.String(), role: r})
	return nil
}

func (e *Engine) sendChatMessage(connID, room string, a SendChatMessage) error {
	p, m, err := e.member(connID, room)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(a.Text)
	if text == "" || utf8.RuneCountInString(text) > MaxChatMessageLength {
		return fmt.Errorf("chat from %q: message length: %w", p.name, match.ErrInvalidState)
	}
	if !m.CanChat(p.name) {
		return fmt.Errorf("chat from %q: %w", p.name, match.ErrUnauthorized)
	}
	e.hub.ToRoom(room, ChatMessage{Author: p.name, Text: text, SentAt: e.clock.Now()})
	return nil
}

func (e *Engine) beginMatch(connID, room string) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	if err := m.Begin(e.clock.Now()); err != nil {
		return err
	}
	q, err := m.CurrentQuestion()
	if err != nil {
		return err
	}
	delete(e.announced, room)
	e.hub.ToRoom(room, JoinBegunMatch{Match: newSnapshot(m, 0, false)})
	e.hub.ToRoom(room, e.nextQuestionEvent(m, q))
	return nil
}

func (e *Engine) switchQuestion(connID, room string) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	if _, err := currentQuestion(m); err != nil {
		return err
	}
	q, err := m.NextQuestion()
	if err != nil {
		return err
	}
	e.timers.StopRoom(room)
	delete(e.announced, room)
	e.hub.ToRoom(room, e.nextQuestionEvent(m, q))
	return nil
}

func (e *Engine) activatePanicMode(connID, room string) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	q, err := currentQuestion(m)
	if err != nil {
		return err
	}
	key := timer.RoomKey(room)
	remaining, running := e.timers.Remaining(key)
	if !running {
		return fmt.Errorf("panic mode in %s: no countdown running: %w", room, match.ErrInvalidState)
	}
	threshold := PanicMinRemainingQRL
	if match.IsQCM(q) {
		threshold = PanicMinRemainingQCM
	}
	if remaining < threshold {
		return fmt.Errorf("panic mode in %s: %ds left, need %d: %w", room, remaining, threshold, match.ErrInvalidState)
	}
	if err := m.ArmPanicMode(); err != nil {
		return err
	}
	if _, err := e.startTimer(key, remaining, e.config.PanicTickInterval); err != nil {
		return err
	}
	e.hub.ToRoom(room, PanicModeActivated{Remaining: remaining})
	return nil
}

func (e *Engine) submitAnswer(connID, room string, a SubmitAnswer) error {
	p, m, err := e.player(connID, room)
	if err != nil {
		return err
	}
	q, err := currentQuestion(m)
	if err != nil {
		return err
	}
	if a.QuestionID != q.ID {
		return fmt.Errorf("answer of %q to %q: current question is %q: %w", p.name, a.QuestionID, q.ID, match.ErrInvalidState)
	}

	typing := false
	if prev := m.Answer(p.name, q.ID); prev != nil {
		typing = prev.IsTyping
	}
	remaining, _ := e.timers.Remaining(timer.RoomKey(room))
	update := match.AnswerUpdate{
		PlayerName: p.name,
		QuestionID: q.ID,
		Choices:    a.Choices,
		FreeText:   a.FreeText,
		IsFinal:    a.IsFinal,
		IsTyping:   typing,
	}
	if _, err := m.RecordAnswer(update, remaining); err != nil {
		return err
	}

	if a.IsFinal {
		e.timers.Stop(timer.TypingKey(room, connID))
		e.hub.ToRoom(room, FinalAnswerSet{PlayerName: p.name, QuestionID: q.ID})
	}
	e.publishAnswers(m, q)
	if a.IsFinal {
		e.checkAllResponded(m)
	}
	return nil
}

func (e *Engine) setFinalAnswer(connID, room string, a SetFinalAnswer) error {
	p, m, err := e.player(connID, room)
	if err != nil {
		return err
	}
	q, err := currentQuestion(m)
	if err != nil {
		return err
	}
	if a.QuestionID != "" && a.QuestionID != q.ID {
		return fmt.Errorf("finalize %q for %q: current question is %q: %w", p.name, a.QuestionID, q.ID, match.ErrInvalidState)
	}
	remaining, _ := e.timers.Remaining(timer.RoomKey(room))
	if _, err := m.FinalizeAnswer(p.name, q.ID, remaining); err != nil {
		return err
	}
	e.timers.Stop(timer.TypingKey(room, connID))
	e.hub.ToRoom(room, FinalAnswerSet{PlayerName: p.name, QuestionID: q.ID})
	e.publishAnswers(m, q)
	e.checkAllResponded(m)
	return nil
}

func (e *Engine) startRoomTimer(connID, room string, a StartRoomTimer) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	interval := e.config.TickInterval
	var count int
	if a.Count != nil {
		count = *a.Count
	} else {
		if _, err := currentQuestion(m); err != nil {
			return err
		}
		count = m.Game.QuestionDuration(m.CurrentQuestionIndex)
		if m.PanicMode {
			interval = e.config.PanicTickInterval
		}
	}
	u, err := e.startTimer(timer.RoomKey(room), count, interval)
	if err != nil {
		return err
	}
	e.hub.ToRoom(room, Tick{Scope: TimerScopeRoom, Remaining: u.Remaining, Done: u.Done})
	return nil
}

// startTypingTimer flags the sender as typing until TypingQuietPeriod seconds
// pass without another keystroke notification.
func (e *Engine) startTypingTimer(connID, room string) error {
	p, m, err := e.player(connID, room)
	if err != nil {
		return err
	}
	q, err := currentQuestion(m)
	if err != nil {
		return err
	}
	prev := m.Answer(p.name, q.ID)
	if prev != nil && prev.IsFinal {
		return fmt.Errorf("typing of %q on %q: answer is final: %w", p.name, q.ID, match.ErrInvalidState)
	}
	u, err := e.startTimer(timer.TypingKey(room, connID), e.config.TypingQuietPeriod, e.config.TickInterval)
	if err != nil {
		return err
	}
	e.hub.ToParticipant(connID, Tick{Scope: TimerScopeTyping, Remaining: u.Remaining, Done: u.Done})
	if prev != nil && prev.IsTyping {
		return nil
	}
	if _, err := m.SetTyping(p.name, q.ID, true); err != nil {
		return err
	}
	e.publishAnswers(m, q)
	return nil
}

func (e *Engine) stopTimer(connID, room string, a StopTimer) error {
	if a.Scope == TimerScopeRoom {
		if _, _, err := e.organizer(connID, room); err != nil {
			return err
		}
		e.timers.Stop(timer.RoomKey(room))
		return nil
	}
	p, m, err := e.player(connID, room)
	if err != nil {
		return err
	}
	e.timers.Stop(timer.TypingKey(room, connID))
	return e.clearTyping(m, p.name)
}

func (e *Engine) clearTyping(m *match.Match, name string) error {
	q, err := currentQuestion(m)
	if err != nil {
		return nil
	}
	a := m.Answer(name, q.ID)
	if a == nil || !a.IsTyping {
		return nil
	}
	if _, err := m.SetTyping(name, q.ID, false); err != nil {
		return err
	}
	e.publishAnswers(m, q)
	return nil
}

func (e *Engine) onTick(t timer.Tick) error {
	u, ok := e.timers.Deliver(t)
	if !ok {
		return nil
	}
	m, err := e.registry.Get(u.Key.Room)
	if err != nil {
		e.timers.StopRoom(u.Key.Room)
		return fmt.Errorf("tick for %s: %w", u.Key, err)
	}
	if !u.Key.IsTyping() {
		e.hub.ToRoom(m.AccessCode, Tick{Scope: TimerScopeRoom, Remaining: u.Remaining, Done: u.Done})
		return nil
	}
	p := e.participants[u.Key.Participant]
	if p == nil || p.room != m.AccessCode {
		return nil
	}
	e.hub.ToParticipant(p.connID, Tick{Scope: TimerScopeTyping, Remaining: u.Remaining, Done: u.Done})
	if !u.Done {
		return nil
	}
	return e.clearTyping(m, p.name)
}

func (e *Engine) cancelGame(connID, room string) error {
	if _, _, err := e.organizer(connID, room); err != nil {
		return err
	}
	return e.closeRoom(room, GameCancelled{Reason: "cancelled by the manager"})
}

func (e *Engine) finishMatch(connID, room string) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	if !m.Begun {
		return fmt.Errorf("finish match %s: %w", room, match.ErrInvalidState)
	}
	if !m.IsTestingMode && e.history != nil {
		e.history.Append(m.History(e.clock.Now()))
	}
	return e.closeRoom(room, MatchFinished{Ranking: m.Ranking()})
}

func (e *Engine) removePlayer(connID, room string, a RemovePlayer) error {
	p, m, err := e.member(connID, room)
	if err != nil {
		return err
	}
	name := a.Name
	switch {
	case p.isOrganizer():
	case a.HasPlayerLeft && (name == "" || name == p.name):
		name = p.name
	default:
		return fmt.Errorf("player %q cannot remove %q: %w", p.name, name, match.ErrUnauthorized)
	}
	e.evict(m, name, a.HasPlayerLeft)
	return nil
}

// evict removes name from the roster and bans it, unless the player left on
// their own. Evicting an absent player does nothing.
func (e *Engine) evict(m *match.Match, name string, hasPlayerLeft bool) {
	if m.Player(name) == nil {
		return
	}
	m.RemovePlayer(name)
	m.BanPlayerName(name)
	if hasPlayerLeft {
		m.UnbanPlayerName(name)
	}

	e.hub.ToRoom(m.AccessCode, PlayerRemoved{Name: name, HasPlayerLeft: hasPlayerLeft})
	if target := e.participantNamed(m.AccessCode, name); target != nil {
		e.detach(target)
	}
	e.hub.ToRoom(m.AccessCode, RosterChanged{Players: rosterOf(m)})
	if m.Begun {
		e.checkAllResponded(m)
	}
}

func (e *Engine) playerLeft(connID, room string, a PlayerLeft) error {
	p, m, err := e.member(connID, room)
	if err != nil {
		return err
	}
	name := p.name
	switch {
	case a.Name != "" && a.Name != p.name:
		if !p.isOrganizer() {
			return fmt.Errorf("player %q cannot disable %q: %w", p.name, a.Name, match.ErrUnauthorized)
		}
		name = a.Name
	case p.isOrganizer():
		return fmt.Errorf("%s has no roster entry in room %s: %w", p.role, room, match.ErrInvalidState)
	}
	return e.disable(m, name)
}

// disable keeps the player's score in the roster but takes them out of the
// question flow.
func (e *Engine) disable(m *match.Match, name string) error {
	if err := m.DisablePlayer(name); err != nil {
		return err
	}
	if target := e.participantNamed(m.AccessCode, name); target != nil {
		e.detach(target)
	}
	e.hub.ToRoom(m.AccessCode, RosterChanged{Players: rosterOf(m)})
	if m.Begun {
		e.checkAllResponded(m)
	}
	return nil
}

func (e *Engine) updateScore(connID, room string, a UpdateScore) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	res, err := m.ScoreQuestion(a.PlayerName, a.QuestionID, a.Factor)
	if err != nil {
		return err
	}
	e.hub.ToRoom(room, ScoreUpdated{
		QuestionID: a.QuestionID,
		Player:     res.Player,
		Delta:      res.Delta,
		Bonus:      res.Bonus,
	})
	return nil
}

func (e *Engine) changeChatAccessibility(connID, room string, a ChangeChatAccessibility) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	blocked, err := m.ToggleChat(a.Name)
	if err != nil {
		return err
	}
	e.hub.ToRoom(room, ChatAccessibilityChanged{Name: a.Name, Blocked: blocked})
	return nil
}

func (e *Engine) setFreeTextEvaluation(connID, room string, on bool) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	q, err := currentQuestion(m)
	if err != nil {
		return err
	}
	if match.IsQCM(q) {
		return fmt.Errorf("free-text evaluation of %q: question is multiple choice: %w", q.ID, match.ErrInvalidState)
	}
	if m.IsEvaluatingFreeText == on {
		return fmt.Errorf("free-text evaluation of %q already %v: %w", q.ID, on, match.ErrInvalidState)
	}
	m.IsEvaluatingFreeText = on
	if on {
		e.hub.ToRoom(room, FreeTextEvaluationBegun{QuestionID: q.ID})
	} else {
		e.hub.ToRoom(room, FreeTextEvaluationFinished{QuestionID: q.ID})
	}
	return nil
}

func (e *Engine) toggleRoomLock(connID, room string) error {
	_, m, err := e.organizer(connID, room)
	if err != nil {
		return err
	}
	if err := m.SetAccessible(!m.IsAccessible); err != nil {
		return err
	}
	e.hub.ToRoom(room, RoomLockChanged{IsAccessible: m.IsAccessible})
	return nil
}

// disconnect releases a closed socket. The manager leaving cancels the game;
// a player leaving is disabled once the match has begun and removed before.
func (e *Engine) disconnect(connID string) error {
	p := e.participants[connID]
	if p == nil {
		return nil
	}
	m, err := e.registry.Get(p.room)
	if err != nil {
		e.detach(p)
		return nil
	}
	if p.isOrganizer() {
		if m.ManagerID != connID {
			e.detach(p)
			return nil
		}
		return e.closeRoom(p.room, GameCancelled{Reason: "the manager left"})
	}
	if m.Begun {
		return e.disable(m, p.name)
	}
	e.evict(m, p.name, true)
	return nil
}
