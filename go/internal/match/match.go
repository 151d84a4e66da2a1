package match

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mcdev12/livequiz/go/internal/models"
)

// Reserved participant names. They never enter the scored roster.
const (
	ManagerName = "manager"
	TesterName  = "tester"
)

// Player is a scored participant of a match.
type Player struct {
	Name        string  `json:"name"`
	IsActive    bool    `json:"is_active"`
	Score       float64 `json:"score"`
	BonusCount  int     `json:"bonus_count"`
	ChatBlocked bool    `json:"chat_blocked"`
}

// NewPlayer returns an active player with a zero score.
func NewPlayer(name string) *Player {
	return &Player{Name: name, IsActive: true}
}

// Match is the authoritative state of one live session.
//
// A Match is not safe for concurrent use. The gateway engine owns every match
// and mutates it from its single dispatch goroutine.
type Match struct {
	AccessCode           string
	Game                 models.Game
	Players              []*Player
	Answers              []*PlayerAnswer
	BannedNames          map[string]struct{}
	IsAccessible         bool
	PanicMode            bool
	IsTestingMode        bool
	IsEvaluatingFreeText bool
	CurrentQuestionIndex int
	Begun                bool
	BeginDate            time.Time
	ManagerID            string

	scored map[answerKey]struct{}
}

// New creates a match for the given game snapshot. The game is deep-copied.
func New(accessCode string, game models.Game, testing bool) *Match {
	return &Match{
		AccessCode:    accessCode,
		Game:          game.Clone(),
		BannedNames:   map[string]struct{}{ManagerName: {}, TesterName: {}},
		IsAccessible:  !testing,
		IsTestingMode: testing,
		scored:        make(map[answerKey]struct{}),
	}
}

// IsReservedName reports whether name belongs to a privileged role.
func IsReservedName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == ManagerName || n == TesterName
}

// Player returns the roster entry for name, or nil.
func (m *Match) Player(name string) *Player {
	for _, p := range m.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// ActivePlayers returns the players still taking part in the match.
func (m *Match) ActivePlayers() []*Player {
	var active []*Player
	for _, p := range m.Players {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// IsBanned reports whether name may not join this match.
func (m *Match) IsBanned(name string) bool {
	_, ok := m.BannedNames[name]
	return ok
}

// IsPlayerNameValid reports whether a new player may join under name. A name
// still in the roster is taken, even when its player is disabled.
func (m *Match) IsPlayerNameValid(name string) bool {
	if strings.TrimSpace(name) == "" || IsReservedName(name) || m.IsBanned(name) {
		return false
	}
	return m.Player(name) == nil
}

// AddPlayer appends p to the roster. Empty, banned, reserved or duplicate
// names are rejected with ErrConflict, including names of disabled players
// since their score history stays in the roster.
func (m *Match) AddPlayer(p *Player) error {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("add player: empty name: %w", ErrConflict)
	}
	if IsReservedName(p.Name) || m.IsBanned(p.Name) {
		return fmt.Errorf("add player %q: name is banned: %w", p.Name, ErrConflict)
	}
	if m.Player(p.Name) != nil {
		return fmt.Errorf("add player %q: name already taken: %w", p.Name, ErrConflict)
	}
	m.Players = append(m.Players, p)
	return nil
}

// RemovePlayer drops name from the roster. Removing an absent player is a no-op.
func (m *Match) RemovePlayer(name string) {
	for i, p := range m.Players {
		if p.Name == name {
			m.Players = append(m.Players[:i], m.Players[i+1:]...)
			return
		}
	}
}

// DisablePlayer marks name inactive while keeping its score and answers.
func (m *Match) DisablePlayer(name string) error {
	p := m.Player(name)
	if p == nil {
		return fmt.Errorf("disable player %q: %w", name, ErrNotFound)
	}
	p.IsActive = false
	return nil
}

// BanPlayerName prevents name from joining again.
func (m *Match) BanPlayerName(name string) {
	m.BannedNames[name] = struct{}{}
}

// UnbanPlayerName lifts a ban. The reserved names stay banned.
func (m *Match) UnbanPlayerName(name string) {
	if IsReservedName(name) {
		return
	}
	delete(m.BannedNames, name)
}

// ToggleChat flips the chat block of a player and returns the new value.
func (m *Match) ToggleChat(name string) (bool, error) {
	p := m.Player(name)
	if p == nil {
		return false, fmt.Errorf("toggle chat %q: %w", name, ErrNotFound)
	}
	p.ChatBlocked = !p.ChatBlocked
	return p.ChatBlocked, nil
}

// SetAccessible locks or unlocks the lobby. A begun or testing match stays locked.
func (m *Match) SetAccessible(open bool) error {
	if open && (m.Begun || m.IsTestingMode) {
		return fmt.Errorf("unlock match %s: %w", m.AccessCode, ErrInvalidState)
	}
	m.IsAccessible = open
	return nil
}

// CanChat reports whether author may post to the room chat.
func (m *Match) CanChat(author string) bool {
	if IsReservedName(author) {
		return true
	}
	p := m.Player(author)
	return p != nil && p.IsActive && !p.ChatBlocked
}

// CurrentQuestion returns the question being played.
func (m *Match) CurrentQuestion() (models.Question, error) {
	if m.CurrentQuestionIndex < 0 || m.CurrentQuestionIndex >= len(m.Game.Questions) {
		return models.Question{}, fmt.Errorf("question %d: %w", m.CurrentQuestionIndex, ErrNotFound)
	}
	return m.Game.Questions[m.CurrentQuestionIndex], nil
}

// Question returns the question with the given id.
func (m *Match) Question(id string) (models.Question, error) {
	for _, q := range m.Game.Questions {
		if q.ID == id {
			return q, nil
		}
	}
	return models.Question{}, fmt.Errorf("question %q: %w", id, ErrNotFound)
}

// Begin marks the match as started.
func (m *Match) Begin(now time.Time) error {
	if m.Begun {
		return fmt.Errorf("begin match %s: %w", m.AccessCode, ErrInvalidState)
	}
	if len(m.Game.Questions) == 0 {
		return fmt.Errorf("begin match %s: game has no questions: %w", m.AccessCode, ErrInvalidState)
	}
	m.Begun = true
	m.BeginDate = now
	m.IsAccessible = false
	m.CurrentQuestionIndex = 0
	return nil
}

// NextQuestion advances to the following question and disarms panic mode.
func (m *Match) NextQuestion() (models.Question, error) {
	if m.CurrentQuestionIndex+1 >= len(m.Game.Questions) {
		return models.Question{}, fmt.Errorf("next question after %d: %w", m.CurrentQuestionIndex, ErrInvalidState)
	}
	m.CurrentQuestionIndex++
	m.PanicMode = false
	m.IsEvaluatingFreeText = false
	return m.Game.Questions[m.CurrentQuestionIndex], nil
}

// ArmPanicMode turns panic mode on. It cannot be turned off until the next question.
func (m *Match) ArmPanicMode() error {
	if m.PanicMode {
		return fmt.Errorf("panic mode already armed: %w", ErrInvalidState)
	}
	m.PanicMode = true
	return nil
}

// Ranking returns the players ordered by score, bonus count and name.
func (m *Match) Ranking() []Player {
	out := make([]Player, 0, len(m.Players))
	for _, p := range m.Players {
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].BonusCount != out[j].BonusCount {
			return out[i].BonusCount > out[j].BonusCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// History builds the record appended when the match finishes.
func (m *Match) History(finishedAt time.Time) models.MatchHistory {
	ranking := m.Ranking()
	h := models.MatchHistory{
		AccessCode:  m.AccessCode,
		GameID:      m.Game.ID,
		GameTitle:   m.Game.Title,
		StartedAt:   m.BeginDate,
		FinishedAt:  finishedAt,
		PlayerCount: len(m.Players),
	}
	for i, p := range ranking {
		if i == 0 {
			h.BestScore = p.Score
		}
		h.Ranking = append(h.Ranking, models.RankingEntry{Name: p.Name, Score: p.Score, BonusCount: p.BonusCount})
	}
	return h
}
