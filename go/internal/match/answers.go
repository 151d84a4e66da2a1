package match

import (
	"fmt"
	"slices"

	"github.com/mcdev12/livequiz/go/internal/models"
)

type answerKey struct {
	player   string
	question string
}

// PlayerAnswer is the live answer of one player to one question.
type PlayerAnswer struct {
	PlayerName     string `json:"player_name"`
	QuestionID     string `json:"question_id"`
	Choices        []int  `json:"choices,omitempty"`
	FreeText       string `json:"free_text,omitempty"`
	LastAnswerTime int    `json:"last_answer_time"` // seconds left on the clock at submission
	IsFinal        bool   `json:"is_final"`
	IsTyping       bool   `json:"is_typing"`
}

// AnswerUpdate is a partial or final submission coming from a player.
type AnswerUpdate struct {
	PlayerName string
	QuestionID string
	Choices    []int
	FreeText   string
	IsFinal    bool
	IsTyping   bool
}

// Answer returns the answer of player to question, or nil.
func (m *Match) Answer(player, questionID string) *PlayerAnswer {
	for _, a := range m.Answers {
		if a.PlayerName == player && a.QuestionID == questionID {
			return a
		}
	}
	return nil
}

// RecordAnswer upserts the answer for (player, question). A final answer is
// frozen: later updates fail with ErrInvalidState.
func (m *Match) RecordAnswer(u AnswerUpdate, remaining int) (*PlayerAnswer, error) {
	p := m.Player(u.PlayerName)
	if p == nil {
		return nil, fmt.Errorf("record answer of %q: %w", u.PlayerName, ErrNotFound)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("record answer of disabled player %q: %w", u.PlayerName, ErrInvalidState)
	}
	q, err := m.Question(u.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("record answer of %q: %w", u.PlayerName, err)
	}
	for _, c := range u.Choices {
		if c < 0 || c >= len(q.Choices) {
			return nil, fmt.Errorf("record answer of %q: choice %d out of range: %w", u.PlayerName, c, ErrInvalidState)
		}
	}

	a := m.Answer(u.PlayerName, u.QuestionID)
	if a == nil {
		a = &PlayerAnswer{PlayerName: u.PlayerName, QuestionID: u.QuestionID}
		m.Answers = append(m.Answers, a)
	} else if a.IsFinal {
		return nil, fmt.Errorf("record answer of %q to %q: answer is final: %w", u.PlayerName, u.QuestionID, ErrInvalidState)
	}

	a.Choices = normalizeChoices(u.Choices)
	a.FreeText = u.FreeText
	a.IsTyping = u.IsTyping
	if u.IsFinal {
		a.IsFinal = true
		a.IsTyping = false
		a.LastAnswerTime = remaining
	}
	return a, nil
}

// FinalizeAnswer locks in the current draft of player for question. A player
// without a draft gets an empty final answer.
func (m *Match) FinalizeAnswer(player, questionID string, remaining int) (*PlayerAnswer, error) {
	a := m.Answer(player, questionID)
	if a != nil && a.IsFinal {
		return nil, fmt.Errorf("finalize answer of %q to %q: %w", player, questionID, ErrConflict)
	}
	u := AnswerUpdate{PlayerName: player, QuestionID: questionID, IsFinal: true}
	if a != nil {
		u.Choices = a.Choices
		u.FreeText = a.FreeText
	}
	return m.RecordAnswer(u, remaining)
}

// SetTyping updates the typing flag of a non-final answer, creating an empty draft if needed.
func (m *Match) SetTyping(player, questionID string, typing bool) (*PlayerAnswer, error) {
	a := m.Answer(player, questionID)
	if a == nil {
		return m.RecordAnswer(AnswerUpdate{PlayerName: player, QuestionID: questionID, IsTyping: typing}, 0)
	}
	if a.IsFinal {
		return a, nil
	}
	a.IsTyping = typing
	return a, nil
}

// QuestionAnswers returns every answer, draft or final, for questionID.
func (m *Match) QuestionAnswers(questionID string) []*PlayerAnswer {
	var out []*PlayerAnswer
	for _, a := range m.Answers {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out
}

// FinalAnswers returns the locked-in answers for questionID.
func (m *Match) FinalAnswers(questionID string) []*PlayerAnswer {
	var out []*PlayerAnswer
	for _, a := range m.Answers {
		if a.QuestionID == questionID && a.IsFinal {
			out = append(out, a)
		}
	}
	return out
}

// AllPlayersResponded reports whether every active player has a final answer
// for questionID. Answers of disabled or removed players are not counted.
func (m *Match) AllPlayersResponded(questionID string) bool {
	active := m.ActivePlayers()
	final := 0
	for _, a := range m.FinalAnswers(questionID) {
		if p := m.Player(a.PlayerName); p != nil && p.IsActive {
			final++
		}
	}
	return final == len(active)
}

// ChoiceHistogram counts, per choice, the active players currently selecting it.
func (m *Match) ChoiceHistogram(questionID string) ([]int, error) {
	q, err := m.Question(questionID)
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(q.Choices))
	for _, a := range m.QuestionAnswers(questionID) {
		if p := m.Player(a.PlayerName); p == nil || !p.IsActive {
			continue
		}
		for _, c := range a.Choices {
			counts[c]++
		}
	}
	return counts, nil
}

// TypingHistogram counts active players typing and not typing a free-text answer.
func (m *Match) TypingHistogram(questionID string) (typing, idle int) {
	for _, p := range m.ActivePlayers() {
		if a := m.Answer(p.Name, questionID); a != nil && a.IsTyping {
			typing++
		} else {
			idle++
		}
	}
	return typing, idle
}

// IsQCM reports whether q is auto-graded.
func IsQCM(q models.Question) bool {
	return q.Type == models.QuestionTypeQCM
}

func normalizeChoices(choices []int) []int {
	if len(choices) == 0 {
		return nil
	}
	out := slices.Clone(choices)
	slices.Sort(out)
	return slices.Compact(out)
}
