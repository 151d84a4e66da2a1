package gateway

import (
	"time"

	"github.com/mcdev12/livequiz/go/internal/match"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// QuestionView is a question as shown to participants, without the answer key.
type QuestionView struct {
	ID       string              `json:"id"`
	Type     models.QuestionType `json:"type"`
	Text     string              `json:"text"`
	Points   int                 `json:"points"`
	Choices  []string            `json:"choices,omitempty"`
	Duration int                 `json:"duration"`
}

func newQuestionView(q models.Question, duration int) QuestionView {
	v := QuestionView{ID: q.ID, Type: q.Type, Text: q.Text, Points: q.Points, Duration: duration}
	for _, c := range q.Choices {
		v.Choices = append(v.Choices, c.Text)
	}
	return v
}

// Snapshot is the state handed to a participant who joins a begun match and
// returned by the GetMatch RPC.
type Snapshot struct {
	AccessCode           string         `json:"access_code"`
	GameID               string         `json:"game_id"`
	GameTitle            string         `json:"game_title"`
	IsAccessible         bool           `json:"is_accessible"`
	IsTestingMode        bool           `json:"is_testing_mode"`
	Begun                bool           `json:"begun"`
	BeginDate            *time.Time     `json:"begin_date,omitempty"`
	PanicMode            bool           `json:"panic_mode"`
	IsEvaluatingFreeText bool           `json:"is_evaluating_free_text"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	TotalQuestions       int            `json:"total_questions"`
	CurrentQuestion      *QuestionView  `json:"current_question,omitempty"`
	Remaining            *int           `json:"remaining,omitempty"`
	Players              []match.Player `json:"players"`
}

func newSnapshot(m *match.Match, remaining int, running bool) Snapshot {
	s := Snapshot{
		AccessCode:           m.AccessCode,
		GameID:               m.Game.ID,
		GameTitle:            m.Game.Title,
		IsAccessible:         m.IsAccessible,
		IsTestingMode:        m.IsTestingMode,
		Begun:                m.Begun,
		PanicMode:            m.PanicMode,
		IsEvaluatingFreeText: m.IsEvaluatingFreeText,
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		TotalQuestions:       len(m.Game.Questions),
		Players:              rosterOf(m),
	}
	if m.Begun {
		begin := m.BeginDate
		s.BeginDate = &begin
		if q, err := m.CurrentQuestion(); err == nil {
			v := newQuestionView(q, m.Game.QuestionDuration(m.CurrentQuestionIndex))
			s.CurrentQuestion = &v
		}
	}
	if running {
		s.Remaining = &remaining
	}
	return s
}

func rosterOf(m *match.Match) []match.Player {
	out := make([]match.Player, 0, len(m.Players))
	for _, p := range m.Players {
		out = append(out, *p)
	}
	return out
}

func answersOf(m *match.Match, questionID string) []match.PlayerAnswer {
	answers := m.QuestionAnswers(questionID)
	out := make([]match.PlayerAnswer, 0, len(answers))
	for _, a := range answers {
		out = append(out, *a)
	}
	return out
}
