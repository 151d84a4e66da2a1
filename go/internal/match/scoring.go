package match

import (
	"fmt"
	"slices"

	"github.com/mcdev12/livequiz/go/internal/models"
)

// BonusFactor multiplies the question score of the sole fastest responder.
const BonusFactor = 1.2

// Grade factors the manager may assign to a free-text answer.
var freeTextFactors = []float64{0, 0.5, 1}

// GradeChoices reports whether choices is exactly the set of correct choices of q.
func GradeChoices(q models.Question, choices []int) bool {
	correct := q.CorrectChoices()
	got := normalizeChoices(choices)
	return len(correct) > 0 && slices.Equal(correct, got)
}

// ApplyScore adds points*factor to the player's score and returns the delta.
func ApplyScore(p *Player, points int, factor float64) float64 {
	delta := float64(points) * factor
	p.Score += delta
	return delta
}

// IsFreeTextFactor reports whether factor is a valid manual grade.
func IsFreeTextFactor(factor float64) bool {
	return slices.Contains(freeTextFactors, factor)
}

// ScoreResult describes one scoring call.
type ScoreResult struct {
	Player Player  `json:"player"`
	Delta  float64 `json:"delta"`
	Bonus  bool    `json:"bonus"`
}

// ScoreQuestion scores player for questionID. QCM answers are graded from the
// player's final answer and the manager factor is ignored; QRL answers use the
// manager factor. A (player, question) pair is scored at most once.
func (m *Match) ScoreQuestion(player, questionID string, factor float64) (ScoreResult, error) {
	p := m.Player(player)
	if p == nil {
		return ScoreResult{}, fmt.Errorf("score %q: %w", player, ErrNotFound)
	}
	q, err := m.Question(questionID)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("score %q: %w", player, err)
	}
	key := answerKey{player: player, question: questionID}
	if _, done := m.scored[key]; done {
		return ScoreResult{}, fmt.Errorf("score %q on %q: already scored: %w", player, questionID, ErrConflict)
	}

	answer := m.Answer(player, questionID)
	if IsQCM(q) {
		factor = 0
		if answer != nil && answer.IsFinal && GradeChoices(q, answer.Choices) {
			factor = 1
		}
	} else if !IsFreeTextFactor(factor) {
		return ScoreResult{}, fmt.Errorf("score %q: grade factor %v: %w", player, factor, ErrInvalidState)
	}

	bonus := IsQCM(q) && float64(q.Points)*factor > 0 && m.isSoleFastest(player, questionID)
	if bonus {
		factor *= BonusFactor
	}
	delta := ApplyScore(p, q.Points, factor)
	if bonus {
		p.BonusCount++
	}
	m.scored[key] = struct{}{}
	return ScoreResult{Player: *p, Delta: delta, Bonus: bonus}, nil
}

// isSoleFastest reports whether player alone holds the most remaining time
// among the final answers to questionID. Any tie awards nothing.
func (m *Match) isSoleFastest(player, questionID string) bool {
	final := m.FinalAnswers(questionID)
	if len(final) == 0 {
		return false
	}
	earliest := final[0].LastAnswerTime
	for _, a := range final[1:] {
		earliest = max(earliest, a.LastAnswerTime)
	}
	var holders []string
	for _, a := range final {
		if a.LastAnswerTime == earliest {
			holders = append(holders, a.PlayerName)
		}
	}
	return len(holders) == 1 && holders[0] == player
}
