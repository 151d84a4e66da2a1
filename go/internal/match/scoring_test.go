package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitFinal(t *testing.T, m *Match, player, question string, choices []int, remaining int) {
	t.Helper()
	_, err := m.RecordAnswer(AnswerUpdate{PlayerName: player, QuestionID: question, Choices: choices, IsFinal: true}, remaining)
	require.NoError(t, err)
}

func TestGradeChoices(t *testing.T) {
	q := testGame().Questions[2] // correct: 0 and 2

	assert.True(t, GradeChoices(q, []int{0, 2}))
	assert.True(t, GradeChoices(q, []int{2, 0}))
	assert.False(t, GradeChoices(q, []int{0}), "subset is not enough")
	assert.False(t, GradeChoices(q, []int{0, 1, 2}), "superset is wrong")
	assert.False(t, GradeChoices(q, nil))
}

func TestApplyScore(t *testing.T) {
	p := NewPlayer("alice")

	assert.Equal(t, 10.0, ApplyScore(p, 20, 0.5))
	assert.Equal(t, 20.0, ApplyScore(p, 20, 1))
	assert.Equal(t, 0.0, ApplyScore(p, 20, 0))
	assert.Equal(t, 30.0, p.Score)
}

// Scenario A: the sole fastest correct responder gets the bonus.
func TestScoreQuestion_SoleFastestGetsBonus(t *testing.T) {
	m := newTestMatch(t, "x", "y")
	submitFinal(t, m, "x", "q1", []int{0}, 45)
	submitFinal(t, m, "y", "q1", []int{0}, 30)

	rx, err := m.ScoreQuestion("x", "q1", 0)
	require.NoError(t, err)
	ry, err := m.ScoreQuestion("y", "q1", 0)
	require.NoError(t, err)

	assert.InDelta(t, 12.0, rx.Delta, 1e-9)
	assert.True(t, rx.Bonus)
	assert.InDelta(t, 12.0, m.Player("x").Score, 1e-9)
	assert.Equal(t, 1, m.Player("x").BonusCount)

	assert.InDelta(t, 10.0, ry.Delta, 1e-9)
	assert.False(t, ry.Bonus)
	assert.Equal(t, 0, m.Player("y").BonusCount)
}

// Scenario B: a tie for the fastest time awards no bonus at all.
func TestScoreQuestion_TieAwardsNothing(t *testing.T) {
	m := newTestMatch(t, "x", "y")
	submitFinal(t, m, "x", "q1", []int{0}, 30)
	submitFinal(t, m, "y", "q1", []int{0}, 30)

	for _, name := range []string{"x", "y"} {
		r, err := m.ScoreQuestion(name, "q1", 0)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, r.Delta, 1e-9)
		assert.False(t, r.Bonus)
		assert.Equal(t, 0, m.Player(name).BonusCount)
	}
}

func TestScoreQuestion_TieWithWrongAnswerStillBlocksBonus(t *testing.T) {
	m := newTestMatch(t, "x", "y")
	submitFinal(t, m, "x", "q1", []int{0}, 30)
	submitFinal(t, m, "y", "q1", []int{1}, 30)

	r, err := m.ScoreQuestion("x", "q1", 0)
	require.NoError(t, err)
	assert.False(t, r.Bonus)
	assert.InDelta(t, 10.0, m.Player("x").Score, 1e-9)
}

func TestScoreQuestion_FastestButWrongGetsNothing(t *testing.T) {
	m := newTestMatch(t, "x", "y")
	submitFinal(t, m, "x", "q1", []int{2}, 50)
	submitFinal(t, m, "y", "q1", []int{0}, 20)

	rx, err := m.ScoreQuestion("x", "q1", 1)
	require.NoError(t, err)
	assert.Zero(t, rx.Delta, "manager factor is ignored for QCM")
	assert.False(t, rx.Bonus)
	assert.Equal(t, 0, m.Player("x").BonusCount)

	ry, err := m.ScoreQuestion("y", "q1", 0)
	require.NoError(t, err)
	assert.False(t, ry.Bonus, "y is not the fastest")
	assert.InDelta(t, 10.0, ry.Delta, 1e-9)
}

func TestScoreQuestion_OutOfOrder(t *testing.T) {
	m := newTestMatch(t, "x", "y")
	submitFinal(t, m, "x", "q1", []int{0}, 45)
	submitFinal(t, m, "y", "q1", []int{0}, 30)

	ry, err := m.ScoreQuestion("y", "q1", 0)
	require.NoError(t, err)
	rx, err := m.ScoreQuestion("x", "q1", 0)
	require.NoError(t, err)

	assert.False(t, ry.Bonus)
	assert.True(t, rx.Bonus)
}

func TestScoreQuestion_NoAnswer(t *testing.T) {
	m := newTestMatch(t, "x")

	r, err := m.ScoreQuestion("x", "q1", 0)
	require.NoError(t, err)
	assert.Zero(t, r.Delta)
	assert.False(t, r.Bonus)
}

func TestScoreQuestion_FreeText(t *testing.T) {
	m := newTestMatch(t, "x", "y", "z")
	submitFinal(t, m, "x", "q2", nil, 50)

	rx, err := m.ScoreQuestion("x", "q2", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, rx.Delta, 1e-9)
	assert.False(t, rx.Bonus, "free-text answers never earn the bonus")

	ry, err := m.ScoreQuestion("y", "q2", 1)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, ry.Delta, 1e-9)

	_, err = m.ScoreQuestion("z", "q2", 0.7)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, m.Player("z").Score)
}

func TestScoreQuestion_Errors(t *testing.T) {
	m := newTestMatch(t, "x")
	submitFinal(t, m, "x", "q1", []int{0}, 10)

	_, err := m.ScoreQuestion("nobody", "q1", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ScoreQuestion("x", "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ScoreQuestion("x", "q1", 0)
	require.NoError(t, err)
	_, err = m.ScoreQuestion("x", "q1", 0)
	assert.ErrorIs(t, err, ErrConflict)
	assert.InDelta(t, 12.0, m.Player("x").Score, 1e-9)
}
