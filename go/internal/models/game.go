package models

// QuestionType defines how a question is answered and graded.
type QuestionType string

const (
	// QuestionTypeQCM is a single or multiple choice question, graded automatically.
	QuestionTypeQCM QuestionType = "QCM"
	// QuestionTypeQRL is a free-text question, graded by the manager.
	QuestionTypeQRL QuestionType = "QRL"
)

// DefaultFreeTextDuration is the answer period, in seconds, of a QRL question
// that does not carry its own duration.
const DefaultFreeTextDuration = 60

// Choice is one option of a QCM question.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is a single question of a game.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Points   int          `json:"points"`
	Choices  []Choice     `json:"choices,omitempty"`
	Duration int          `json:"duration,omitempty"` // seconds, 0 means game default
}

// Game is the question set a match is played with.
type Game struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Duration    int        `json:"duration"` // seconds per QCM question
	Questions   []Question `json:"questions"`
}

// CorrectChoices returns the indexes of the choices flagged correct.
func (q Question) CorrectChoices() []int {
	var idx []int
	for i, c := range q.Choices {
		if c.IsCorrect {
			idx = append(idx, i)
		}
	}
	return idx
}

// QuestionDuration returns the allotted time for the question at index i.
func (g Game) QuestionDuration(i int) int {
	if i < 0 || i >= len(g.Questions) {
		return 0
	}
	q := g.Questions[i]
	if q.Duration > 0 {
		return q.Duration
	}
	if q.Type == QuestionTypeQRL {
		return DefaultFreeTextDuration
	}
	return g.Duration
}

// Clone returns a deep copy so a running match never shares slices with the catalog.
func (g Game) Clone() Game {
	out := g
	out.Questions = make([]Question, len(g.Questions))
	for i, q := range g.Questions {
		q.Choices = append([]Choice(nil), q.Choices...)
		out.Questions[i] = q
	}
	return out
}
