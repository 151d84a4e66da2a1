package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mcdev12/livequiz/go/internal/models"
)

// ErrGameNotFound is returned when no game has the requested id.
var ErrGameNotFound = errors.New("game not found")

// Querier defines what the repository needs from the database layer.
// *pgxpool.Pool satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const getGameByID = `
SELECT id, title, description, duration, questions
FROM games
WHERE id = $1`

const upsertGame = `
INSERT INTO games (id, title, description, duration, questions)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title,
    description = EXCLUDED.description,
    duration = EXCLUDED.duration,
    questions = EXCLUDED.questions`

// Repository reads game definitions. Questions are stored as a JSONB array.
type Repository struct {
	queries Querier
}

// NewRepository creates a new catalog repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// GetGameByID retrieves a game and its questions
func (r *Repository) GetGameByID(ctx context.Context, id string) (*models.Game, error) {
	var (
		game      models.Game
		questions []byte
	)
	err := r.queries.QueryRow(ctx, getGameByID, id).
		Scan(&game.ID, &game.Title, &game.Description, &game.Duration, &questions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get game %s: %w", id, ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &game.Questions); err != nil {
			return nil, fmt.Errorf("failed to decode questions of game %s: %w", id, err)
		}
	}
	if err := Validate(game); err != nil {
		return nil, err
	}
	return &game, nil
}

// UpsertGame inserts a game or replaces the stored one, and reports whether
// a row was written.
func (r *Repository) UpsertGame(ctx context.Context, game models.Game) (bool, error) {
	if err := Validate(game); err != nil {
		return false, err
	}
	questions, err := json.Marshal(game.Questions)
	if err != nil {
		return false, fmt.Errorf("failed to encode questions of game %s: %w", game.ID, err)
	}
	tag, err := r.queries.Exec(ctx, upsertGame, game.ID, game.Title, game.Description, game.Duration, questions)
	if err != nil {
		return false, fmt.Errorf("failed to upsert game %s: %w", game.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Validate checks that a game can be played.
func Validate(game models.Game) error {
	if game.ID == "" {
		return errors.New("game id is required")
	}
	for i, q := range game.Questions {
		switch q.Type {
		case models.QuestionTypeQCM:
			if len(q.Choices) < 2 {
				return fmt.Errorf("game %s question %d: multiple choice needs at least 2 choices", game.ID, i)
			}
			if len(q.CorrectChoices()) == 0 {
				return fmt.Errorf("game %s question %d: no correct choice", game.ID, i)
			}
		case models.QuestionTypeQRL:
		default:
			return fmt.Errorf("game %s question %d: unknown type %q", game.ID, i, q.Type)
		}
		if q.ID == "" {
			return fmt.Errorf("game %s question %d: id is required", game.ID, i)
		}
		if q.Points <= 0 {
			return fmt.Errorf("game %s question %s: points must be positive", game.ID, q.ID)
		}
	}
	return nil
}
