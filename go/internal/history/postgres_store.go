package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/livequiz/go/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// DBTX is the part of *sql.DB the store uses.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertMatchHistory = `
INSERT INTO match_history (
  id, access_code, game_id, game_title, started_at, finished_at,
  player_count, best_score, ranking
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8, $9
)`

// PostgresStore appends history rows. The ranking is stored as JSONB.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a new history store
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return "postgres" }

// Save inserts h. Writing the same record twice is not an error.
func (s *PostgresStore) Save(ctx context.Context, h models.MatchHistory) error {
	ranking := pqtype.NullRawMessage{}
	if len(h.Ranking) > 0 {
		raw, err := json.Marshal(h.Ranking)
		if err != nil {
			return fmt.Errorf("failed to encode ranking: %w", err)
		}
		ranking = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, insertMatchHistory,
		h.ID, h.AccessCode, h.GameID, h.GameTitle, h.StartedAt, h.FinishedAt,
		h.PlayerCount, h.BestScore, ranking,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert match history: %w", err)
	}
	return nil
}
