package models

import (
	"time"

	"github.com/google/uuid"
)

// RankingEntry is one line of a finished match's final standings.
type RankingEntry struct {
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	BonusCount int     `json:"bonus_count"`
}

// MatchHistory is the record appended when a match finishes.
type MatchHistory struct {
	ID          uuid.UUID      `json:"id"`
	AccessCode  string         `json:"access_code"`
	GameID      string         `json:"game_id"`
	GameTitle   string         `json:"game_title"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	PlayerCount int            `json:"player_count"`
	BestScore   float64        `json:"best_score"`
	Ranking     []RankingEntry `json:"ranking,omitempty"`
}
