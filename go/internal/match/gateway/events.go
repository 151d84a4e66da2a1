package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/livequiz/go/internal/match"
)

// EventType names an outbound event on the wire.
type EventType string

const (
	EventTypeRosterChanged              EventType = "roster-changed"
	EventTypeChatMessage                EventType = "chat-message"
	EventTypeNextQuestion               EventType = "next-question"
	EventTypeChartDataUpdated           EventType = "chart-data-updated"
	EventTypePanicModeActivated         EventType = "panic-mode-activated"
	EventTypeAnswersUpdated             EventType = "answers-updated"
	EventTypeTick                       EventType = "tick"
	EventTypeGameCancelled              EventType = "game-cancelled"
	EventTypeMatchFinished              EventType = "match-finished"
	EventTypeJoinBegunMatch             EventType = "join-begun-match"
	EventTypePlayerRemoved              EventType = "player-removed"
	EventTypeScoreUpdated               EventType = "score-updated"
	EventTypeFinalAnswerSet             EventType = "final-answer-set"
	EventTypeAllPlayersResponded        EventType = "all-players-responded"
	EventTypeChatAccessibilityChanged   EventType = "chat-accessibility-changed"
	EventTypeFreeTextEvaluationBegun    EventType = "free-text-evaluation-begun"
	EventTypeFreeTextEvaluationFinished EventType = "free-text-evaluation-finished"
	EventTypeRoomLockChanged            EventType = "room-lock-changed"
)

// Event is an outbound message. Only types of this package implement it.
type Event interface {
	Type() EventType
	sealed()
}

type RosterChanged struct {
	Players []match.Player `json:"players"`
}

type ChatMessage struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type NextQuestion struct {
	Index    int          `json:"index"`
	Total    int          `json:"total"`
	Question QuestionView `json:"question"`
	Duration int          `json:"duration"`
}

// ChartDataUpdated carries the live histogram of the current question:
// per-choice counts for QCM, typing/idle counts for QRL.
type ChartDataUpdated struct {
	QuestionID   string `json:"question_id"`
	ChoiceCounts []int  `json:"choice_counts,omitempty"`
	Typing       int    `json:"typing"`
	Idle         int    `json:"idle"`
}

type PanicModeActivated struct {
	Remaining int `json:"remaining"`
}

type AnswersUpdated struct {
	QuestionID string               `json:"question_id"`
	Answers    []match.PlayerAnswer `json:"answers"`
}

type Tick struct {
	Scope     TimerScope `json:"scope"`
	Remaining int        `json:"remaining"`
	Done      bool       `json:"done"`
}

type GameCancelled struct {
	Reason string `json:"reason"`
}

type MatchFinished struct {
	Ranking []match.Player `json:"ranking"`
}

type JoinBegunMatch struct {
	Match Snapshot `json:"match"`
}

type PlayerRemoved struct {
	Name          string `json:"name"`
	HasPlayerLeft bool   `json:"has_player_left"`
}

type ScoreUpdated struct {
	QuestionID string       `json:"question_id"`
	Player     match.Player `json:"player"`
	Delta      float64      `json:"delta"`
	Bonus      bool         `json:"bonus"`
}

type FinalAnswerSet struct {
	PlayerName string `json:"player_name"`
	QuestionID string `json:"question_id"`
}

// AllPlayersResponded closes a question. CorrectChoices is set for QCM only.
type AllPlayersResponded struct {
	QuestionID     string `json:"question_id"`
	CorrectChoices []int  `json:"correct_choices,omitempty"`
}

type ChatAccessibilityChanged struct {
	Name    string `json:"name"`
	Blocked bool   `json:"blocked"`
}

type FreeTextEvaluationBegun struct {
	QuestionID string `json:"question_id"`
}

type FreeTextEvaluationFinished struct {
	QuestionID string `json:"question_id"`
}

type RoomLockChanged struct {
	IsAccessible bool `json:"is_accessible"`
}

func (RosterChanged) Type() EventType              { return EventTypeRosterChanged }
func (ChatMessage) Type() EventType                { return EventTypeChatMessage }
func (NextQuestion) Type() EventType               { return EventTypeNextQuestion }
func (ChartDataUpdated) Type() EventType           { return EventTypeChartDataUpdated }
func (PanicModeActivated) Type() EventType         { return EventTypePanicModeActivated }
func (AnswersUpdated) Type() EventType             { return EventTypeAnswersUpdated }
func (Tick) Type() EventType                       { return EventTypeTick }
func (GameCancelled) Type() EventType              { return EventTypeGameCancelled }
func (MatchFinished) Type() EventType              { return EventTypeMatchFinished }
func (JoinBegunMatch) Type() EventType             { return EventTypeJoinBegunMatch }
func (PlayerRemoved) Type() EventType              { return EventTypePlayerRemoved }
func (ScoreUpdated) Type() EventType               { return EventTypeScoreUpdated }
func (FinalAnswerSet) Type() EventType             { return EventTypeFinalAnswerSet }
func (AllPlayersResponded) Type() EventType        { return EventTypeAllPlayersResponded }
func (ChatAccessibilityChanged) Type() EventType   { return EventTypeChatAccessibilityChanged }
func (FreeTextEvaluationBegun) Type() EventType    { return EventTypeFreeTextEvaluationBegun }
func (FreeTextEvaluationFinished) Type() EventType { return EventTypeFreeTextEvaluationFinished }
func (RoomLockChanged) Type() EventType            { return EventTypeRoomLockChanged }

func (RosterChanged) sealed()              {}
func (ChatMessage) sealed()                {}
func (NextQuestion) sealed()               {}
func (ChartDataUpdated) sealed()           {}
func (PanicModeActivated) sealed()         {}
func (AnswersUpdated) sealed()             {}
func (Tick) sealed()                       {}
func (GameCancelled) sealed()              {}
func (MatchFinished) sealed()              {}
func (JoinBegunMatch) sealed()             {}
func (PlayerRemoved) sealed()              {}
func (ScoreUpdated) sealed()               {}
func (FinalAnswerSet) sealed()             {}
func (AllPlayersResponded) sealed()        {}
func (ChatAccessibilityChanged) sealed()   {}
func (FreeTextEvaluationBegun) sealed()    {}
func (FreeTextEvaluationFinished) sealed() {}
func (RoomLockChanged) sealed()            {}

// EncodeEvent frames event for room.
func EncodeEvent(room string, event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.Type(), err)
	}
	frame, err := json.Marshal(Envelope{Type: string(event.Type()), Room: room, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event.Type(), err)
	}
	return frame, nil
}
