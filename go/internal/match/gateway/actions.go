package gateway

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame exchanged with clients in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Room string          `json:"room,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ActionType names an inbound participant action on the wire.
type ActionType string

const (
	ActionJoinRoom                 ActionType = "join-room"
	ActionSendChatMessage          ActionType = "send-chat-message"
	ActionSwitchQuestion           ActionType = "switch-question"
	ActionActivatePanicMode        ActionType = "activate-panic-mode"
	ActionSubmitAnswer             ActionType = "submit-answer"
	ActionStartRoomTimer           ActionType = "start-room-timer"
	ActionStartTypingTimer         ActionType = "start-typing-timer"
	ActionStopTimer                ActionType = "stop-timer"
	ActionCancelGame               ActionType = "cancel-game"
	ActionFinishMatch              ActionType = "finish-match"
	ActionBeginMatch               ActionType = "begin-match"
	ActionRemovePlayer             ActionType = "remove-player"
	ActionUpdateScore              ActionType = "update-score"
	ActionSetFinalAnswer           ActionType = "set-final-answer"
	ActionPlayerLeft               ActionType = "player-left"
	ActionChangeChatAccessibility  ActionType = "change-chat-accessibility"
	ActionBeginFreeTextEvaluation  ActionType = "begin-free-text-evaluation"
	ActionFinishFreeTextEvaluation ActionType = "finish-free-text-evaluation"
	ActionToggleRoomLock           ActionType = "toggle-room-lock"
	ActionDisconnected             ActionType = "disconnected"
)

// Action is an inbound participant action. The set of implementations is
// closed: only types of this package satisfy it.
type Action interface {
	actionType() ActionType
}

// TimerScope selects the countdown family a stop-timer action applies to.
type TimerScope string

const (
	TimerScopeRoom   TimerScope = "room"
	TimerScopeTyping TimerScope = "typing"
)

type JoinRoom struct {
	Name string `json:"name"`
}

type SendChatMessage struct {
	Text string `json:"text"`
}

type SwitchQuestion struct{}

type ActivatePanicMode struct{}

type SubmitAnswer struct {
	QuestionID string `json:"question_id"`
	Choices    []int  `json:"choices,omitempty"`
	FreeText   string `json:"free_text,omitempty"`
	IsFinal    bool   `json:"is_final"`
}

// StartRoomTimer starts the room countdown. A nil Count uses the allotted
// time of the current question.
type StartRoomTimer struct {
	Count *int `json:"count,omitempty"`
}

type StartTypingTimer struct{}

type StopTimer struct {
	Scope TimerScope `json:"scope"`
}

type CancelGame struct{}

type FinishMatch struct{}

type BeginMatch struct{}

type RemovePlayer struct {
	Name          string `json:"name"`
	HasPlayerLeft bool   `json:"has_player_left"`
}

type UpdateScore struct {
	PlayerName string  `json:"player_name"`
	QuestionID string  `json:"question_id"`
	Factor     float64 `json:"factor"`
}

type SetFinalAnswer struct {
	QuestionID string `json:"question_id"`
}

// PlayerLeft disables a player after the match has begun. An empty Name
// means the sender.
type PlayerLeft struct {
	Name string `json:"name,omitempty"`
}

type ChangeChatAccessibility struct {
	Name string `json:"name"`
}

type BeginFreeTextEvaluation struct{}

type FinishFreeTextEvaluation struct{}

type ToggleRoomLock struct{}

// Disconnected is raised by the connection manager when a socket closes.
// It never comes from the wire.
type Disconnected struct{}

func (JoinRoom) actionType() ActionType                 { return ActionJoinRoom }
func (SendChatMessage) actionType() ActionType          { return ActionSendChatMessage }
func (SwitchQuestion) actionType() ActionType           { return ActionSwitchQuestion }
func (ActivatePanicMode) actionType() ActionType        { return ActionActivatePanicMode }
func (SubmitAnswer) actionType() ActionType             { return ActionSubmitAnswer }
func (StartRoomTimer) actionType() ActionType           { return ActionStartRoomTimer }
func (StartTypingTimer) actionType() ActionType         { return ActionStartTypingTimer }
func (StopTimer) actionType() ActionType                { return ActionStopTimer }
func (CancelGame) actionType() ActionType               { return ActionCancelGame }
func (FinishMatch) actionType() ActionType              { return ActionFinishMatch }
func (BeginMatch) actionType() ActionType               { return ActionBeginMatch }
func (RemovePlayer) actionType() ActionType             { return ActionRemovePlayer }
func (UpdateScore) actionType() ActionType              { return ActionUpdateScore }
func (SetFinalAnswer) actionType() ActionType           { return ActionSetFinalAnswer }
func (PlayerLeft) actionType() ActionType               { return ActionPlayerLeft }
func (ChangeChatAccessibility) actionType() ActionType  { return ActionChangeChatAccessibility }
func (BeginFreeTextEvaluation) actionType() ActionType  { return ActionBeginFreeTextEvaluation }
func (FinishFreeTextEvaluation) actionType() ActionType { return ActionFinishFreeTextEvaluation }
func (ToggleRoomLock) actionType() ActionType           { return ActionToggleRoomLock }
func (Disconnected) actionType() ActionType             { return ActionDisconnected }

// DecodeAction parses the payload of env into its action type.
func DecodeAction(env Envelope) (Action, error) {
	switch ActionType(env.Type) {
	case ActionJoinRoom:
		return decodeInto[JoinRoom](env)
	case ActionSendChatMessage:
		return decodeInto[SendChatMessage](env)
	case ActionSwitchQuestion:
		return SwitchQuestion{}, nil
	case ActionActivatePanicMode:
		return ActivatePanicMode{}, nil
	case ActionSubmitAnswer:
		return decodeInto[SubmitAnswer](env)
	case ActionStartRoomTimer:
		return decodeInto[StartRoomTimer](env)
	case ActionStartTypingTimer:
		return StartTypingTimer{}, nil
	case ActionStopTimer:
		a, err := decodeInto[StopTimer](env)
		if err != nil {
			return nil, err
		}
		if a.Scope != TimerScopeRoom && a.Scope != TimerScopeTyping {
			return nil, fmt.Errorf("decode %s: unknown timer scope %q", env.Type, a.Scope)
		}
		return a, nil
	case ActionCancelGame:
		return CancelGame{}, nil
	case ActionFinishMatch:
		return FinishMatch{}, nil
	case ActionBeginMatch:
		return BeginMatch{}, nil
	case ActionRemovePlayer:
		return decodeInto[RemovePlayer](env)
	case ActionUpdateScore:
		return decodeInto[UpdateScore](env)
	case ActionSetFinalAnswer:
		return decodeInto[SetFinalAnswer](env)
	case ActionPlayerLeft:
		return decodeInto[PlayerLeft](env)
	case ActionChangeChatAccessibility:
		return decodeInto[ChangeChatAccessibility](env)
	case ActionBeginFreeTextEvaluation:
		return BeginFreeTextEvaluation{}, nil
	case ActionFinishFreeTextEvaluation:
		return FinishFreeTextEvaluation{}, nil
	case ActionToggleRoomLock:
		return ToggleRoomLock{}, nil
	default:
		return nil, fmt.Errorf("unknown action type: %s", env.Type)
	}
}

func decodeInto[T Action](env Envelope) (T, error) {
	var a T
	if len(env.Data) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(env.Data, &a); err != nil {
		return a, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return a, nil
}
