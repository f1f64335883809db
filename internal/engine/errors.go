package engine

import (
	"errors"
	"fmt"
)

// Fatal engine errors. These mean the hand can no longer be trusted and
// must be cancelled; they are never returned for a merely invalid action.
var (
	ErrChipConservation = errors.New("chip conservation violated")
	ErrInvalidState     = errors.New("invalid game state")
	ErrHandFinished     = errors.New("hand already finished")
)

// ErrorCode classifies a rejected action.
type ErrorCode string

const (
	CodeNotYourTurn       ErrorCode = "not_your_turn"
	CodeWrongPhase        ErrorCode = "wrong_phase"
	CodeUnknownPlayer     ErrorCode = "unknown_player"
	CodePlayerCannotAct   ErrorCode = "player_cannot_act"
	CodeInvalidAmount     ErrorCode = "invalid_amount"
	CodeInsufficientChips ErrorCode = "insufficient_chips"
	CodeCannotCheck       ErrorCode = "cannot_check"
	CodeBetExists         ErrorCode = "bet_exists"
	CodeBetTooSmall       ErrorCode = "bet_too_small"
	CodeRaiseTooSmall     ErrorCode = "raise_too_small"
	CodeRaiseTooLarge     ErrorCode = "raise_too_large"
	CodeNothingToCall     ErrorCode = "nothing_to_call"
	CodeCannotRaise       ErrorCode = "cannot_raise"
	CodeStaleAction       ErrorCode = "stale_action"
)

// ActionError is a structured rejection of a player action. It is a
// result, not a crash: the session worker stays alive and the player may
// retry. Suggestion, when set, names a valid alternative.
type ActionError struct {
	Code       ErrorCode
	Message    string
	Suggestion string
}

func (e *ActionError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code ErrorCode, format string, args ...any) *ActionError {
	return &ActionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ActionError) withSuggestion(s string) *ActionError {
	e.Suggestion = s
	return e
}
