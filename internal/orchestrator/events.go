package orchestrator

import (
	"sync"
	"time"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/engine"
)

// Event is a table occurrence pushed to listeners. Every variant
// carries the session it belongs to.
type Event interface {
	EventName() string
	Session() string
}

// Listener receives events from a session's runner goroutine.
// Implementations must not block; slow consumers buffer on their side.
type Listener interface {
	HandleEvent(Event)
}

type baseEvent struct {
	SessionID string `json:"sessionId"`
}

func (e baseEvent) Session() string { return e.SessionID }

// PlayerJoined fires when a player takes a seat.
type PlayerJoined struct {
	baseEvent
	PlayerID string `json:"playerId"`
	Seat     int    `json:"seat"`
	BuyIn    int    `json:"buyIn"`
}

func (PlayerJoined) EventName() string { return "player_joined" }

// PlayerLeft fires when a player leaves the table.
type PlayerLeft struct {
	baseEvent
	PlayerID string `json:"playerId"`
	CashOut  int    `json:"cashOut"`
}

func (PlayerLeft) EventName() string { return "player_left" }

// SessionStarted fires when a session goes active.
type SessionStarted struct {
	baseEvent
}

func (SessionStarted) EventName() string { return "session_started" }

// SessionPaused fires when play is suspended.
type SessionPaused struct {
	baseEvent
}

func (SessionPaused) EventName() string { return "session_paused" }

// SessionResumed fires when play resumes.
type SessionResumed struct {
	baseEvent
}

func (SessionResumed) EventName() string { return "session_resumed" }

// SessionEnded fires when a session finishes for good.
type SessionEnded struct {
	baseEvent
	TotalHands int `json:"totalHands"`
	TotalRake  int `json:"totalRake"`
}

func (SessionEnded) EventName() string { return "session_ended" }

// HandStarted fires once the hand is dealt and betting opens.
type HandStarted struct {
	baseEvent
	HandID     string `json:"handId"`
	HandNumber int    `json:"handNumber"`
	DealerSeat int    `json:"dealerSeat"`
	Players    int    `json:"players"`
}

func (HandStarted) EventName() string { return "hand_started" }

// ActionApplied fires after a player action mutates the hand.
type ActionApplied struct {
	baseEvent
	HandID   string            `json:"handId"`
	PlayerID string            `json:"playerId"`
	Kind     engine.ActionKind `json:"kind"`
	Amount   int               `json:"amount,omitempty"`
	Phase    engine.Phase      `json:"phase"`
	Pot      int               `json:"pot"`
	Version  uint64            `json:"version"`
}

func (ActionApplied) EventName() string { return "action_applied" }

// PhaseChanged fires when the hand advances to a new street, carrying
// the community cards dealt so far.
type PhaseChanged struct {
	baseEvent
	HandID string       `json:"handId"`
	Phase  engine.Phase `json:"phase"`
	Board  []deck.Card  `json:"board"`
}

func (PhaseChanged) EventName() string { return "phase_changed" }

// PlayerTurn fires when the action moves to a player.
type PlayerTurn struct {
	baseEvent
	HandID   string        `json:"handId"`
	PlayerID string        `json:"playerId"`
	ToCall   int           `json:"toCall"`
	TimeOut  time.Duration `json:"timeoutMs"`
}

func (PlayerTurn) EventName() string { return "player_turn" }

// TimerWarning fires shortly before a player's action clock expires.
type TimerWarning struct {
	baseEvent
	PlayerID  string        `json:"playerId"`
	Remaining time.Duration `json:"remainingMs"`
}

func (TimerWarning) EventName() string { return "timer_warning" }

// PlayerTimedOut fires when the clock folds or checks for a player.
type PlayerTimedOut struct {
	baseEvent
	PlayerID string            `json:"playerId"`
	Forced   engine.ActionKind `json:"forced"`
}

func (PlayerTimedOut) EventName() string { return "player_timed_out" }

// HandCompleted fires after showdown settlement.
type HandCompleted struct {
	baseEvent
	HandID  string          `json:"handId"`
	Winners []engine.Winner `json:"winners"`
	Pot     int             `json:"pot"`
	Rake    int             `json:"rake"`
}

func (HandCompleted) EventName() string { return "hand_completed" }

// HandCancelled fires when a hand is aborted and refunded.
type HandCancelled struct {
	baseEvent
	HandID string `json:"handId"`
	Reason string `json:"reason"`
}

func (HandCancelled) EventName() string { return "hand_cancelled" }

// PlayerDisconnected fires when a player's connection drops.
type PlayerDisconnected struct {
	baseEvent
	PlayerID string        `json:"playerId"`
	Grace    time.Duration `json:"graceMs"`
}

func (PlayerDisconnected) EventName() string { return "player_disconnected" }

// PlayerReconnected fires when a player's connection returns.
type PlayerReconnected struct {
	baseEvent
	PlayerID string `json:"playerId"`
}

func (PlayerReconnected) EventName() string { return "player_reconnected" }

// listenerSet is a copy-on-read subscriber list.
type listenerSet struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (ls *listenerSet) subscribe(l Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.listeners = append(ls.listeners, l)
}

func (ls *listenerSet) unsubscribe(l Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for i, cur := range ls.listeners {
		if cur == l {
			ls.listeners = append(ls.listeners[:i], ls.listeners[i+1:]...)
			return
		}
	}
}

func (ls *listenerSet) emit(e Event) {
	ls.mu.RLock()
	snapshot := make([]Listener, len(ls.listeners))
	copy(snapshot, ls.listeners)
	ls.mu.RUnlock()
	for _, l := range snapshot {
		l.HandleEvent(e)
	}
}
