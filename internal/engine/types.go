package engine

import (
	"time"

	"github.com/cardroom/holdem/internal/deck"
)

// Phase is a hand's betting phase. Transitions are strictly forward
// (preflop through finished); Paused and Cancelled are the only
// non-forward exits.
type Phase int

const (
	Preflop Phase = iota
	Flop
	Turn
	River
	Showdown
	Finished
	Paused
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Preflop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	case Showdown:
		return "showdown"
	case Finished:
		return "finished"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further actions can occur in this phase.
func (p Phase) Terminal() bool {
	return p == Finished || p == Cancelled
}

// PlayerStatus describes a player's standing within the current hand.
type PlayerStatus int

const (
	StatusActive PlayerStatus = iota
	StatusFolded
	StatusAllIn
	StatusSittingOut
	StatusDisconnected
)

func (s PlayerStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFolded:
		return "folded"
	case StatusAllIn:
		return "all-in"
	case StatusSittingOut:
		return "sitting-out"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PlayerState is a player's per-hand state, owned by GameState. Chips
// here are hand-scoped; the session stack is reconciled when the hand
// completes.
type PlayerState struct {
	ID           string
	Seat         int
	Chips        int
	CurrentBet   int // this betting round, reset on phase advance
	TotalBet     int // accumulated over the hand
	Cards        []deck.Card
	Status       PlayerStatus
	HasActed     bool
	IsDealer     bool
	IsSmallBlind bool
	IsBigBlind   bool
	TimeBank     time.Duration
}

// InHand reports whether the player still contests the pot.
func (p *PlayerState) InHand() bool {
	return p.Status == StatusActive || p.Status == StatusAllIn
}

// CanAct reports whether the player may take a betting action.
func (p *PlayerState) CanAct() bool {
	return p.Status == StatusActive && p.Chips >= 0
}

// SidePot is a pot fragment restricted to players who contributed at
// least MaxContribution. Recomputed fresh after every all-in and at hand
// completion, never mutated in place.
type SidePot struct {
	Amount          int
	Eligible        []string
	IsMainPot       bool
	MaxContribution int
}

// ActionRecord is an applied action in the hand's append-only history.
// Each record is tagged with the phase it was applied in so per-phase
// queries never infer from timestamps. Amount is the resolved bet-to
// total for any chip-moving action, not the requested amount: a call
// records the matched level and an all-in records the final committed
// total. Raised marks actions that pushed the table bet higher,
// distinguishing an aggressive all-in from one that merely called.
type ActionRecord struct {
	PlayerID  string
	Kind      ActionKind
	Amount    int
	Phase     Phase
	Raised    bool
	Timestamp time.Time
}

// GameState is one hand's mutable table snapshot. It is owned by exactly
// one hand round at a time and must only be mutated by its session's
// serialized worker.
type GameState struct {
	Phase          Phase
	Players        []*PlayerState // seat order
	Pot            int
	SidePots       []SidePot
	CommunityCards []deck.Card
	BurnCards      []deck.Card
	CurrentPlayer  string // empty when no one is to act
	DealerSeat     int
	SmallBlindSeat int
	BigBlindSeat   int
	SmallBlind     int
	BigBlind       int
	MinRaise       int
	LastRaise      int // size of the last raise increment this round
	ActionHistory  []ActionRecord
	StateVersion   uint64
}

// bump increments the state version. Called on every mutation; the
// counter is monotonic for the life of the hand.
func (gs *GameState) bump() {
	gs.StateVersion++
}

// PlayerByID returns the player with the given id, or nil.
func (gs *GameState) PlayerByID(id string) *PlayerState {
	for _, p := range gs.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// MaxCurrentBet returns the highest per-round bet on the table.
func (gs *GameState) MaxCurrentBet() int {
	maxBet := 0
	for _, p := range gs.Players {
		if p.CurrentBet > maxBet {
			maxBet = p.CurrentBet
		}
	}
	return maxBet
}

// TotalChips returns chips in play plus everything already committed.
// Side pots are carved out of Pot at completion time, so they are not
// double counted here.
func (gs *GameState) TotalChips() int {
	total := gs.Pot
	for _, p := range gs.Players {
		total += p.Chips + p.CurrentBet
	}
	return total
}

// ActionsInPhase returns history records tagged with the given phase.
func (gs *GameState) ActionsInPhase(phase Phase) []ActionRecord {
	var out []ActionRecord
	for _, r := range gs.ActionHistory {
		if r.Phase == phase {
			out = append(out, r)
		}
	}
	return out
}

// ActionKind identifies a betting action variant.
type ActionKind int

const (
	ActionFold ActionKind = iota
	ActionCheck
	ActionCall
	ActionBet
	ActionRaise
	ActionAllIn
)

func (k ActionKind) String() string {
	switch k {
	case ActionFold:
		return "fold"
	case ActionCheck:
		return "check"
	case ActionCall:
		return "call"
	case ActionBet:
		return "bet"
	case ActionRaise:
		return "raise"
	case ActionAllIn:
		return "all-in"
	default:
		return "unknown"
	}
}

// RequiresAmount reports whether the variant carries a chip amount.
func (k ActionKind) RequiresAmount() bool {
	return k == ActionBet || k == ActionRaise
}

// Action is a betting action. Only Bet and Raise carry an amount; the
// constructors below keep the variants explicit.
type Action struct {
	Kind   ActionKind
	Amount int
}

// FoldAction returns a fold.
func FoldAction() Action { return Action{Kind: ActionFold} }

// CheckAction returns a check.
func CheckAction() Action { return Action{Kind: ActionCheck} }

// CallAction returns a call. The call amount is derived from table
// state, never supplied by the player.
func CallAction() Action { return Action{Kind: ActionCall} }

// BetAction returns an opening bet of the given total amount.
func BetAction(amount int) Action { return Action{Kind: ActionBet, Amount: amount} }

// RaiseAction returns a raise to the given total amount.
func RaiseAction(amount int) Action { return Action{Kind: ActionRaise, Amount: amount} }

// AllInAction returns an all-in for the player's remaining stack.
func AllInAction() Action { return Action{Kind: ActionAllIn} }

// ParseActionKind maps a wire action type to its variant.
func ParseActionKind(s string) (ActionKind, bool) {
	switch s {
	case "fold":
		return ActionFold, true
	case "check":
		return ActionCheck, true
	case "call":
		return ActionCall, true
	case "bet":
		return ActionBet, true
	case "raise":
		return ActionRaise, true
	case "all-in", "allin":
		return ActionAllIn, true
	default:
		return 0, false
	}
}

// LimitType selects the betting structure.
type LimitType int

const (
	NoLimit LimitType = iota
	PotLimit
	FixedLimit
)

func (l LimitType) String() string {
	switch l {
	case NoLimit:
		return "no-limit"
	case PotLimit:
		return "pot-limit"
	case FixedLimit:
		return "fixed-limit"
	default:
		return "unknown"
	}
}

// RakeRules configures the house cut taken at hand completion.
type RakeRules struct {
	Percent      float64
	Cap          int
	MinPot       int
	NoFlopNoDrop bool
}

// Rules is the immutable per-hand rule snapshot.
type Rules struct {
	Limit      LimitType
	SmallBlind int
	BigBlind   int
	Rake       RakeRules
}
