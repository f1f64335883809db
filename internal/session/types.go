package session

import (
	"time"

	"github.com/cardroom/holdem/internal/config"
	"github.com/cardroom/holdem/internal/engine"
)

// Status is a session's lifecycle state.
type Status int

const (
	StatusWaiting Status = iota
	StatusActive
	StatusPaused
	StatusFinished
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// HandStatus tracks a hand round through its lifecycle. It is a
// superset of the engine's phase: Dealing precedes any engine state and
// Complete/Cancelled survive it.
type HandStatus int

const (
	HandDealing HandStatus = iota
	HandBetting
	HandShowdown
	HandComplete
	HandCancelled
)

func (s HandStatus) String() string {
	switch s {
	case HandDealing:
		return "dealing"
	case HandBetting:
		return "betting"
	case HandShowdown:
		return "showdown"
	case HandComplete:
		return "complete"
	case HandCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Config is the per-session rule snapshot, immutable once the session
// is created except for timing and rake, which may be updated live.
type Config struct {
	TableID         string
	GameType        string
	Rules           engine.Rules
	MinPlayers      int
	MaxPlayers      int
	BuyInMin        int
	BuyInMax        int
	MaxRebuys       int
	AutoStart       bool
	ActionTime      time.Duration
	WarningTime     time.Duration
	TimeBank        time.Duration
	DisconnectGrace time.Duration
	HandStartDelay  time.Duration
	HandBreak       time.Duration
}

// ConfigFromTable converts a table configuration into a session config.
func ConfigFromTable(tc config.TableConfig) Config {
	limit := engine.NoLimit
	switch tc.BettingLimit {
	case "pot-limit":
		limit = engine.PotLimit
	case "fixed-limit":
		limit = engine.FixedLimit
	}
	return Config{
		TableID:  tc.Name,
		GameType: tc.GameType,
		Rules: engine.Rules{
			Limit:      limit,
			SmallBlind: tc.SmallBlind,
			BigBlind:   tc.BigBlind,
			Rake: engine.RakeRules{
				Percent:      tc.RakePercent,
				Cap:          tc.RakeCap,
				MinPot:       tc.RakeMinPot,
				NoFlopNoDrop: tc.RakeNoFlopNoDrop,
			},
		},
		MinPlayers:      tc.MinPlayers,
		MaxPlayers:      tc.MaxPlayers,
		BuyInMin:        tc.BuyInMin,
		BuyInMax:        tc.BuyInMax,
		MaxRebuys:       tc.MaxRebuys,
		AutoStart:       tc.AutoStart,
		ActionTime:      tc.ActionTime(),
		WarningTime:     tc.WarningTime(),
		TimeBank:        tc.TimeBank(),
		DisconnectGrace: tc.DisconnectGrace(),
		HandStartDelay:  tc.HandStartDelay(),
		HandBreak:       tc.HandBreak(),
	}
}

// Player is a player's membership in a session across hands. The stack
// here persists between hands, unlike the engine's per-hand chips.
type Player struct {
	PlayerID       string
	SeatNumber     int
	BuyInAmount    int
	CurrentStack   int
	Profit         int
	HandsPlayed    int
	HandsWon       int
	IsActive       bool
	SittingOut     bool
	JoinedAt       time.Time
	LeftAt         time.Time
	DisconnectedAt time.Time // zero when connected
	TimeBank       time.Duration
	PendingRebuy   int
	Rebuys         int
}

// Connected reports whether the player has a live connection.
func (p *Player) Connected() bool {
	return p.DisconnectedAt.IsZero()
}

// Eligible reports whether the player can be dealt into the next hand.
func (p *Player) Eligible() bool {
	return p.IsActive && !p.SittingOut && p.CurrentStack > 0
}

// BettingRoundRecord captures one phase's betting within a hand.
type BettingRoundRecord struct {
	Phase     engine.Phase
	Actions   []engine.ActionRecord
	Aggressor string // last player to bet or raise, empty if checked through
	Complete  bool
}

// HandRound is one played hand. Retained in the session's hand history
// and read-only once complete.
type HandRound struct {
	ID            string
	SessionID     string
	HandNumber    int
	Game          *engine.Game
	Status        HandStatus
	BettingRounds []*BettingRoundRecord
	Winners       []engine.Winner
	NetResults    map[string]int // per-player chip delta for the hand
	FinalPot      int
	Rake          int
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	CancelReason  string

	recorded int // engine history entries already folded into BettingRounds
	result   *engine.FinishResult
}

// currentRound returns the open betting round record, if any.
func (hr *HandRound) currentRound() *BettingRoundRecord {
	if len(hr.BettingRounds) == 0 {
		return nil
	}
	last := hr.BettingRounds[len(hr.BettingRounds)-1]
	if last.Complete {
		return nil
	}
	return last
}

// Session is a table's persistent identity across many hands.
type Session struct {
	ID          string
	TableID     string
	Status      Status
	Players     map[string]*Player
	CurrentHand *HandRound
	HandHistory []*HandRound
	DealerSeat  int // -1 before the first hand
	Config      Config
	TotalHands  int
	TotalPot    int
	TotalRake   int
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	NextHandAt  time.Time // zero when no hand is scheduled
}

// ActivePlayers returns players currently part of the session.
func (s *Session) ActivePlayers() []*Player {
	var out []*Player
	for _, p := range s.Players {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// EligiblePlayers returns players who can be dealt into the next hand.
func (s *Session) EligiblePlayers() []*Player {
	var out []*Player
	for _, p := range s.Players {
		if p.Eligible() {
			out = append(out, p)
		}
	}
	return out
}

// ConnectedCount returns active players with a live connection.
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.IsActive && p.Connected() {
			n++
		}
	}
	return n
}

// SeatTaken reports whether an active player occupies the seat.
func (s *Session) SeatTaken(seat int) bool {
	for _, p := range s.Players {
		if p.IsActive && p.SeatNumber == seat {
			return true
		}
	}
	return false
}
