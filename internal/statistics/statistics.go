package statistics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/cardroom/holdem/internal/engine"
	"github.com/cardroom/holdem/internal/session"
)

// PlayerStats accumulates one player's play across hands. Rates are
// derived on read; the struct stores raw counts plus sum-of-squares
// accumulators for variance.
type PlayerStats struct {
	PlayerID   string
	HandsDealt int
	HandsWon   int

	VPIPHands int // voluntarily put chips in preflop
	PFRHands  int // raised preflop

	Bets   int
	Raises int
	Calls  int

	ShowdownsSeen int
	ShowdownsWon  int

	NetChips int
	SumBB    float64
	SumBB2   float64 // sum of squares for variance
}

// VPIP returns the fraction of dealt hands where the player voluntarily
// put chips in preflop. Blind posts do not count.
func (ps *PlayerStats) VPIP() float64 {
	return ratio(ps.VPIPHands, ps.HandsDealt)
}

// PFR returns the fraction of dealt hands where the player raised
// preflop.
func (ps *PlayerStats) PFR() float64 {
	return ratio(ps.PFRHands, ps.HandsDealt)
}

// AggressionFactor returns (bets + raises) / calls. A player who never
// calls gets the bet-raise count itself, matching the common convention
// of treating the factor as infinite-capped.
func (ps *PlayerStats) AggressionFactor() float64 {
	aggressive := ps.Bets + ps.Raises
	if ps.Calls == 0 {
		return float64(aggressive)
	}
	return float64(aggressive) / float64(ps.Calls)
}

// WentToShowdown returns the fraction of dealt hands the player took to
// a contested showdown.
func (ps *PlayerStats) WentToShowdown() float64 {
	return ratio(ps.ShowdownsSeen, ps.HandsDealt)
}

// WonAtShowdown returns the fraction of contested showdowns the player
// won at least a pot share of.
func (ps *PlayerStats) WonAtShowdown() float64 {
	return ratio(ps.ShowdownsWon, ps.ShowdownsSeen)
}

// MeanBB returns the mean net result per hand in big blinds.
func (ps *PlayerStats) MeanBB() float64 {
	if ps.HandsDealt == 0 {
		return 0
	}
	return ps.SumBB / float64(ps.HandsDealt)
}

// VarianceBB returns the sample variance of per-hand results.
func (ps *PlayerStats) VarianceBB() float64 {
	if ps.HandsDealt < 2 {
		return 0
	}
	mean := ps.MeanBB()
	return (ps.SumBB2 - float64(ps.HandsDealt)*mean*mean) / float64(ps.HandsDealt-1)
}

// StdDevBB returns the sample standard deviation of per-hand results.
func (ps *PlayerStats) StdDevBB() float64 {
	return math.Sqrt(ps.VarianceBB())
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
// per-hand result in big blinds.
func (ps *PlayerStats) ConfidenceInterval95() (float64, float64) {
	if ps.HandsDealt == 0 {
		return 0, 0
	}
	mean := ps.MeanBB()
	margin := 1.96 * ps.StdDevBB() / math.Sqrt(float64(ps.HandsDealt))
	return mean - margin, mean + margin
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Collector aggregates completed hands into per-player statistics.
// Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	players map[string]*PlayerStats
	hands   int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{players: make(map[string]*PlayerStats)}
}

// RecordHand folds one completed hand round into the collector. Hands
// that were cancelled contribute nothing.
func (c *Collector) RecordHand(hr *session.HandRound, bigBlind int) {
	if hr.Status != session.HandComplete || hr.Game == nil {
		return
	}

	won := make(map[string]bool)
	for _, w := range hr.Winners {
		won[w.PlayerID] = true
	}

	state := hr.Game.State()
	contested := 0
	for _, p := range state.Players {
		if p.InHand() {
			contested++
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.hands++

	for _, p := range state.Players {
		ps := c.playerLocked(p.ID)
		ps.HandsDealt++
		if won[p.ID] {
			ps.HandsWon++
		}
		if contested >= 2 && p.InHand() {
			ps.ShowdownsSeen++
			if won[p.ID] {
				ps.ShowdownsWon++
			}
		}
		if net, ok := hr.NetResults[p.ID]; ok {
			ps.NetChips += net
			if bigBlind > 0 {
				bb := float64(net) / float64(bigBlind)
				ps.SumBB += bb
				ps.SumBB2 += bb * bb
			}
		}
	}

	vpip := make(map[string]bool)
	pfr := make(map[string]bool)
	for _, round := range hr.BettingRounds {
		for _, a := range round.Actions {
			ps := c.playerLocked(a.PlayerID)
			switch a.Kind {
			case engine.ActionBet:
				ps.Bets++
			case engine.ActionRaise:
				ps.Raises++
			case engine.ActionAllIn:
				// Only an all-in that pushed the bet higher counts as
				// aggression; calling for the stack is a call.
				if a.Raised {
					ps.Raises++
				} else {
					ps.Calls++
				}
			case engine.ActionCall:
				ps.Calls++
			}
			if round.Phase != engine.Preflop {
				continue
			}
			// Blind posts are not in the action history, so every
			// preflop call, bet, or raise here is voluntary.
			switch a.Kind {
			case engine.ActionCall, engine.ActionBet, engine.ActionRaise, engine.ActionAllIn:
				if !vpip[a.PlayerID] {
					vpip[a.PlayerID] = true
					ps.VPIPHands++
				}
				aggressive := a.Kind == engine.ActionBet || a.Kind == engine.ActionRaise ||
					(a.Kind == engine.ActionAllIn && a.Raised)
				if aggressive && !pfr[a.PlayerID] {
					pfr[a.PlayerID] = true
					ps.PFRHands++
				}
			}
		}
	}
}

func (c *Collector) playerLocked(id string) *PlayerStats {
	ps, ok := c.players[id]
	if !ok {
		ps = &PlayerStats{PlayerID: id}
		c.players[id] = ps
	}
	return ps
}

// Player returns a snapshot of a player's statistics.
func (c *Collector) Player(id string) (PlayerStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.players[id]
	if !ok {
		return PlayerStats{}, false
	}
	return *ps, true
}

// Hands returns the number of hands folded into the collector.
func (c *Collector) Hands() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hands
}

// Report summarizes a session's play for all tracked players.
type Report struct {
	SessionID  string
	TotalHands int
	TotalPot   int
	TotalRake  int
	Players    []PlayerStats // sorted by net chips, best first
}

// SessionReport builds a report combining the collector's per-player
// numbers with the session's totals.
func (c *Collector) SessionReport(s *session.Session) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Report{
		SessionID:  s.ID,
		TotalHands: s.TotalHands,
		TotalPot:   s.TotalPot,
		TotalRake:  s.TotalRake,
	}
	for _, ps := range c.players {
		r.Players = append(r.Players, *ps)
	}
	sort.Slice(r.Players, func(i, j int) bool {
		if r.Players[i].NetChips != r.Players[j].NetChips {
			return r.Players[i].NetChips > r.Players[j].NetChips
		}
		return r.Players[i].PlayerID < r.Players[j].PlayerID
	})
	return r
}

// String renders the report as an aligned text table.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %d hands, %d pot, %d rake\n",
		r.SessionID, r.TotalHands, r.TotalPot, r.TotalRake)
	fmt.Fprintf(&b, "%-20s %6s %8s %6s %6s %6s %6s %6s\n",
		"player", "hands", "net", "vpip", "pfr", "af", "wtsd", "wsd")
	for _, ps := range r.Players {
		fmt.Fprintf(&b, "%-20s %6d %8d %5.1f%% %5.1f%% %6.2f %5.1f%% %5.1f%%\n",
			ps.PlayerID, ps.HandsDealt, ps.NetChips,
			ps.VPIP()*100, ps.PFR()*100, ps.AggressionFactor(),
			ps.WentToShowdown()*100, ps.WonAtShowdown()*100)
	}
	return b.String()
}
