package engine

import (
	"fmt"
	"sort"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/evaluator"
)

// Winner records one player's share of the pot.
type Winner struct {
	PlayerID   string
	Amount     int
	HandResult evaluator.HandResult
	PotIndex   int // 0 = main pot
}

// FinishResult is the final accounting for a completed hand.
type FinishResult struct {
	Winners  []Winner
	GrossPot int
	Rake     int
	NetPot   int
}

// Finishable reports whether the hand has reached a terminal betting
// condition: showdown, or at most one player left in the hand.
func (g *Game) Finishable() bool {
	return g.state.Phase == Showdown || g.playersInHand() <= 1
}

// Finish resolves the hand: computes final side pots, deducts rake,
// evaluates showdown hands, awards every pot level and credits winners'
// stacks. Calling Finish again returns the recorded result unchanged.
func (g *Game) Finish() (*FinishResult, error) {
	if g.finished != nil {
		return g.finished, nil
	}
	gs := g.state
	if gs.Phase == Cancelled {
		return nil, fmt.Errorf("%w: hand was cancelled", ErrInvalidState)
	}
	if !g.Finishable() {
		return nil, fmt.Errorf("%w: betting still open in %s", ErrInvalidState, gs.Phase)
	}

	// Sweep any outstanding round bets.
	for _, p := range gs.Players {
		gs.Pot += p.CurrentBet
		p.CurrentBet = 0
	}

	// Return any contribution nobody matched.
	refunds := uncontested(gs.Players)
	for id, amount := range refunds {
		p := gs.PlayerByID(id)
		p.Chips += amount
		gs.Pot -= amount
	}

	gross := gs.Pot
	rake := g.computeRake(gross)
	net := gross - rake

	pots := computeSidePots(gs.Players)
	if pots == nil {
		eligible := make([]string, 0, len(gs.Players))
		for _, p := range gs.Players {
			if p.InHand() {
				eligible = append(eligible, p.ID)
			}
		}
		pots = []SidePot{{Amount: gross, Eligible: eligible, IsMainPot: true}}
	}

	// Every chip in the pot must land in exactly one level.
	potTotal := 0
	for _, pot := range pots {
		potTotal += pot.Amount
	}
	if potTotal != gross {
		g.cancel()
		return nil, fmt.Errorf("%w: pot levels hold %d of %d", ErrChipConservation, potTotal, gross)
	}

	// Rake comes off the final (largest-contribution) pot level so
	// capped all-in pots stay whole.
	if rake > 0 && len(pots) > 0 {
		last := len(pots) - 1
		if rake > pots[last].Amount {
			rake = pots[last].Amount
			net = gross - rake
		}
		pots[last].Amount -= rake
	}

	results := make(map[string]evaluator.HandResult)
	if g.playersInHand() > 1 {
		for _, p := range gs.Players {
			if !p.InHand() {
				continue
			}
			hr, err := evaluator.Evaluate(append(append([]deck.Card{}, p.Cards...), gs.CommunityCards...))
			if err != nil {
				g.cancel()
				return nil, fmt.Errorf("evaluating %s: %w", p.ID, err)
			}
			results[p.ID] = hr
		}
	}

	result := &FinishResult{GrossPot: gross, Rake: rake, NetPot: net}
	for potIdx, pot := range pots {
		winners := g.potWinners(pot, results)
		if len(winners) == 0 {
			continue
		}
		// Split evenly; any indivisible remainder goes one chip at a
		// time to the earliest-indexed winners. Deterministic, no
		// randomness at payout.
		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		for i, id := range winners {
			amount := share
			if i < remainder {
				amount++
			}
			if amount == 0 {
				continue
			}
			p := gs.PlayerByID(id)
			p.Chips += amount
			result.Winners = append(result.Winners, Winner{
				PlayerID:   id,
				Amount:     amount,
				HandResult: results[id],
				PotIndex:   potIdx,
			})
		}
	}

	gs.Pot = 0
	gs.SidePots = pots
	gs.CurrentPlayer = ""
	gs.Phase = Finished
	gs.bump()
	g.finished = result
	return result, nil
}

// potWinners returns the ids entitled to the pot, ordered by seat for a
// deterministic odd-chip split.
func (g *Game) potWinners(pot SidePot, results map[string]evaluator.HandResult) []string {
	gs := g.state

	live := make([]string, 0, len(pot.Eligible))
	for _, id := range pot.Eligible {
		if p := gs.PlayerByID(id); p != nil && p.InHand() {
			live = append(live, id)
		}
	}
	if len(live) <= 1 {
		return live
	}

	var best []string
	for _, id := range live {
		if len(best) == 0 {
			best = []string{id}
			continue
		}
		cmp := evaluator.Compare(results[id], results[best[0]])
		switch {
		case cmp < 0:
			best = []string{id}
		case cmp == 0:
			best = append(best, id)
		}
	}
	sort.Slice(best, func(i, j int) bool {
		return gs.PlayerByID(best[i]).Seat < gs.PlayerByID(best[j]).Seat
	})
	return best
}

// computeRake applies the configured rake: nothing below the minimum
// pot, nothing preflop when no-flop-no-drop is set, otherwise
// min(pot*percent/100, cap).
func (g *Game) computeRake(pot int) int {
	r := g.rules.Rake
	if r.Percent <= 0 {
		return 0
	}
	if pot < r.MinPot {
		return 0
	}
	if r.NoFlopNoDrop && !g.flopSeen {
		return 0
	}
	rake := int(float64(pot) * r.Percent / 100.0)
	if r.Cap > 0 && rake > r.Cap {
		rake = r.Cap
	}
	if rake > pot {
		rake = pot
	}
	return rake
}
