package engine

import "sort"

// computeSidePots groups non-folded players by distinct total-bet
// levels, ascending. Each level's pot is (level - previous) times the
// number of players whose total bet reaches it; players folded out of
// the hand still fund the levels they contributed to but are never
// eligible. The first level is the main pot.
func computeSidePots(players []*PlayerState) []SidePot {
	levels := make(map[int]bool)
	anyAllIn := false
	for _, p := range players {
		if p.Status == StatusAllIn && p.TotalBet > 0 {
			levels[p.TotalBet] = true
			anyAllIn = true
		}
	}
	if !anyAllIn {
		return nil
	}
	// Chips nobody can match are never contested. Levels are capped at
	// the second-highest contribution counting folded players: dead
	// money above a lower all-in still funds a side pot as long as a
	// live bet reaches it. Only the excess above every other
	// contribution goes back to its owner (see uncontested).
	var top, second int
	for _, p := range players {
		if p.TotalBet >= top {
			second = top
			top = p.TotalBet
		} else if p.TotalBet > second {
			second = p.TotalBet
		}
	}
	matched := second
	if matched > 0 {
		levels[matched] = true
	}

	sorted := make([]int, 0, len(levels))
	for l := range levels {
		if l <= matched {
			sorted = append(sorted, l)
		}
	}
	sort.Ints(sorted)

	var pots []SidePot
	prev := 0
	for i, level := range sorted {
		pot := SidePot{
			IsMainPot:       i == 0,
			MaxContribution: level,
		}
		for _, p := range players {
			contribution := p.TotalBet - prev
			if contribution > level-prev {
				contribution = level - prev
			}
			if contribution > 0 {
				pot.Amount += contribution
			}
			if p.InHand() && p.TotalBet >= level {
				pot.Eligible = append(pot.Eligible, p.ID)
			}
		}
		if pot.Amount > 0 && len(pot.Eligible) > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}
	return pots
}

// uncontested returns chips a player committed beyond every opponent's
// total: they come straight back without being contested.
func uncontested(players []*PlayerState) map[string]int {
	refunds := make(map[string]int)
	for _, p := range players {
		if !p.InHand() || p.TotalBet == 0 {
			continue
		}
		maxOther := 0
		for _, o := range players {
			if o == p {
				continue
			}
			if o.TotalBet > maxOther {
				maxOther = o.TotalBet
			}
		}
		if p.TotalBet > maxOther {
			refunds[p.ID] = p.TotalBet - maxOther
		}
	}
	return refunds
}
