package engine

// Betting limit rules. These compute the legal bet and raise boundaries
// for the configured limit structure; Apply consults them before any
// chips move.

// MinBet returns the minimum legal opening bet for the current round.
func (g *Game) MinBet() int {
	return g.rules.BigBlind
}

// MinRaiseTo returns the minimum legal total a raise must reach: the
// current max bet plus the larger of the last raise increment and the
// big blind.
func (g *Game) MinRaiseTo() int {
	increment := g.state.LastRaise
	if increment < g.rules.BigBlind {
		increment = g.rules.BigBlind
	}
	return g.state.MaxCurrentBet() + increment
}

// MaxBetFor returns the largest total the player may put in this round.
func (g *Game) MaxBetFor(p *PlayerState) int {
	switch g.rules.Limit {
	case PotLimit:
		// Pot-limit: maximum raise equals the pot size after a
		// hypothetical call.
		toCall := g.state.MaxCurrentBet() - p.CurrentBet
		if toCall < 0 {
			toCall = 0
		}
		potAfterCall := g.state.Pot + g.roundChips() + toCall
		maxTotal := p.CurrentBet + toCall + potAfterCall
		if stack := p.Chips + p.CurrentBet; maxTotal > stack {
			maxTotal = stack
		}
		return maxTotal
	case FixedLimit:
		// Fixed-limit: a raise is exactly one big blind over the
		// current bet.
		maxTotal := g.state.MaxCurrentBet() + g.rules.BigBlind
		if stack := p.Chips + p.CurrentBet; maxTotal > stack {
			maxTotal = stack
		}
		return maxTotal
	default:
		// No-limit: the player's full stack.
		return p.Chips + p.CurrentBet
	}
}

// roundChips sums the bets committed in the current round but not yet
// collected into the pot.
func (g *Game) roundChips() int {
	total := 0
	for _, p := range g.state.Players {
		total += p.CurrentBet
	}
	return total
}

// reopensAction reports whether raising to the given total reopens
// betting. A short all-in below the minimum raise merely calls for
// action purposes: players who already matched the previous bet do not
// get to act again.
func (g *Game) reopensAction(raiseTo int) bool {
	return raiseTo >= g.MinRaiseTo()
}

// ValidActions lists the actions currently legal for the player,
// suitable for client prompts and rejection suggestions.
func (g *Game) ValidActions(p *PlayerState) []ActionKind {
	if !p.CanAct() {
		return nil
	}
	actions := []ActionKind{ActionFold}
	toCall := g.state.MaxCurrentBet() - p.CurrentBet

	if toCall == 0 {
		actions = append(actions, ActionCheck)
		if g.state.MaxCurrentBet() == 0 {
			if p.Chips >= g.MinBet() {
				actions = append(actions, ActionBet)
			}
		} else if p.Chips+p.CurrentBet >= g.MinRaiseTo() {
			actions = append(actions, ActionRaise)
		}
		if p.Chips > 0 {
			actions = append(actions, ActionAllIn)
		}
		return actions
	}

	if toCall >= p.Chips {
		actions = append(actions, ActionAllIn)
		return actions
	}
	actions = append(actions, ActionCall)
	if !p.HasActed && p.Chips+p.CurrentBet >= g.MinRaiseTo() {
		actions = append(actions, ActionRaise)
	}
	actions = append(actions, ActionAllIn)
	return actions
}
