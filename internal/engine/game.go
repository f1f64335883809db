package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/cardroom/holdem/internal/deck"
)

// Game drives a single hand's state transitions. It is deliberately
// free of I/O and timers: callers validate timing concerns and serialize
// access, the engine only mutates one hand's GameState.
type Game struct {
	state    *GameState
	rules    Rules
	deck     *deck.Deck
	dealt       bool
	flopSeen    bool
	baseline    int // chip total fixed at deal time, checked after every action
	resumePhase Phase
	finished    *FinishResult
}

// NewGame builds a hand over the given players, which must be in seat
// order with unique seats and positive stacks. The deck should already
// be shuffled; a seeded deck gives a reproducible hand.
func NewGame(players []*PlayerState, dealerSeat int, rules Rules, d *deck.Deck) (*Game, error) {
	if len(players) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 players, got %d", ErrInvalidState, len(players))
	}
	seats := make(map[int]bool, len(players))
	for _, p := range players {
		if p.Chips <= 0 {
			return nil, fmt.Errorf("%w: player %s has no chips", ErrInvalidState, p.ID)
		}
		if seats[p.Seat] {
			return nil, fmt.Errorf("%w: duplicate seat %d", ErrInvalidState, p.Seat)
		}
		seats[p.Seat] = true
	}
	sorted := make([]*PlayerState, len(players))
	copy(sorted, players)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seat < sorted[j].Seat })

	state := &GameState{
		Phase:      Preflop,
		Players:    sorted,
		DealerSeat: dealerSeat,
		SmallBlind: rules.SmallBlind,
		BigBlind:   rules.BigBlind,
		MinRaise:   rules.BigBlind,
	}
	return &Game{state: state, rules: rules, deck: d}, nil
}

// State returns the hand's state. Callers must not mutate it.
func (g *Game) State() *GameState {
	return g.state
}

// Deal posts blinds and deals two hole cards to every player in the
// hand, then sets first action. Heads-up the dealer posts the small
// blind and acts first preflop.
func (g *Game) Deal() error {
	if g.dealt {
		return fmt.Errorf("%w: hand already dealt", ErrInvalidState)
	}
	gs := g.state

	idx := g.seatIndex(gs.DealerSeat)
	if idx < 0 {
		return fmt.Errorf("%w: dealer seat %d not occupied", ErrInvalidState, gs.DealerSeat)
	}
	gs.Players[idx].IsDealer = true

	var sbIdx, bbIdx int
	if len(gs.Players) == 2 {
		sbIdx = idx
		bbIdx = (idx + 1) % 2
	} else {
		sbIdx = (idx + 1) % len(gs.Players)
		bbIdx = (idx + 2) % len(gs.Players)
	}
	gs.SmallBlindSeat = gs.Players[sbIdx].Seat
	gs.BigBlindSeat = gs.Players[bbIdx].Seat
	gs.Players[sbIdx].IsSmallBlind = true
	gs.Players[bbIdx].IsBigBlind = true

	g.postBlind(gs.Players[sbIdx], g.rules.SmallBlind)
	g.postBlind(gs.Players[bbIdx], g.rules.BigBlind)
	gs.MinRaise = g.rules.BigBlind
	gs.LastRaise = 0

	for _, p := range gs.Players {
		if p.Status != StatusActive && p.Status != StatusAllIn {
			continue
		}
		cards, err := g.deck.Deal(2)
		if err != nil {
			return fmt.Errorf("dealing hole cards: %w", err)
		}
		p.Cards = cards
	}

	// First action preflop is left of the big blind.
	first := g.nextActorFrom((bbIdx + 1) % len(gs.Players))
	if first >= 0 {
		gs.CurrentPlayer = gs.Players[first].ID
	}

	g.dealt = true
	g.baseline = gs.TotalChips()
	gs.bump()
	return nil
}

func (g *Game) postBlind(p *PlayerState, amount int) {
	posted := amount
	if posted > p.Chips {
		posted = p.Chips
	}
	p.Chips -= posted
	p.CurrentBet += posted
	p.TotalBet += posted
	if p.Chips == 0 {
		p.Status = StatusAllIn
	}
}

// Apply validates and applies one action for the named player. A
// non-nil *ActionError means the action was rejected and nothing
// changed; a non-nil error means the hand state can no longer be
// trusted and has been cancelled.
func (g *Game) Apply(playerID string, a Action) (*ActionError, error) {
	gs := g.state
	if gs.Phase.Terminal() {
		return nil, ErrHandFinished
	}
	if gs.Phase == Paused {
		return reject(CodeWrongPhase, "hand is paused"), nil
	}
	if gs.Phase == Showdown {
		return reject(CodeWrongPhase, "hand is at showdown, no actions remain"), nil
	}
	p := gs.PlayerByID(playerID)
	if p == nil {
		return reject(CodeUnknownPlayer, "player %s is not in this hand", playerID), nil
	}
	if gs.CurrentPlayer != playerID {
		return reject(CodeNotYourTurn, "it is not %s's turn", playerID), nil
	}
	if !p.CanAct() {
		return reject(CodePlayerCannotAct, "player %s cannot act (%s)", playerID, p.Status), nil
	}
	if a.Kind.RequiresAmount() && a.Amount <= 0 {
		return reject(CodeInvalidAmount, "%s requires a positive amount", a.Kind), nil
	}
	if !a.Kind.RequiresAmount() && a.Amount != 0 {
		return reject(CodeInvalidAmount, "%s does not take an amount", a.Kind), nil
	}

	prevMax := gs.MaxCurrentBet()
	if rej := g.applyAction(p, a); rej != nil {
		return rej, nil
	}

	record := ActionRecord{
		PlayerID:  playerID,
		Kind:      a.Kind,
		Amount:    a.Amount,
		Phase:     gs.Phase,
		Raised:    p.CurrentBet > prevMax,
		Timestamp: time.Now(),
	}
	// Calls and all-ins resolve to whatever the stack allowed; record
	// the committed total rather than the request.
	switch a.Kind {
	case ActionCall, ActionAllIn:
		record.Amount = p.CurrentBet
	}
	gs.ActionHistory = append(gs.ActionHistory, record)
	gs.bump()

	if err := g.checkConservation(); err != nil {
		g.cancel()
		return nil, err
	}

	g.advanceTurn(p)
	return nil, nil
}

func (g *Game) applyAction(p *PlayerState, a Action) *ActionError {
	gs := g.state
	maxBet := gs.MaxCurrentBet()
	toCall := maxBet - p.CurrentBet

	switch a.Kind {
	case ActionFold:
		p.Status = StatusFolded
		p.Cards = nil // mucked
		p.HasActed = true

	case ActionCheck:
		if toCall != 0 {
			return reject(CodeCannotCheck, "must call %d to continue", toCall).
				withSuggestion("call, raise or fold")
		}
		p.HasActed = true

	case ActionCall:
		if toCall == 0 {
			return reject(CodeNothingToCall, "nothing to call").withSuggestion("check instead")
		}
		if toCall >= p.Chips {
			// A call for the whole stack is an all-in.
			g.moveAllIn(p)
			return nil
		}
		g.commit(p, toCall)
		p.HasActed = true

	case ActionBet:
		if maxBet != 0 {
			return reject(CodeBetExists, "a bet of %d already exists", maxBet).
				withSuggestion("raise instead")
		}
		if a.Amount < g.MinBet() {
			return reject(CodeBetTooSmall, "minimum bet is %d", g.MinBet())
		}
		if a.Amount > p.Chips {
			return reject(CodeInsufficientChips, "bet %d exceeds stack %d", a.Amount, p.Chips)
		}
		if maxAllowed := g.MaxBetFor(p); a.Amount > maxAllowed {
			return reject(CodeRaiseTooLarge, "maximum bet is %d", maxAllowed)
		}
		g.commit(p, a.Amount)
		gs.LastRaise = a.Amount
		p.HasActed = true
		g.resetActedExcept(p)

	case ActionRaise:
		if maxBet == 0 {
			return reject(CodeBetExists, "no bet to raise").withSuggestion("bet instead")
		}
		if p.HasActed {
			// Acting again without a full raise in between means a short
			// all-in arrived; it does not reopen betting.
			return reject(CodeCannotRaise, "betting was not reopened").
				withSuggestion("call or fold")
		}
		if a.Amount <= maxBet {
			return reject(CodeRaiseTooSmall, "raise must exceed current bet %d", maxBet)
		}
		if a.Amount > p.Chips+p.CurrentBet {
			return reject(CodeInsufficientChips, "raise to %d exceeds stack", a.Amount)
		}
		if maxAllowed := g.MaxBetFor(p); a.Amount > maxAllowed {
			return reject(CodeRaiseTooLarge, "maximum raise is %d", maxAllowed)
		}
		if a.Amount < g.MinRaiseTo() {
			// Below minimum is only legal as an all-in for the full stack.
			if a.Amount != p.Chips+p.CurrentBet {
				return reject(CodeRaiseTooSmall, "minimum raise is %d", g.MinRaiseTo())
			}
		}
		reopens := g.reopensAction(a.Amount)
		increment := a.Amount - maxBet
		g.commit(p, a.Amount-p.CurrentBet)
		p.HasActed = true
		if reopens {
			gs.LastRaise = increment
			g.resetActedExcept(p)
		}
		gs.MinRaise = g.MinRaiseTo()

	case ActionAllIn:
		if p.Chips == 0 {
			return reject(CodeInsufficientChips, "no chips remaining")
		}
		g.moveAllIn(p)
	}

	gs.MinRaise = g.MinRaiseTo()
	return nil
}

// moveAllIn commits the player's whole stack. When the resulting total
// exceeds the table bet it acts as a raise; a short all-in below the
// minimum raise does not reopen action.
func (g *Game) moveAllIn(p *PlayerState) {
	gs := g.state
	maxBet := gs.MaxCurrentBet()
	total := p.CurrentBet + p.Chips
	g.commit(p, p.Chips)
	p.Status = StatusAllIn
	p.HasActed = true
	if total > maxBet {
		if g.reopensAction(total) {
			gs.LastRaise = total - maxBet
			g.resetActedExcept(p)
		}
	}
	gs.SidePots = computeSidePots(gs.Players)
}

// commit moves chips from the stack into the current round's bet.
func (g *Game) commit(p *PlayerState, amount int) {
	p.Chips -= amount
	p.CurrentBet += amount
	p.TotalBet += amount
	if p.Chips == 0 {
		p.Status = StatusAllIn
	}
}

// resetActedExcept clears acted flags for everyone who can still
// respond to a raise.
func (g *Game) resetActedExcept(raiser *PlayerState) {
	for _, p := range g.state.Players {
		if p != raiser && p.Status == StatusActive {
			p.HasActed = false
		}
	}
}

// advanceTurn moves action to the next player, advancing phases as
// betting rounds complete.
func (g *Game) advanceTurn(last *PlayerState) {
	gs := g.state

	if g.playersInHand() <= 1 {
		g.finishByFold()
		return
	}

	if g.roundComplete() {
		g.advancePhase()
		return
	}

	lastIdx := g.seatIndex(last.Seat)
	next := g.nextActorFrom((lastIdx + 1) % len(gs.Players))
	if next < 0 {
		g.advancePhase()
		return
	}
	gs.CurrentPlayer = gs.Players[next].ID
	gs.bump()
}

// roundComplete reports whether the betting round is over: everyone
// still able to act has acted and matched the table bet. With one or
// zero players left able to act the round is complete regardless.
func (g *Game) roundComplete() bool {
	gs := g.state
	maxBet := gs.MaxCurrentBet()
	for _, p := range gs.Players {
		if p.Status != StatusActive {
			continue
		}
		if !p.HasActed {
			return false
		}
		if p.CurrentBet != maxBet {
			return false
		}
	}
	return true
}

// advancePhase collects the round's bets, recomputes side pots if any
// all-in is present, deals the next community cards (with a burn) and
// resets per-round bookkeeping. Phases only ever move forward.
func (g *Game) advancePhase() {
	gs := g.state

	for _, p := range gs.Players {
		gs.Pot += p.CurrentBet
		p.CurrentBet = 0
		p.HasActed = false
	}
	gs.SidePots = computeSidePots(gs.Players)
	gs.LastRaise = 0
	gs.MinRaise = g.rules.BigBlind
	gs.CurrentPlayer = ""

	switch gs.Phase {
	case Preflop:
		gs.Phase = Flop
		g.dealCommunity(3)
		g.flopSeen = true
	case Flop:
		gs.Phase = Turn
		g.dealCommunity(1)
	case Turn:
		gs.Phase = River
		g.dealCommunity(1)
	case River:
		gs.Phase = Showdown
		gs.bump()
		return
	default:
		return
	}

	if g.playersInHand() <= 1 {
		g.finishByFold()
		return
	}

	// First to act is the next active player after the dealer.
	dealerIdx := g.seatIndex(gs.DealerSeat)
	next := g.nextActorFrom((dealerIdx + 1) % len(gs.Players))
	if next < 0 {
		// Everyone left is all-in: run out the board.
		gs.bump()
		g.advancePhase()
		return
	}
	gs.CurrentPlayer = gs.Players[next].ID
	gs.bump()
}

func (g *Game) dealCommunity(n int) {
	burn, err := g.deck.Burn()
	if err == nil {
		g.state.BurnCards = append(g.state.BurnCards, burn)
	}
	cards, err := g.deck.Deal(n)
	if err != nil {
		// A standard deck cannot run out with at most 9 players; if it
		// does the state is corrupt.
		g.cancel()
		return
	}
	g.state.CommunityCards = append(g.state.CommunityCards, cards...)
}

// finishByFold ends the hand when at most one player remains in it.
func (g *Game) finishByFold() {
	gs := g.state
	for _, p := range gs.Players {
		gs.Pot += p.CurrentBet
		p.CurrentBet = 0
	}
	gs.SidePots = computeSidePots(gs.Players)
	gs.CurrentPlayer = ""
	gs.Phase = Showdown // Finish resolves from here; single-player showdown is trivial
	gs.bump()
}

// Pause freezes the hand. Only a non-terminal, non-showdown phase can
// pause; Resume restores the exact phase.
func (g *Game) Pause() error {
	gs := g.state
	if gs.Phase.Terminal() || gs.Phase == Paused {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidState, gs.Phase)
	}
	g.resumePhase = gs.Phase
	gs.Phase = Paused
	gs.bump()
	return nil
}

// Resume returns a paused hand to its prior phase.
func (g *Game) Resume() error {
	gs := g.state
	if gs.Phase != Paused {
		return fmt.Errorf("%w: not paused", ErrInvalidState)
	}
	gs.Phase = g.resumePhase
	gs.bump()
	return nil
}

// Cancel aborts the hand and refunds every player's contribution. Used
// for fatal errors where winners cannot be determined safely.
func (g *Game) Cancel() {
	g.cancel()
}

func (g *Game) cancel() {
	gs := g.state
	if gs.Phase == Cancelled {
		return
	}
	for _, p := range gs.Players {
		refund := p.TotalBet
		p.Chips += refund
		p.TotalBet = 0
		p.CurrentBet = 0
	}
	gs.Pot = 0
	gs.SidePots = nil
	gs.CurrentPlayer = ""
	gs.Phase = Cancelled
	gs.bump()
}

// checkConservation verifies no chips were created or destroyed since
// the deal. Rake is only deducted at completion, after this check.
func (g *Game) checkConservation() error {
	total := g.state.TotalChips()
	if total != g.baseline {
		return fmt.Errorf("%w: expected %d chips in play, found %d", ErrChipConservation, g.baseline, total)
	}
	return nil
}

func (g *Game) playersInHand() int {
	n := 0
	for _, p := range g.state.Players {
		if p.InHand() {
			n++
		}
	}
	return n
}

func (g *Game) seatIndex(seat int) int {
	for i, p := range g.state.Players {
		if p.Seat == seat {
			return i
		}
	}
	return -1
}

// nextActorFrom returns the index of the next player able to act,
// scanning forward from the given index with wraparound. Returns -1 if
// nobody can act.
func (g *Game) nextActorFrom(from int) int {
	n := len(g.state.Players)
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if g.state.Players[idx].CanAct() {
			return idx
		}
	}
	return -1
}
