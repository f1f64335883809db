package engine

import (
	"testing"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() Rules {
	return Rules{Limit: NoLimit, SmallBlind: 1, BigBlind: 2}
}

// newTestGame builds a dealt hand with the given stacks, seats 0..n-1,
// ids "p0".."pn-1", dealer at seat 0, over an unshuffled deck.
func newTestGame(t *testing.T, rules Rules, chips ...int) *Game {
	t.Helper()
	players := make([]*PlayerState, len(chips))
	for i, c := range chips {
		players[i] = &PlayerState{ID: playerID(i), Seat: i, Chips: c}
	}
	g, err := NewGame(players, 0, rules, deck.New())
	require.NoError(t, err)
	require.NoError(t, g.Deal())
	return g
}

func playerID(i int) string {
	return string(rune('a' + i))
}

func mustApply(t *testing.T, g *Game, player string, a Action) {
	t.Helper()
	rej, err := g.Apply(player, a)
	require.NoError(t, err)
	require.Nil(t, rej, "action %s by %s rejected: %v", a.Kind, player, rej)
}

func totalInPlay(g *Game) int {
	return g.State().TotalChips()
}

func TestHeadsUpDealerIsSmallBlindAndActsFirst(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 200, 200)
	gs := g.State()

	assert.Equal(t, 0, gs.SmallBlindSeat)
	assert.Equal(t, 1, gs.BigBlindSeat)
	assert.True(t, gs.Players[0].IsDealer)
	assert.True(t, gs.Players[0].IsSmallBlind)
	assert.Equal(t, "a", gs.CurrentPlayer)
	assert.Equal(t, 1, gs.Players[0].CurrentBet)
	assert.Equal(t, 2, gs.Players[1].CurrentBet)
}

func TestThreeHandedBlindPositions(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100, 100)
	gs := g.State()

	assert.Equal(t, 1, gs.SmallBlindSeat)
	assert.Equal(t, 2, gs.BigBlindSeat)
	// First to act preflop is left of the big blind: the dealer here.
	assert.Equal(t, "a", gs.CurrentPlayer)
}

func TestLimpedHandToShowdown(t *testing.T) {
	t.Parallel()

	// 2 players, blinds 1/2, stacks 200. A limps, B checks; flop B bets
	// 10, A calls; turn and river check through to showdown.
	g := newTestGame(t, testRules(), 200, 200)
	before := totalInPlay(g)

	mustApply(t, g, "a", CallAction())
	mustApply(t, g, "b", CheckAction())
	require.Equal(t, Flop, g.State().Phase)
	assert.Equal(t, 4, g.State().Pot)
	assert.Len(t, g.State().CommunityCards, 3)
	assert.Len(t, g.State().BurnCards, 1)

	// Postflop first action is left of the dealer.
	require.Equal(t, "b", g.State().CurrentPlayer)
	mustApply(t, g, "b", BetAction(10))
	mustApply(t, g, "a", CallAction())
	require.Equal(t, Turn, g.State().Phase)

	mustApply(t, g, "b", CheckAction())
	mustApply(t, g, "a", CheckAction())
	require.Equal(t, River, g.State().Phase)
	assert.Len(t, g.State().CommunityCards, 5)
	assert.Len(t, g.State().BurnCards, 3)

	mustApply(t, g, "b", CheckAction())
	mustApply(t, g, "a", CheckAction())
	require.Equal(t, Showdown, g.State().Phase)

	require.True(t, g.Finishable())
	result, err := g.Finish()
	require.NoError(t, err)
	assert.Equal(t, 24, result.GrossPot)
	assert.Zero(t, result.Rake)

	// Unshuffled deck: the board and both hole hands are all spades, B
	// holds the better flush kicker.
	require.Len(t, result.Winners, 1)
	assert.Equal(t, "b", result.Winners[0].PlayerID)
	assert.Equal(t, 24, result.Winners[0].Amount)

	gs := g.State()
	assert.Equal(t, Finished, gs.Phase)
	assert.Equal(t, 212, gs.PlayerByID("b").Chips)
	assert.Equal(t, 188, gs.PlayerByID("a").Chips)
	assert.Equal(t, before, totalInPlay(g))
}

func TestChipConservationAcrossActions(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 150, 80, 300)
	before := totalInPlay(g)

	steps := []struct {
		player string
		action Action
	}{
		{"a", RaiseAction(6)},
		{"b", CallAction()},
		{"c", CallAction()},
		{"b", CheckAction()},
		{"c", BetAction(12)},
		{"a", CallAction()},
		{"b", FoldAction()},
	}
	for _, s := range steps {
		mustApply(t, g, s.player, s.action)
		assert.Equal(t, before, totalInPlay(g), "after %s by %s", s.action.Kind, s.player)
	}
}

func TestFoldDownToOneFinishesImmediately(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100, 100)
	mustApply(t, g, "a", FoldAction())
	mustApply(t, g, "b", FoldAction())

	// Only the big blind remains; the hand is terminal without showdown.
	require.True(t, g.Finishable())
	result, err := g.Finish()
	require.NoError(t, err)
	require.Len(t, result.Winners, 1)
	assert.Equal(t, "c", result.Winners[0].PlayerID)

	// BB wins the small blind; their own blind comes back.
	assert.Equal(t, 101, g.State().PlayerByID("c").Chips)
}

func TestCheckRejectedWhenFacingBet(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	rej, err := g.Apply("a", CheckAction())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeCannotCheck, rej.Code)
	assert.NotEmpty(t, rej.Suggestion)
}

func TestWrongTurnRejected(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	rej, err := g.Apply("b", CallAction())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeNotYourTurn, rej.Code)

	rej, err = g.Apply("nobody", FoldAction())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeUnknownPlayer, rej.Code)
}

func TestBetRequiresNoExistingBet(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	// Preflop the big blind counts as the standing bet.
	rej, err := g.Apply("a", BetAction(10))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeBetExists, rej.Code)
}

func TestMinimumRaiseEnforced(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)

	// Current bet 2, last raise 0: minimum raise-to is 4.
	rej, err := g.Apply("a", RaiseAction(3))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeRaiseTooSmall, rej.Code)

	mustApply(t, g, "a", RaiseAction(8))
	// Raise increment was 6; next minimum raise-to is 14.
	rej, err = g.Apply("b", RaiseAction(12))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeRaiseTooSmall, rej.Code)

	mustApply(t, g, "b", RaiseAction(14))
}

func TestCallForWholeStackBecomesAllIn(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 200, 30)
	mustApply(t, g, "a", RaiseAction(50))
	mustApply(t, g, "b", CallAction())

	p := g.State().PlayerByID("b")
	assert.Equal(t, StatusAllIn, p.Status)
	assert.Zero(t, p.Chips)
}

func TestShortAllInDoesNotReopenBetting(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 200, 25, 200)

	// a raises to 20; b shoves 25 total, short of the minimum raise-to
	// of 38; c calls 25. a already matched 20 and the short all-in does
	// not reopen action, so a may only call the extra 5 or fold, and
	// once a calls the round is complete.
	mustApply(t, g, "a", RaiseAction(20))
	mustApply(t, g, "b", AllInAction())
	mustApply(t, g, "c", CallAction())

	require.Equal(t, "a", g.State().CurrentPlayer)
	rej, err := g.Apply("a", RaiseAction(60))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeCannotRaise, rej.Code)

	mustApply(t, g, "a", CallAction())
	assert.Equal(t, Flop, g.State().Phase)
}

func TestAllInAboveMinimumReopensBetting(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 200, 100, 200)

	mustApply(t, g, "a", RaiseAction(10))
	mustApply(t, g, "b", AllInAction()) // 100 total, a full raise
	mustApply(t, g, "c", FoldAction())

	// a faces a legitimate raise and may re-raise.
	require.Equal(t, "a", g.State().CurrentPlayer)
	mustApply(t, g, "a", RaiseAction(200))
	assert.Equal(t, StatusAllIn, g.State().PlayerByID("a").Status)
}

func TestEveryoneAllInRunsOutBoard(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	mustApply(t, g, "a", AllInAction())
	mustApply(t, g, "b", AllInAction())

	gs := g.State()
	require.Equal(t, Showdown, gs.Phase)
	assert.Len(t, gs.CommunityCards, 5)

	result, err := g.Finish()
	require.NoError(t, err)
	assert.Equal(t, 200, result.GrossPot)
}

func TestFoldedRaiseAboveShortAllInFundsSidePot(t *testing.T) {
	t.Parallel()

	// a raises to 100 and folds to the bigger all-in; b is all-in for
	// 50, c for 150. The 50..100 slice of a's dead money belongs in a
	// side pot for c, and only c's unmatched 50 comes back.
	g := newTestGame(t, testRules(), 200, 50, 150)
	before := totalInPlay(g)

	mustApply(t, g, "a", RaiseAction(100))
	mustApply(t, g, "b", AllInAction())
	mustApply(t, g, "c", AllInAction())
	mustApply(t, g, "a", FoldAction())

	require.True(t, g.Finishable())
	result, err := g.Finish()
	require.NoError(t, err)

	assert.Equal(t, 250, result.GrossPot, "gross is all contributions minus c's unmatched 50")
	assert.Equal(t, 100, g.State().PlayerByID("a").Chips, "a keeps only the uncommitted 100")

	pots := g.State().SidePots
	require.Len(t, pots, 2)
	assert.Equal(t, 150, pots[0].Amount)
	assert.ElementsMatch(t, []string{"b", "c"}, pots[0].Eligible)
	assert.Equal(t, 100, pots[1].Amount)
	assert.ElementsMatch(t, []string{"c"}, pots[1].Eligible)

	awarded := 0
	for _, w := range result.Winners {
		awarded += w.Amount
	}
	assert.Equal(t, 250, awarded)
	assert.Equal(t, before, totalInPlay(g))
}

func TestPhaseNeverRegresses(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	seen := []Phase{g.State().Phase}

	script := []struct {
		player string
		action Action
	}{
		{"a", CallAction()}, {"b", CheckAction()},
		{"b", CheckAction()}, {"a", CheckAction()},
		{"b", CheckAction()}, {"a", CheckAction()},
		{"b", CheckAction()}, {"a", CheckAction()},
	}
	for _, s := range script {
		mustApply(t, g, s.player, s.action)
		seen = append(seen, g.State().Phase)
	}

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "phase regressed at step %d", i)
	}
	assert.Equal(t, Showdown, seen[len(seen)-1])
}

func TestStateVersionMonotonic(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	v := g.State().StateVersion
	mustApply(t, g, "a", CallAction())
	assert.Greater(t, g.State().StateVersion, v)
	v = g.State().StateVersion
	mustApply(t, g, "b", CheckAction())
	assert.Greater(t, g.State().StateVersion, v)
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	mustApply(t, g, "a", CallAction())

	require.NoError(t, g.Pause())
	assert.Equal(t, Paused, g.State().Phase)

	rej, err := g.Apply("b", CheckAction())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeWrongPhase, rej.Code)

	require.NoError(t, g.Resume())
	assert.Equal(t, Preflop, g.State().Phase)
	mustApply(t, g, "b", CheckAction())
	assert.Equal(t, Flop, g.State().Phase)
}

func TestCancelRefundsAllContributions(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100, 100)
	mustApply(t, g, "a", RaiseAction(20))
	mustApply(t, g, "b", CallAction())

	g.Cancel()
	gs := g.State()
	assert.Equal(t, Cancelled, gs.Phase)
	assert.Zero(t, gs.Pot)
	for _, p := range gs.Players {
		assert.Equal(t, 100, p.Chips, "player %s", p.ID)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	mustApply(t, g, "a", FoldAction())

	first, err := g.Finish()
	require.NoError(t, err)
	second, err := g.Finish()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 101, g.State().PlayerByID("b").Chips)
}

func TestRakeDeductedAtCompletion(t *testing.T) {
	t.Parallel()

	rules := testRules()
	rules.Rake = RakeRules{Percent: 5, Cap: 10, MinPot: 10}
	g := newTestGame(t, rules, 200, 200)

	mustApply(t, g, "a", RaiseAction(50))
	mustApply(t, g, "b", CallAction())
	for _, round := range [][]string{{"b", "a"}, {"b", "a"}, {"b", "a"}} {
		for _, p := range round {
			mustApply(t, g, p, CheckAction())
		}
	}

	result, err := g.Finish()
	require.NoError(t, err)
	assert.Equal(t, 100, result.GrossPot)
	assert.Equal(t, 5, result.Rake)
	assert.Equal(t, 95, result.NetPot)
}

func TestNoFlopNoDrop(t *testing.T) {
	t.Parallel()

	rules := testRules()
	rules.Rake = RakeRules{Percent: 5, Cap: 10, MinPot: 1, NoFlopNoDrop: true}
	g := newTestGame(t, rules, 200, 200)

	// Hand ends preflop: no flop, no rake.
	mustApply(t, g, "a", FoldAction())
	result, err := g.Finish()
	require.NoError(t, err)
	assert.Zero(t, result.Rake)
}

func TestActionHistoryRecordsResolvedAmounts(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 200, 200)

	mustApply(t, g, "a", CallAction())
	mustApply(t, g, "b", CheckAction())
	mustApply(t, g, "b", AllInAction())
	mustApply(t, g, "a", CallAction()) // for the whole stack

	hist := g.State().ActionHistory
	require.Len(t, hist, 4)

	// The preflop call completes the small blind to 2, not 0.
	assert.Equal(t, ActionCall, hist[0].Kind)
	assert.Equal(t, 2, hist[0].Amount)
	assert.False(t, hist[0].Raised)

	// The shove records its committed total and counts as a raise.
	assert.Equal(t, ActionAllIn, hist[2].Kind)
	assert.Equal(t, 198, hist[2].Amount)
	assert.True(t, hist[2].Raised)

	// Calling for the stack resolves to the same total without raising.
	assert.Equal(t, ActionCall, hist[3].Kind)
	assert.Equal(t, 198, hist[3].Amount)
	assert.False(t, hist[3].Raised)
}

func TestPhaseTaggedActionHistory(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	mustApply(t, g, "a", CallAction())
	mustApply(t, g, "b", CheckAction())
	mustApply(t, g, "b", BetAction(4))
	mustApply(t, g, "a", CallAction())

	pre := g.State().ActionsInPhase(Preflop)
	flop := g.State().ActionsInPhase(Flop)
	require.Len(t, pre, 2)
	require.Len(t, flop, 2)
	assert.Equal(t, ActionBet, flop[0].Kind)
}

func TestValidActionsFacingBet(t *testing.T) {
	t.Parallel()

	g := newTestGame(t, testRules(), 100, 100)
	p := g.State().PlayerByID("a")
	actions := g.ValidActions(p)
	assert.Contains(t, actions, ActionFold)
	assert.Contains(t, actions, ActionCall)
	assert.Contains(t, actions, ActionRaise)
	assert.NotContains(t, actions, ActionCheck)
	assert.NotContains(t, actions, ActionBet)
}
