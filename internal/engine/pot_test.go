package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSidePotsThreeWayAllIn(t *testing.T) {
	t.Parallel()

	// Stacks 50/100/200, everyone all-in, no further betting.
	players := []*PlayerState{
		{ID: "short", Seat: 0, TotalBet: 50, Status: StatusAllIn},
		{ID: "mid", Seat: 1, TotalBet: 100, Status: StatusAllIn},
		{ID: "big", Seat: 2, TotalBet: 200, Status: StatusAllIn},
	}

	pots := computeSidePots(players)
	assert.Len(t, pots, 2)

	assert.True(t, pots[0].IsMainPot)
	assert.Equal(t, 150, pots[0].Amount)
	assert.ElementsMatch(t, []string{"short", "mid", "big"}, pots[0].Eligible)

	assert.False(t, pots[1].IsMainPot)
	assert.Equal(t, 100, pots[1].Amount)
	assert.ElementsMatch(t, []string{"mid", "big"}, pots[1].Eligible)

	// The unmatched 100 from the big stack is not in any pot.
	refunds := uncontested(players)
	assert.Equal(t, map[string]int{"big": 100}, refunds)
}

func TestComputeSidePotsNoAllIn(t *testing.T) {
	t.Parallel()

	players := []*PlayerState{
		{ID: "a", Seat: 0, TotalBet: 20, Status: StatusActive},
		{ID: "b", Seat: 1, TotalBet: 20, Status: StatusActive},
	}
	assert.Nil(t, computeSidePots(players))
}

func TestComputeSidePotsFoldedMoneyStaysInPot(t *testing.T) {
	t.Parallel()

	// Folder's dead money funds the levels but the folder is never
	// eligible.
	players := []*PlayerState{
		{ID: "folder", Seat: 0, TotalBet: 30, Status: StatusFolded},
		{ID: "short", Seat: 1, TotalBet: 40, Status: StatusAllIn},
		{ID: "caller", Seat: 2, TotalBet: 40, Status: StatusActive},
	}

	pots := computeSidePots(players)
	assert.Len(t, pots, 1)
	assert.Equal(t, 110, pots[0].Amount)
	assert.ElementsMatch(t, []string{"short", "caller"}, pots[0].Eligible)
}

func TestComputeSidePotsFoldAboveAllIn(t *testing.T) {
	t.Parallel()

	// The folder's 100 sits above the short all-in: the slice between
	// 50 and 100 must become a side pot for the big stack, not vanish.
	players := []*PlayerState{
		{ID: "folder", Seat: 0, TotalBet: 100, Status: StatusFolded},
		{ID: "short", Seat: 1, TotalBet: 50, Status: StatusAllIn},
		{ID: "big", Seat: 2, TotalBet: 150, Status: StatusAllIn},
	}

	pots := computeSidePots(players)
	assert.Len(t, pots, 2)

	assert.True(t, pots[0].IsMainPot)
	assert.Equal(t, 150, pots[0].Amount)
	assert.ElementsMatch(t, []string{"short", "big"}, pots[0].Eligible)

	assert.Equal(t, 100, pots[1].Amount)
	assert.ElementsMatch(t, []string{"big"}, pots[1].Eligible)

	refunds := uncontested(players)
	assert.Equal(t, map[string]int{"big": 50}, refunds)

	// Pots plus refund account for every chip committed.
	total := refunds["big"]
	for _, pot := range pots {
		total += pot.Amount
	}
	assert.Equal(t, 100+50+150, total)
}

func TestComputeSidePotsEqualAllIns(t *testing.T) {
	t.Parallel()

	players := []*PlayerState{
		{ID: "a", Seat: 0, TotalBet: 100, Status: StatusAllIn},
		{ID: "b", Seat: 1, TotalBet: 100, Status: StatusAllIn},
	}

	pots := computeSidePots(players)
	assert.Len(t, pots, 1)
	assert.Equal(t, 200, pots[0].Amount)
	assert.ElementsMatch(t, []string{"a", "b"}, pots[0].Eligible)
	assert.Empty(t, uncontested(players))
}
