package evaluator

import (
	"context"
	"testing"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateEquityAcesAreFavourites(t *testing.T) {
	t.Parallel()

	hole := []deck.Card{
		card(deck.Ace, deck.Spades),
		card(deck.Ace, deck.Hearts),
	}
	eq, err := CalculateEquity(context.Background(), hole, nil, 1, 2000)
	require.NoError(t, err)

	// AA vs one random hand is roughly 85% to win; allow slack for a
	// small sample.
	assert.Greater(t, eq.Win, 0.75)
	assert.InDelta(t, 1.0, eq.Win+eq.Tie+eq.Lose, 1e-9)
}

func TestCalculateEquityRejectsDuplicates(t *testing.T) {
	t.Parallel()

	hole := []deck.Card{
		card(deck.Ace, deck.Spades),
		card(deck.Ace, deck.Spades),
	}
	_, err := CalculateEquity(context.Background(), hole, nil, 1, 100)
	require.Error(t, err)
}

func TestCountOutsFlushDraw(t *testing.T) {
	t.Parallel()

	hole := []deck.Card{
		card(deck.Ace, deck.Clubs),
		card(deck.King, deck.Clubs),
	}
	board := []deck.Card{
		card(deck.Nine, deck.Clubs),
		card(deck.Four, deck.Clubs),
		card(deck.Two, deck.Hearts),
	}
	outs, err := CountOuts(hole, board)
	require.NoError(t, err)

	// Nine clubs complete the flush; the heuristic may find a few more
	// category improvements (pairing up counts too).
	assert.GreaterOrEqual(t, outs, 9)
}
