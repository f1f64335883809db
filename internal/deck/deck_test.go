package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckHas52UniqueCards(t *testing.T) {
	t.Parallel()

	d := New()
	require.Equal(t, 52, d.Remaining())

	seen := make(map[Card]bool)
	cards, err := d.Deal(52)
	require.NoError(t, err)
	for _, c := range cards {
		assert.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, 52)
}

func TestDealInsufficientCards(t *testing.T) {
	t.Parallel()

	d := New()
	_, err := d.Deal(50)
	require.NoError(t, err)

	_, err = d.Deal(3)
	require.ErrorIs(t, err, ErrInsufficientCards)
	assert.Equal(t, 2, d.Remaining())
}

func TestShuffleSeededIsDeterministic(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.ShuffleSeeded(42)
	b.ShuffleSeeded(42)

	ca, err := a.Deal(52)
	require.NoError(t, err)
	cb, err := b.Deal(52)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)

	c := New()
	c.ShuffleSeeded(43)
	cc, err := c.Deal(52)
	require.NoError(t, err)
	assert.NotEqual(t, ca, cc)
}

func TestShufflePreservesCardSet(t *testing.T) {
	t.Parallel()

	d := New()
	d.Shuffle()

	seen := make(map[Card]bool)
	cards, err := d.Deal(52)
	require.NoError(t, err)
	for _, c := range cards {
		seen[c] = true
	}
	assert.Len(t, seen, 52)
}

func TestBurnTracksCards(t *testing.T) {
	t.Parallel()

	d := New()
	d.ShuffleSeeded(7)

	c1, err := d.Burn()
	require.NoError(t, err)
	_, err = d.Deal(3)
	require.NoError(t, err)
	c2, err := d.Burn()
	require.NoError(t, err)

	assert.Equal(t, []Card{c1, c2}, d.Burned())
	assert.Equal(t, 52-5, d.Remaining())
}

func TestResetRestoresFullDeck(t *testing.T) {
	t.Parallel()

	d := New()
	d.Shuffle()
	_, err := d.Deal(20)
	require.NoError(t, err)
	_, err = d.Burn()
	require.NoError(t, err)

	d.Reset()
	assert.Equal(t, 52, d.Remaining())
	assert.Empty(t, d.Burned())

	// Canonical order after reset: first card is 2♠.
	top, err := d.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, NewCard(Spades, Two), top[0])
}

func TestAddRemoveCard(t *testing.T) {
	t.Parallel()

	d := New()
	c := NewCard(Hearts, Ace)

	require.NoError(t, d.RemoveCard(c))
	assert.Equal(t, 51, d.Remaining())

	// Can't remove twice or add a duplicate of a present card.
	require.Error(t, d.RemoveCard(c))
	require.NoError(t, d.AddCard(c))
	require.Error(t, d.AddCard(c))
	assert.Equal(t, 52, d.Remaining())
}

func TestCardString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "A♠", NewCard(Spades, Ace).String())
	assert.Equal(t, "T♥", NewCard(Hearts, Ten).String())
	assert.Equal(t, "2♣", NewCard(Clubs, Two).String())
	assert.True(t, NewCard(Diamonds, King).IsRed())
}
