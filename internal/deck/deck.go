package deck

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	randv2 "math/rand/v2"
)

// ErrInsufficientCards is returned when a deal requests more cards than remain.
var ErrInsufficientCards = errors.New("insufficient cards in deck")

// Deck owns the full ordered 52-card set and a working sequence consumed
// by Deal and Burn. The working sequence is always a subset of the
// original set with no duplicates; Reset restores all 52 in order.
type Deck struct {
	original []Card
	cards    []Card
	burned   []Card
}

// New creates a standard 52-card deck in canonical (unshuffled) order.
func New() *Deck {
	d := &Deck{
		original: make([]Card, 0, 52),
	}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.original = append(d.original, NewCard(suit, rank))
		}
	}
	d.cards = make([]Card, 52)
	copy(d.cards, d.original)
	return d
}

// Shuffle randomizes the working sequence using a cryptographically
// strong source. Game integrity depends on the permutation being
// unpredictable, so the seed comes from crypto/rand.
func (d *Deck) Shuffle() {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("deck: failed to read entropy: " + err.Error())
	}
	d.shuffleWith(randv2.NewChaCha8(seed))
}

// ShuffleSeeded produces a deterministic permutation from the given seed.
// Used for reproducible hands in tests and audit replays; the underlying
// generator is still ChaCha8.
func (d *Deck) ShuffleSeeded(seed int64) {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], uint64(seed))
	binary.LittleEndian.PutUint64(key[8:16], mix(uint64(seed)))
	binary.LittleEndian.PutUint64(key[16:24], mix(mix(uint64(seed))))
	binary.LittleEndian.PutUint64(key[24:], mix(mix(mix(uint64(seed)))))
	d.shuffleWith(randv2.NewChaCha8(key))
}

func (d *Deck) shuffleWith(src randv2.Source) {
	rng := randv2.New(src)
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the first n cards from the working sequence.
func (d *Deck) Deal(n int) ([]Card, error) {
	if n < 0 {
		return nil, fmt.Errorf("deck: cannot deal %d cards", n)
	}
	if n > len(d.cards) {
		return nil, fmt.Errorf("%w: requested %d, have %d", ErrInsufficientCards, n, len(d.cards))
	}
	dealt := make([]Card, n)
	copy(dealt, d.cards[:n])
	d.cards = d.cards[n:]
	return dealt, nil
}

// Burn discards the top card, recording it for bookkeeping. One card is
// burned immediately before each of the flop, turn and river deals.
func (d *Deck) Burn() (Card, error) {
	cards, err := d.Deal(1)
	if err != nil {
		return Card{}, err
	}
	d.burned = append(d.burned, cards[0])
	return cards[0], nil
}

// Burned returns the cards burned so far this hand.
func (d *Deck) Burned() []Card {
	out := make([]Card, len(d.burned))
	copy(out, d.burned)
	return out
}

// Peek returns the first n cards without removing them.
func (d *Deck) Peek(n int) ([]Card, error) {
	if n > len(d.cards) {
		return nil, fmt.Errorf("%w: requested %d, have %d", ErrInsufficientCards, n, len(d.cards))
	}
	out := make([]Card, n)
	copy(out, d.cards[:n])
	return out, nil
}

// AddCard returns a card to the bottom of the working sequence. Fails if
// the card is already present or is not part of the original set.
func (d *Deck) AddCard(c Card) error {
	found := false
	for _, o := range d.original {
		if o == c {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("deck: card %s is not part of this deck", c)
	}
	for _, w := range d.cards {
		if w == c {
			return fmt.Errorf("deck: card %s already in deck", c)
		}
	}
	d.cards = append(d.cards, c)
	return nil
}

// RemoveCard removes the named card from the working sequence wherever it
// sits. Used to force specific boards in tests and audits.
func (d *Deck) RemoveCard(c Card) error {
	for i, w := range d.cards {
		if w == c {
			d.cards = append(d.cards[:i], d.cards[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("deck: card %s not in deck", c)
}

// Remaining returns the number of cards left in the working sequence.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Reset restores the working sequence to the full 52 cards in canonical
// order and clears the burn record.
func (d *Deck) Reset() {
	d.cards = d.cards[:0]
	d.cards = append(d.cards, d.original...)
	d.burned = d.burned[:0]
}

// mix is a splitmix64-style finalizer used to derive independent key
// words from a single seed.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
