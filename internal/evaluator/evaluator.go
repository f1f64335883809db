package evaluator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cardroom/holdem/internal/deck"
)

// ErrInsufficientCards is returned when fewer than five cards are given.
var ErrInsufficientCards = errors.New("hand evaluation requires at least 5 cards")

// Category is the standard poker hand category, low to high.
type Category int

const (
	HighCard Category = iota + 1
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns the readable name of the category
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// HandResult is the outcome of evaluating a hand. Tiebreaks holds the
// deciding card values in comparison order for the category: trips before
// kickers for three of a kind, pair ranks before the kicker for two pair,
// and so on. Within a category, hands compare lexicographically on it.
type HandResult struct {
	Category  Category
	Tiebreaks []int
	Cards     []deck.Card // the best five cards
}

// String returns e.g. "Full House, Kings over Nines" style short form
func (hr HandResult) String() string {
	return fmt.Sprintf("%s %v", hr.Category, hr.Tiebreaks)
}

// Evaluate ranks the best 5-card poker hand available from the given
// cards. With 6 or 7 cards (hold'em: two hole plus the board) it
// enumerates every 5-card subset and keeps the best.
func Evaluate(cards []deck.Card) (HandResult, error) {
	switch {
	case len(cards) < 5:
		return HandResult{}, fmt.Errorf("%w: got %d", ErrInsufficientCards, len(cards))
	case len(cards) == 5:
		five := [5]deck.Card{cards[0], cards[1], cards[2], cards[3], cards[4]}
		return evaluate5(five), nil
	}

	best := HandResult{}
	have := false
	var pick [5]deck.Card
	n := len(cards)
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						pick[0], pick[1], pick[2], pick[3], pick[4] = cards[a], cards[b], cards[c], cards[d], cards[e]
						result := evaluate5(pick)
						if !have || Compare(result, best) < 0 {
							best = result
							have = true
						}
					}
				}
			}
		}
	}
	return best, nil
}

// Compare returns a negative value if a is the better hand, zero on an
// exact tie, and a positive value if b is better. Higher category wins;
// equal categories compare the tiebreak sequences lexicographically. The
// ordering is total and stable across calls, which showdown resolution
// relies on.
func Compare(a, b HandResult) int {
	if a.Category != b.Category {
		return int(b.Category) - int(a.Category)
	}
	n := len(a.Tiebreaks)
	if len(b.Tiebreaks) < n {
		n = len(b.Tiebreaks)
	}
	for i := 0; i < n; i++ {
		if a.Tiebreaks[i] != b.Tiebreaks[i] {
			return b.Tiebreaks[i] - a.Tiebreaks[i]
		}
	}
	return 0
}

func evaluate5(cards [5]deck.Card) HandResult {
	values := make([]int, 5)
	for i, c := range cards {
		values[i] = c.Value()
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))

	flush := true
	for i := 1; i < 5; i++ {
		if cards[i].Suit != cards[0].Suit {
			flush = false
			break
		}
	}

	straightHigh, straight := straightHighCard(values)

	// Rank multiplicity: value -> count
	counts := make(map[int]int, 5)
	for _, v := range values {
		counts[v]++
	}

	// Group values by count, each group sorted descending.
	byCount := map[int][]int{}
	for v, c := range counts {
		byCount[c] = append(byCount[c], v)
	}
	for _, g := range byCount {
		sort.Sort(sort.Reverse(sort.IntSlice(g)))
	}

	out := HandResult{Cards: cards[:]}
	switch {
	case straight && flush && straightHigh == int(deck.Ace):
		out.Category = RoyalFlush
		out.Tiebreaks = []int{straightHigh}
	case straight && flush:
		out.Category = StraightFlush
		out.Tiebreaks = []int{straightHigh}
	case len(byCount[4]) == 1:
		out.Category = FourOfAKind
		out.Tiebreaks = append([]int{byCount[4][0]}, byCount[1]...)
	case len(byCount[3]) == 1 && len(byCount[2]) == 1:
		out.Category = FullHouse
		out.Tiebreaks = []int{byCount[3][0], byCount[2][0]}
	case flush:
		out.Category = Flush
		out.Tiebreaks = values
	case straight:
		out.Category = Straight
		out.Tiebreaks = []int{straightHigh}
	case len(byCount[3]) == 1:
		out.Category = ThreeOfAKind
		out.Tiebreaks = append([]int{byCount[3][0]}, byCount[1]...)
	case len(byCount[2]) == 2:
		out.Category = TwoPair
		out.Tiebreaks = append(append([]int{}, byCount[2]...), byCount[1]...)
	case len(byCount[2]) == 1:
		out.Category = Pair
		out.Tiebreaks = append([]int{byCount[2][0]}, byCount[1]...)
	default:
		out.Category = HighCard
		out.Tiebreaks = values
	}
	return out
}

// straightHighCard reports whether the five descending values form a
// straight and its high card. The wheel (A-2-3-4-5) is the special case:
// it plays as a 5-high straight, never ace-high.
func straightHighCard(desc []int) (int, bool) {
	run := true
	for i := 1; i < 5; i++ {
		if desc[i-1]-desc[i] != 1 {
			run = false
			break
		}
	}
	if run {
		return desc[0], true
	}
	if desc[0] == int(deck.Ace) && desc[1] == 5 && desc[2] == 4 && desc[3] == 3 && desc[4] == 2 {
		return 5, true
	}
	return 0, false
}
