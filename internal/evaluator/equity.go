package evaluator

import (
	"context"
	"fmt"
	randv2 "math/rand/v2"
	"runtime"

	"github.com/cardroom/holdem/internal/deck"
	"golang.org/x/sync/errgroup"
)

// Equity estimates win probability for a hole-card pair against a given
// number of random opponents via Monte Carlo simulation. This is a
// best-effort analytics helper, never an authoritative game result.
type Equity struct {
	Win  float64
	Tie  float64
	Lose float64
}

// CalculateEquity runs iterations of random deals split across workers.
// The board may hold 0, 3, 4 or 5 already-dealt community cards.
func CalculateEquity(ctx context.Context, hole []deck.Card, board []deck.Card, opponents, iterations int) (Equity, error) {
	if len(hole) != 2 {
		return Equity{}, fmt.Errorf("equity requires exactly 2 hole cards, got %d", len(hole))
	}
	if opponents < 1 || opponents > 9 {
		return Equity{}, fmt.Errorf("opponents must be 1-9, got %d", opponents)
	}
	if iterations <= 0 {
		iterations = 10000
	}

	used := make(map[deck.Card]bool, len(hole)+len(board))
	for _, c := range append(append([]deck.Card{}, hole...), board...) {
		if used[c] {
			return Equity{}, fmt.Errorf("duplicate card %s", c)
		}
		used[c] = true
	}

	// Remaining cards available to deal.
	stub := make([]deck.Card, 0, 52)
	for suit := deck.Spades; suit <= deck.Clubs; suit++ {
		for rank := deck.Two; rank <= deck.Ace; rank++ {
			c := deck.NewCard(suit, rank)
			if !used[c] {
				stub = append(stub, c)
			}
		}
	}

	workers := runtime.NumCPU()
	if workers > iterations {
		workers = iterations
	}
	perWorker := iterations / workers

	type tally struct{ wins, ties, total int }
	results := make([]tally, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			rng := randv2.New(randv2.NewPCG(randv2.Uint64(), randv2.Uint64()))
			local := stub
			shuffled := make([]deck.Card, len(local))
			for i := 0; i < perWorker; i++ {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				copy(shuffled, local)
				rng.Shuffle(len(shuffled), func(a, b int) {
					shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
				})

				next := 0
				fullBoard := append(append([]deck.Card{}, board...), shuffled[next:next+5-len(board)]...)
				next += 5 - len(board)

				hero, err := Evaluate(append(append([]deck.Card{}, hole...), fullBoard...))
				if err != nil {
					return err
				}

				best := 1 // 1 = hero ahead, 0 = tied, -1 = behind
				for o := 0; o < opponents; o++ {
					villainHole := shuffled[next : next+2]
					next += 2
					villain, err := Evaluate(append(append([]deck.Card{}, villainHole...), fullBoard...))
					if err != nil {
						return err
					}
					cmp := Compare(hero, villain)
					if cmp > 0 {
						best = -1
						break
					}
					if cmp == 0 && best == 1 {
						best = 0
					}
				}

				results[w].total++
				switch best {
				case 1:
					results[w].wins++
				case 0:
					results[w].ties++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Equity{}, err
	}

	var wins, ties, total int
	for _, r := range results {
		wins += r.wins
		ties += r.ties
		total += r.total
	}
	if total == 0 {
		return Equity{}, fmt.Errorf("no valid samples")
	}
	eq := Equity{
		Win: float64(wins) / float64(total),
		Tie: float64(ties) / float64(total),
	}
	eq.Lose = 1 - eq.Win - eq.Tie
	return eq, nil
}

// CountOuts gives a rough count of distinct cards that would improve the
// hole cards to beat the current best board hand. Simplified heuristic:
// a card is an out if drawing it strictly improves the hero's category.
func CountOuts(hole []deck.Card, board []deck.Card) (int, error) {
	if len(hole) != 2 || len(board) < 3 || len(board) > 4 {
		return 0, fmt.Errorf("outs require 2 hole cards and a 3-4 card board")
	}
	current, err := Evaluate(append(append([]deck.Card{}, hole...), board...))
	if err != nil {
		return 0, err
	}

	used := make(map[deck.Card]bool)
	for _, c := range append(append([]deck.Card{}, hole...), board...) {
		used[c] = true
	}

	outs := 0
	for suit := deck.Spades; suit <= deck.Clubs; suit++ {
		for rank := deck.Two; rank <= deck.Ace; rank++ {
			c := deck.NewCard(suit, rank)
			if used[c] {
				continue
			}
			improved, err := Evaluate(append(append(append([]deck.Card{}, hole...), board...), c))
			if err != nil {
				return 0, err
			}
			if improved.Category > current.Category {
				outs++
			}
		}
	}
	return outs, nil
}
