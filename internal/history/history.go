// Package history exports completed hands in the PHH format, a TOML
// based interchange format for poker hand records.
package history

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/engine"
	"github.com/cardroom/holdem/internal/session"
)

// Hand is a single poker hand in PHH form.
type Hand struct {
	Variant           string   `toml:"variant"`
	Table             string   `toml:"table,omitempty"`
	SeatCount         int      `toml:"seat_count,omitempty"`
	Seats             []int    `toml:"seats,omitempty"`
	Antes             []int    `toml:"antes"`
	BlindsOrStraddles []int    `toml:"blinds_or_straddles"`
	MinBet            int      `toml:"min_bet"`
	StartingStacks    []int    `toml:"starting_stacks"`
	FinishingStacks   []int    `toml:"finishing_stacks,omitempty"`
	Winnings          []int    `toml:"winnings,omitempty"`
	Actions           []string `toml:"actions"`
	Players           []string `toml:"players,omitempty"`
	HandID            string   `toml:"hand"`
	Time              string   `toml:"time,omitempty"`
}

// cardNotation renders a card in PHH notation, e.g. As, Th, 9c.
func cardNotation(c deck.Card) string {
	suit := "?"
	switch c.Suit {
	case deck.Spades:
		suit = "s"
	case deck.Hearts:
		suit = "h"
	case deck.Diamonds:
		suit = "d"
	case deck.Clubs:
		suit = "c"
	}
	return c.Rank.String() + suit
}

func cardsNotation(cards []deck.Card) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(cardNotation(c))
	}
	return b.String()
}

// FromHandRound converts a completed hand round to PHH form. Cancelled
// hands and hands still in flight cannot be exported.
func FromHandRound(hr *session.HandRound, table string) (*Hand, error) {
	if hr.Status != session.HandComplete || hr.Game == nil {
		return nil, fmt.Errorf("hand %s: not complete (%s)", hr.ID, hr.Status)
	}

	state := hr.Game.State()
	players := make([]*engine.PlayerState, len(state.Players))
	copy(players, state.Players)
	sort.Slice(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })

	seatOf := make(map[string]int, len(players)) // player id to PHH seat index (0-based)
	h := &Hand{
		Variant:   "NT", // no-limit Texas hold'em
		Table:     table,
		SeatCount: len(players),
		Antes:     make([]int, len(players)),
		MinBet:    state.BigBlind,
		HandID:    hr.ID,
		Time:      hr.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	for i, p := range players {
		seatOf[p.ID] = i
		h.Seats = append(h.Seats, p.Seat+1)
		h.Players = append(h.Players, p.ID)
		net := hr.NetResults[p.ID]
		h.StartingStacks = append(h.StartingStacks, p.Chips-net)
		h.FinishingStacks = append(h.FinishingStacks, p.Chips)
		blind := 0
		if p.IsSmallBlind {
			blind = state.SmallBlind
		}
		if p.IsBigBlind {
			blind = state.BigBlind
		}
		h.BlindsOrStraddles = append(h.BlindsOrStraddles, blind)
	}

	won := make([]int, len(players))
	for _, w := range hr.Winners {
		if i, ok := seatOf[w.PlayerID]; ok {
			won[i] += w.Amount
		}
	}
	h.Winnings = won

	// Hole card deals precede all betting.
	for i, p := range players {
		cards := "????"
		if len(p.Cards) > 0 {
			cards = cardsNotation(p.Cards)
		}
		h.Actions = append(h.Actions, fmt.Sprintf("d dh p%d %s", i+1, cards))
	}

	board := state.CommunityCards
	dealt := 0
	for _, round := range hr.BettingRounds {
		// Board deal boundaries between betting rounds.
		switch round.Phase {
		case engine.Flop:
			if len(board) >= 3 && dealt < 3 {
				h.Actions = append(h.Actions, "d db "+cardsNotation(board[:3]))
				dealt = 3
			}
		case engine.Turn:
			if len(board) >= 4 && dealt < 4 {
				h.Actions = append(h.Actions, "d db "+cardNotation(board[3]))
				dealt = 4
			}
		case engine.River:
			if len(board) >= 5 && dealt < 5 {
				h.Actions = append(h.Actions, "d db "+cardNotation(board[4]))
				dealt = 5
			}
		}
		for _, a := range round.Actions {
			if line, ok := formatAction(seatOf[a.PlayerID], a); ok {
				h.Actions = append(h.Actions, line)
			}
		}
	}
	// Board dealt with no further betting (everyone all in).
	if dealt < len(board) && len(board) >= 3 {
		if dealt < 3 {
			h.Actions = append(h.Actions, "d db "+cardsNotation(board[:3]))
			dealt = 3
		}
		for ; dealt < len(board); dealt++ {
			h.Actions = append(h.Actions, "d db "+cardNotation(board[dealt]))
		}
	}

	return h, nil
}

// formatAction converts one engine action to a PHH action string. The
// second return is false when the action has no PHH representation.
func formatAction(seat int, a engine.ActionRecord) (string, bool) {
	player := fmt.Sprintf("p%d", seat+1)
	switch a.Kind {
	case engine.ActionFold:
		return player + " f", true
	case engine.ActionCheck, engine.ActionCall:
		return player + " cc", true
	case engine.ActionBet, engine.ActionRaise:
		if a.Amount <= 0 {
			return "", false
		}
		return fmt.Sprintf("%s cbr %d", player, a.Amount), true
	case engine.ActionAllIn:
		// An all-in that pushed the bet higher is aggressive; one that
		// called for the stack is not.
		if a.Raised && a.Amount > 0 {
			return fmt.Sprintf("%s cbr %d", player, a.Amount), true
		}
		return player + " cc", true
	default:
		return "", false
	}
}

// Encode writes the hand in PHH TOML form.
func Encode(w io.Writer, h *Hand) error {
	if h == nil {
		return fmt.Errorf("history: hand is nil")
	}
	enc := toml.NewEncoder(w)
	enc.Indent = "\t"
	return enc.Encode(h)
}

// EncodeToBytes encodes the hand and returns the result.
func EncodeToBytes(h *Hand) ([]byte, error) {
	var buf strings.Builder
	if err := Encode(&buf, h); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}
