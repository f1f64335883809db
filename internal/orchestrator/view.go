package orchestrator

import (
	"sort"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/engine"
	"github.com/cardroom/holdem/internal/store"
)

// SessionView is a consistent read of a session, safe to use off the
// runner goroutine.
type SessionView struct {
	SessionID  string       `json:"sessionId"`
	TableID    string       `json:"tableId"`
	Status     string       `json:"status"`
	DealerSeat int          `json:"dealerSeat"`
	TotalHands int          `json:"totalHands"`
	TotalPot   int          `json:"totalPot"`
	TotalRake  int          `json:"totalRake"`
	Players    []PlayerView `json:"players"`
	Hand       *HandView    `json:"hand,omitempty"`
}

// PlayerView is one seat's public state plus that player's own cards.
// Transports must strip HoleCards before sending to anyone else.
type PlayerView struct {
	PlayerID   string      `json:"playerId"`
	Seat       int         `json:"seat"`
	Stack      int         `json:"stack"`
	CurrentBet int         `json:"currentBet,omitempty"`
	Status     string      `json:"status,omitempty"`
	Connected  bool        `json:"connected"`
	SittingOut bool        `json:"sittingOut,omitempty"`
	HoleCards  []deck.Card `json:"holeCards,omitempty"`
}

// HandView is the in-flight hand's public state.
type HandView struct {
	HandID        string              `json:"handId"`
	HandNumber    int                 `json:"handNumber"`
	Phase         string              `json:"phase"`
	Pot           int                 `json:"pot"`
	Board         []deck.Card         `json:"board"`
	CurrentPlayer string              `json:"currentPlayer,omitempty"`
	ToCall        int                 `json:"toCall,omitempty"`
	MinRaiseTo    int                 `json:"minRaiseTo,omitempty"`
	ValidActions  []engine.ActionKind `json:"validActions,omitempty"`
	Version       uint64              `json:"version"`
}

// view builds a SessionView. Runs on the runner goroutine.
func (r *runner) view() *SessionView {
	s := r.sess
	v := &SessionView{
		SessionID:  s.ID,
		TableID:    s.TableID,
		Status:     s.Status.String(),
		DealerSeat: s.DealerSeat,
		TotalHands: s.TotalHands,
		TotalPot:   s.TotalPot,
		TotalRake:  s.TotalRake,
	}

	var inHand map[string]*engine.PlayerState
	if hr := s.CurrentHand; hr != nil && hr.Game != nil {
		state := hr.Game.State()
		inHand = make(map[string]*engine.PlayerState, len(state.Players))
		for _, p := range state.Players {
			inHand[p.ID] = p
		}
		hv := &HandView{
			HandID:     hr.ID,
			HandNumber: hr.HandNumber,
			Phase:      state.Phase.String(),
			Pot:        state.Pot,
			Board:      append([]deck.Card{}, state.CommunityCards...),
			Version:    state.StateVersion,
		}
		if cur := state.CurrentPlayer; cur != "" {
			p := state.PlayerByID(cur)
			hv.CurrentPlayer = cur
			hv.ToCall = state.MaxCurrentBet() - p.CurrentBet
			hv.MinRaiseTo = hr.Game.MinRaiseTo()
			hv.ValidActions = hr.Game.ValidActions(p)
		}
		v.Hand = hv
	}

	for _, p := range s.ActivePlayers() {
		pv := PlayerView{
			PlayerID:   p.PlayerID,
			Seat:       p.SeatNumber,
			Stack:      p.CurrentStack,
			Connected:  p.Connected(),
			SittingOut: p.SittingOut,
		}
		if ep, ok := inHand[p.PlayerID]; ok {
			pv.Stack = ep.Chips
			pv.CurrentBet = ep.CurrentBet
			pv.Status = ep.Status.String()
			pv.HoleCards = append([]deck.Card{}, ep.Cards...)
		}
		v.Players = append(v.Players, pv)
	}
	sort.Slice(v.Players, func(i, j int) bool { return v.Players[i].Seat < v.Players[j].Seat })
	return v
}

// persist enqueues a between-hands snapshot. Fire and forget; the
// writer retries on its own.
func (r *runner) persist() {
	if r.o.persister == nil {
		return
	}
	s := r.sess
	snap := &store.Snapshot{
		SessionID:  s.ID,
		TableID:    s.TableID,
		Status:     s.Status.String(),
		DealerSeat: s.DealerSeat,
		TotalHands: s.TotalHands,
		TotalPot:   s.TotalPot,
		TotalRake:  s.TotalRake,
	}
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := s.Players[id]
		snap.Players = append(snap.Players, store.PlayerSnapshot{
			PlayerID:    p.PlayerID,
			Seat:        p.SeatNumber,
			Stack:       p.CurrentStack,
			BuyIn:       p.BuyInAmount,
			Profit:      p.Profit,
			HandsPlayed: p.HandsPlayed,
			HandsWon:    p.HandsWon,
			Active:      p.IsActive,
			SittingOut:  p.SittingOut,
		})
	}
	r.o.persister.Enqueue(snap)
}
