package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/engine"
	"github.com/cardroom/holdem/internal/sessionid"
)

// maxActionAge bounds how old a client-supplied action timestamp may be
// before the action is rejected as stale.
const maxActionAge = 60 * time.Second

// HandRoundManager runs hands within a session. It owns no locking;
// the orchestrator serializes all calls for a given session.
type HandRoundManager struct {
	logger *log.Logger
	now    func() time.Time

	// shuffle seeds the deck. Overridden in tests for determinism.
	shuffle func(*deck.Deck)
}

// NewHandRoundManager creates a hand round manager.
func NewHandRoundManager(logger *log.Logger) *HandRoundManager {
	return &HandRoundManager{
		logger:  logger.WithPrefix("hand"),
		now:     time.Now,
		shuffle: func(d *deck.Deck) { d.Shuffle() },
	}
}

// StartNewHand opens the next hand round for an active session. The
// hand is created in the dealing state; DealHand moves it to betting.
func (hm *HandRoundManager) StartNewHand(s *Session) (*HandRound, error) {
	if s.Status != StatusActive {
		return nil, fmt.Errorf("session %s: is %s", s.ID, s.Status)
	}
	if s.CurrentHand != nil {
		return nil, fmt.Errorf("session %s: hand %s in flight", s.ID, s.CurrentHand.ID)
	}
	if len(s.EligiblePlayers()) < 2 {
		return nil, fmt.Errorf("session %s: fewer than 2 eligible players", s.ID)
	}

	hr := &HandRound{
		ID:         sessionid.NewHand(),
		SessionID:  s.ID,
		HandNumber: s.TotalHands + 1,
		Status:     HandDealing,
		StartedAt:  hm.now(),
	}
	s.CurrentHand = hr
	s.NextHandAt = time.Time{}

	hm.logger.Info("hand started", "session", s.ID, "hand", hr.ID, "number", hr.HandNumber)
	return hr, nil
}

// DealHand applies pending rebuys, rotates the button, builds the
// engine game from the session's eligible players, and deals. Any
// failure cancels the hand atomically; the session stays playable.
func (hm *HandRoundManager) DealHand(s *Session, hr *HandRound) error {
	if hr.Status != HandDealing {
		return fmt.Errorf("hand %s: is %s", hr.ID, hr.Status)
	}

	ApplyPendingRebuys(s)

	eligible := s.EligiblePlayers()
	if len(eligible) < 2 {
		hm.cancelLocked(s, hr, "fewer than 2 eligible players at deal")
		return fmt.Errorf("hand %s: fewer than 2 eligible players", hr.ID)
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].SeatNumber < eligible[j].SeatNumber
	})

	dealer, err := NextDealerSeat(s)
	if err != nil {
		hm.cancelLocked(s, hr, err.Error())
		return err
	}

	players := make([]*engine.PlayerState, 0, len(eligible))
	for _, p := range eligible {
		players = append(players, &engine.PlayerState{
			ID:       p.PlayerID,
			Seat:     p.SeatNumber,
			Chips:    p.CurrentStack,
			Status:   engine.StatusActive,
			TimeBank: p.TimeBank,
		})
	}

	d := deck.New()
	hm.shuffle(d)

	game, err := engine.NewGame(players, dealer, s.Config.Rules, d)
	if err != nil {
		hm.cancelLocked(s, hr, err.Error())
		return fmt.Errorf("hand %s: %w", hr.ID, err)
	}
	if err := game.Deal(); err != nil {
		hm.cancelLocked(s, hr, err.Error())
		return fmt.Errorf("hand %s: deal: %w", hr.ID, err)
	}

	s.DealerSeat = dealer
	hr.Game = game
	hr.Status = HandBetting
	for _, p := range eligible {
		p.HandsPlayed++
	}
	hm.syncRounds(hr)

	hm.logger.Info("hand dealt",
		"session", s.ID, "hand", hr.ID, "players", len(players), "dealer_seat", dealer)
	return nil
}

// ProcessHandAction validates and applies one player action. A non-nil
// ActionError is a rejection the player can correct; a non-nil error is
// fatal to the hand.
func (hm *HandRoundManager) ProcessHandAction(s *Session, hr *HandRound, playerID string, a engine.Action, sentAt time.Time) (*engine.ActionError, error) {
	if hr.Status != HandBetting {
		return &engine.ActionError{
			Code:    engine.CodeWrongPhase,
			Message: fmt.Sprintf("hand is %s", hr.Status),
		}, nil
	}
	if hr.Game.State().PlayerByID(playerID) == nil {
		return &engine.ActionError{
			Code:    engine.CodeUnknownPlayer,
			Message: fmt.Sprintf("player %s is not in this hand", playerID),
		}, nil
	}
	if !sentAt.IsZero() && hm.now().Sub(sentAt) > maxActionAge {
		return &engine.ActionError{
			Code:       engine.CodeStaleAction,
			Message:    fmt.Sprintf("action sent %s ago", hm.now().Sub(sentAt).Round(time.Second)),
			Suggestion: "re-fetch the table state and act again",
		}, nil
	}

	rej, err := hr.Game.Apply(playerID, a)
	if err != nil {
		if errors.Is(err, engine.ErrChipConservation) {
			hm.logger.Error("chip conservation violated, cancelling hand",
				"session", s.ID, "hand", hr.ID, "player", playerID)
			hm.cancelLocked(s, hr, "chip conservation violation")
		}
		return nil, err
	}
	if rej != nil {
		return rej, nil
	}

	hm.syncRounds(hr)
	if hr.Game.State().Phase == engine.Showdown {
		hr.Status = HandShowdown
	}
	return nil, nil
}

// CompleteHand settles the hand, reconciles stacks back into the
// session, and archives the round. Calling it again returns the stored
// result without any further mutation.
func (hm *HandRoundManager) CompleteHand(s *Session, hr *HandRound) (*engine.FinishResult, error) {
	if hr.Status == HandComplete {
		return hr.result, nil
	}
	if hr.Status == HandCancelled {
		return nil, fmt.Errorf("hand %s: cancelled: %s", hr.ID, hr.CancelReason)
	}
	if !hr.Game.Finishable() {
		return nil, fmt.Errorf("hand %s: not finishable in phase %s", hr.ID, hr.Game.State().Phase)
	}

	res, err := hr.Game.Finish()
	if err != nil {
		return nil, fmt.Errorf("hand %s: finish: %w", hr.ID, err)
	}
	hm.syncRounds(hr)

	won := make(map[string]bool)
	for _, w := range res.Winners {
		won[w.PlayerID] = true
	}
	hr.NetResults = make(map[string]int)
	for _, ep := range hr.Game.State().Players {
		p, ok := s.Players[ep.ID]
		if !ok {
			continue
		}
		hr.NetResults[ep.ID] = ep.Chips - p.CurrentStack
		p.CurrentStack = ep.Chips
		p.Profit = p.CurrentStack - p.BuyInAmount
		if won[ep.ID] {
			p.HandsWon++
		}
		if p.CurrentStack == 0 && p.PendingRebuy == 0 {
			p.SittingOut = true
		}
	}

	now := hm.now()
	hr.result = res
	hr.Winners = res.Winners
	hr.FinalPot = res.GrossPot
	hr.Rake = res.Rake
	hr.Status = HandComplete
	hr.CompletedAt = now
	hr.Duration = now.Sub(hr.StartedAt)

	s.TotalHands++
	s.TotalPot += res.GrossPot
	s.TotalRake += res.Rake
	s.HandHistory = append(s.HandHistory, hr)
	s.CurrentHand = nil
	if s.Config.AutoStart {
		s.NextHandAt = now.Add(s.Config.HandBreak)
	}

	hm.logger.Info("hand complete",
		"session", s.ID, "hand", hr.ID, "pot", res.GrossPot, "rake", res.Rake,
		"winners", len(res.Winners), "duration", hr.Duration.Round(time.Millisecond))
	return res, nil
}

// CancelHand aborts a hand in flight and refunds all contributions.
func (hm *HandRoundManager) CancelHand(s *Session, hr *HandRound, reason string) error {
	if hr.Status == HandComplete {
		return fmt.Errorf("hand %s: already complete", hr.ID)
	}
	if hr.Status == HandCancelled {
		return nil
	}
	hm.cancelLocked(s, hr, reason)
	hm.logger.Warn("hand cancelled", "session", s.ID, "hand", hr.ID, "reason", reason)
	return nil
}

// cancelLocked refunds the engine state, reconciles stacks, and
// archives the round as cancelled.
func (hm *HandRoundManager) cancelLocked(s *Session, hr *HandRound, reason string) {
	if hr.Game != nil {
		hr.Game.Cancel()
		for _, ep := range hr.Game.State().Players {
			if p, ok := s.Players[ep.ID]; ok {
				p.CurrentStack = ep.Chips
			}
		}
	}
	now := hm.now()
	hr.Status = HandCancelled
	hr.CancelReason = reason
	hr.CompletedAt = now
	hr.Duration = now.Sub(hr.StartedAt)
	s.HandHistory = append(s.HandHistory, hr)
	s.CurrentHand = nil
}

// syncRounds folds new engine history entries into per-phase betting
// round records, closing a record when the phase moves past it.
func (hm *HandRoundManager) syncRounds(hr *HandRound) {
	state := hr.Game.State()
	history := state.ActionHistory
	for ; hr.recorded < len(history); hr.recorded++ {
		rec := history[hr.recorded]
		round := hr.currentRound()
		if round == nil || round.Phase != rec.Phase {
			if round != nil {
				round.Complete = true
			}
			round = &BettingRoundRecord{Phase: rec.Phase}
			hr.BettingRounds = append(hr.BettingRounds, round)
		}
		round.Actions = append(round.Actions, rec)
		if rec.Raised {
			round.Aggressor = rec.PlayerID
		}
	}
	if round := hr.currentRound(); round != nil && state.Phase != round.Phase {
		round.Complete = true
	}
}
