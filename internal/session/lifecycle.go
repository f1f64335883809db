package session

import (
	"fmt"
	"sort"
	"time"
)

// CanStart reports whether a waiting session has what it needs to go
// active. The returned error names the first blocking condition.
func CanStart(s *Session) error {
	if s.Status != StatusWaiting && s.Status != StatusPaused {
		return fmt.Errorf("session is %s", s.Status)
	}
	eligible := s.EligiblePlayers()
	if len(eligible) < s.Config.MinPlayers {
		return fmt.Errorf("need %d players, have %d", s.Config.MinPlayers, len(eligible))
	}
	seats := make(map[int]bool, len(eligible))
	for _, p := range eligible {
		if seats[p.SeatNumber] {
			return fmt.Errorf("seat %d occupied twice", p.SeatNumber)
		}
		seats[p.SeatNumber] = true
	}
	return nil
}

// Start moves a waiting session to active. The first hand is dealt
// separately through a HandRoundManager; a configured hand-start delay
// pushes the earliest deal time out.
func Start(s *Session, now time.Time) error {
	if err := CanStart(s); err != nil {
		return err
	}
	s.Status = StatusActive
	if s.StartedAt.IsZero() {
		s.StartedAt = now
		if d := s.Config.HandStartDelay; d > 0 {
			s.NextHandAt = now.Add(d)
		}
	}
	return nil
}

// ShouldAutoStartHand reports whether the session's next hand should be
// dealt now. Auto-start requires the table flag, an active session with
// no hand in flight, enough eligible players, and the scheduled break
// to have elapsed.
func ShouldAutoStartHand(s *Session, now time.Time) bool {
	if !s.Config.AutoStart || s.Status != StatusActive || s.CurrentHand != nil {
		return false
	}
	if len(s.EligiblePlayers()) < s.Config.MinPlayers {
		return false
	}
	if !s.NextHandAt.IsZero() && now.Before(s.NextHandAt) {
		return false
	}
	return true
}

// occupiedSeats returns eligible players' seats in ascending order.
func occupiedSeats(s *Session) []int {
	var seats []int
	for _, p := range s.EligiblePlayers() {
		seats = append(seats, p.SeatNumber)
	}
	sort.Ints(seats)
	return seats
}

// NextDealerSeat rotates the button clockwise to the next occupied
// seat, wrapping past the highest seat. Before the first hand the
// lowest occupied seat takes the button.
func NextDealerSeat(s *Session) (int, error) {
	seats := occupiedSeats(s)
	if len(seats) == 0 {
		return 0, fmt.Errorf("no eligible players")
	}
	for _, seat := range seats {
		if seat > s.DealerSeat {
			return seat, nil
		}
	}
	return seats[0], nil
}

// MarkDisconnected records a player's connection loss. The grace
// period runs from this moment; the orchestrator schedules the expiry.
func MarkDisconnected(s *Session, playerID string, now time.Time) error {
	p, ok := s.Players[playerID]
	if !ok || !p.IsActive {
		return fmt.Errorf("player %s not seated", playerID)
	}
	if p.DisconnectedAt.IsZero() {
		p.DisconnectedAt = now
	}
	return nil
}

// MarkReconnected clears a player's disconnect state within or after
// the grace period. A player sat out by grace expiry comes back for the
// next hand, not the current one.
func MarkReconnected(s *Session, playerID string) error {
	p, ok := s.Players[playerID]
	if !ok || !p.IsActive {
		return fmt.Errorf("player %s not seated", playerID)
	}
	p.DisconnectedAt = time.Time{}
	if p.SittingOut && p.CurrentStack > 0 {
		p.SittingOut = false
	}
	return nil
}

// GraceExpired sits out every disconnected player whose grace period
// has elapsed and returns their ids.
func GraceExpired(s *Session, now time.Time) []string {
	var expired []string
	for _, p := range s.Players {
		if !p.IsActive || p.Connected() || p.SittingOut {
			continue
		}
		if now.Sub(p.DisconnectedAt) >= s.Config.DisconnectGrace {
			p.SittingOut = true
			expired = append(expired, p.PlayerID)
		}
	}
	sort.Strings(expired)
	return expired
}

// Issue is one finding from a session health check.
type Issue struct {
	Code    string
	Message string
}

// HealthCheck inspects a session for conditions the operator should
// act on. An empty slice means the session is healthy.
func HealthCheck(s *Session, now time.Time) []Issue {
	var issues []Issue

	if s.Status == StatusActive && len(s.EligiblePlayers()) < s.Config.MinPlayers {
		issues = append(issues, Issue{
			Code:    "below_min_players",
			Message: fmt.Sprintf("%d eligible players, need %d", len(s.EligiblePlayers()), s.Config.MinPlayers),
		})
	}
	if s.Status == StatusActive && s.ConnectedCount() == 0 && len(s.ActivePlayers()) > 0 {
		issues = append(issues, Issue{
			Code:    "all_disconnected",
			Message: "no active player has a live connection",
		})
	}
	if hr := s.CurrentHand; hr != nil {
		if hr.Status == HandComplete || hr.Status == HandCancelled {
			issues = append(issues, Issue{
				Code:    "stale_current_hand",
				Message: fmt.Sprintf("hand %s is %s but still current", hr.ID, hr.Status),
			})
		}
		if age := now.Sub(hr.StartedAt); age > 30*time.Minute {
			issues = append(issues, Issue{
				Code:    "hand_overdue",
				Message: fmt.Sprintf("hand %s running for %s", hr.ID, age.Round(time.Second)),
			})
		}
	}
	for _, p := range s.ActivePlayers() {
		if p.CurrentStack == 0 && p.PendingRebuy == 0 && !p.SittingOut {
			issues = append(issues, Issue{
				Code:    "busted_player",
				Message: fmt.Sprintf("player %s has no chips and no pending rebuy", p.PlayerID),
			})
		}
	}
	return issues
}
