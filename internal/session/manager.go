package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cardroom/holdem/internal/sessionid"
)

// Manager is the session registry. All mutation of a session's
// membership and lifecycle goes through it; hand play goes through a
// HandRoundManager against the session it returns.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *log.Logger
	now      func() time.Time
}

// NewManager creates an empty session registry.
func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger.WithPrefix("session"),
		now:      time.Now,
	}
}

// Create registers a new waiting session for the given table config.
func (m *Manager) Create(cfg Config) (*Session, error) {
	if cfg.MinPlayers < 2 {
		return nil, fmt.Errorf("min players %d below 2", cfg.MinPlayers)
	}
	if cfg.MaxPlayers < cfg.MinPlayers || cfg.MaxPlayers > 9 {
		return nil, fmt.Errorf("max players %d out of range", cfg.MaxPlayers)
	}

	s := &Session{
		ID:         sessionid.NewSession(),
		TableID:    cfg.TableID,
		Status:     StatusWaiting,
		Players:    make(map[string]*Player),
		DealerSeat: -1,
		Config:     cfg,
		CreatedAt:  m.now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created", "session", s.ID, "table", cfg.TableID)
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns all registered sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// AddPlayer seats a player with a buy-in. The seat must be free among
// active players and the buy-in within the table's bounds. A player who
// previously left may rejoin through the same call.
func (m *Manager) AddPlayer(sessionID, playerID string, seat, buyIn int) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: not found", sessionID)
	}
	if s.Status == StatusFinished || s.Status == StatusCancelled {
		return nil, fmt.Errorf("session %s: already %s", sessionID, s.Status)
	}
	if existing, ok := s.Players[playerID]; ok && existing.IsActive {
		return nil, fmt.Errorf("player %s already seated", playerID)
	}
	if len(s.ActivePlayers()) >= s.Config.MaxPlayers {
		return nil, fmt.Errorf("session %s: table full", sessionID)
	}
	if seat < 0 || seat >= s.Config.MaxPlayers {
		return nil, fmt.Errorf("seat %d out of range", seat)
	}
	if s.SeatTaken(seat) {
		return nil, fmt.Errorf("seat %d taken", seat)
	}
	if buyIn < s.Config.BuyInMin || buyIn > s.Config.BuyInMax {
		return nil, fmt.Errorf("buy-in %d outside [%d, %d]", buyIn, s.Config.BuyInMin, s.Config.BuyInMax)
	}

	p := &Player{
		PlayerID:     playerID,
		SeatNumber:   seat,
		BuyInAmount:  buyIn,
		CurrentStack: buyIn,
		IsActive:     true,
		JoinedAt:     m.now(),
		TimeBank:     s.Config.TimeBank,
	}
	s.Players[playerID] = p

	m.logger.Info("player seated",
		"session", sessionID, "player", playerID, "seat", seat, "buy_in", buyIn)
	return p, nil
}

// RemovePlayer marks a player as having left. Their stack is cashed
// out; the record stays in the session for statistics. Removing a
// player mid-hand folds them from the current hand via the caller.
func (m *Manager) RemovePlayer(sessionID, playerID string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: not found", sessionID)
	}
	p, ok := s.Players[playerID]
	if !ok || !p.IsActive {
		return nil, fmt.Errorf("player %s not seated", playerID)
	}

	p.IsActive = false
	p.LeftAt = m.now()
	p.PendingRebuy = 0
	p.Profit = p.CurrentStack - p.BuyInAmount

	m.logger.Info("player left",
		"session", sessionID, "player", playerID, "cash_out", p.CurrentStack)
	return p, nil
}

// RequestRebuy queues chips to be added to the player's stack between
// hands. Rebuys never take effect mid-hand.
func (m *Manager) RequestRebuy(sessionID, playerID string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: not found", sessionID)
	}
	p, ok := s.Players[playerID]
	if !ok || !p.IsActive {
		return fmt.Errorf("player %s not seated", playerID)
	}
	if s.Config.MaxRebuys > 0 && p.Rebuys >= s.Config.MaxRebuys {
		return fmt.Errorf("player %s: rebuy limit %d reached", playerID, s.Config.MaxRebuys)
	}
	if amount <= 0 {
		return fmt.Errorf("rebuy amount must be positive")
	}
	if p.CurrentStack+p.PendingRebuy+amount > s.Config.BuyInMax {
		return fmt.Errorf("rebuy would exceed max buy-in %d", s.Config.BuyInMax)
	}

	p.PendingRebuy += amount
	m.logger.Info("rebuy queued", "session", sessionID, "player", playerID, "amount", amount)
	return nil
}

// ApplyPendingRebuys folds queued rebuys into stacks. Called between
// hands only, before the next deal.
func ApplyPendingRebuys(s *Session) {
	for _, p := range s.Players {
		if p.PendingRebuy > 0 {
			p.CurrentStack += p.PendingRebuy
			p.BuyInAmount += p.PendingRebuy
			p.Rebuys++
			p.PendingRebuy = 0
			if p.SittingOut && p.CurrentStack > 0 {
				p.SittingOut = false
			}
		}
	}
}

// Pause suspends a session between or during hands. The current hand,
// if any, is paused by the caller through the engine.
func (m *Manager) Pause(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: not found", sessionID)
	}
	if s.Status != StatusActive {
		return fmt.Errorf("session %s: cannot pause while %s", sessionID, s.Status)
	}
	s.Status = StatusPaused
	m.logger.Info("session paused", "session", sessionID)
	return nil
}

// Resume reactivates a paused session.
func (m *Manager) Resume(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: not found", sessionID)
	}
	if s.Status != StatusPaused {
		return fmt.Errorf("session %s: cannot resume while %s", sessionID, s.Status)
	}
	s.Status = StatusActive
	m.logger.Info("session resumed", "session", sessionID)
	return nil
}

// End finishes a session. No further hands will be dealt; any hand in
// flight must be completed or cancelled by the caller first.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: not found", sessionID)
	}
	if s.Status == StatusFinished || s.Status == StatusCancelled {
		return nil
	}
	if s.CurrentHand != nil {
		return fmt.Errorf("session %s: hand %s still in flight", sessionID, s.CurrentHand.ID)
	}
	s.Status = StatusFinished
	s.EndedAt = m.now()
	for _, p := range s.Players {
		if p.IsActive {
			p.Profit = p.CurrentStack - p.BuyInAmount
		}
	}
	m.logger.Info("session ended",
		"session", sessionID, "hands", s.TotalHands, "rake", s.TotalRake)
	return nil
}

// Remove drops a terminal session from the registry.
func (m *Manager) Remove(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: not found", sessionID)
	}
	if s.Status != StatusFinished && s.Status != StatusCancelled {
		return fmt.Errorf("session %s: still %s", sessionID, s.Status)
	}
	delete(m.sessions, sessionID)
	return nil
}
