// Package timer provides per-player action countdowns. Timers only
// signal through callbacks; they never touch game state. Callers route
// the callbacks into the owning session's serialized queue.
package timer

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Callbacks receive timer signals. Both fire off the timer's goroutine;
// implementations must enqueue, not mutate.
type Callbacks struct {
	OnWarning func(playerID string, remaining time.Duration)
	OnTimeout func(playerID string)
}

// ActionTimer runs one countdown per player. Starting a timer for a
// player cancels any previous one for the same player.
type ActionTimer struct {
	clock     quartz.Clock
	logger    *log.Logger
	callbacks Callbacks

	mu     sync.Mutex
	timers map[string]*countdown
}

type countdown struct {
	warning   *quartz.Timer
	timeout   *quartz.Timer
	limit     time.Duration
	lead      time.Duration
	startedAt time.Time
	remaining time.Duration // valid while paused
	paused    bool
	bankUsed  bool
}

// New creates an action timer driven by the given clock. Tests pass a
// quartz mock to control time.
func New(clock quartz.Clock, logger *log.Logger, callbacks Callbacks) *ActionTimer {
	return &ActionTimer{
		clock:     clock,
		logger:    logger.WithPrefix("action-timer"),
		callbacks: callbacks,
		timers:    make(map[string]*countdown),
	}
}

// Start begins a countdown of limit for the player, with a warning
// fired warningLead before expiry. Any existing countdown for the
// player is cancelled first.
func (at *ActionTimer) Start(playerID string, limit, warningLead time.Duration) {
	at.mu.Lock()
	defer at.mu.Unlock()

	at.cancelLocked(playerID)

	cd := &countdown{
		limit:     limit,
		lead:      warningLead,
		startedAt: at.clock.Now(),
	}
	at.scheduleLocked(playerID, cd, limit)
	at.timers[playerID] = cd
	at.logger.Debug("timer started", "player", playerID, "limit", limit)
}

// scheduleLocked arms warning and timeout for the given remaining time.
func (at *ActionTimer) scheduleLocked(playerID string, cd *countdown, remaining time.Duration) {
	if warnIn := remaining - cd.lead; warnIn > 0 && cd.lead > 0 {
		cd.warning = at.clock.AfterFunc(warnIn, func() {
			if at.callbacks.OnWarning != nil {
				at.callbacks.OnWarning(playerID, cd.lead)
			}
		})
	}
	cd.timeout = at.clock.AfterFunc(remaining, func() {
		at.mu.Lock()
		delete(at.timers, playerID)
		at.mu.Unlock()
		if at.callbacks.OnTimeout != nil {
			at.callbacks.OnTimeout(playerID)
		}
	})
}

// Stop cancels the player's countdown, if any. Returns whether one was
// pending.
func (at *ActionTimer) Stop(playerID string) bool {
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.cancelLocked(playerID)
}

func (at *ActionTimer) cancelLocked(playerID string) bool {
	cd, ok := at.timers[playerID]
	if !ok {
		return false
	}
	if cd.warning != nil {
		cd.warning.Stop()
	}
	if cd.timeout != nil {
		cd.timeout.Stop()
	}
	delete(at.timers, playerID)
	return true
}

// StopAll cancels every pending countdown.
func (at *ActionTimer) StopAll() {
	at.mu.Lock()
	defer at.mu.Unlock()
	for id := range at.timers {
		at.cancelLocked(id)
	}
}

// Pause freezes the player's countdown, preserving remaining time.
func (at *ActionTimer) Pause(playerID string) bool {
	at.mu.Lock()
	defer at.mu.Unlock()

	cd, ok := at.timers[playerID]
	if !ok || cd.paused {
		return false
	}
	elapsed := at.clock.Now().Sub(cd.startedAt)
	cd.remaining = cd.limit - elapsed
	if cd.remaining < 0 {
		cd.remaining = 0
	}
	if cd.warning != nil {
		cd.warning.Stop()
		cd.warning = nil
	}
	if cd.timeout != nil {
		cd.timeout.Stop()
		cd.timeout = nil
	}
	cd.paused = true
	return true
}

// Resume restarts a paused countdown with its preserved remaining time.
func (at *ActionTimer) Resume(playerID string) bool {
	at.mu.Lock()
	defer at.mu.Unlock()

	cd, ok := at.timers[playerID]
	if !ok || !cd.paused {
		return false
	}
	cd.paused = false
	cd.startedAt = at.clock.Now()
	cd.limit = cd.remaining
	at.scheduleLocked(playerID, cd, cd.remaining)
	return true
}

// UseTimeBank extends the player's running countdown by bank, once per
// countdown. The caller zeroes the player's stored bank on success.
func (at *ActionTimer) UseTimeBank(playerID string, bank time.Duration) bool {
	at.mu.Lock()
	defer at.mu.Unlock()

	cd, ok := at.timers[playerID]
	if !ok || cd.paused || cd.bankUsed || bank <= 0 {
		return false
	}
	elapsed := at.clock.Now().Sub(cd.startedAt)
	remaining := cd.limit - elapsed + bank
	if cd.warning != nil {
		cd.warning.Stop()
		cd.warning = nil
	}
	if cd.timeout != nil {
		cd.timeout.Stop()
	}
	cd.startedAt = at.clock.Now()
	cd.limit = remaining
	cd.bankUsed = true
	at.scheduleLocked(playerID, cd, remaining)
	at.logger.Debug("time bank used", "player", playerID, "extension", bank)
	return true
}

// Pending reports whether the player has a countdown armed or paused.
func (at *ActionTimer) Pending(playerID string) bool {
	at.mu.Lock()
	defer at.mu.Unlock()
	_, ok := at.timers[playerID]
	return ok
}
