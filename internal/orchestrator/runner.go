package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/engine"
	"github.com/cardroom/holdem/internal/session"
	"github.com/cardroom/holdem/internal/timer"
)

// commandQueueSize bounds how many operations may wait per session.
const commandQueueSize = 256

type result struct {
	rej *engine.ActionError
	err error
}

type command struct {
	fn    func(*runner) result
	reply chan result
}

// runner owns one session. Everything that touches the session or its
// hand runs on the loop goroutine; timers and break schedules only
// enqueue commands.
type runner struct {
	o    *Orchestrator
	sess *session.Session

	commands chan *command
	quit     chan struct{}
	stopped  chan struct{}

	timers      *timer.ActionTimer
	breakTimer  *quartz.Timer
	graceTimers map[string]*quartz.Timer

	// left and satOut players are folded automatically when the action
	// reaches them. satOut clears on reconnect; left never does.
	left   map[string]bool
	satOut map[string]bool
}

func newRunner(o *Orchestrator, s *session.Session) *runner {
	r := &runner{
		o:           o,
		sess:        s,
		commands:    make(chan *command, commandQueueSize),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		graceTimers: make(map[string]*quartz.Timer),
		left:        make(map[string]bool),
		satOut:      make(map[string]bool),
	}
	r.timers = timer.New(o.clock, o.logger, timer.Callbacks{
		OnWarning: func(playerID string, remaining time.Duration) {
			o.emit(TimerWarning{
				baseEvent: baseEvent{SessionID: s.ID},
				PlayerID:  playerID,
				Remaining: remaining,
			})
		},
		OnTimeout: func(playerID string) {
			r.enqueueAsync(func(r *runner) result {
				r.forceTimeout(playerID)
				return result{}
			})
		},
	})
	return r
}

func (r *runner) loop() {
	defer close(r.stopped)
	for {
		select {
		case cmd := <-r.commands:
			cmd.reply <- cmd.fn(r)
		case <-r.quit:
			r.timers.StopAll()
			r.cancelBreak()
			for _, t := range r.graceTimers {
				t.Stop()
			}
			if hr := r.sess.CurrentHand; hr != nil {
				r.o.hands.CancelHand(r.sess, hr, "session shutting down")
			}
			// Unblock anything already queued.
			for {
				select {
				case cmd := <-r.commands:
					cmd.reply <- result{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

// exec runs fn on the runner goroutine and waits for the result.
func (r *runner) exec(ctx context.Context, fn func(*runner) result) result {
	cmd := &command{fn: fn, reply: make(chan result, 1)}
	select {
	case r.commands <- cmd:
	case <-r.quit:
		return result{err: ErrClosed}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
	select {
	case res := <-cmd.reply:
		return res
	case <-r.stopped:
		// The loop may have replied just before exiting.
		select {
		case res := <-cmd.reply:
			return res
		default:
			return result{err: ErrClosed}
		}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

// enqueueAsync submits fire-and-forget work from timer callbacks.
func (r *runner) enqueueAsync(fn func(*runner) result) {
	cmd := &command{fn: fn, reply: make(chan result, 1)}
	select {
	case r.commands <- cmd:
	case <-r.quit:
	default:
		r.o.logger.Warn("command queue full, dropping timer event", "session", r.sess.ID)
	}
}

func (r *runner) stop() {
	close(r.quit)
	<-r.stopped
}

func (r *runner) join(playerID string, seat, buyIn int) error {
	p, err := r.o.sessions.AddPlayer(r.sess.ID, playerID, seat, buyIn)
	if err != nil {
		return err
	}
	delete(r.left, playerID)
	delete(r.satOut, playerID)
	r.o.emit(PlayerJoined{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		PlayerID:  playerID,
		Seat:      p.SeatNumber,
		BuyIn:     buyIn,
	})
	r.maybeStartHand()
	return nil
}

func (r *runner) leave(playerID string) error {
	// A mid-hand leaver forfeits chips already committed to the pot:
	// settle the session stack to what the engine holds behind before
	// the cash-out is computed.
	inHand := r.inCurrentHand(playerID)
	if inHand {
		if ep := r.sess.CurrentHand.Game.State().PlayerByID(playerID); ep != nil {
			if sp, ok := r.sess.Players[playerID]; ok {
				sp.CurrentStack = ep.Chips
			}
		}
	}
	p, err := r.o.sessions.RemovePlayer(r.sess.ID, playerID)
	if err != nil {
		return err
	}
	if t, ok := r.graceTimers[playerID]; ok {
		t.Stop()
		delete(r.graceTimers, playerID)
	}
	if inHand {
		r.left[playerID] = true
	}
	r.o.emit(PlayerLeft{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		PlayerID:  playerID,
		CashOut:   p.CurrentStack,
	})
	r.foldAbsentees()
	return nil
}

func (r *runner) start() error {
	if err := session.Start(r.sess, r.o.clock.Now()); err != nil {
		return err
	}
	r.o.emit(SessionStarted{baseEvent{SessionID: r.sess.ID}})
	if wait := r.sess.NextHandAt.Sub(r.o.clock.Now()); wait > 0 {
		r.scheduleDeal(wait)
		return nil
	}
	r.maybeStartHand()
	return nil
}

// maybeStartHand deals the next hand when auto-start conditions hold.
func (r *runner) maybeStartHand() {
	if !session.ShouldAutoStartHand(r.sess, r.o.clock.Now()) {
		return
	}
	if err := r.startHand(); err != nil {
		r.o.logger.Error("auto-start failed", "session", r.sess.ID, "error", err)
	}
}

func (r *runner) startHand() error {
	if r.sess.Status != session.StatusActive || r.sess.CurrentHand != nil {
		return fmt.Errorf("session %s: cannot deal now", r.sess.ID)
	}
	hr, err := r.o.hands.StartNewHand(r.sess)
	if err != nil {
		return err
	}
	if err := r.o.hands.DealHand(r.sess, hr); err != nil {
		r.o.emit(HandCancelled{
			baseEvent: baseEvent{SessionID: r.sess.ID},
			HandID:    hr.ID,
			Reason:    hr.CancelReason,
		})
		return err
	}
	r.o.emit(HandStarted{
		baseEvent:  baseEvent{SessionID: r.sess.ID},
		HandID:     hr.ID,
		HandNumber: hr.HandNumber,
		DealerSeat: r.sess.DealerSeat,
		Players:    len(hr.Game.State().Players),
	})
	r.dispatchTurn()
	return nil
}

// processAction applies one action. forced marks clock-driven actions,
// which skip the staleness check.
func (r *runner) processAction(playerID string, a engine.Action, sentAt time.Time, forced bool) result {
	hr := r.sess.CurrentHand
	if hr == nil {
		return result{rej: &engine.ActionError{
			Code:    engine.CodeWrongPhase,
			Message: "no hand in progress",
		}}
	}
	if forced {
		sentAt = time.Time{}
	}
	prevPhase := hr.Game.State().Phase
	rej, err := r.o.hands.ProcessHandAction(r.sess, hr, playerID, a, sentAt)
	if err != nil {
		if r.sess.CurrentHand == nil {
			// The hand was cancelled underneath us.
			r.timers.StopAll()
			r.o.emit(HandCancelled{
				baseEvent: baseEvent{SessionID: r.sess.ID},
				HandID:    hr.ID,
				Reason:    hr.CancelReason,
			})
		}
		return result{err: err}
	}
	if rej != nil {
		return result{rej: rej}
	}

	r.timers.Stop(playerID)
	state := hr.Game.State()
	last := state.ActionHistory[len(state.ActionHistory)-1]
	r.o.emit(ActionApplied{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		HandID:    hr.ID,
		PlayerID:  last.PlayerID,
		Kind:      last.Kind,
		Amount:    last.Amount,
		Phase:     last.Phase,
		Pot:       state.Pot,
		Version:   state.StateVersion,
	})
	r.emitPhaseChange(hr, prevPhase)
	r.dispatchTurn()
	return result{}
}

// emitPhaseChange announces a new street so listeners see the board
// without polling.
func (r *runner) emitPhaseChange(hr *session.HandRound, prevPhase engine.Phase) {
	state := hr.Game.State()
	if state.Phase == prevPhase {
		return
	}
	r.o.emit(PhaseChanged{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		HandID:    hr.ID,
		Phase:     state.Phase,
		Board:     append([]deck.Card{}, state.CommunityCards...),
	})
}

// dispatchTurn advances the table after any state change: folding
// absent players, completing finished hands, and arming the action
// clock for whoever is next.
func (r *runner) dispatchTurn() {
	r.foldAbsentees()

	hr := r.sess.CurrentHand
	if hr == nil {
		return
	}
	if hr.Status == session.HandShowdown {
		r.completeHand(hr)
		return
	}
	state := hr.Game.State()
	current := state.CurrentPlayer
	if current == "" {
		return
	}
	p := state.PlayerByID(current)
	r.timers.Start(current, r.sess.Config.ActionTime, r.sess.Config.WarningTime)
	r.o.emit(PlayerTurn{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		HandID:    hr.ID,
		PlayerID:  current,
		ToCall:    state.MaxCurrentBet() - p.CurrentBet,
		TimeOut:   r.sess.Config.ActionTime,
	})
}

// foldAbsentees folds players who left or were sat out whenever the
// action is on them. Bounded by the number of players in the hand.
func (r *runner) foldAbsentees() {
	for i := 0; i < 10; i++ {
		hr := r.sess.CurrentHand
		if hr == nil || hr.Status != session.HandBetting {
			return
		}
		current := hr.Game.State().CurrentPlayer
		if current == "" || (!r.left[current] && !r.satOut[current]) {
			return
		}
		r.timers.Stop(current)
		if res := r.processForcedFold(current); res.err != nil {
			return
		}
	}
}

func (r *runner) processForcedFold(playerID string) result {
	hr := r.sess.CurrentHand
	prevPhase := hr.Game.State().Phase
	rej, err := r.o.hands.ProcessHandAction(r.sess, hr, playerID, engine.FoldAction(), time.Time{})
	if err != nil {
		return result{err: err}
	}
	if rej != nil {
		r.o.logger.Error("forced fold rejected",
			"session", r.sess.ID, "player", playerID, "code", rej.Code)
		return result{rej: rej}
	}
	r.emitPhaseChange(hr, prevPhase)
	if hr.Status == session.HandShowdown {
		r.completeHand(hr)
	}
	return result{}
}

// forceTimeout acts for a player whose clock expired: check when free,
// fold when facing a bet.
func (r *runner) forceTimeout(playerID string) {
	hr := r.sess.CurrentHand
	if hr == nil || hr.Status != session.HandBetting {
		return
	}
	state := hr.Game.State()
	if state.CurrentPlayer != playerID {
		return
	}
	p := state.PlayerByID(playerID)
	act := engine.CheckAction()
	if state.MaxCurrentBet() > p.CurrentBet {
		act = engine.FoldAction()
	}
	r.o.emit(PlayerTimedOut{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		PlayerID:  playerID,
		Forced:    act.Kind,
	})
	if res := r.processAction(playerID, act, time.Time{}, true); res.err != nil {
		r.o.logger.Error("timeout action failed",
			"session", r.sess.ID, "player", playerID, "error", res.err)
	}
}

func (r *runner) useTimeBank(playerID string) error {
	p, ok := r.sess.Players[playerID]
	if !ok || !p.IsActive {
		return fmt.Errorf("player %s not seated", playerID)
	}
	if p.TimeBank <= 0 {
		return fmt.Errorf("player %s has no time bank left", playerID)
	}
	if !r.timers.UseTimeBank(playerID, p.TimeBank) {
		return fmt.Errorf("player %s has no running action clock", playerID)
	}
	p.TimeBank = 0
	return nil
}

func (r *runner) completeHand(hr *session.HandRound) {
	r.timers.StopAll()
	res, err := r.o.hands.CompleteHand(r.sess, hr)
	if err != nil {
		r.o.logger.Error("hand completion failed",
			"session", r.sess.ID, "hand", hr.ID, "error", err)
		r.o.hands.CancelHand(r.sess, hr, err.Error())
		r.o.emit(HandCancelled{
			baseEvent: baseEvent{SessionID: r.sess.ID},
			HandID:    hr.ID,
			Reason:    hr.CancelReason,
		})
		return
	}
	if r.o.stats != nil {
		r.o.stats.RecordHand(hr, r.sess.Config.Rules.BigBlind)
	}
	r.persist()
	r.o.emit(HandCompleted{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		HandID:    hr.ID,
		Winners:   res.Winners,
		Pot:       res.GrossPot,
		Rake:      res.Rake,
	})
	r.left = make(map[string]bool)
	r.scheduleBreak()
}

// scheduleBreak arms the between-hands timer.
func (r *runner) scheduleBreak() {
	r.scheduleDeal(r.sess.Config.HandBreak)
}

// scheduleDeal arms the next auto-deal after delay, replacing any
// pending one.
func (r *runner) scheduleDeal(delay time.Duration) {
	if !r.sess.Config.AutoStart {
		return
	}
	r.cancelBreak()
	r.breakTimer = r.o.clock.AfterFunc(delay, func() {
		r.enqueueAsync(func(r *runner) result {
			r.maybeStartHand()
			return result{}
		})
	})
}

func (r *runner) cancelBreak() {
	if r.breakTimer != nil {
		r.breakTimer.Stop()
		r.breakTimer = nil
	}
}

func (r *runner) disconnect(playerID string) error {
	if err := session.MarkDisconnected(r.sess, playerID, r.o.clock.Now()); err != nil {
		return err
	}
	grace := r.sess.Config.DisconnectGrace
	if t, ok := r.graceTimers[playerID]; ok {
		t.Stop()
	}
	r.graceTimers[playerID] = r.o.clock.AfterFunc(grace, func() {
		r.enqueueAsync(func(r *runner) result {
			r.graceExpired()
			return result{}
		})
	})
	r.o.emit(PlayerDisconnected{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		PlayerID:  playerID,
		Grace:     grace,
	})
	return nil
}

func (r *runner) graceExpired() {
	expired := session.GraceExpired(r.sess, r.o.clock.Now())
	for _, id := range expired {
		r.satOut[id] = true
		delete(r.graceTimers, id)
		r.o.logger.Info("disconnect grace expired", "session", r.sess.ID, "player", id)
	}
	if len(expired) > 0 {
		r.dispatchTurn()
	}
}

func (r *runner) reconnect(playerID string) error {
	if err := session.MarkReconnected(r.sess, playerID); err != nil {
		return err
	}
	if t, ok := r.graceTimers[playerID]; ok {
		t.Stop()
		delete(r.graceTimers, playerID)
	}
	delete(r.satOut, playerID)
	r.o.emit(PlayerReconnected{
		baseEvent: baseEvent{SessionID: r.sess.ID},
		PlayerID:  playerID,
	})
	return nil
}

func (r *runner) pause() error {
	if err := r.o.sessions.Pause(r.sess.ID); err != nil {
		return err
	}
	if hr := r.sess.CurrentHand; hr != nil && hr.Status == session.HandBetting {
		if err := hr.Game.Pause(); err != nil {
			return err
		}
		if cur := hr.Game.State().CurrentPlayer; cur != "" {
			r.timers.Pause(cur)
		}
	}
	r.cancelBreak()
	r.o.emit(SessionPaused{baseEvent{SessionID: r.sess.ID}})
	return nil
}

func (r *runner) resume() error {
	if err := r.o.sessions.Resume(r.sess.ID); err != nil {
		return err
	}
	if hr := r.sess.CurrentHand; hr != nil && hr.Status == session.HandBetting {
		if err := hr.Game.Resume(); err != nil {
			return err
		}
		if cur := hr.Game.State().CurrentPlayer; cur != "" && !r.timers.Resume(cur) {
			r.timers.Start(cur, r.sess.Config.ActionTime, r.sess.Config.WarningTime)
		}
	}
	r.o.emit(SessionResumed{baseEvent{SessionID: r.sess.ID}})
	r.maybeStartHand()
	return nil
}

func (r *runner) end() error {
	if hr := r.sess.CurrentHand; hr != nil {
		r.timers.StopAll()
		if err := r.o.hands.CancelHand(r.sess, hr, "session ending"); err != nil {
			return err
		}
		r.o.emit(HandCancelled{
			baseEvent: baseEvent{SessionID: r.sess.ID},
			HandID:    hr.ID,
			Reason:    "session ending",
		})
	}
	r.cancelBreak()
	if err := r.o.sessions.End(r.sess.ID); err != nil {
		return err
	}
	r.persist()
	r.o.emit(SessionEnded{
		baseEvent:  baseEvent{SessionID: r.sess.ID},
		TotalHands: r.sess.TotalHands,
		TotalRake:  r.sess.TotalRake,
	})
	return nil
}

func (r *runner) inCurrentHand(playerID string) bool {
	hr := r.sess.CurrentHand
	if hr == nil || hr.Game == nil {
		return false
	}
	p := hr.Game.State().PlayerByID(playerID)
	return p != nil && p.InHand()
}
