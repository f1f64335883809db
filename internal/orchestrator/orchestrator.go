// Package orchestrator coordinates sessions, hands, timers, and
// persistence. Each session is owned by one runner goroutine; every
// mutation passes through its bounded command queue, so game state
// never needs locking.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cardroom/holdem/internal/engine"
	"github.com/cardroom/holdem/internal/session"
	"github.com/cardroom/holdem/internal/statistics"
	"github.com/cardroom/holdem/internal/store"
)

var ErrClosed = errors.New("orchestrator closed")

// Persister accepts snapshots for asynchronous saving. Implemented by
// store.Writer.
type Persister interface {
	Enqueue(*store.Snapshot)
}

// Options configures an orchestrator. Logger is required; the zero
// values of the rest disable the concern.
type Options struct {
	Logger    *log.Logger
	Clock     quartz.Clock
	Persister Persister
	Stats     *statistics.Collector
}

// Orchestrator is the top-level coordinator for all tables.
type Orchestrator struct {
	logger    *log.Logger
	clock     quartz.Clock
	sessions  *session.Manager
	hands     *session.HandRoundManager
	persister Persister
	stats     *statistics.Collector
	listeners listenerSet

	mu      sync.Mutex
	runners map[string]*runner
	closed  bool
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Orchestrator{
		logger:    opts.Logger.WithPrefix("orchestrator"),
		clock:     opts.Clock,
		sessions:  session.NewManager(opts.Logger),
		hands:     session.NewHandRoundManager(opts.Logger),
		persister: opts.Persister,
		stats:     opts.Stats,
		runners:   make(map[string]*runner),
	}
}

// Subscribe registers a listener for all sessions' events.
func (o *Orchestrator) Subscribe(l Listener) { o.listeners.subscribe(l) }

// Unsubscribe removes a previously registered listener.
func (o *Orchestrator) Unsubscribe(l Listener) { o.listeners.unsubscribe(l) }

// CreateSession registers a session and starts its runner.
func (o *Orchestrator) CreateSession(cfg session.Config) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", ErrClosed
	}
	s, err := o.sessions.Create(cfg)
	if err != nil {
		return "", err
	}
	r := newRunner(o, s)
	o.runners[s.ID] = r
	go r.loop()
	return s.ID, nil
}

// Sessions lists all registered sessions. The returned values are
// owned by their runners; treat them as read-only.
func (o *Orchestrator) Sessions() []*session.Session {
	return o.sessions.List()
}

func (o *Orchestrator) runner(sessionID string) (*runner, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	r, ok := o.runners[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: not found", sessionID)
	}
	return r, nil
}

// Join seats a player. On auto-start tables a hand may begin
// immediately once enough players are seated.
func (o *Orchestrator) Join(ctx context.Context, sessionID, playerID string, seat, buyIn int) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.join(playerID, seat, buyIn)}
	}).err
}

// Leave removes a player. Mid-hand the player is folded when the
// action reaches them.
func (o *Orchestrator) Leave(ctx context.Context, sessionID, playerID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.leave(playerID)}
	}).err
}

// StartSession moves a waiting session to active and, on auto-start
// tables, deals the first hand.
func (o *Orchestrator) StartSession(ctx context.Context, sessionID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.start()}
	}).err
}

// DealNextHand deals a hand on demand, for tables without auto-start.
func (o *Orchestrator) DealNextHand(ctx context.Context, sessionID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.startHand()}
	}).err
}

// ProcessAction routes a player action into the session's hand. The
// ActionError carries rejections the player can correct.
func (o *Orchestrator) ProcessAction(ctx context.Context, sessionID, playerID string, a engine.Action, sentAt time.Time) (*engine.ActionError, error) {
	r, err := o.runner(sessionID)
	if err != nil {
		return nil, err
	}
	res := r.exec(ctx, func(r *runner) result {
		return r.processAction(playerID, a, sentAt, false)
	})
	return res.rej, res.err
}

// UseTimeBank extends the player's running action clock with their
// remaining time bank.
func (o *Orchestrator) UseTimeBank(ctx context.Context, sessionID, playerID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.useTimeBank(playerID)}
	}).err
}

// Disconnect records a dropped connection and starts the grace period.
func (o *Orchestrator) Disconnect(ctx context.Context, sessionID, playerID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.disconnect(playerID)}
	}).err
}

// Reconnect clears a player's disconnect state.
func (o *Orchestrator) Reconnect(ctx context.Context, sessionID, playerID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.reconnect(playerID)}
	}).err
}

// PauseSession suspends play, freezing the current hand and clock.
func (o *Orchestrator) PauseSession(ctx context.Context, sessionID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.pause()}
	}).err
}

// ResumeSession resumes a paused session.
func (o *Orchestrator) ResumeSession(ctx context.Context, sessionID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.resume()}
	}).err
}

// EndSession finishes a session, cancelling any hand in flight.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	r, err := o.runner(sessionID)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(r *runner) result {
		return result{err: r.end()}
	}).err
}

// View returns a consistent snapshot of the session for transports,
// built on the runner goroutine.
func (o *Orchestrator) View(ctx context.Context, sessionID string) (*SessionView, error) {
	r, err := o.runner(sessionID)
	if err != nil {
		return nil, err
	}
	var v *SessionView
	res := r.exec(ctx, func(r *runner) result {
		v = r.view()
		return result{}
	})
	if res.err != nil {
		return nil, res.err
	}
	return v, nil
}

// Report builds the statistics report for a session. Returns nil when
// statistics are disabled.
func (o *Orchestrator) Report(ctx context.Context, sessionID string) (*statistics.Report, error) {
	if o.stats == nil {
		return nil, nil
	}
	r, err := o.runner(sessionID)
	if err != nil {
		return nil, err
	}
	var rep *statistics.Report
	res := r.exec(ctx, func(r *runner) result {
		rep = o.stats.SessionReport(r.sess)
		return result{}
	})
	if res.err != nil {
		return nil, res.err
	}
	return rep, nil
}

// Close stops every runner. In-flight hands are cancelled and
// refunded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	runners := make([]*runner, 0, len(o.runners))
	for _, r := range o.runners {
		runners = append(runners, r)
	}
	o.mu.Unlock()

	for _, r := range runners {
		r.stop()
	}
}

func (o *Orchestrator) emit(e Event) {
	o.listeners.emit(e)
}
