package orchestrator

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroom/holdem/internal/engine"
	"github.com/cardroom/holdem/internal/session"
	"github.com/cardroom/holdem/internal/statistics"
	"github.com/cardroom/holdem/internal/store"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func testSessionConfig() session.Config {
	return session.Config{
		TableID:  "test",
		GameType: "texas-holdem",
		Rules: engine.Rules{
			Limit: engine.NoLimit, SmallBlind: 1, BigBlind: 2,
		},
		MinPlayers:      2,
		MaxPlayers:      6,
		BuyInMin:        50,
		BuyInMax:        200,
		AutoStart:       true,
		ActionTime:      30 * time.Second,
		WarningTime:     10 * time.Second,
		TimeBank:        60 * time.Second,
		DisconnectGrace: 2 * time.Minute,
		HandBreak:       time.Hour, // keep tests to one hand
	}
}

// capture records every emitted event.
type capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *capture) HandleEvent(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capture) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

func (c *capture) has(name string) bool { return c.count(name) > 0 }

func setupTable(t *testing.T, o *Orchestrator, cfg session.Config) string {
	t.Helper()
	ctx := context.Background()
	id, err := o.CreateSession(cfg)
	require.NoError(t, err)
	require.NoError(t, o.Join(ctx, id, "alice", 0, 100))
	require.NoError(t, o.Join(ctx, id, "bob", 3, 100))
	require.NoError(t, o.StartSession(ctx, id))
	return id
}

// playDown drives the in-flight hand passively to completion.
func playDown(t *testing.T, o *Orchestrator, id string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		v, err := o.View(ctx, id)
		require.NoError(t, err)
		if v.Hand == nil || v.Hand.CurrentPlayer == "" {
			return
		}
		act := engine.CheckAction()
		if v.Hand.ToCall > 0 {
			act = engine.CallAction()
		}
		rej, err := o.ProcessAction(ctx, id, v.Hand.CurrentPlayer, act, time.Now())
		require.NoError(t, err)
		require.Nil(t, rej)
	}
	t.Fatal("hand did not complete")
}

func TestFullTableFlow(t *testing.T) {
	t.Parallel()

	events := &capture{}
	stats := statistics.NewCollector()
	o := New(Options{Logger: testLogger(), Stats: stats})
	defer o.Close()
	o.Subscribe(events)

	id := setupTable(t, o, testSessionConfig())

	// Auto-start dealt a hand the moment the session went active.
	assert.True(t, events.has("session_started"))
	assert.True(t, events.has("hand_started"))
	assert.True(t, events.has("player_turn"))

	playDown(t, o, id)

	assert.True(t, events.has("hand_completed"))
	assert.Equal(t, 1, stats.Hands())

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, v.TotalHands)
	assert.Nil(t, v.Hand)

	total := 0
	for _, p := range v.Players {
		total += p.Stack
	}
	assert.Equal(t, 200, total)

	rep, err := o.Report(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 1, rep.TotalHands)
}

func TestPhaseEventsAnnounceStreets(t *testing.T) {
	t.Parallel()

	events := &capture{}
	o := New(Options{Logger: testLogger()})
	defer o.Close()
	o.Subscribe(events)

	id := setupTable(t, o, testSessionConfig())
	playDown(t, o, id)

	events.mu.Lock()
	var phases []PhaseChanged
	for _, e := range events.events {
		if pc, ok := e.(PhaseChanged); ok {
			phases = append(phases, pc)
		}
	}
	events.mu.Unlock()

	// A checked-down hand crosses every street once.
	require.Len(t, phases, 4)
	assert.Equal(t, engine.Flop, phases[0].Phase)
	assert.Len(t, phases[0].Board, 3)
	assert.Equal(t, engine.Turn, phases[1].Phase)
	assert.Len(t, phases[1].Board, 4)
	assert.Equal(t, engine.River, phases[2].Phase)
	assert.Len(t, phases[2].Board, 5)
	assert.Equal(t, engine.Showdown, phases[3].Phase)
}

func TestActionRejectionsPassThrough(t *testing.T) {
	t.Parallel()

	o := New(Options{Logger: testLogger()})
	defer o.Close()
	id := setupTable(t, o, testSessionConfig())

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, v.Hand)

	// Act out of turn.
	other := "alice"
	if v.Hand.CurrentPlayer == "alice" {
		other = "bob"
	}
	rej, err := o.ProcessAction(ctx, id, other, engine.CallAction(), time.Now())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, engine.CodeNotYourTurn, rej.Code)
}

func TestTimeoutForcesAction(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	events := &capture{}
	o := New(Options{Logger: testLogger(), Clock: clock})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, testSessionConfig())

	ctx := context.Background()
	clock.Advance(20 * time.Second).MustWait(ctx)
	require.Eventually(t, func() bool { return events.has("timer_warning") },
		time.Second, 5*time.Millisecond)

	clock.Advance(10 * time.Second).MustWait(ctx)
	require.Eventually(t, func() bool { return events.has("player_timed_out") },
		time.Second, 5*time.Millisecond)

	// Heads up preflop the small blind faces a bet, so the timeout
	// folds and the hand ends immediately.
	require.Eventually(t, func() bool { return events.has("hand_completed") },
		time.Second, 5*time.Millisecond)

	v, err := o.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, v.TotalHands)
}

func TestHandStartDelayDefersFirstDeal(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	events := &capture{}
	cfg := testSessionConfig()
	cfg.HandStartDelay = 5 * time.Second
	o := New(Options{Logger: testLogger(), Clock: clock})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, cfg)

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, v.Hand, "no deal before the start delay elapses")

	clock.Advance(5 * time.Second).MustWait(ctx)
	require.Eventually(t, func() bool { return events.has("hand_started") },
		time.Second, 5*time.Millisecond)
}

func TestDisconnectGraceFoldsAndSitsOut(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	events := &capture{}
	cfg := testSessionConfig()
	cfg.ActionTime = 10 * time.Minute // keep the action clock out of the way
	cfg.WarningTime = 0
	o := New(Options{Logger: testLogger(), Clock: clock})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, cfg)

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, v.Hand)
	current := v.Hand.CurrentPlayer

	require.NoError(t, o.Disconnect(ctx, id, current))
	assert.True(t, events.has("player_disconnected"))

	clock.Advance(2 * time.Minute).MustWait(ctx)
	require.Eventually(t, func() bool { return events.has("hand_completed") },
		time.Second, 5*time.Millisecond)

	v, err = o.View(ctx, id)
	require.NoError(t, err)
	for _, p := range v.Players {
		if p.PlayerID == current {
			assert.True(t, p.SittingOut)
		}
	}
}

func TestReconnectWithinGrace(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	events := &capture{}
	cfg := testSessionConfig()
	cfg.ActionTime = 10 * time.Minute
	cfg.WarningTime = 0
	o := New(Options{Logger: testLogger(), Clock: clock})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, cfg)

	ctx := context.Background()
	require.NoError(t, o.Disconnect(ctx, id, "bob"))
	require.NoError(t, o.Reconnect(ctx, id, "bob"))
	assert.True(t, events.has("player_reconnected"))

	// The stopped grace timer must not sit bob out later.
	clock.Advance(3 * time.Minute).MustWait(ctx)
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	for _, p := range v.Players {
		if p.PlayerID == "bob" {
			assert.True(t, p.Connected)
			assert.False(t, p.SittingOut)
		}
	}
}

func TestLeaveMidHandFoldsPlayer(t *testing.T) {
	t.Parallel()

	events := &capture{}
	o := New(Options{Logger: testLogger()})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, testSessionConfig())

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, v.Hand)

	require.NoError(t, o.Leave(ctx, id, v.Hand.CurrentPlayer))
	assert.True(t, events.has("player_left"))
	assert.True(t, events.has("hand_completed"), "fold ends the heads-up hand")

	v, err = o.View(ctx, id)
	require.NoError(t, err)
	assert.Len(t, v.Players, 1)
}

func TestLeaveMidHandCashesOutStackBehind(t *testing.T) {
	t.Parallel()

	events := &capture{}
	o := New(Options{Logger: testLogger()})
	defer o.Close()
	o.Subscribe(events)

	id := setupTable(t, o, testSessionConfig())

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, v.Hand)

	leaver := v.Hand.CurrentPlayer
	require.NoError(t, o.Leave(ctx, id, leaver))

	events.mu.Lock()
	var left []PlayerLeft
	for _, e := range events.events {
		if pl, ok := e.(PlayerLeft); ok {
			left = append(left, pl)
		}
	}
	events.mu.Unlock()

	require.Len(t, left, 1)
	assert.Equal(t, leaver, left[0].PlayerID)
	// Heads-up the player to act preflop is the small blind. The blind
	// stays in the pot when they walk; only the stack behind cashes out.
	assert.Equal(t, 99, left[0].CashOut)
}

func TestExecAfterStopReturnsErrClosed(t *testing.T) {
	t.Parallel()

	o := New(Options{Logger: testLogger()})
	id := setupTable(t, o, testSessionConfig())

	o.mu.Lock()
	r := o.runners[id]
	o.mu.Unlock()

	o.Close()
	<-r.stopped

	// The loop is gone; exec must not wait forever on a reply.
	res := r.exec(context.Background(), func(*runner) result { return result{} })
	assert.ErrorIs(t, res.err, ErrClosed)
}

func TestPauseAndResumeSession(t *testing.T) {
	t.Parallel()

	events := &capture{}
	o := New(Options{Logger: testLogger()})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, testSessionConfig())

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	current := v.Hand.CurrentPlayer

	require.NoError(t, o.PauseSession(ctx, id))
	rej, err := o.ProcessAction(ctx, id, current, engine.CallAction(), time.Now())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, engine.CodeWrongPhase, rej.Code)

	require.NoError(t, o.ResumeSession(ctx, id))
	rej, err = o.ProcessAction(ctx, id, current, engine.CallAction(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestEndSessionCancelsHandAndRefunds(t *testing.T) {
	t.Parallel()

	events := &capture{}
	o := New(Options{Logger: testLogger()})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, testSessionConfig())

	ctx := context.Background()
	require.NoError(t, o.EndSession(ctx, id))
	assert.True(t, events.has("hand_cancelled"))
	assert.True(t, events.has("session_ended"))

	v, err := o.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "finished", v.Status)
	for _, p := range v.Players {
		assert.Equal(t, 100, p.Stack, "blinds refunded on cancel")
	}
}

func TestSnapshotPersistedAfterHand(t *testing.T) {
	t.Parallel()

	fs, err := store.NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)
	w := store.NewWriter(fs, testLogger(), quartz.NewReal(), 8)

	o := New(Options{Logger: testLogger(), Persister: w})
	id := setupTable(t, o, testSessionConfig())
	playDown(t, o, id)
	o.Close()
	w.Close()

	snap, err := fs.Load(id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalHands)
	assert.Len(t, snap.Players, 2)
}

func TestTimeBankExtendsClock(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	events := &capture{}
	o := New(Options{Logger: testLogger(), Clock: clock})
	defer o.Close()
	o.Subscribe(events)
	id := setupTable(t, o, testSessionConfig())

	ctx := context.Background()
	v, err := o.View(ctx, id)
	require.NoError(t, err)
	current := v.Hand.CurrentPlayer

	require.NoError(t, o.UseTimeBank(ctx, id, current))
	// A second use finds the bank empty.
	assert.Error(t, o.UseTimeBank(ctx, id, current))

	// The original limit alone no longer times the player out.
	clock.Advance(30 * time.Second).MustWait(ctx)
	assert.False(t, events.has("player_timed_out"))
}
