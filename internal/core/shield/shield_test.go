package shield

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapObserver map[string]any

func (m mapObserver) Read(id string) (any, bool) {
	v, ok := m[id]
	return v, ok
}

type recordingExecutor struct {
	calls []Command
	err   error
}

func (r *recordingExecutor) Execute(ctx context.Context, cmd Command) error {
	r.calls = append(r.calls, cmd)
	return r.err
}

type recordingAuditor struct {
	events []AuditEvent
}

func (r *recordingAuditor) Emit(ev AuditEvent) {
	r.events = append(r.events, ev)
}

func (r *recordingAuditor) types() []EventType {
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

type fixture struct {
	obs   mapObserver
	exec  *recordingExecutor
	audit *recordingAuditor
	clock *fakeClock
	sh    *Shield
}

func newFixture() *fixture {
	f := &fixture{
		obs:   mapObserver{resMode: "Home 1", resLimit: 0},
		exec:  &recordingExecutor{},
		audit: &recordingAuditor{},
		clock: &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	seq := 0
	f.sh = New(DefaultConfig(), testNormalizer(), f.obs, f.exec,
		WithAuditor(f.audit),
		WithClock(f.clock.Now),
		WithLogger(zap.NewNop()),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("cmd-%d", seq)
		}),
	)
	return f
}

// setMode only asks for a change when the observed mode differs.
func setMode(mode string) Request {
	return Request{
		Name:   "set_box_mode",
		Params: map[string]any{"mode": mode},
		Expected: func(obs StateObserver, norm *Normalizer) ExpectedState {
			if cur, ok := obs.Read(resMode); ok && norm.Equal(resMode, cur, mode) {
				return nil
			}
			return ExpectedState{{ResourceID: resMode, Value: mode}}
		},
	}
}

// setFixed always asks for the given state, even if it is already observed.
func setFixed(name string, expected ExpectedState) Request {
	return Request{
		Name: name,
		Expected: func(StateObserver, *Normalizer) ExpectedState {
			return expected
		},
	}
}

func (f *fixture) assertAtMostOneActive(t *testing.T) {
	snap := f.sh.Snapshot()
	for _, q := range snap.Queue {
		assert.Equal(t, StatusQueued, q.Status)
		if snap.Active != nil {
			assert.NotEqual(t, snap.Active.ID, q.ID)
		}
	}
}

func TestEndToEndSetMode(t *testing.T) {

	require := require.New(t)
	f := newFixture()
	ctx := context.Background()

	res, err := f.sh.Submit(ctx, setMode("Home 2"))
	require.NoError(err)
	require.Equal(OutcomeDispatched, res.Outcome)
	require.Len(f.exec.calls, 1)
	active, ok := f.sh.Active()
	require.True(ok)
	require.Equal(res.CommandID, active.ID)
	require.Equal(StatusActive, active.Status)
	require.Equal("Home 1", active.Original[resMode])

	res, err = f.sh.Submit(ctx, setMode("Home 2"))
	require.NoError(err)
	require.Equal(OutcomeIgnored, res.Outcome)
	require.Len(f.exec.calls, 1, "duplicate must not reach the executor")

	f.obs[resMode] = "Home 2"
	f.sh.Tick(ctx, f.clock.Advance(15*time.Second))

	_, ok = f.sh.Active()
	require.False(ok)
	require.Equal(0, f.sh.QueueLen())
	snap := f.sh.Snapshot()
	require.Len(snap.History, 1)
	require.Equal(StatusCompleted, snap.History[0].Status)

	require.Equal([]EventType{
		EventChangeRequested, EventStarted, EventIgnored, EventCompleted, EventReleased,
	}, f.audit.types())
	released := f.audit.events[len(f.audit.events)-1]
	require.Equal([]string{"mode: 'Home 1' → 'Home 2'"}, released.Changes())
}

func TestSubmitEmptyExpectedIsSkipped(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()

	res, err := f.sh.Submit(context.Background(), setMode("Home 1"))
	assert.NoError(err)
	assert.Equal(OutcomeSkipped, res.Outcome)
	assert.Equal("nothing to change", res.Reason)
	assert.Empty(res.CommandID)
	assert.Empty(f.exec.calls)
	assert.Equal([]EventType{EventSkipped}, f.audit.types())

	res, err = f.sh.Submit(context.Background(), Request{Name: "noop"})
	assert.NoError(err)
	assert.Equal(OutcomeSkipped, res.Outcome)
}

func TestSubmitAlreadySatisfiedIsSkipped(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()
	f.obs[resLimit] = "5.0"

	res, err := f.sh.Submit(context.Background(), setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: 5}}))
	assert.NoError(err)
	assert.Equal(OutcomeSkipped, res.Outcome)
	assert.Equal("change already completed", res.Reason)
	assert.Empty(f.exec.calls)
	_, ok := f.sh.Active()
	assert.False(ok)
}

func TestQueuedCommandsRunInOrder(t *testing.T) {

	require := require.New(t)
	f := newFixture()
	ctx := context.Background()

	a, err := f.sh.Submit(ctx, setMode("Home 2"))
	require.NoError(err)
	require.Equal(OutcomeDispatched, a.Outcome)

	b, err := f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: 100}}))
	require.NoError(err)
	require.Equal(OutcomeQueued, b.Outcome)

	c, err := f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: 200}}))
	require.NoError(err)
	require.Equal(OutcomeQueued, c.Outcome)
	require.Equal(2, f.sh.QueueLen())
	f.assertAtMostOneActive(t)

	// nothing converged yet
	f.sh.Tick(ctx, f.clock.Advance(15*time.Second))
	active, _ := f.sh.Active()
	require.Equal(a.CommandID, active.ID)
	require.Len(f.exec.calls, 1)

	f.obs[resMode] = "home 2"
	f.sh.Tick(ctx, f.clock.Advance(15*time.Second))
	active, _ = f.sh.Active()
	require.Equal(b.CommandID, active.ID)
	require.Len(f.exec.calls, 2)
	f.assertAtMostOneActive(t)

	f.obs[resLimit] = "100"
	f.sh.Tick(ctx, f.clock.Advance(15*time.Second))
	active, _ = f.sh.Active()
	require.Equal(c.CommandID, active.ID)
	require.Len(f.exec.calls, 3)
	require.Equal([]string{a.CommandID, b.CommandID, c.CommandID},
		[]string{f.exec.calls[0].ID, f.exec.calls[1].ID, f.exec.calls[2].ID})
}

func TestOriginalCapturedAtPromotion(t *testing.T) {

	require := require.New(t)
	f := newFixture()
	ctx := context.Background()

	_, err := f.sh.Submit(ctx, setMode("Home 2"))
	require.NoError(err)
	b, err := f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: 100}}))
	require.NoError(err)
	require.Equal(OutcomeQueued, b.Outcome)

	f.obs[resMode] = "Home 2"
	f.obs[resLimit] = 50
	f.sh.Tick(ctx, f.clock.Advance(time.Second))

	active, ok := f.sh.Active()
	require.True(ok)
	require.Equal(b.CommandID, active.ID)
	require.Equal(50, active.Original[resLimit])
}

func TestDuplicateQueuedIsIgnored(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()
	ctx := context.Background()

	_, _ = f.sh.Submit(ctx, setMode("Home 2"))
	first, err := f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: 100}}))
	assert.NoError(err)
	assert.Equal(OutcomeQueued, first.Outcome)

	// same key after normalization
	second, err := f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: "100.2"}}))
	assert.NoError(err)
	assert.Equal(OutcomeIgnored, second.Outcome)
	assert.Equal(1, f.sh.QueueLen())
	assert.Len(f.exec.calls, 1)

	// same state but a different name is not a duplicate
	third, err := f.sh.Submit(ctx, setFixed("set_limit_alt", ExpectedState{{ResourceID: resLimit, Value: 100}}))
	assert.NoError(err)
	assert.Equal(OutcomeQueued, third.Outcome)
}

func TestConvergenceUsesNormalization(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()
	ctx := context.Background()
	f.obs["B"] = "Off"

	res, err := f.sh.Submit(ctx, setFixed("multi", ExpectedState{
		{ResourceID: resLimit, Value: "5"},
		{ResourceID: "B", Value: "on"},
	}))
	assert.NoError(err)
	assert.Equal(OutcomeDispatched, res.Outcome)

	// partial match keeps the command active
	f.obs[resLimit] = "5.0"
	f.sh.Tick(ctx, f.clock.Advance(15*time.Second))
	_, ok := f.sh.Active()
	assert.True(ok)

	f.obs["B"] = "Zapnuto / On"
	f.sh.Tick(ctx, f.clock.Advance(15*time.Second))
	_, ok = f.sh.Active()
	assert.False(ok)
	assert.Equal(StatusCompleted, f.sh.Snapshot().History[0].Status)
}

func TestMissingObservationIsMismatch(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()
	ctx := context.Background()

	_, err := f.sh.Submit(ctx, setFixed("set_x", ExpectedState{{ResourceID: "x", Value: "on"}}))
	assert.NoError(err)
	f.sh.Tick(ctx, f.clock.Advance(15*time.Second))
	_, ok := f.sh.Active()
	assert.True(ok, "missing data must never complete a command")

	f.obs[resLimit] = "garbage"
	_, err = f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: 1}}))
	assert.NoError(err)
	assert.Equal(1, f.sh.QueueLen())
}

func TestTimeoutPromotesNext(t *testing.T) {

	require := require.New(t)
	f := newFixture()
	ctx := context.Background()

	a, _ := f.sh.Submit(ctx, setMode("Home 3"))
	b, _ := f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: 100}}))
	require.Equal(OutcomeQueued, b.Outcome)

	f.sh.Tick(ctx, f.clock.Advance(DefaultCommandTimeout))
	active, _ := f.sh.Active()
	require.Equal(a.CommandID, active.ID, "timeout is strictly greater than the configured duration")

	f.sh.Tick(ctx, f.clock.Advance(time.Second))
	active, ok := f.sh.Active()
	require.True(ok)
	require.Equal(b.CommandID, active.ID)

	snap := f.sh.Snapshot()
	require.Len(snap.History, 1)
	require.Equal(a.CommandID, snap.History[0].ID)
	require.Equal(StatusTimedOut, snap.History[0].Status)
	require.Contains(f.audit.types(), EventTimeout)
	require.NotContains(f.audit.types(), EventCompleted)
}

func TestTimeoutWinsOverLateConvergence(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()
	ctx := context.Background()

	_, _ = f.sh.Submit(ctx, setMode("Home 3"))
	f.obs[resMode] = "Home 3"
	f.sh.Tick(ctx, f.clock.Advance(DefaultCommandTimeout+time.Second))

	assert.Equal(StatusTimedOut, f.sh.Snapshot().History[0].Status)
}

func TestDispatchErrorLeavesSlotEmpty(t *testing.T) {

	require := require.New(t)
	f := newFixture()
	ctx := context.Background()
	boom := errors.New("remote rejected")
	f.exec.err = boom

	res, err := f.sh.Submit(ctx, setMode("Home 2"))
	require.Error(err)
	require.ErrorIs(err, boom)
	var derr *DispatchError
	require.ErrorAs(err, &derr)
	require.Equal("set_box_mode", derr.Name)
	require.Empty(res.CommandID)
	_, ok := f.sh.Active()
	require.False(ok)
	require.Equal(0, f.sh.QueueLen())
	require.Equal(StatusFailed, f.sh.Snapshot().History[0].Status)
	require.Equal([]EventType{EventChangeRequested, EventFailed}, f.audit.types())

	f.exec.err = nil
	res, err = f.sh.Submit(ctx, setMode("Home 2"))
	require.NoError(err)
	require.Equal(OutcomeDispatched, res.Outcome)
	require.Len(f.exec.calls, 2)
}

func TestPromotionSkipsRejectedHead(t *testing.T) {

	require := require.New(t)
	f := newFixture()
	ctx := context.Background()

	rejected := map[string]bool{}
	f.sh.executor = ExecutorFunc(func(ctx context.Context, cmd Command) error {
		f.exec.calls = append(f.exec.calls, cmd)
		if rejected[cmd.Name] {
			return errors.New("rejected")
		}
		return nil
	})

	_, _ = f.sh.Submit(ctx, setMode("Home 2"))
	_, _ = f.sh.Submit(ctx, setFixed("bad", ExpectedState{{ResourceID: "x", Value: 1}}))
	good, _ := f.sh.Submit(ctx, setFixed("good", ExpectedState{{ResourceID: "y", Value: 1}}))
	rejected["bad"] = true

	f.obs[resMode] = "Home 2"
	f.sh.Tick(ctx, f.clock.Advance(time.Second))

	active, ok := f.sh.Active()
	require.True(ok)
	require.Equal(good.CommandID, active.ID)
	require.Equal(0, f.sh.QueueLen())
}

func TestExecutorReceivesDeadline(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()

	var hasDeadline bool
	f.sh.executor = ExecutorFunc(func(ctx context.Context, cmd Command) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	_, err := f.sh.Submit(context.Background(), setMode("Home 2"))
	assert.NoError(err)
	assert.True(hasDeadline)
}

func TestPanicsAreContained(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()
	ctx := context.Background()

	f.sh.auditor = SafeAuditor{Auditor: AuditorFunc(func(AuditEvent) { panic("sink down") }), Logger: zap.NewNop()}
	f.sh.executor = ExecutorFunc(func(ctx context.Context, cmd Command) error { panic("executor bug") })

	assert.NotPanics(func() {
		_, err := f.sh.Submit(ctx, setMode("Home 2"))
		assert.Error(err)
	})

	f.sh.executor = f.exec
	_, err := f.sh.Submit(ctx, setMode("Home 2"))
	assert.NoError(err)

	f.sh.observer = panicObserver{}
	assert.NotPanics(func() {
		f.sh.Tick(ctx, f.clock.Advance(time.Second))
	})
	_, ok := f.sh.Active()
	assert.True(ok)
}

type panicObserver struct{}

func (panicObserver) Read(string) (any, bool) {
	panic("observer bug")
}

func TestHistoryIsBounded(t *testing.T) {

	assert := assert.New(t)
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < historySize+5; i++ {
		_, err := f.sh.Submit(ctx, setFixed("set_limit", ExpectedState{{ResourceID: resLimit, Value: i + 1}}))
		assert.NoError(err)
		f.obs[resLimit] = i + 1
		f.sh.Tick(ctx, f.clock.Advance(time.Second))
	}
	snap := f.sh.Snapshot()
	assert.Len(snap.History, historySize)
	assert.Nil(snap.Active)
	assert.Equal(StatusCompleted, snap.History[historySize-1].Status)
}
