package sim

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_ExecutesInTimeOrderForAnyInterleaving(t *testing.T) {
	// GIVEN events scheduled in random order, some from inside other events
	rng := rand.New(rand.NewSource(42))
	env := newTestEnvironment(t, EnvironmentConfig{Name: "order"})
	s := NewSimulator(env)

	type stamp struct {
		time float64
		seq  int
	}
	var executed []stamp
	seq := 0
	record := func(at float64, n int) func(*Environment) error {
		return func(*Environment) error {
			executed = append(executed, stamp{at, n})
			return nil
		}
	}
	for i := 0; i < 200; i++ {
		at := float64(rng.Intn(50))
		n := seq
		seq++
		if rng.Intn(4) == 0 {
			// follow-up scheduled during execution, never in the past
			follow := at + float64(rng.Intn(10))
			followSeq := seq
			seq++
			require.True(t, s.Schedule(newFuncEvent(at, func(env *Environment) error {
				executed = append(executed, stamp{at, n})
				env.Schedule(newFuncEvent(follow, record(follow, followSeq)))
				return nil
			})))
			continue
		}
		require.True(t, s.Schedule(newFuncEvent(at, record(at, n))))
	}

	// WHEN running
	s.Run()

	// THEN timestamps never decrease
	require.Len(t, executed, seq)
	assert.True(t, sort.SliceIsSorted(executed, func(i, j int) bool {
		return executed[i].time < executed[j].time
	}), "events must execute in non-decreasing time order")
	for i := 1; i < len(executed); i++ {
		assert.LessOrEqual(t, executed[i-1].time, executed[i].time)
	}
	assert.Equal(t, 0, s.Stats().Failed)
}

func TestSimulator_EqualTimesKeepInsertionOrder(t *testing.T) {
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	var order []int
	for i := 0; i < 10; i++ {
		require.True(t, s.Schedule(newFuncEvent(3, func(*Environment) error {
			order = append(order, i)
			return nil
		})))
	}

	s.Run()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestSimulator_RejectsPastDatedEvents(t *testing.T) {
	// GIVEN an event at t=10 that schedules follow-ups at t=5 and t=10
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	var pastAccepted, presentAccepted bool
	presentRan := false
	require.True(t, s.Schedule(newFuncEvent(10, func(env *Environment) error {
		pastAccepted = env.Schedule(newFuncEvent(5, func(*Environment) error {
			t.Error("past-dated event must never execute")
			return nil
		}))
		presentAccepted = env.Schedule(newFuncEvent(10, func(*Environment) error {
			presentRan = true
			return nil
		}))
		return nil
	})))

	// WHEN running
	s.Run()

	// THEN t=5 is rejected while t=10 is accepted and executed
	assert.False(t, pastAccepted)
	assert.True(t, presentAccepted)
	assert.True(t, presentRan)
	assert.Equal(t, 1, s.Stats().Rejected)
	assert.Equal(t, 10.0, s.Now())
}

func TestSimulator_StartEventRunsFirst(t *testing.T) {
	env := newTestEnvironment(t, EnvironmentConfig{Name: "first"})
	s := NewSimulator(env)
	rec := &recordingListener{}
	s.Metrics().AddListener(rec)
	require.True(t, s.Schedule(newFuncEvent(0, func(env *Environment) error {
		env.Record(MetricEvent{Kind: MetricLrRequest})
		return nil
	})))

	s.Run()

	got := rec.received()
	require.Len(t, got, 2)
	assert.Equal(t, MetricSimulationStart, got[0].Kind)
	assert.Equal(t, "first", got[0].NewValue)
}

func TestSimulator_FlushesOncePerStep(t *testing.T) {
	// GIVEN an event recording three metrics and a later event inspecting the listener
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	rec := &recordingListener{}
	s.Metrics().AddListener(rec)
	kinds := []MetricKind{MetricLrRequest, MetricSensorCapacity, MetricLcRequest}
	var seenMidStep, seenNextStep int
	require.True(t, s.Schedule(newFuncEvent(1, func(env *Environment) error {
		for _, k := range kinds {
			env.Record(MetricEvent{Kind: k, Time: 1})
		}
		seenMidStep = len(rec.received())
		return nil
	})))
	require.True(t, s.Schedule(newFuncEvent(2, func(*Environment) error {
		seenNextStep = len(rec.received())
		return nil
	})))

	// WHEN running
	s.Run()

	// THEN nothing from the step is visible during it, everything before the next one
	assert.Equal(t, 1, seenMidStep, "only the start metric may be visible mid-step")
	assert.Equal(t, 4, seenNextStep)
	got := rec.received()
	require.Len(t, got, 4)
	for i, k := range kinds {
		assert.Equal(t, k, got[i+1].Kind)
	}
}

func TestSimulator_FailingEventsDoNotAbortLoop(t *testing.T) {
	// GIVEN an erroring event, a panicking event and a healthy one
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	boom := errors.New("boom")
	healthyRan := false
	s.Schedule(newFuncEvent(1, func(*Environment) error { return boom }))
	s.Schedule(newFuncEvent(2, func(*Environment) error { panic("kaboom") }))
	s.Schedule(newFuncEvent(3, func(*Environment) error {
		healthyRan = true
		return nil
	}))

	// WHEN running
	s.Run()

	// THEN both failures are recorded with context and the loop went on
	assert.True(t, healthyRan)
	st := s.Stats()
	assert.Equal(t, 4, st.Executed)
	assert.Equal(t, 2, st.Failed)
	errs := s.Errors()
	require.Len(t, errs, 2)
	var execErr *EventExecutionError
	require.ErrorAs(t, errs[0], &execErr)
	assert.Equal(t, testKind, execErr.Kind)
	assert.Equal(t, 1.0, execErr.Time)
	assert.ErrorIs(t, errs[0], boom)
	require.ErrorAs(t, errs[1], &execErr)
	assert.Equal(t, 2.0, execErr.Time)
	assert.Contains(t, execErr.Error(), "kaboom")
}

func TestSimulator_StopIsIdempotent(t *testing.T) {
	// GIVEN a simulator with pending events and a listener
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	rec := &recordingListener{}
	s.Metrics().AddListener(rec)
	s.Schedule(newFuncEvent(5, nil))

	// WHEN stopping twice
	s.Stop()
	s.Stop()

	// THEN the terminal state is the same as after one stop
	assert.True(t, s.IsStopped())
	assert.Equal(t, 0, s.Pending())
	assert.True(t, s.Metrics().IsClosed())
	assert.Equal(t, 1, rec.endSignals())
	assert.False(t, s.Schedule(newFuncEvent(6, nil)), "no scheduling after termination")

	// AND running afterwards executes nothing
	s.Run()
	assert.Equal(t, 0, s.Stats().Executed)
	assert.Empty(t, rec.received())
}

func TestSimulator_RunEndsStopped(t *testing.T) {
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	rec := &recordingListener{}
	s.Metrics().AddListener(rec)

	s.Run()

	assert.True(t, s.IsStopped())
	assert.Equal(t, 1, rec.endSignals())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Run")
	}

	// a second Run is a no-op
	s.Run()
	assert.Equal(t, 1, s.Stats().Executed)
}

func TestSimulator_EndEventHaltsAtEndTime(t *testing.T) {
	// GIVEN an end time of 10 and events at 5 and 15
	env := newTestEnvironment(t, EnvironmentConfig{Name: "bounded", EndTime: 10})
	s := NewSimulator(env)
	rec := &recordingListener{}
	s.Metrics().AddListener(rec)
	var ran []float64
	for _, at := range []float64{5, 15} {
		s.Schedule(newFuncEvent(at, func(*Environment) error {
			ran = append(ran, at)
			return nil
		}))
	}

	// WHEN running
	s.Run()

	// THEN the run ends at 10 with the later event discarded
	assert.Equal(t, []float64{5}, ran)
	assert.Equal(t, 10.0, s.Now())
	assert.Len(t, rec.ofKind(MetricSimulationEnd), 1)
	assert.Equal(t, 0, s.Pending())
}

func TestSimulator_RemoveEventsOfKind(t *testing.T) {
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	var ran []EventKind
	for i := 0; i < 3; i++ {
		s.Schedule(newKindEvent(float64(i+1), "stale", func(*Environment) error {
			ran = append(ran, "stale")
			return nil
		}))
	}
	s.Schedule(newKindEvent(2, "fresh", func(*Environment) error {
		ran = append(ran, "fresh")
		return nil
	}))

	removed := s.RemoveEventsOfKind("stale")
	s.Run()

	assert.Equal(t, 3, removed)
	assert.Equal(t, []EventKind{"fresh"}, ran)
}

func TestSimulator_PauseAndResume(t *testing.T) {
	// GIVEN a paused simulator with queued events
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	executed := make(chan float64, 10)
	for _, at := range []float64{1, 2, 3} {
		s.Schedule(newFuncEvent(at, func(*Environment) error {
			executed <- at
			return nil
		}))
	}
	s.Pause()
	require.True(t, s.IsPaused())

	// WHEN the loop runs while paused
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// THEN nothing executes and nothing is lost
	select {
	case at := <-executed:
		t.Fatalf("event at %v executed while paused", at)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 4, s.Pending())

	// WHEN resumed
	s.Resume()

	// THEN the loop drains in order
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("simulation did not finish after resume")
	}
	close(executed)
	var got []float64
	for at := range executed {
		got = append(got, at)
	}
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestSimulator_StopWakesPausedLoop(t *testing.T) {
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	s.Schedule(newFuncEvent(1, func(*Environment) error {
		t.Error("no event may run after stop")
		return nil
	}))
	s.Pause()
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not terminate the paused loop")
	}
	assert.Equal(t, 0, s.Pending())
}

func TestSimulator_StopInterruptsThrottleDelay(t *testing.T) {
	// GIVEN a long per-step delay
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	s.SetDelay(time.Hour)
	assert.Equal(t, time.Hour, s.Delay())
	later := false
	s.Schedule(newFuncEvent(1, func(*Environment) error {
		later = true
		return nil
	}))
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// WHEN stopping while the loop sleeps after the start step
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	// THEN Run returns promptly without executing the next event
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not interrupt the throttle delay")
	}
	assert.False(t, later)
	assert.Equal(t, 1, s.Stats().Executed)
}

func TestSimulator_DelayDoesNotChangeOrdering(t *testing.T) {
	env := newTestEnvironment(t, EnvironmentConfig{})
	s := NewSimulator(env)
	s.SetDelay(time.Millisecond)
	var got []float64
	for _, at := range []float64{3, 1, 2} {
		s.Schedule(newFuncEvent(at, func(*Environment) error {
			got = append(got, at)
			return nil
		}))
	}

	s.Run()

	assert.Equal(t, []float64{1, 2, 3}, got)
	s.SetDelay(-time.Second)
	assert.Equal(t, time.Duration(0), s.Delay())
}
