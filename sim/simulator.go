package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stats summarizes the progress of a run.
type Stats struct {
	Clock    float64
	Executed int
	Failed   int
	Rejected int
	Pending  int
}

// Simulator drives the event loop of one simulation. It owns the event queue
// and the metric dispatcher; the Environment is shared with every event.
//
// Run executes on a single goroutine. Pause, Resume, Stop, SetDelay and the
// accessors may be called concurrently from other goroutines.
type Simulator struct {
	env     *Environment
	metrics *MetricDispatcher

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *EventQueue
	clock   float64
	delay   time.Duration
	started bool
	paused  bool
	halted  bool
	stopped bool
	stats   Stats
	errs    []error

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSimulator binds env to a new simulator and seeds the start event at time 0.
func NewSimulator(env *Environment) *Simulator {
	s := &Simulator{
		env:     env,
		metrics: NewMetricDispatcher(),
		queue:   NewEventQueue(),
		stopCh:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	env.bind(s, s.metrics, s.halt)
	s.Schedule(NewStartEvent(0))
	return s
}

// Environment returns the environment the simulator operates on.
func (s *Simulator) Environment() *Environment { return s.env }

// Metrics returns the metric dispatcher, used to register listeners.
func (s *Simulator) Metrics() *MetricDispatcher { return s.metrics }

// Schedule enqueues ev. It returns false, without error, when ev is dated
// before the current clock or when the simulator is stopped.
func (s *Simulator) Schedule(ev Event) bool {
	if ev == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := ev.Timestamp()
	if s.stopped || math.IsNaN(t) || t < s.clock {
		s.stats.Rejected++
		logrus.Debugf("Rejected %s at %g (clock %g, stopped %t)", ev.Kind(), t, s.clock, s.stopped)
		return false
	}
	s.queue.Schedule(ev)
	return true
}

// Now returns the current simulation time.
func (s *Simulator) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Run drains the event queue. Each iteration waits while paused, pops the
// earliest event, advances the clock, executes the event, flushes the metric
// dispatcher once and applies the throttle delay. Run returns when the queue is
// empty, when the end event fires or when Stop is called, and always leaves the
// simulator stopped.
func (s *Simulator) Run() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		logrus.Warnf("Simulation %q already ran", s.env.Name())
		return
	}
	s.started = true
	s.mu.Unlock()

	if end := s.env.EndTime(); end > 0 {
		s.Schedule(NewEndEvent(end))
	}
	logrus.Infof("Simulation %q started with %d sensors and %d chargers", s.env.Name(), len(s.env.Sensors()), len(s.env.Chargers()))

	for {
		ev, ok := s.next()
		if !ok {
			break
		}
		s.execute(ev)
		s.metrics.Flush()
		if s.isHalted() {
			break
		}
		s.throttle()
	}
	s.Stop()
	st := s.Stats()
	logrus.Infof("Simulation %q ended at %g: %d events executed, %d failed", s.env.Name(), st.Clock, st.Executed, st.Failed)
}

func (s *Simulator) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped || s.halted {
		return nil, false
	}
	ev := s.queue.PopNext()
	if ev == nil {
		return nil, false
	}
	s.clock = ev.Timestamp()
	return ev, true
}

// execute runs one event. Errors and panics are wrapped in an
// EventExecutionError, logged and counted; they never abort the loop.
func (s *Simulator) execute(ev Event) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		logrus.Debugf("[t=%g] Executing %s", ev.Timestamp(), ev.Kind())
		return ev.Execute(s.env)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Executed++
	if err == nil {
		return
	}
	execErr := &EventExecutionError{Kind: ev.Kind(), Time: ev.Timestamp(), Err: err}
	s.stats.Failed++
	s.errs = append(s.errs, execErr)
	logrus.WithFields(logrus.Fields{"event": ev.Kind(), "time": ev.Timestamp()}).Error(execErr)
}

func (s *Simulator) throttle() {
	d := s.Delay()
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stopCh:
	}
}

func (s *Simulator) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
}

func (s *Simulator) isHalted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Pause suspends the loop between two events. Queued events are kept.
func (s *Simulator) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		logrus.Infof("Simulation %q paused at %g", s.env.Name(), s.clock)
	}
	s.paused = true
}

// Resume wakes a paused loop.
func (s *Simulator) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		logrus.Infof("Simulation %q resumed at %g", s.env.Name(), s.clock)
	}
	s.paused = false
	s.cond.Broadcast()
}

// IsPaused reports whether the loop is paused.
func (s *Simulator) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Stop discards all pending events, terminates the loop after the in-flight
// event and closes the metric dispatcher. It is idempotent.
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		discarded := s.queue.Len()
		s.queue.Clear()
		s.stopped = true
		s.cond.Broadcast()
		close(s.stopCh)
		s.mu.Unlock()

		if discarded > 0 {
			logrus.Infof("Simulation %q stopped, %d pending events discarded", s.env.Name(), discarded)
		}
		s.metrics.Close()
	})
}

// IsStopped reports whether the simulator reached its terminal state.
func (s *Simulator) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Done is closed when the simulator stops.
func (s *Simulator) Done() <-chan struct{} { return s.stopCh }

// RemoveEventsOfKind cancels every queued event of kind and returns the
// number of cancelled events.
func (s *Simulator) RemoveEventsOfKind(kind EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queue.RemoveKind(kind)
	if n > 0 {
		logrus.Debugf("Cancelled %d queued %s events", n, kind)
	}
	return n
}

// SetDelay sets the wall-clock pause after each step. It only paces the loop
// for observation and has no effect on simulated time or ordering.
func (s *Simulator) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = max(d, 0)
}

// Delay returns the wall-clock pause applied after each step.
func (s *Simulator) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Pending returns the number of queued events.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Stats returns a snapshot of the run counters.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Clock = s.clock
	st.Pending = s.queue.Len()
	return st
}

// Errors returns the execution errors collected so far.
func (s *Simulator) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
