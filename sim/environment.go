package sim

import (
	"fmt"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"
)

// EventSink is the append-only scheduling view handed to event code. It can
// add follow-up events but cannot peek at, remove or reorder queued events.
type EventSink interface {
	Schedule(ev Event) bool
	Now() float64
}

// EnvironmentConfig groups simulation-wide parameters.
type EnvironmentConfig struct {
	Name string
	// EndTime is the time of the synthetic end event. 0 means unbounded: the
	// run only ends when the queue drains or Stop is called.
	EndTime float64
	// DischargePeriod is the interval between two sensor discharge events.
	// 0 disables periodic discharge.
	DischargePeriod float64
}

// Environment is the registry of all entities plus simulation-wide
// parameters. It is the shared context every event operates on.
//
// Thread-safety: NOT thread-safe. Mutated only from the simulation loop.
type Environment struct {
	config EnvironmentConfig

	sensors  map[int]*Sensor
	chargers map[int]*Charger

	// requesting holds sensors that issued a request and wait for a tour.
	requesting  map[int]*Sensor
	planPending bool
	planner     TourPlanner

	sink    EventSink
	metrics *MetricDispatcher
	halt    func()
}

// NewEnvironment validates cfg and creates an empty environment.
func NewEnvironment(cfg EnvironmentConfig) (*Environment, error) {
	if err := nonNegative("end time", cfg.EndTime); err != nil {
		return nil, err
	}
	if err := nonNegative("discharge period", cfg.DischargePeriod); err != nil {
		return nil, err
	}
	return &Environment{
		config:     cfg,
		sensors:    make(map[int]*Sensor),
		chargers:   make(map[int]*Charger),
		requesting: make(map[int]*Sensor),
	}, nil
}

func (env *Environment) Name() string             { return env.config.Name }
func (env *Environment) EndTime() float64         { return env.config.EndTime }
func (env *Environment) DischargePeriod() float64 { return env.config.DischargePeriod }

// SetEndTime overrides the configured end time. It has no effect once the
// simulation has been started.
func (env *Environment) SetEndTime(t float64) error {
	if err := nonNegative("end time", t); err != nil {
		return err
	}
	env.config.EndTime = t
	return nil
}

// AddSensor registers s and starts observing its capacity.
func (env *Environment) AddSensor(s *Sensor) error {
	if s == nil {
		return fmt.Errorf("sensor cannot be nil")
	}
	if _, exists := env.sensors[s.ID()]; exists {
		return fmt.Errorf("sensor %s already registered", UniqueIdentifier(s))
	}
	env.sensors[s.ID()] = s
	s.AddSensorListener(env)
	return nil
}

// AddCharger registers c and starts observing its capacity.
func (env *Environment) AddCharger(c *Charger) error {
	if c == nil {
		return fmt.Errorf("charger cannot be nil")
	}
	if _, exists := env.chargers[c.ID()]; exists {
		return fmt.Errorf("charger %s already registered", UniqueIdentifier(c))
	}
	env.chargers[c.ID()] = c
	c.AddChargerListener(env)
	return nil
}

// Sensor retrieves a sensor by id.
func (env *Environment) Sensor(id int) (*Sensor, bool) {
	s, ok := env.sensors[id]
	return s, ok
}

// Charger retrieves a charger by id.
func (env *Environment) Charger(id int) (*Charger, bool) {
	c, ok := env.chargers[id]
	return c, ok
}

// Entity retrieves any registered entity by kind and id.
func (env *Environment) Entity(kind EntityKind, id int) (Identifiable, bool) {
	switch kind {
	case KindSensor:
		if s, ok := env.sensors[id]; ok {
			return s, true
		}
	case KindCharger:
		if c, ok := env.chargers[id]; ok {
			return c, true
		}
	}
	return nil, false
}

// Sensors returns all sensors ordered by id, so iteration is deterministic.
func (env *Environment) Sensors() []*Sensor {
	return sortedByID(env.sensors)
}

// Chargers returns all chargers ordered by id.
func (env *Environment) Chargers() []*Charger {
	return sortedByID(env.chargers)
}

// AvailableChargers returns the chargers currently free for a tour, ordered by id.
func (env *Environment) AvailableChargers() []*Charger {
	var out []*Charger
	for _, c := range env.Chargers() {
		if c.IsAvailable() {
			out = append(out, c)
		}
	}
	return out
}

// RequestingSensors returns the sensors waiting for a tour, ordered by id.
func (env *Environment) RequestingSensors() []*Sensor {
	return sortedByID(env.requesting)
}

// SetPlanner installs the tour-assignment collaborator.
func (env *Environment) SetPlanner(p TourPlanner) { env.planner = p }

// Planner returns the tour-assignment collaborator, nil if none was installed.
func (env *Environment) Planner() TourPlanner { return env.planner }

// Now returns the current simulation time, 0 before the environment is bound
// to a simulator.
func (env *Environment) Now() float64 {
	if env.sink == nil {
		return 0
	}
	return env.sink.Now()
}

// Schedule enqueues a follow-up event. It reports false when the event is
// rejected (past-dated, or no simulator is bound).
func (env *Environment) Schedule(ev Event) bool {
	if env.sink == nil {
		logrus.Warnf("Dropping %s: environment %q is not bound to a simulator", ev.Kind(), env.Name())
		return false
	}
	return env.sink.Schedule(ev)
}

// Record buffers a metric event until the end of the current step.
func (env *Environment) Record(m MetricEvent) {
	if env.metrics != nil {
		env.metrics.Record(m)
	}
}

// Halt asks the simulator to stop once the current event completes.
func (env *Environment) Halt() {
	if env.halt != nil {
		env.halt()
	}
}

func (env *Environment) bind(sink EventSink, metrics *MetricDispatcher, halt func()) {
	env.sink = sink
	env.metrics = metrics
	env.halt = halt
}

func (env *Environment) addRequesting(s *Sensor) {
	env.requesting[s.ID()] = s
}

func (env *Environment) removeRequesting(s *Sensor) {
	delete(env.requesting, s.ID())
}

// requestPlanning schedules a single tour-plan event unless one is already pending.
func (env *Environment) requestPlanning(time float64) {
	if env.planPending {
		return
	}
	if env.Schedule(NewTourPlanEvent(time)) {
		env.planPending = true
	}
}

// OnSensorCapacityChange records the change and raises requests when a
// threshold is crossed downwards.
func (env *Environment) OnSensorCapacityChange(s *Sensor, oldValue, newValue float64) {
	if oldValue == newValue {
		return
	}
	env.Record(MetricEvent{Kind: MetricSensorCapacity, Time: env.Now(), Subject: s, OldValue: oldValue, NewValue: newValue})
	env.checkThresholds(s, oldValue, newValue)
}

// OnChargerCapacityChange records the change.
func (env *Environment) OnChargerCapacityChange(c *Charger, oldValue, newValue float64) {
	if oldValue == newValue {
		return
	}
	env.Record(MetricEvent{Kind: MetricChargerCapacity, Time: env.Now(), Subject: c, OldValue: oldValue, NewValue: newValue})
}

func (env *Environment) checkThresholds(s *Sensor, oldValue, newValue float64) {
	if s.IsPlannedForCharging() {
		return
	}
	now := env.Now()
	if oldValue >= s.RequestThreshold() && newValue < s.RequestThreshold() {
		env.Schedule(NewLrRequestEvent(now, s))
	}
	if oldValue >= s.CriticalThreshold() && newValue < s.CriticalThreshold() {
		env.Schedule(NewLcRequestEvent(now, s))
	}
}

func sortedByID[E Identifiable](m map[int]E) []E {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]E, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
