package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// EventKind identifies the variant of a simulation event.
type EventKind string

const (
	EventStart           EventKind = "start"
	EventEnd             EventKind = "end"
	EventDischarge       EventKind = "discharge"
	EventLrRequest       EventKind = "lr-request"
	EventLcRequest       EventKind = "lc-request"
	EventTourPlan        EventKind = "tour-plan"
	EventTourStart       EventKind = "tour-start"
	EventTourTravelStart EventKind = "tour-travel-start"
	EventTourTravelEnd   EventKind = "tour-travel-end"
	EventTourChargeStart EventKind = "tour-charge-start"
	EventTourChargeEnd   EventKind = "tour-charge-end"
	EventTourEnd         EventKind = "tour-end"
)

// Event defines the interface for all simulation events.
// Each event has a Timestamp (simulation time units) and an Execute method
// that advances simulation state when invoked. Events are immutable once
// created and executed at most once.
type Event interface {
	Timestamp() float64
	Kind() EventKind
	Execute(env *Environment) error
}

// baseEvent provides the common time and kind fields.
type baseEvent struct {
	time float64
	kind EventKind
}

func (e *baseEvent) Timestamp() float64 { return e.time }
func (e *baseEvent) Kind() EventKind    { return e.kind }

func (e *baseEvent) String() string {
	return fmt.Sprintf("%s@%g", e.kind, e.time)
}

// StartEvent opens the simulation: it starts the discharge cycle and raises
// requests for sensors that already sit below their thresholds.
type StartEvent struct {
	baseEvent
}

func NewStartEvent(time float64) *StartEvent {
	return &StartEvent{baseEvent{time: time, kind: EventStart}}
}

func (e *StartEvent) Execute(env *Environment) error {
	logrus.Infof("<< Start of simulation %q at %g", env.Name(), e.time)
	env.Record(MetricEvent{Kind: MetricSimulationStart, Time: e.time, NewValue: env.Name()})
	if period := env.DischargePeriod(); period > 0 && len(env.Sensors()) > 0 {
		env.Schedule(NewDischargeEvent(e.time+period, period))
	}
	for _, s := range env.Sensors() {
		env.checkThresholds(s, math.Inf(1), s.Capacity().Current())
	}
	return nil
}

// EndEvent closes the simulation at the configured end time.
type EndEvent struct {
	baseEvent
}

func NewEndEvent(time float64) *EndEvent {
	return &EndEvent{baseEvent{time: time, kind: EventEnd}}
}

func (e *EndEvent) Execute(env *Environment) error {
	logrus.Infof("<< End of simulation %q at %g", env.Name(), e.time)
	env.Record(MetricEvent{Kind: MetricSimulationEnd, Time: e.time, NewValue: env.Name()})
	env.Halt()
	return nil
}

// DischargeEvent drains every sensor by its consumption over one period and
// reschedules itself while the next occurrence stays within the end time.
type DischargeEvent struct {
	baseEvent
	period float64
}

func NewDischargeEvent(time, period float64) *DischargeEvent {
	return &DischargeEvent{baseEvent: baseEvent{time: time, kind: EventDischarge}, period: period}
}

func (e *DischargeEvent) Execute(env *Environment) error {
	if !(e.period > 0) {
		return &ValidationError{Field: "discharge period", Value: e.period, Reason: "must be positive"}
	}
	for _, s := range env.Sensors() {
		drain := s.PowerConsumption() * e.period
		if drain == 0 {
			continue
		}
		if err := s.Capacity().SetCurrent(s.Capacity().Current() - drain); err != nil {
			return fmt.Errorf("draining %s: %w", UniqueIdentifier(s), err)
		}
	}
	next := e.time + e.period
	if end := env.EndTime(); end <= 0 || next <= end {
		env.Schedule(NewDischargeEvent(next, e.period))
	}
	return nil
}

// LrRequestEvent registers a sensor's request to be part of the next tour.
type LrRequestEvent struct {
	baseEvent
	sensor *Sensor
}

func NewLrRequestEvent(time float64, s *Sensor) *LrRequestEvent {
	return &LrRequestEvent{baseEvent: baseEvent{time: time, kind: EventLrRequest}, sensor: s}
}

func (e *LrRequestEvent) Sensor() *Sensor { return e.sensor }

func (e *LrRequestEvent) Execute(env *Environment) error {
	if e.sensor.IsPlannedForCharging() {
		return nil
	}
	logrus.Debugf("Registered Lr request from %s", UniqueIdentifier(e.sensor))
	env.Record(MetricEvent{Kind: MetricLrRequest, Time: e.time, Subject: e.sensor})
	env.addRequesting(e.sensor)
	return nil
}

// LcRequestEvent registers a critical request and triggers tour planning.
// Planning is coalesced: several critical requests at the same step share one plan.
type LcRequestEvent struct {
	baseEvent
	sensor *Sensor
}

func NewLcRequestEvent(time float64, s *Sensor) *LcRequestEvent {
	return &LcRequestEvent{baseEvent: baseEvent{time: time, kind: EventLcRequest}, sensor: s}
}

func (e *LcRequestEvent) Sensor() *Sensor { return e.sensor }

func (e *LcRequestEvent) Execute(env *Environment) error {
	logrus.Debugf("Registered Lc request from %s", UniqueIdentifier(e.sensor))
	env.Record(MetricEvent{Kind: MetricLcRequest, Time: e.time, Subject: e.sensor})
	if !e.sensor.IsPlannedForCharging() {
		env.addRequesting(e.sensor)
	}
	env.requestPlanning(e.time)
	return nil
}
