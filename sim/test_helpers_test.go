package sim

import (
	"sync"
	"testing"
)

const testKind EventKind = "test"

// funcEvent runs fn when executed.
type funcEvent struct {
	baseEvent
	fn func(env *Environment) error
}

func newFuncEvent(time float64, fn func(env *Environment) error) *funcEvent {
	return newKindEvent(time, testKind, fn)
}

func newKindEvent(time float64, kind EventKind, fn func(env *Environment) error) *funcEvent {
	return &funcEvent{baseEvent: baseEvent{time: time, kind: kind}, fn: fn}
}

func (e *funcEvent) Execute(env *Environment) error {
	if e.fn == nil {
		return nil
	}
	return e.fn(env)
}

// recordingListener keeps delivered metric events.
type recordingListener struct {
	mu     sync.Mutex
	events []MetricEvent
	ends   int
}

func (r *recordingListener) OnMetricEvent(m MetricEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, m)
}

func (r *recordingListener) OnSimulationEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends++
}

func (r *recordingListener) received() []MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MetricEvent(nil), r.events...)
}

func (r *recordingListener) endSignals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ends
}

func (r *recordingListener) ofKind(kind MetricKind) []MetricEvent {
	var out []MetricEvent
	for _, m := range r.received() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// capacityRecorder records capacity notifications.
type capacityRecorder struct {
	changes [][2]float64
}

func (c *capacityRecorder) OnCapacityChange(_ *Capacity, oldValue, newValue float64) {
	c.changes = append(c.changes, [2]float64{oldValue, newValue})
}

func newTestEnvironment(t *testing.T, cfg EnvironmentConfig) *Environment {
	t.Helper()
	env, err := NewEnvironment(cfg)
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	return env
}

func newTestSensor(t *testing.T, p SensorParams) *Sensor {
	t.Helper()
	s, err := NewSensor(p)
	if err != nil {
		t.Fatalf("NewSensor: %v", err)
	}
	return s
}

func newTestCharger(t *testing.T, p ChargerParams) *Charger {
	t.Helper()
	c, err := NewCharger(p)
	if err != nil {
		t.Fatalf("NewCharger: %v", err)
	}
	return c
}

// defaultChargerParams is a charger at the origin with plenty of energy.
func defaultChargerParams() ChargerParams {
	return ChargerParams{
		CurrentCapacity:   1000,
		MaxCapacity:       1000,
		Radius:            1,
		TransmissionPower: 5,
		Speed:             1,
	}
}
