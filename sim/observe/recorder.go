package observe

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

// Recorder keeps every received metric event in memory. It is safe to read
// from other goroutines while the simulation runs.
type Recorder struct {
	mu     sync.Mutex
	events []sim.MetricEvent
	ended  int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnMetricEvent(m sim.MetricEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, m)
}

func (r *Recorder) OnSimulationEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
}

// Events returns a copy of the received events in delivery order.
func (r *Recorder) Events() []sim.MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// EventsOfKind returns the received events of the given kind.
func (r *Recorder) EventsOfKind(kind sim.MetricKind) []sim.MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sim.MetricEvent
	for _, m := range r.events {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// Ended reports whether the end-of-stream signal was received.
func (r *Recorder) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended > 0
}

// EndSignals returns how many end-of-stream signals were received.
func (r *Recorder) EndSignals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// Summary aggregates what a Recorder has seen.
type Summary struct {
	Counts          map[sim.MetricKind]int
	EnergyDelivered float64
	Tours           int
	LastTime        float64
}

// Summary aggregates the received events.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Counts: make(map[sim.MetricKind]int)}
	for _, m := range r.events {
		s.Counts[m.Kind]++
		s.LastTime = max(s.LastTime, m.Time)
		switch m.Kind {
		case sim.MetricSensorCharged:
			if v, ok := m.NewValue.(float64); ok {
				s.EnergyDelivered += v
			}
		case sim.MetricTourEnd:
			s.Tours++
		}
	}
	return s
}

// Print writes the summary in a fixed, human-readable layout.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Metric Summary ===")
	for _, kind := range sim.AllMetricKinds {
		if n := s.Counts[kind]; n > 0 {
			fmt.Fprintf(w, "%-20s: %d\n", kind, n)
		}
	}
	fmt.Fprintf(w, "%-20s: %d\n", "completed tours", s.Tours)
	fmt.Fprintf(w, "%-20s: %.4f\n", "energy delivered", s.EnergyDelivered)
	fmt.Fprintf(w, "%-20s: %.4f\n", "last metric time", s.LastTime)
}
