// Package observe provides sim.MetricListener implementations: an in-memory
// recorder, a log sink, Prometheus collectors, a compressed JSONL writer and a
// websocket broadcaster.
package observe

import (
	"github.com/wrsn-sim/wrsn-sim/sim"
)

// Record is the serializable form of a sim.MetricEvent.
type Record struct {
	RunID   string         `json:"run_id,omitempty"`
	Kind    sim.MetricKind `json:"kind"`
	Time    float64        `json:"time"`
	Subject string         `json:"subject,omitempty"`
	Old     any            `json:"old,omitempty"`
	New     any            `json:"new,omitempty"`
}

// tourRecord replaces the charger pointer of a tour with its identifier.
type tourRecord struct {
	Charger string             `json:"charger"`
	Stops   []sim.ChargingStop `json:"stops"`
}

// NewRecord converts m into a Record tagged with runID.
func NewRecord(runID string, m sim.MetricEvent) Record {
	r := Record{
		RunID: runID,
		Kind:  m.Kind,
		Time:  m.Time,
		Old:   plainValue(m.OldValue),
		New:   plainValue(m.NewValue),
	}
	if m.Subject != nil {
		r.Subject = sim.UniqueIdentifier(m.Subject)
	}
	return r
}

func plainValue(v any) any {
	switch val := v.(type) {
	case sim.ChargerTour:
		return tourRecord{Charger: sim.UniqueIdentifier(val.Charger), Stops: val.Stops}
	case sim.Identifiable:
		return sim.UniqueIdentifier(val)
	default:
		return v
	}
}
