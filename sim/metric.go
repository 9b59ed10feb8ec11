package sim

import "fmt"

// MetricKind tags a MetricEvent.
type MetricKind string

const (
	MetricSimulationStart MetricKind = "simulation-start"
	MetricSimulationEnd   MetricKind = "simulation-end"
	MetricSensorCapacity  MetricKind = "sensor-capacity"
	MetricChargerCapacity MetricKind = "charger-capacity"
	MetricSensorCharged   MetricKind = "sensor-charged"
	MetricLrRequest       MetricKind = "lr-request"
	MetricLcRequest       MetricKind = "lc-request"
	MetricTourStart       MetricKind = "tour-start"
	MetricTourTravelStart MetricKind = "tour-travel-start"
	MetricTourTravelEnd   MetricKind = "tour-travel-end"
	MetricTourChargeStart MetricKind = "tour-charge-start"
	MetricTourChargeEnd   MetricKind = "tour-charge-end"
	MetricTourEnd         MetricKind = "tour-end"
)

// AllMetricKinds lists every metric kind in a stable order.
var AllMetricKinds = []MetricKind{
	MetricSimulationStart, MetricSimulationEnd,
	MetricSensorCapacity, MetricChargerCapacity, MetricSensorCharged,
	MetricLrRequest, MetricLcRequest,
	MetricTourStart, MetricTourTravelStart, MetricTourTravelEnd,
	MetricTourChargeStart, MetricTourChargeEnd, MetricTourEnd,
}

// MetricEvent is an immutable observation of a state change. Subject and
// OldValue are nil when not applicable.
type MetricEvent struct {
	Kind     MetricKind
	Time     float64
	Subject  Identifiable
	OldValue any
	NewValue any
}

func (m MetricEvent) String() string {
	return fmt.Sprintf("%s@%g %s %v -> %v", m.Kind, m.Time, UniqueIdentifier(m.Subject), m.OldValue, m.NewValue)
}

// MetricListener observes the metric stream. OnMetricEvent is called once per
// event in recording order; OnSimulationEnd is called once when the stream closes.
type MetricListener interface {
	OnMetricEvent(m MetricEvent)
	OnSimulationEnd()
}
