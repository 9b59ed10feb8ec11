package sim

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// SensorListener is notified when a sensor's stored energy changes.
type SensorListener interface {
	OnSensorCapacityChange(s *Sensor, oldValue, newValue float64)
}

// SensorParams groups the construction parameters of a Sensor.
type SensorParams struct {
	Position        Position
	CurrentCapacity float64
	MaxCapacity     float64
	// RequestThreshold (Lr) is the energy level under which the sensor asks to
	// be included in the next tour.
	RequestThreshold float64
	// CriticalThreshold (Lc) is the energy level under which the sensor forces
	// a tour to be planned. Must not exceed RequestThreshold.
	CriticalThreshold float64
	// PowerConsumption is the energy drained per unit of simulation time.
	PowerConsumption float64
}

// Sensor is a stationary, rechargeable node of the network.
type Sensor struct {
	id                 int
	capacity           *Capacity
	position           Position
	requestThreshold   float64
	criticalThreshold  float64
	powerConsumption   float64
	plannedForCharging bool
	listeners          []SensorListener
}

// NewSensor validates p and creates a sensor with a fresh identifier.
func NewSensor(p SensorParams) (*Sensor, error) {
	capacity, err := NewCapacity(p.CurrentCapacity, p.MaxCapacity)
	if err != nil {
		return nil, err
	}
	if err := nonNegative("request threshold", p.RequestThreshold); err != nil {
		return nil, err
	}
	if err := nonNegative("critical threshold", p.CriticalThreshold); err != nil {
		return nil, err
	}
	if p.CriticalThreshold > p.RequestThreshold {
		return nil, &ValidationError{Field: "critical threshold", Value: p.CriticalThreshold,
			Reason: fmt.Sprintf("greater than request threshold %v", p.RequestThreshold)}
	}
	if err := nonNegative("power consumption", p.PowerConsumption); err != nil {
		return nil, err
	}
	s := &Sensor{
		id:                entityIDs.nextID(KindSensor),
		capacity:          capacity,
		position:          p.Position,
		requestThreshold:  p.RequestThreshold,
		criticalThreshold: p.CriticalThreshold,
		powerConsumption:  p.PowerConsumption,
	}
	capacity.AddListener(s)
	logrus.Debugf("New sensor created: %s", UniqueIdentifier(s))
	return s, nil
}

func (s *Sensor) ID() int          { return s.id }
func (s *Sensor) Kind() EntityKind { return KindSensor }

// Capacity returns the sensor's energy storage.
func (s *Sensor) Capacity() *Capacity { return s.capacity }

func (s *Sensor) Position() Position           { return s.position }
func (s *Sensor) RequestThreshold() float64    { return s.requestThreshold }
func (s *Sensor) CriticalThreshold() float64   { return s.criticalThreshold }
func (s *Sensor) PowerConsumption() float64    { return s.powerConsumption }
func (s *Sensor) IsPlannedForCharging() bool   { return s.plannedForCharging }
func (s *Sensor) SetPlannedForCharging(b bool) { s.plannedForCharging = b }

// BelowRequest reports whether the stored energy is under the Lr threshold.
func (s *Sensor) BelowRequest() bool { return s.capacity.Current() < s.requestThreshold }

// BelowCritical reports whether the stored energy is under the Lc threshold.
func (s *Sensor) BelowCritical() bool { return s.capacity.Current() < s.criticalThreshold }

// HasSameValues compares sensors field by field, ignoring identity.
func (s *Sensor) HasSameValues(other Identifiable) bool {
	o, ok := other.(*Sensor)
	if !ok || o == nil {
		return false
	}
	if s == o {
		return true
	}
	return s.capacity.Current() == o.capacity.Current() &&
		s.capacity.Max() == o.capacity.Max() &&
		s.position == o.position &&
		s.requestThreshold == o.requestThreshold &&
		s.criticalThreshold == o.criticalThreshold &&
		s.powerConsumption == o.powerConsumption
}

// AddSensorListener registers l; duplicates are ignored.
func (s *Sensor) AddSensorListener(l SensorListener) {
	if l == nil || listenerIndex(s.listeners, l) >= 0 {
		return
	}
	s.listeners = append(s.listeners, l)
}

// RemoveSensorListener unregisters l and reports whether it was registered.
func (s *Sensor) RemoveSensorListener(l SensorListener) bool {
	i := listenerIndex(s.listeners, l)
	if i < 0 {
		return false
	}
	s.listeners = slices.Delete(slices.Clone(s.listeners), i, i+1)
	return true
}

// OnCapacityChange forwards the sensor's own capacity notifications.
func (s *Sensor) OnCapacityChange(_ *Capacity, oldValue, newValue float64) {
	logrus.Tracef("Set sensor %s current capacity from %v to %v", UniqueIdentifier(s), oldValue, newValue)
	for _, l := range s.listeners {
		l.OnSensorCapacityChange(s, oldValue, newValue)
	}
}

func (s *Sensor) String() string {
	return fmt.Sprintf("%s{position=%v capacity=%v lr=%g lc=%g}", UniqueIdentifier(s), s.position, s.capacity, s.requestThreshold, s.criticalThreshold)
}
