package sim

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// ChargerListener is notified when a charger's stored energy changes.
type ChargerListener interface {
	OnChargerCapacityChange(c *Charger, oldValue, newValue float64)
}

// ChargerParams groups the construction parameters of a Charger.
type ChargerParams struct {
	Position          Position
	CurrentCapacity   float64
	MaxCapacity       float64
	Radius            float64 // charging range, > 0
	TransmissionPower float64 // > 0
	Speed             float64 // > 0
}

// Charger is a mobile charger. Available and Charging reflect its assignment
// state (idle, traveling, charging) and are read by the tour planner.
type Charger struct {
	id                int
	capacity          *Capacity
	position          Position
	radius            float64
	transmissionPower float64
	speed             float64
	available         bool
	charging          bool
	listeners         []ChargerListener
}

// NewCharger validates p and creates an available charger with a fresh identifier.
func NewCharger(p ChargerParams) (*Charger, error) {
	capacity, err := NewCapacity(p.CurrentCapacity, p.MaxCapacity)
	if err != nil {
		return nil, err
	}
	if err := positive("radius", p.Radius); err != nil {
		return nil, err
	}
	if err := positive("transmission power", p.TransmissionPower); err != nil {
		return nil, err
	}
	if err := positive("speed", p.Speed); err != nil {
		return nil, err
	}
	c := &Charger{
		id:                entityIDs.nextID(KindCharger),
		capacity:          capacity,
		position:          p.Position,
		radius:            p.Radius,
		transmissionPower: p.TransmissionPower,
		speed:             p.Speed,
		available:         true,
	}
	capacity.AddListener(c)
	logrus.Debugf("New charger created: %s", UniqueIdentifier(c))
	return c, nil
}

func (c *Charger) ID() int          { return c.id }
func (c *Charger) Kind() EntityKind { return KindCharger }

// Capacity returns the charger's energy storage.
func (c *Charger) Capacity() *Capacity { return c.capacity }

func (c *Charger) Position() Position          { return c.position }
func (c *Charger) SetPosition(p Position)      { c.position = p }
func (c *Charger) Radius() float64             { return c.radius }
func (c *Charger) TransmissionPower() float64  { return c.transmissionPower }
func (c *Charger) Speed() float64              { return c.speed }
func (c *Charger) IsAvailable() bool           { return c.available }
func (c *Charger) SetAvailable(available bool) { c.available = available }
func (c *Charger) IsCharging() bool            { return c.charging }
func (c *Charger) SetCharging(charging bool)   { c.charging = charging }

// InRange reports whether p is within the charging radius.
func (c *Charger) InRange(p Position) bool {
	return c.position.Distance(p) <= c.radius
}

// ReceivedPower returns the power a node at distance receives from this charger.
func (c *Charger) ReceivedPower(distance float64) float64 {
	return ReceivedPower(c.transmissionPower, distance)
}

// TravelTime returns the time this charger needs to cover distance.
func (c *Charger) TravelTime(distance float64) (float64, error) {
	return TravelTime(distance, c.speed)
}

// TravelEnergyCost returns the energy consumed while traveling for travelTime.
func (c *Charger) TravelEnergyCost(travelTime float64) float64 {
	return TravelEnergyCost(travelTime)
}

// CapacityUsed returns the energy spent charging for duration.
func (c *Charger) CapacityUsed(duration float64) float64 {
	return CapacityUsed(c.transmissionPower, duration)
}

// HasSameValues compares chargers field by field, ignoring identity and assignment state.
func (c *Charger) HasSameValues(other Identifiable) bool {
	o, ok := other.(*Charger)
	if !ok || o == nil {
		return false
	}
	if c == o {
		return true
	}
	return c.capacity.Current() == o.capacity.Current() &&
		c.capacity.Max() == o.capacity.Max() &&
		c.position == o.position &&
		c.radius == o.radius &&
		c.transmissionPower == o.transmissionPower &&
		c.speed == o.speed
}

// AddChargerListener registers l; duplicates are ignored.
func (c *Charger) AddChargerListener(l ChargerListener) {
	if l == nil || listenerIndex(c.listeners, l) >= 0 {
		return
	}
	c.listeners = append(c.listeners, l)
}

// RemoveChargerListener unregisters l and reports whether it was registered.
func (c *Charger) RemoveChargerListener(l ChargerListener) bool {
	i := listenerIndex(c.listeners, l)
	if i < 0 {
		return false
	}
	c.listeners = slices.Delete(slices.Clone(c.listeners), i, i+1)
	return true
}

// OnCapacityChange forwards the charger's own capacity notifications.
func (c *Charger) OnCapacityChange(_ *Capacity, oldValue, newValue float64) {
	logrus.Tracef("Set charger %s current capacity from %v to %v", UniqueIdentifier(c), oldValue, newValue)
	for _, l := range c.listeners {
		l.OnChargerCapacityChange(c, oldValue, newValue)
	}
}

func (c *Charger) String() string {
	return fmt.Sprintf("%s{available=%t position=%v capacity=%v}", UniqueIdentifier(c), c.available, c.position, c.capacity)
}
