package sim

import (
	"fmt"
	"math"
	"slices"
)

// CapacityListener is notified after every successful capacity mutation.
type CapacityListener interface {
	OnCapacityChange(c *Capacity, oldValue, newValue float64)
}

// Capacity is bounded, mutable energy storage: 0 <= current <= max at all times.
// It is owned by exactly one Sensor or Charger.
//
// Thread-safety: NOT thread-safe. Mutated only from the simulation loop.
type Capacity struct {
	current   float64
	max       float64
	listeners []CapacityListener
}

// NewCapacity creates a capacity holding current out of max.
func NewCapacity(current, max float64) (*Capacity, error) {
	if err := nonNegative("max capacity", max); err != nil {
		return nil, err
	}
	if err := nonNegative("current capacity", current); err != nil {
		return nil, err
	}
	if current > max {
		return nil, &ValidationError{Field: "current capacity", Value: current, Reason: fmt.Sprintf("greater than max capacity %v", max)}
	}
	return &Capacity{current: current, max: max}, nil
}

// Current returns the stored energy.
func (c *Capacity) Current() float64 { return c.current }

// Max returns the storage bound.
func (c *Capacity) Max() float64 { return c.max }

// Free returns how much energy can still be stored.
func (c *Capacity) Free() float64 { return c.max - c.current }

// Ratio returns current/max, or 0 for an empty storage bound.
func (c *Capacity) Ratio() float64 {
	if c.max == 0 {
		return 0
	}
	return c.current / c.max
}

// SetCurrent stores value. Values above max are rejected with an
// *OutOfRangeError and leave the capacity unchanged; negative values are
// clamped to 0 since depletion is expected.
func (c *Capacity) SetCurrent(value float64) error {
	if math.IsNaN(value) || value > c.max {
		return &OutOfRangeError{Value: value, Min: 0, Max: c.max}
	}
	if value < 0 {
		value = 0
	}
	old := c.current
	c.current = value
	c.notify(old, value)
	return nil
}

// SetMax changes the storage bound. If the stored energy exceeds the new
// bound it is lowered to it and listeners are notified once.
func (c *Capacity) SetMax(value float64) error {
	if math.IsNaN(value) || value < 0 {
		return &OutOfRangeError{Value: value, Min: 0, Max: math.Inf(1)}
	}
	c.max = value
	if c.current > value {
		old := c.current
		c.current = value
		c.notify(old, value)
	}
	return nil
}

// AddListener registers l. Registering the same listener twice is a no-op.
func (c *Capacity) AddListener(l CapacityListener) {
	if l == nil || listenerIndex(c.listeners, l) >= 0 {
		return
	}
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l and reports whether it was registered.
func (c *Capacity) RemoveListener(l CapacityListener) bool {
	i := listenerIndex(c.listeners, l)
	if i < 0 {
		return false
	}
	c.listeners = slices.Delete(slices.Clone(c.listeners), i, i+1)
	return true
}

func (c *Capacity) notify(oldValue, newValue float64) {
	// listeners may unregister while being notified; iterate the current slice
	for _, l := range c.listeners {
		l.OnCapacityChange(c, oldValue, newValue)
	}
}

func (c *Capacity) String() string {
	return fmt.Sprintf("%g/%g", c.current, c.max)
}
