// Package scenario loads simulation scenarios from YAML and builds a
// populated sim.Environment from them.
//
// A document is first checked against an embedded JSON schema, then decoded
// strictly (unknown keys are rejected) and finally validated semantically.
// Entities are built through registries of tagged constructors keyed by the
// "type" field, so new sensor variants or capacity initializers can be added
// with RegisterSensorType and RegisterCapacityType.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

// Scenario is the top-level scenario document.
type Scenario struct {
	Name            string       `yaml:"name"`
	Seed            int64        `yaml:"seed"`
	EndTime         float64      `yaml:"end_time"`         // 0 = run until the queue drains or Stop
	DischargePeriod float64      `yaml:"discharge_period"` // 0 disables discharge
	Area            *Area        `yaml:"area,omitempty"`
	Planner         PlannerSpec  `yaml:"planner"`
	Sensors         []EntitySpec `yaml:"sensors"`
	Chargers        []EntitySpec `yaml:"chargers"`
}

// Area bounds random positions to [0, width) x [0, height).
type Area struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PlannerSpec selects the tour planner.
type PlannerSpec struct {
	Type    string  `yaml:"type"`
	Reserve float64 `yaml:"reserve"`
}

// EntitySpec describes a group of identical sensors or chargers.
// Kind-specific fields are ignored for the other kind.
type EntitySpec struct {
	Type            string        `yaml:"type"`
	Count           int           `yaml:"count,omitempty"` // 0 means 1
	Position        *sim.Position `yaml:"position,omitempty"`
	RandomPosition  bool          `yaml:"random_position,omitempty"`
	MaxCapacity     float64       `yaml:"max_capacity"`
	CurrentCapacity CapacitySpec  `yaml:"current_capacity"`

	RequestThreshold  float64 `yaml:"request_threshold,omitempty"`
	CriticalThreshold float64 `yaml:"critical_threshold,omitempty"`
	PowerConsumption  float64 `yaml:"power_consumption,omitempty"`

	Radius            float64 `yaml:"radius,omitempty"`
	TransmissionPower float64 `yaml:"transmission_power,omitempty"`
	Speed             float64 `yaml:"speed,omitempty"`
}

// CapacitySpec selects how the initial capacity is drawn.
//   - fixed:  Value
//   - random: uniform in [Min, Max]
//   - full:   the entity's max capacity
type CapacitySpec struct {
	Type  string  `yaml:"type"`
	Value float64 `yaml:"value,omitempty"`
	Min   float64 `yaml:"min,omitempty"`
	Max   float64 `yaml:"max,omitempty"`
}

// Load reads, schema-checks, parses and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse schema-checks, strictly decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if err := validateFiniteNonNegative("end_time", sc.EndTime); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("discharge_period", sc.DischargePeriod); err != nil {
		return err
	}
	if sc.Planner.Reserve < 0 || sc.Planner.Reserve >= 1 {
		return fmt.Errorf("planner.reserve must be in [0, 1), got %v", sc.Planner.Reserve)
	}
	for i, s := range sc.Sensors {
		if err := sc.validateEntity(fmt.Sprintf("sensors[%d]", i), &s, sensorTypeRegistered); err != nil {
			return err
		}
		if s.CriticalThreshold > s.RequestThreshold {
			return fmt.Errorf("sensors[%d]: critical_threshold %v exceeds request_threshold %v", i, s.CriticalThreshold, s.RequestThreshold)
		}
	}
	for i, c := range sc.Chargers {
		if err := sc.validateEntity(fmt.Sprintf("chargers[%d]", i), &c, chargerTypeRegistered); err != nil {
			return err
		}
	}
	return nil
}

func (sc *Scenario) validateEntity(prefix string, e *EntitySpec, known func(string) bool) error {
	if !known(e.Type) {
		return fmt.Errorf("%s: unknown type %q", prefix, e.Type)
	}
	if e.Count < 0 {
		return fmt.Errorf("%s: count must be positive, got %d", prefix, e.Count)
	}
	if e.Position != nil && e.RandomPosition {
		return fmt.Errorf("%s: position and random_position are exclusive", prefix)
	}
	if e.RandomPosition && sc.Area == nil {
		return fmt.Errorf("%s: random_position requires an area", prefix)
	}
	if !capacityTypeRegistered(e.CurrentCapacity.Type) {
		return fmt.Errorf("%s.current_capacity: unknown type %q", prefix, e.CurrentCapacity.Type)
	}
	if e.CurrentCapacity.Type == "random" && e.CurrentCapacity.Min > e.CurrentCapacity.Max {
		return fmt.Errorf("%s.current_capacity: min %v exceeds max %v", prefix, e.CurrentCapacity.Min, e.CurrentCapacity.Max)
	}
	return validateFiniteNonNegative(prefix+".max_capacity", e.MaxCapacity)
}

func validateFiniteNonNegative(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, val)
	}
	return nil
}

func (e *EntitySpec) count() int {
	if e.Count == 0 {
		return 1
	}
	return e.Count
}
