package scenario

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

// SensorConstructor builds one sensor variant. base carries the position and
// capacities already resolved from the entity entry.
type SensorConstructor func(spec *EntitySpec, base sim.SensorParams) (*sim.Sensor, error)

// ChargerConstructor builds one charger variant.
type ChargerConstructor func(spec *EntitySpec, base sim.ChargerParams) (*sim.Charger, error)

// CapacityFunc draws an initial capacity for an entity with the given maximum.
type CapacityFunc func(spec CapacitySpec, maxCapacity float64, rng *rand.Rand) (float64, error)

var registryMu sync.RWMutex

var (
	sensorTypes   = map[string]SensorConstructor{}
	chargerTypes  = map[string]ChargerConstructor{}
	capacityTypes = map[string]CapacityFunc{}
)

// RegisterSensorType makes a sensor variant available under name.
// Registering an existing name replaces it.
func RegisterSensorType(name string, fn SensorConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	sensorTypes[name] = fn
}

// RegisterChargerType makes a charger variant available under name.
func RegisterChargerType(name string, fn ChargerConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	chargerTypes[name] = fn
}

// RegisterCapacityType makes an initial-capacity rule available under name.
func RegisterCapacityType(name string, fn CapacityFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	capacityTypes[name] = fn
}

func sensorConstructor(name string) (SensorConstructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := sensorTypes[name]
	return fn, ok
}

func chargerConstructor(name string) (ChargerConstructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := chargerTypes[name]
	return fn, ok
}

func capacityFunc(name string) (CapacityFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := capacityTypes[name]
	return fn, ok
}

func sensorTypeRegistered(name string) bool {
	_, ok := sensorConstructor(name)
	return ok
}

func chargerTypeRegistered(name string) bool {
	_, ok := chargerConstructor(name)
	return ok
}

func capacityTypeRegistered(name string) bool {
	_, ok := capacityFunc(name)
	return ok
}

func init() {
	// lrlc sensors request a tour below request_threshold and trigger
	// planning below critical_threshold.
	RegisterSensorType("lrlc", func(spec *EntitySpec, base sim.SensorParams) (*sim.Sensor, error) {
		base.RequestThreshold = spec.RequestThreshold
		base.CriticalThreshold = spec.CriticalThreshold
		base.PowerConsumption = spec.PowerConsumption
		return sim.NewSensor(base)
	})
	// passive sensors drain but never ask for charge; they are only charged
	// when a tour passes within range.
	RegisterSensorType("passive", func(spec *EntitySpec, base sim.SensorParams) (*sim.Sensor, error) {
		base.PowerConsumption = spec.PowerConsumption
		return sim.NewSensor(base)
	})
	RegisterChargerType("charger", func(spec *EntitySpec, base sim.ChargerParams) (*sim.Charger, error) {
		base.Radius = spec.Radius
		base.TransmissionPower = spec.TransmissionPower
		base.Speed = spec.Speed
		return sim.NewCharger(base)
	})

	RegisterCapacityType("fixed", func(spec CapacitySpec, _ float64, _ *rand.Rand) (float64, error) {
		return spec.Value, nil
	})
	RegisterCapacityType("full", func(_ CapacitySpec, maxCapacity float64, _ *rand.Rand) (float64, error) {
		return maxCapacity, nil
	})
	RegisterCapacityType("random", func(spec CapacitySpec, maxCapacity float64, rng *rand.Rand) (float64, error) {
		if spec.Max > maxCapacity {
			return 0, fmt.Errorf("random capacity max %v exceeds max_capacity %v", spec.Max, maxCapacity)
		}
		return spec.Min + rng.Float64()*(spec.Max-spec.Min), nil
	})
}
