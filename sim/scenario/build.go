package scenario

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/wrsn-sim/wrsn-sim/sim"
	"github.com/wrsn-sim/wrsn-sim/sim/routing"
)

// Build creates a populated environment from sc, with the configured tour
// planner installed. Random positions and capacities are drawn from the
// scenario seed, so building the same scenario twice yields the same layout.
func (sc *Scenario) Build() (*sim.Environment, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	env, err := sim.NewEnvironment(sim.EnvironmentConfig{
		Name:            sc.Name,
		EndTime:         sc.EndTime,
		DischargePeriod: sc.DischargePeriod,
	})
	if err != nil {
		return nil, err
	}
	planner, err := routing.NewTourPlanner(sc.Planner.Type, sc.Planner.Reserve)
	if err != nil {
		return nil, err
	}
	env.SetPlanner(planner)

	rng := NewPartitionedRNG(sc.Seed)
	for i := range sc.Sensors {
		if err := sc.buildSensors(env, &sc.Sensors[i], rng); err != nil {
			return nil, fmt.Errorf("sensors[%d]: %w", i, err)
		}
	}
	for i := range sc.Chargers {
		if err := sc.buildChargers(env, &sc.Chargers[i], rng); err != nil {
			return nil, fmt.Errorf("chargers[%d]: %w", i, err)
		}
	}
	logrus.Infof("Built scenario %q: %d sensors, %d chargers, planner %s",
		sc.Name, len(env.Sensors()), len(env.Chargers()), planner.Name())
	return env, nil
}

func (sc *Scenario) buildSensors(env *sim.Environment, spec *EntitySpec, rng *PartitionedRNG) error {
	construct, ok := sensorConstructor(spec.Type)
	if !ok {
		return fmt.Errorf("unknown sensor type %q", spec.Type)
	}
	for n := 0; n < spec.count(); n++ {
		pos, current, err := sc.resolve(spec, rng)
		if err != nil {
			return err
		}
		s, err := construct(spec, sim.SensorParams{
			Position:        pos,
			CurrentCapacity: current,
			MaxCapacity:     spec.MaxCapacity,
		})
		if err != nil {
			return err
		}
		if err := env.AddSensor(s); err != nil {
			return err
		}
	}
	return nil
}

func (sc *Scenario) buildChargers(env *sim.Environment, spec *EntitySpec, rng *PartitionedRNG) error {
	construct, ok := chargerConstructor(spec.Type)
	if !ok {
		return fmt.Errorf("unknown charger type %q", spec.Type)
	}
	for n := 0; n < spec.count(); n++ {
		pos, current, err := sc.resolve(spec, rng)
		if err != nil {
			return err
		}
		c, err := construct(spec, sim.ChargerParams{
			Position:        pos,
			CurrentCapacity: current,
			MaxCapacity:     spec.MaxCapacity,
		})
		if err != nil {
			return err
		}
		if err := env.AddCharger(c); err != nil {
			return err
		}
	}
	return nil
}

// resolve draws the position and initial capacity of one entity.
func (sc *Scenario) resolve(spec *EntitySpec, rng *PartitionedRNG) (sim.Position, float64, error) {
	var pos sim.Position
	switch {
	case spec.Position != nil:
		pos = *spec.Position
	case spec.RandomPosition:
		pos = randomPosition(sc.Area, rng.ForSubsystem(SubsystemPositions))
	}
	draw, ok := capacityFunc(spec.CurrentCapacity.Type)
	if !ok {
		return pos, 0, fmt.Errorf("unknown capacity type %q", spec.CurrentCapacity.Type)
	}
	current, err := draw(spec.CurrentCapacity, spec.MaxCapacity, rng.ForSubsystem(SubsystemCapacities))
	if err != nil {
		return pos, 0, err
	}
	return pos, current, nil
}

func randomPosition(area *Area, rng *rand.Rand) sim.Position {
	return sim.Position{X: rng.Float64() * area.Width, Y: rng.Float64() * area.Height}
}

// LoadEnvironment loads the scenario at path and builds it.
func LoadEnvironment(path string) (*Scenario, *sim.Environment, error) {
	sc, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	env, err := sc.Build()
	if err != nil {
		return nil, nil, err
	}
	return sc, env, nil
}
