package sim

import "fmt"

// ChargingStop is one stop of a tour: where the charger parks and how long it
// transmits there.
type ChargingStop struct {
	Location Position `json:"location"`
	Duration float64  `json:"duration"`
}

// ChargerTour is an externally computed, ordered list of stops for one charger.
type ChargerTour struct {
	Charger *Charger
	Stops   []ChargingStop
}

// Validate checks the tour can be executed.
func (t ChargerTour) Validate() error {
	if t.Charger == nil {
		return fmt.Errorf("tour has no charger")
	}
	for i, stop := range t.Stops {
		if err := nonNegative("stop duration", stop.Duration); err != nil {
			return fmt.Errorf("stop %d of %s: %w", i, UniqueIdentifier(t.Charger), err)
		}
	}
	return nil
}

// TourPlanner is the tour-assignment collaborator. Given the sensors currently
// requesting charge and the available chargers, it returns an ordered list of
// stops per charger. Chargers without work may be omitted.
type TourPlanner interface {
	PlanTours(env *Environment, requesting []*Sensor, available []*Charger) ([]ChargerTour, error)
}

// TourPlannerFunc adapts a function to TourPlanner.
type TourPlannerFunc func(env *Environment, requesting []*Sensor, available []*Charger) ([]ChargerTour, error)

func (f TourPlannerFunc) PlanTours(env *Environment, requesting []*Sensor, available []*Charger) ([]ChargerTour, error) {
	return f(env, requesting, available)
}
