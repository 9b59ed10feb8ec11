// Package routing provides tour planners: given the sensors requesting charge
// and the idle chargers, they decide which charger visits which sensor and in
// what order.
//
// Both planners share the same greedy construction. Chargers, ordered by id,
// take turns extending their tour with one more stop until no charger can
// afford another one. A stop is placed on the chosen sensor and lasts long
// enough to refill it; requesting sensors within the charger's radius of that
// stop are covered by it too. A stop is affordable when its travel and
// transmission energy fit in the charger's budget, current - reserve*max.
package routing

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

const (
	NearestNeighbor = "nearest-neighbor"
	MostCritical    = "most-critical"
)

// validPlanners is the set of recognized planner names. "" selects the default.
var validPlanners = map[string]bool{"": true, NearestNeighbor: true, MostCritical: true}

// IsValidPlanner reports whether name is a recognized planner name.
func IsValidPlanner(name string) bool { return validPlanners[name] }

// ValidPlannerNames returns the recognized planner names, sorted.
func ValidPlannerNames() []string {
	names := make([]string, 0, len(validPlanners))
	for name := range validPlanners {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// NewTourPlanner creates a planner by name. reserve is the fraction of each
// charger's maximum capacity kept back from planning, in [0, 1).
func NewTourPlanner(name string, reserve float64) (*GreedyPlanner, error) {
	if !IsValidPlanner(name) {
		return nil, fmt.Errorf("unknown tour planner %q; valid: %v", name, ValidPlannerNames())
	}
	if !(reserve >= 0 && reserve < 1) {
		return nil, fmt.Errorf("planner reserve must be in [0, 1), got %v", reserve)
	}
	if name == "" {
		name = NearestNeighbor
	}
	return &GreedyPlanner{name: name, reserve: reserve}, nil
}

// GreedyPlanner implements sim.TourPlanner.
type GreedyPlanner struct {
	name    string
	reserve float64
}

// Name returns the planner name.
func (p *GreedyPlanner) Name() string { return p.name }

// Reserve returns the kept-back fraction of charger capacity.
func (p *GreedyPlanner) Reserve() float64 { return p.reserve }

// draft is a tour under construction.
type draft struct {
	charger *sim.Charger
	tail    sim.Position
	budget  float64
	stops   []sim.ChargingStop
}

// PlanTours implements sim.TourPlanner.
func (p *GreedyPlanner) PlanTours(_ *sim.Environment, requesting []*sim.Sensor, available []*sim.Charger) ([]sim.ChargerTour, error) {
	chargers := slices.Clone(available)
	slices.SortFunc(chargers, func(a, b *sim.Charger) int { return cmp.Compare(a.ID(), b.ID()) })

	drafts := make([]*draft, 0, len(chargers))
	for _, c := range chargers {
		drafts = append(drafts, &draft{
			charger: c,
			tail:    c.Position(),
			budget:  c.Capacity().Current() - p.reserve*c.Capacity().Max(),
		})
	}

	remaining := make([]*sim.Sensor, 0, len(requesting))
	for _, s := range requesting {
		if StopDuration(s, 1) > 0 {
			remaining = append(remaining, s)
		}
	}

	for progress := true; progress && len(remaining) > 0; {
		progress = false
		for _, d := range drafts {
			if len(remaining) == 0 {
				break
			}
			i, ok := p.pick(d, remaining)
			if !ok {
				continue
			}
			target := remaining[i]
			stop := sim.ChargingStop{
				Location: target.Position(),
				Duration: StopDuration(target, d.charger.TransmissionPower()),
			}
			d.budget -= stopCost(d.charger, d.tail, stop)
			d.tail = stop.Location
			d.stops = append(d.stops, stop)
			remaining = slices.DeleteFunc(remaining, func(s *sim.Sensor) bool {
				return s == target || stop.Location.Distance(s.Position()) <= d.charger.Radius()
			})
			progress = true
		}
	}

	var tours []sim.ChargerTour
	for _, d := range drafts {
		if len(d.stops) == 0 {
			continue
		}
		tours = append(tours, sim.ChargerTour{Charger: d.charger, Stops: d.stops})
	}
	if len(remaining) > 0 {
		logrus.Debugf("%s planner left %d requesting sensors unassigned", p.name, len(remaining))
	}
	return tours, nil
}

// pick returns the index in remaining of the next sensor d should visit.
func (p *GreedyPlanner) pick(d *draft, remaining []*sim.Sensor) (int, bool) {
	order := make([]int, len(remaining))
	for i := range order {
		order[i] = i
	}
	distance := func(i int) float64 { return d.tail.Distance(remaining[i].Position()) }
	switch p.name {
	case MostCritical:
		slices.SortStableFunc(order, func(a, b int) int {
			if c := cmp.Compare(remaining[a].Capacity().Ratio(), remaining[b].Capacity().Ratio()); c != 0 {
				return c
			}
			if c := cmp.Compare(distance(a), distance(b)); c != 0 {
				return c
			}
			return cmp.Compare(remaining[a].ID(), remaining[b].ID())
		})
	default:
		slices.SortStableFunc(order, func(a, b int) int {
			if c := cmp.Compare(distance(a), distance(b)); c != 0 {
				return c
			}
			return cmp.Compare(remaining[a].ID(), remaining[b].ID())
		})
	}
	for _, i := range order {
		s := remaining[i]
		stop := sim.ChargingStop{Location: s.Position(), Duration: StopDuration(s, d.charger.TransmissionPower())}
		if stopCost(d.charger, d.tail, stop) <= d.budget {
			return i, true
		}
	}
	return 0, false
}

// StopDuration is the time needed to refill s at distance 0 with the given
// transmission power.
func StopDuration(s *sim.Sensor, transmissionPower float64) float64 {
	if transmissionPower <= 0 {
		return 0
	}
	return s.Capacity().Free() / transmissionPower
}

// stopCost is the energy c spends traveling from `from` to stop and charging there.
func stopCost(c *sim.Charger, from sim.Position, stop sim.ChargingStop) float64 {
	cost := c.CapacityUsed(stop.Duration)
	if distance := from.Distance(stop.Location); distance > 0 {
		travelTime, err := c.TravelTime(distance)
		if err != nil {
			return cost
		}
		cost += c.TravelEnergyCost(travelTime)
	}
	return cost
}
