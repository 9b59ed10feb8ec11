package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// TourPlanEvent asks the tour planner for new tours covering the requesting
// sensors with the available chargers.
type TourPlanEvent struct {
	baseEvent
}

func NewTourPlanEvent(time float64) *TourPlanEvent {
	return &TourPlanEvent{baseEvent{time: time, kind: EventTourPlan}}
}

func (e *TourPlanEvent) Execute(env *Environment) error {
	env.planPending = false
	requesting := env.RequestingSensors()
	available := env.AvailableChargers()
	if len(requesting) == 0 || len(available) == 0 {
		logrus.Debugf("Skipping tour planning at %g: %d requesting sensors, %d available chargers", e.time, len(requesting), len(available))
		return nil
	}
	planner := env.Planner()
	if planner == nil {
		return fmt.Errorf("no tour planner configured")
	}
	tours, err := planner.PlanTours(env, requesting, available)
	if err != nil {
		return fmt.Errorf("planning tours: %w", err)
	}
	if err := validatePlan(tours); err != nil {
		return err
	}
	for _, tour := range tours {
		for _, s := range requesting {
			if coveredBy(tour, s) {
				s.SetPlannedForCharging(true)
				env.removeRequesting(s)
			}
		}
		tour.Charger.SetAvailable(false)
		env.Schedule(NewTourStartEvent(e.time, tour))
	}
	return nil
}

// validatePlan rejects the whole plan if any tour is malformed or uses a
// charger that is busy or already assigned earlier in the plan.
func validatePlan(tours []ChargerTour) error {
	assigned := make(map[int]bool, len(tours))
	for _, tour := range tours {
		if err := tour.Validate(); err != nil {
			return err
		}
		if !tour.Charger.IsAvailable() {
			return fmt.Errorf("planner assigned busy charger %s", UniqueIdentifier(tour.Charger))
		}
		if assigned[tour.Charger.ID()] {
			return fmt.Errorf("planner assigned charger %s twice", UniqueIdentifier(tour.Charger))
		}
		assigned[tour.Charger.ID()] = true
	}
	return nil
}

func coveredBy(tour ChargerTour, s *Sensor) bool {
	for _, stop := range tour.Stops {
		if stop.Location.Distance(s.Position()) <= tour.Charger.Radius() {
			return true
		}
	}
	return false
}

// TourStartEvent marks the charger busy and sends it to its first stop.
type TourStartEvent struct {
	baseEvent
	tour ChargerTour
}

func NewTourStartEvent(time float64, tour ChargerTour) *TourStartEvent {
	return &TourStartEvent{baseEvent: baseEvent{time: time, kind: EventTourStart}, tour: tour}
}

func (e *TourStartEvent) Tour() ChargerTour { return e.tour }

func (e *TourStartEvent) Execute(env *Environment) error {
	c := e.tour.Charger
	logrus.Debugf("Tour of %s starts with %d stops", UniqueIdentifier(c), len(e.tour.Stops))
	c.SetAvailable(false)
	env.Record(MetricEvent{Kind: MetricTourStart, Time: e.time, Subject: c, NewValue: e.tour})
	if len(e.tour.Stops) == 0 {
		env.Schedule(NewTourEndEvent(e.time, e.tour))
		return nil
	}
	env.Schedule(NewTourTravelStartEvent(e.time, e.tour, 0))
	return nil
}

// TourTravelStartEvent moves the charger towards a stop. Travel energy is
// deducted up front and the arrival is scheduled after the travel time.
type TourTravelStartEvent struct {
	baseEvent
	tour ChargerTour
	stop int
}

func NewTourTravelStartEvent(time float64, tour ChargerTour, stop int) *TourTravelStartEvent {
	return &TourTravelStartEvent{baseEvent: baseEvent{time: time, kind: EventTourTravelStart}, tour: tour, stop: stop}
}

func (e *TourTravelStartEvent) Execute(env *Environment) error {
	c := e.tour.Charger
	if e.stop < 0 || e.stop >= len(e.tour.Stops) {
		return fmt.Errorf("stop %d out of tour of %d stops", e.stop, len(e.tour.Stops))
	}
	route := PositionPair{From: c.Position(), To: e.tour.Stops[e.stop].Location}
	distance := route.From.Distance(route.To)
	travelTime, err := c.TravelTime(distance)
	if err != nil {
		return err
	}
	env.Record(MetricEvent{Kind: MetricTourTravelStart, Time: e.time, Subject: c, NewValue: route})
	if distance > 0 {
		cost := c.TravelEnergyCost(travelTime)
		if err := c.Capacity().SetCurrent(c.Capacity().Current() - cost); err != nil {
			return err
		}
	}
	env.Schedule(NewTourTravelEndEvent(e.time+travelTime, e.tour, e.stop, route))
	return nil
}

// TourTravelEndEvent places the charger at its stop.
type TourTravelEndEvent struct {
	baseEvent
	tour  ChargerTour
	stop  int
	route PositionPair
}

func NewTourTravelEndEvent(time float64, tour ChargerTour, stop int, route PositionPair) *TourTravelEndEvent {
	return &TourTravelEndEvent{baseEvent: baseEvent{time: time, kind: EventTourTravelEnd}, tour: tour, stop: stop, route: route}
}

func (e *TourTravelEndEvent) Execute(env *Environment) error {
	c := e.tour.Charger
	c.SetPosition(e.route.To)
	env.Record(MetricEvent{Kind: MetricTourTravelEnd, Time: e.time, Subject: c, NewValue: e.route})
	env.Schedule(NewTourChargeStartEvent(e.time, e.tour, e.stop))
	return nil
}

// TourChargeStartEvent starts transmitting at a stop.
type TourChargeStartEvent struct {
	baseEvent
	tour ChargerTour
	stop int
}

func NewTourChargeStartEvent(time float64, tour ChargerTour, stop int) *TourChargeStartEvent {
	return &TourChargeStartEvent{baseEvent: baseEvent{time: time, kind: EventTourChargeStart}, tour: tour, stop: stop}
}

func (e *TourChargeStartEvent) Execute(env *Environment) error {
	c := e.tour.Charger
	stop := e.tour.Stops[e.stop]
	c.SetCharging(true)
	env.Record(MetricEvent{Kind: MetricTourChargeStart, Time: e.time, Subject: c, NewValue: stop})
	env.Schedule(NewTourChargeEndEvent(e.time+stop.Duration, e.tour, e.stop))
	return nil
}

// TourChargeEndEvent transfers the energy of a whole stop. Every sensor within
// radius receives ReceivedPower*duration, capped at its free capacity and
// scaled down when the charger cannot afford the full transmission.
type TourChargeEndEvent struct {
	baseEvent
	tour ChargerTour
	stop int
}

func NewTourChargeEndEvent(time float64, tour ChargerTour, stop int) *TourChargeEndEvent {
	return &TourChargeEndEvent{baseEvent: baseEvent{time: time, kind: EventTourChargeEnd}, tour: tour, stop: stop}
}

func (e *TourChargeEndEvent) Execute(env *Environment) error {
	c := e.tour.Charger
	stop := e.tour.Stops[e.stop]

	used := c.CapacityUsed(stop.Duration)
	fraction := 1.0
	if used > c.Capacity().Current() {
		fraction = c.Capacity().Current() / used
	}

	var charged []*Sensor
	for _, s := range env.Sensors() {
		distance := c.Position().Distance(s.Position())
		if distance > c.Radius() {
			continue
		}
		received := c.ReceivedPower(distance) * stop.Duration * fraction
		received = math.Min(received, s.Capacity().Free())
		if received > 0 {
			next := math.Min(s.Capacity().Current()+received, s.Capacity().Max())
			if err := s.Capacity().SetCurrent(next); err != nil {
				return fmt.Errorf("charging %s: %w", UniqueIdentifier(s), err)
			}
			env.Record(MetricEvent{Kind: MetricSensorCharged, Time: e.time, Subject: s, NewValue: received})
		}
		charged = append(charged, s)
	}
	if err := c.Capacity().SetCurrent(c.Capacity().Current() - used*fraction); err != nil {
		return err
	}
	c.SetCharging(false)
	env.Record(MetricEvent{Kind: MetricTourChargeEnd, Time: e.time, Subject: c, NewValue: stop})

	// sensors left under a threshold after a partial charge ask again
	for _, s := range charged {
		if s.IsPlannedForCharging() {
			s.SetPlannedForCharging(false)
			env.checkThresholds(s, math.Inf(1), s.Capacity().Current())
		}
	}

	if next := e.stop + 1; next < len(e.tour.Stops) {
		env.Schedule(NewTourTravelStartEvent(e.time, e.tour, next))
	} else {
		env.Schedule(NewTourEndEvent(e.time, e.tour))
	}
	return nil
}

// TourEndEvent frees the charger and plans again if requests are pending.
type TourEndEvent struct {
	baseEvent
	tour ChargerTour
}

func NewTourEndEvent(time float64, tour ChargerTour) *TourEndEvent {
	return &TourEndEvent{baseEvent: baseEvent{time: time, kind: EventTourEnd}, tour: tour}
}

func (e *TourEndEvent) Execute(env *Environment) error {
	c := e.tour.Charger
	c.SetAvailable(true)
	c.SetCharging(false)
	env.Record(MetricEvent{Kind: MetricTourEnd, Time: e.time, Subject: c, NewValue: e.tour})
	logrus.Debugf("Tour of %s ended at %g", UniqueIdentifier(c), e.time)
	if len(env.RequestingSensors()) > 0 {
		env.requestPlanning(e.time)
	}
	return nil
}
