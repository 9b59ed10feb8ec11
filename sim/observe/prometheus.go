package observe

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

// PrometheusListener exposes the metric stream as Prometheus collectors.
type PrometheusListener struct {
	gatherer prometheus.Gatherer

	EventsTotal     *prometheus.CounterVec
	SensorCapacity  *prometheus.GaugeVec
	ChargerCapacity *prometheus.GaugeVec
	EnergyDelivered prometheus.Counter
	Clock           prometheus.Gauge
	Running         prometheus.Gauge
}

// NewPrometheusListener registers the collectors against reg, or the default
// registerer if nil. Registering twice against the same registry reuses the
// existing collectors.
func NewPrometheusListener(reg prometheus.Registerer) (*PrometheusListener, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wrsn_metric_events_total",
		Help: "Metric events delivered, by kind.",
	}, []string{"kind"}), "wrsn_metric_events_total")
	if err != nil {
		return nil, err
	}
	sensorCapacity, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wrsn_sensor_capacity",
		Help: "Current stored energy of each sensor.",
	}, []string{"sensor"}), "wrsn_sensor_capacity")
	if err != nil {
		return nil, err
	}
	chargerCapacity, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wrsn_charger_capacity",
		Help: "Current stored energy of each charger.",
	}, []string{"charger"}), "wrsn_charger_capacity")
	if err != nil {
		return nil, err
	}
	energy, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wrsn_energy_delivered_total",
		Help: "Energy transferred from chargers to sensors.",
	}), "wrsn_energy_delivered_total")
	if err != nil {
		return nil, err
	}
	clock, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wrsn_simulation_time",
		Help: "Simulation time of the last delivered metric event.",
	}), "wrsn_simulation_time")
	if err != nil {
		return nil, err
	}
	running, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wrsn_simulation_running",
		Help: "1 while the simulation is running, 0 once it ended.",
	}), "wrsn_simulation_running")
	if err != nil {
		return nil, err
	}

	return &PrometheusListener{
		gatherer:        gatherer,
		EventsTotal:     events,
		SensorCapacity:  sensorCapacity,
		ChargerCapacity: chargerCapacity,
		EnergyDelivered: energy,
		Clock:           clock,
		Running:         running,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the listener.
func (p *PrometheusListener) Gatherer() prometheus.Gatherer {
	if p == nil {
		return nil
	}
	return p.gatherer
}

func (p *PrometheusListener) OnMetricEvent(m sim.MetricEvent) {
	p.EventsTotal.WithLabelValues(string(m.Kind)).Inc()
	p.Clock.Set(m.Time)
	switch m.Kind {
	case sim.MetricSimulationStart:
		p.Running.Set(1)
	case sim.MetricSensorCapacity:
		if v, ok := m.NewValue.(float64); ok && m.Subject != nil {
			p.SensorCapacity.WithLabelValues(strconv.Itoa(m.Subject.ID())).Set(v)
		}
	case sim.MetricChargerCapacity:
		if v, ok := m.NewValue.(float64); ok && m.Subject != nil {
			p.ChargerCapacity.WithLabelValues(strconv.Itoa(m.Subject.ID())).Set(v)
		}
	case sim.MetricSensorCharged:
		if v, ok := m.NewValue.(float64); ok && v > 0 {
			p.EnergyDelivered.Add(v)
		}
	}
}

func (p *PrometheusListener) OnSimulationEnd() {
	p.Running.Set(0)
}

// Seed sets the capacity gauges from the current environment state, so
// entities show up before their first capacity change.
func (p *PrometheusListener) Seed(env *sim.Environment) {
	for _, s := range env.Sensors() {
		p.SensorCapacity.WithLabelValues(strconv.Itoa(s.ID())).Set(s.Capacity().Current())
	}
	for _, c := range env.Chargers() {
		p.ChargerCapacity.WithLabelValues(strconv.Itoa(c.ID())).Set(c.Capacity().Current())
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
