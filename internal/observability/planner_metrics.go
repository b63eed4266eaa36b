package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PlannerCollector exposes route planner Prometheus metrics.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	RouteComputationDuration prometheus.Histogram
	RoutesComputed           prometheus.Counter
	RouteFailures            prometheus.Counter
	RouteHops                prometheus.Histogram
}

// NewPlannerCollector registers planner metrics against the provided registerer.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	durations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_route_computation_duration_seconds",
		Help:    "Duration of A* route computations.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})
	durations, err := registerHistogram(reg, durations, "planner_route_computation_duration_seconds")
	if err != nil {
		return nil, err
	}

	computed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_routes_computed_total",
		Help: "Cumulative number of successful route computations.",
	})
	computed, err = registerCounter(reg, computed, "planner_routes_computed_total")
	if err != nil {
		return nil, err
	}

	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_route_failures_total",
		Help: "Cumulative number of route requests with no path to the destination.",
	})
	failures, err = registerCounter(reg, failures, "planner_route_failures_total")
	if err != nil {
		return nil, err
	}

	hops := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_route_hops",
		Help:    "Number of roads in computed routes.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 24},
	})
	hops, err = registerHistogram(reg, hops, "planner_route_hops")
	if err != nil {
		return nil, err
	}

	return &PlannerCollector{
		gatherer:                 gatherer,
		RouteComputationDuration: durations,
		RoutesComputed:           computed,
		RouteFailures:            failures,
		RouteHops:                hops,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PlannerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRoute records a successful computation and the route length.
func (c *PlannerCollector) ObserveRoute(d time.Duration, hops int) {
	if c == nil {
		return
	}
	if c.RouteComputationDuration != nil {
		c.RouteComputationDuration.Observe(d.Seconds())
	}
	if c.RoutesComputed != nil {
		c.RoutesComputed.Inc()
	}
	if c.RouteHops != nil {
		c.RouteHops.Observe(float64(hops))
	}
}

// IncRouteFailures increments the failed-route counter.
func (c *PlannerCollector) IncRouteFailures() {
	if c == nil || c.RouteFailures == nil {
		return
	}
	c.RouteFailures.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
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
