package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// SimCollector bundles Prometheus metrics for a running simulation and
// provides helpers to wire them into gRPC servers and HTTP handlers.
type SimCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	VehiclesActive   prometheus.Gauge
	VehiclesSpawned  prometheus.Counter
	VehiclesArrived  prometheus.Counter
	TripAverageSpeed prometheus.Histogram
	SignalToggles    *prometheus.CounterVec
	TickDuration     prometheus.Histogram
}

// NewSimCollector registers simulation Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "sim_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"})
	durations, err = registerHistogramVec(reg, durations, "sim_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_vehicles_active",
		Help: "Current number of vehicles driving on the network.",
	}), "sim_vehicles_active")
	if err != nil {
		return nil, err
	}
	spawned, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_vehicles_spawned_total",
		Help: "Cumulative number of vehicles spawned.",
	}), "sim_vehicles_spawned_total")
	if err != nil {
		return nil, err
	}
	arrived, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_vehicles_arrived_total",
		Help: "Cumulative number of vehicles that reached their destination.",
	}), "sim_vehicles_arrived_total")
	if err != nil {
		return nil, err
	}
	tripSpeed, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_trip_average_speed",
		Help:    "Average speed of a finished trip in metres per second.",
		Buckets: []float64{1, 2, 4, 6, 8, 10, 12, 15, 20, 30},
	}), "sim_trip_average_speed")
	if err != nil {
		return nil, err
	}
	toggles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_signal_toggles_total",
		Help: "Signal toggle requests, labeled by junction and whether the change was accepted.",
	}, []string{"junction", "result"})
	toggles, err = registerCounterVec(reg, toggles, "sim_signal_toggles_total")
	if err != nil {
		return nil, err
	}
	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock time spent advancing the simulation by one frame.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		RPCRequests:      requests,
		RPCDurations:     durations,
		VehiclesActive:   active,
		VehiclesSpawned:  spawned,
		VehiclesArrived:  arrived,
		TripAverageSpeed: tripSpeed,
		SignalToggles:    toggles,
		TickDuration:     tick,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SimCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// VehicleSpawned counts a new vehicle and updates the active gauge.
func (c *SimCollector) VehicleSpawned(active int) {
	if c == nil {
		return
	}
	if c.VehiclesSpawned != nil {
		c.VehiclesSpawned.Inc()
	}
	c.SetActiveVehicles(active)
}

// VehicleArrived counts a finished trip, records its average speed and
// updates the active gauge.
func (c *SimCollector) VehicleArrived(averageSpeed float64, active int) {
	if c == nil {
		return
	}
	if c.VehiclesArrived != nil {
		c.VehiclesArrived.Inc()
	}
	if c.TripAverageSpeed != nil {
		c.TripAverageSpeed.Observe(averageSpeed)
	}
	c.SetActiveVehicles(active)
}

// SetActiveVehicles updates the active vehicle gauge.
func (c *SimCollector) SetActiveVehicles(n int) {
	if c == nil || c.VehiclesActive == nil {
		return
	}
	c.VehiclesActive.Set(float64(n))
}

// SignalToggled records a toggle request at junction.
func (c *SimCollector) SignalToggled(junction string, accepted bool) {
	if c == nil || c.SignalToggles == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "ignored"
	}
	c.SignalToggles.WithLabelValues(junction, result).Inc()
}

// ObserveTick records how long one frame took to compute.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
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

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
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
