// Package state owns one running simulation: the road network, route
// planner, signal coordinators and the live vehicles, advanced one frame
// at a time.
package state

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/internal/observability"
	"github.com/signalsfoundry/traffic-simulator/internal/routing"
	"github.com/signalsfoundry/traffic-simulator/internal/vehicle"
	"github.com/signalsfoundry/traffic-simulator/model"
	"github.com/signalsfoundry/traffic-simulator/timectrl"
)

var (
	// ErrNetworkNotReady indicates a network that has not been built.
	ErrNetworkNotReady = errors.New("road network not ready")
	// ErrNoSignal indicates a toggle request for a junction without lights.
	ErrNoSignal = errors.New("junction has no signal coordinator")
	// ErrNoExternalClock indicates Attach on a simulation that drives its own clock.
	ErrNoExternalClock = errors.New("simulation has no external clock")
)

// MetricsRecorder receives simulation-level measurements.
type MetricsRecorder interface {
	VehicleSpawned(active int)
	VehicleArrived(averageSpeed float64, active int)
	SetActiveVehicles(n int)
	SignalToggled(junction string, accepted bool)
	ObserveTick(d time.Duration)
}

// VehicleSnapshot is a read-only copy of one vehicle's state.
type VehicleSnapshot struct {
	ID             model.VehicleID
	State          model.VehicleState
	Position       core.Vec2
	Heading        float64
	Speed          float64
	Road           model.RoadID
	Lane           int
	Destination    model.JunctionID
	Yielding       bool
	HappinessRatio float64
}

// Simulation coordinates the network, planner, signals and vehicles.
type Simulation struct {
	// mu guards the vehicle arena and counters. Step holds it for the
	// whole frame.
	mu sync.RWMutex

	network *core.Network
	planner *routing.Planner
	index   *vehicle.Index
	env     *vehicle.Env
	agents  []*vehicle.Agent
	nextID  model.VehicleID

	clock     *timectrl.TimeController
	ownsClock bool
	elapsed   time.Duration

	spawned int
	arrived int
	// arrivals collects trip averages reported during the current frame.
	arrivals []float64

	// toggleMu guards toggles, which may be queued from any goroutine.
	toggleMu sync.Mutex
	toggles  []model.JunctionID

	log            logging.Logger
	metrics        MetricsRecorder
	plannerMetrics routing.MetricsRecorder
	scorer         vehicle.ArrivalReporter
	rng            *rand.Rand
	vehicleCfg     vehicle.Config
}

// Option customises Simulation construction.
type Option func(*Simulation)

// WithClock drives signal timers from tc instead of an internal clock.
// The caller advances tc, usually through Attach.
func WithClock(tc *timectrl.TimeController) Option {
	return func(s *Simulation) { s.clock = tc }
}

// WithLogger sets the simulation logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Simulation) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches a recorder for vehicle, signal and frame metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Simulation) { s.metrics = m }
}

// WithPlannerMetrics attaches a recorder for route computations.
func WithPlannerMetrics(m routing.MetricsRecorder) Option {
	return func(s *Simulation) { s.plannerMetrics = m }
}

// WithScorer receives every finished trip.
func WithScorer(r vehicle.ArrivalReporter) Option {
	return func(s *Simulation) { s.scorer = r }
}

// WithRand sets the random source for destinations and lanes.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulation) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithVehicleConfig replaces vehicle.DefaultConfig.
func WithVehicleConfig(cfg vehicle.Config) Option {
	return func(s *Simulation) { s.vehicleCfg = cfg }
}

// New prepares a simulation over a built network: it installs the signal
// coordinators and the route planner. Vehicles can only be spawned once
// both exist.
func New(ctx context.Context, n *core.Network, opts ...Option) (*Simulation, error) {
	if n == nil || !n.Ready() {
		return nil, ErrNetworkNotReady
	}
	s := &Simulation{
		network:    n,
		index:      vehicle.NewIndex(),
		log:        logging.Noop(),
		rng:        rand.New(rand.NewSource(1)),
		vehicleCfg: vehicle.DefaultConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.vehicleCfg.Validate(); err != nil {
		return nil, err
	}
	if s.clock == nil {
		s.clock = timectrl.NewTimeController(time.Unix(0, 0).UTC(), 0, timectrl.Accelerated)
		s.ownsClock = true
	}

	ctx, span := observability.StartSpan(ctx, "simulation.New",
		attribute.Int("junctions", len(n.Junctions())),
		attribute.Int("roads", len(n.Roads())),
	)
	defer span.End()

	var timer core.Timer = s.clock
	if !s.ownsClock {
		timer = lockedTimer{s}
	}
	if err := n.InstallSignals(timer, s.log); err != nil {
		return nil, observability.Fail(span, fmt.Errorf("install signals: %w", err))
	}

	plannerOpts := []routing.Option{routing.WithLogger(s.log)}
	if s.plannerMetrics != nil {
		plannerOpts = append(plannerOpts, routing.WithMetricsRecorder(s.plannerMetrics))
	}
	planner, err := routing.NewPlanner(n, plannerOpts...)
	if err != nil {
		return nil, observability.Fail(span, fmt.Errorf("build planner: %w", err))
	}
	s.planner = planner

	s.env = &vehicle.Env{
		Network:  n,
		Router:   planner,
		Reporter: arrivalSink{s},
		Traffic:  s.index,
		Rand:     s.rng,
		Log:      s.log,
		Config:   s.vehicleCfg,
	}

	s.log.Info(ctx, "simulation ready",
		logging.Int("exits", len(n.ExitJunctions())),
		logging.Int("signals", len(lo.Filter(n.Junctions(), func(j *core.Junction, _ int) bool { return j.Signal != nil }))),
	)
	return s, nil
}

// lockedTimer runs signal timers of an external clock under mu, so that
// light changes never overlap a reader.
type lockedTimer struct{ s *Simulation }

func (t lockedTimer) AfterFunc(d time.Duration, fn func()) func() {
	return t.s.clock.AfterFunc(d, func() {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		fn()
	})
}

// arrivalSink forwards trip reports to the scorer and queues them for the
// frame's metrics. It runs inside Step with mu held.
type arrivalSink struct{ s *Simulation }

func (a arrivalSink) OnArrived(averageSpeed, desiredSpeed float64) {
	a.s.arrivals = append(a.s.arrivals, averageSpeed)
	if a.s.scorer != nil {
		a.s.scorer.OnArrived(averageSpeed, desiredSpeed)
	}
}

// Spawn adds a vehicle leaving junction on lane of road. A nil dest picks
// a random exit.
func (s *Simulation) Spawn(ctx context.Context, junction model.JunctionID, road model.RoadID, lane int, dest *model.JunctionID) (model.VehicleID, error) {
	ctx, span := observability.StartSpan(ctx, "simulation.Spawn",
		observability.Junction(junction),
		observability.Road(road),
		observability.Lane(lane),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	a := vehicle.NewAgent(id, s.env)
	if err := a.Initialize(ctx, junction, road, lane, dest); err != nil {
		return 0, observability.Fail(span, fmt.Errorf("spawn %v: %w", id, err))
	}
	s.nextID++
	s.agents = append(s.agents, a)
	s.spawned++
	if s.metrics != nil {
		s.metrics.VehicleSpawned(len(s.agents))
	}
	return id, nil
}

// RequestToggle queues a signal change at junction for the next frame.
// It is safe to call from any goroutine.
func (s *Simulation) RequestToggle(junction model.JunctionID) error {
	if _, err := s.signal(junction); err != nil {
		return err
	}
	s.toggleMu.Lock()
	s.toggles = append(s.toggles, junction)
	s.toggleMu.Unlock()
	return nil
}

// ToggleLights starts a signal change at junction immediately. It reports
// false when a change is already in progress.
func (s *Simulation) ToggleLights(junction model.JunctionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggleLocked(junction)
}

func (s *Simulation) toggleLocked(junction model.JunctionID) (bool, error) {
	coord, err := s.signal(junction)
	if err != nil {
		return false, err
	}
	accepted := coord.ToggleLights()
	name := s.network.Junction(junction).Name
	if s.metrics != nil {
		s.metrics.SignalToggled(name, accepted)
	}
	s.log.Debug(context.Background(), "signal toggle",
		logging.String("junction", name),
		logging.Bool("accepted", accepted),
	)
	return accepted, nil
}

// SignalSnapshot is a read-only copy of one coordinator's state.
type SignalSnapshot struct {
	Junction model.JunctionID
	Name     string
	Pattern  core.Pattern
	State    core.SignalState
	Roads    []model.RoadID
	Colors   []model.LightColor
}

// Signals returns the state of every signalised junction.
func (s *Simulation) Signals() []SignalSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SignalSnapshot
	for _, j := range s.network.Junctions() {
		if j.Signal == nil {
			continue
		}
		out = append(out, SignalSnapshot{
			Junction: j.ID,
			Name:     j.Name,
			Pattern:  j.Signal.Pattern(),
			State:    j.Signal.State(),
			Roads:    j.Roads(),
			Colors:   j.Signal.Colors(),
		})
	}
	return out
}

func (s *Simulation) signal(junction model.JunctionID) (*core.SignalCoordinator, error) {
	j := s.network.Junction(junction)
	if j == nil {
		return nil, fmt.Errorf("%w: %v", core.ErrJunctionNotFound, junction)
	}
	if j.Signal == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSignal, j.Name)
	}
	return j.Signal, nil
}

// Step advances the simulation by dt seconds: queued toggles are applied,
// signal timers fire when the simulation owns its clock, the spatial index
// is rebuilt and every vehicle moves. Arrived vehicles are removed.
func (s *Simulation) Step(ctx context.Context, dt float64) {
	if dt <= 0 {
		return
	}
	start := time.Now()

	s.toggleMu.Lock()
	toggles := s.toggles
	s.toggles = nil
	s.toggleMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range toggles {
		if _, err := s.toggleLocked(j); err != nil {
			s.log.Warn(ctx, "queued toggle failed", logging.Err(err))
		}
	}

	frame := time.Duration(dt * float64(time.Second))
	if s.ownsClock {
		s.clock.Advance(frame)
	}
	s.elapsed += frame

	s.index.Rebuild(s.agents)
	for _, a := range s.agents {
		a.Update(ctx, dt)
	}

	s.agents = lo.Filter(s.agents, func(a *vehicle.Agent, _ int) bool {
		return a.State() != model.Arrived
	})
	for _, avg := range s.arrivals {
		s.arrived++
		if s.metrics != nil {
			s.metrics.VehicleArrived(avg, len(s.agents))
		}
	}
	s.arrivals = s.arrivals[:0]

	if s.metrics != nil {
		s.metrics.SetActiveVehicles(len(s.agents))
		s.metrics.ObserveTick(time.Since(start))
	}
}

// Attach makes the clock given to WithClock drive Step once per tick.
func (s *Simulation) Attach(ctx context.Context) error {
	if s.ownsClock {
		return ErrNoExternalClock
	}
	dt := s.clock.Tick.Seconds()
	s.clock.AddListener(func(time.Time) {
		s.Step(ctx, dt)
	})
	return nil
}

// Network returns the road network.
func (s *Simulation) Network() *core.Network { return s.network }

// Planner returns the route planner.
func (s *Simulation) Planner() *routing.Planner { return s.planner }

// Clock returns the clock signal timers run on.
func (s *Simulation) Clock() *timectrl.TimeController { return s.clock }

// VehicleConfig returns the parameters vehicles drive with.
func (s *Simulation) VehicleConfig() vehicle.Config { return s.vehicleCfg }

// Elapsed returns the simulated time stepped so far.
func (s *Simulation) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed
}

// ActiveVehicles returns the number of vehicles on the map.
func (s *Simulation) ActiveVehicles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// Spawned returns how many vehicles have entered the map.
func (s *Simulation) Spawned() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spawned
}

// Arrived returns how many trips have finished.
func (s *Simulation) Arrived() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arrived
}

// Vehicles returns a snapshot of every vehicle on the map, in spawn order.
func (s *Simulation) Vehicles() []VehicleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(s.agents, func(a *vehicle.Agent, _ int) VehicleSnapshot {
		pose := a.Pose()
		return VehicleSnapshot{
			ID:             a.ID(),
			State:          a.State(),
			Position:       pose.Position,
			Heading:        pose.Heading,
			Speed:          a.Speed(),
			Road:           a.Road(),
			Lane:           a.Lane(),
			Destination:    a.Destination(),
			Yielding:       a.Yielding(),
			HappinessRatio: a.HappinessRatio(),
		}
	})
}

// TailPosition returns the position of the vehicle closest to the entry
// of lane on key, as of the last frame.
func (s *Simulation) TailPosition(key model.LaneKey, lane int) (core.Vec2, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.index.Tail(key, lane)
	if !ok {
		return core.Vec2{}, false
	}
	return a.Pose().Position, true
}
