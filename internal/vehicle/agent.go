// Package vehicle implements the per-vehicle driving state machine: lane
// following, junction arcs, lane changes, car-following speed control and
// trip satisfaction.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/samber/lo"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/model"
)

var (
	// ErrInvalidSpawn indicates a spawn road, junction or lane that do not fit together.
	ErrInvalidSpawn = errors.New("invalid spawn")
	// ErrAlreadyInitialized indicates Initialize was called twice.
	ErrAlreadyInitialized = errors.New("vehicle already initialized")
)

// Router plans the roads between two junctions.
type Router interface {
	Route(ctx context.Context, start, dest model.JunctionID) ([]model.RoadID, error)
}

// ArrivalReporter is told about every finished trip.
type ArrivalReporter interface {
	OnArrived(averageSpeed, desiredSpeed float64)
}

// Traffic is a read-only view of the vehicles sharing the network.
type Traffic interface {
	// OnLane returns the vehicles indexed under key, nearest to the
	// entry edge first. Vehicles inside a junction stay indexed under the
	// road they came from.
	OnLane(key model.LaneKey) []*Agent
	// AtJunction returns the vehicles currently turning through j.
	AtJunction(j model.JunctionID) []*Agent
}

// Env holds the collaborators shared by every agent of one simulation.
type Env struct {
	Network  *core.Network
	Router   Router
	Reporter ArrivalReporter
	Traffic  Traffic
	Rand     *rand.Rand
	Log      logging.Logger
	Config   Config
}

// Pose is a vehicle's position and heading in degrees, counter-clockwise
// from +x.
type Pose struct {
	Position core.Vec2
	Heading  float64
}

// Agent is one vehicle. It only ever reads the state of other agents.
type Agent struct {
	id  model.VehicleID
	env *Env
	log logging.Logger

	state    model.VehicleState
	pose     Pose
	speed    float64
	yielding bool

	road     *core.Road
	edge     int
	lane     int
	distance float64
	target   float64

	nextRoad     *core.Road
	nextEdge     int
	nextLane     int
	nextParallel bool
	reverse      bool
	curve        core.CurveRoute
	hasCurve     bool
	angle        float64
	change       *laneChange

	spawn       model.JunctionID
	destination model.JunctionID
	route       []model.RoadID
	routeFailed bool

	sat         *satisfaction
	initialized bool
}

// NewAgent returns an agent that drives once Initialize succeeds.
func NewAgent(id model.VehicleID, env *Env) *Agent {
	log := env.Log
	if log == nil {
		log = logging.Noop()
	}
	if env.Rand == nil {
		env.Rand = rand.New(rand.NewSource(1))
	}
	if env.Traffic == nil {
		env.Traffic = NewIndex()
	}
	return &Agent{
		id:          id,
		env:         env,
		log:         log.With(logging.Stringer("vehicle", id)),
		spawn:       model.NoJunction,
		destination: model.NoJunction,
	}
}

// Initialize places the agent at the start of lane on spawnRoad, leaving
// spawn. With a nil dest a random map exit other than spawn is chosen. The
// route covers the journey beyond spawnRoad. When no route exists the
// agent treats spawnRoad as its last road.
func (a *Agent) Initialize(ctx context.Context, spawn model.JunctionID, spawnRoad model.RoadID, lane int, dest *model.JunctionID) error {
	if a.initialized {
		return ErrAlreadyInitialized
	}
	n := a.env.Network
	if n.Junction(spawn) == nil {
		return fmt.Errorf("%w: %v", core.ErrJunctionNotFound, spawn)
	}
	road := n.Road(spawnRoad)
	if road == nil {
		return fmt.Errorf("%w: %v", core.ErrRoadNotFound, spawnRoad)
	}
	edge := road.EdgeOf(spawn)
	if edge < 0 {
		return fmt.Errorf("%w: road %q does not touch junction %v", ErrInvalidSpawn, road.Name, spawn)
	}
	if lane < 0 || lane >= road.Lanes {
		return fmt.Errorf("%w: lane %d on road %q with %d lanes", ErrInvalidSpawn, lane, road.Name, road.Lanes)
	}

	a.spawn = spawn
	if dest != nil {
		if n.Junction(*dest) == nil {
			return fmt.Errorf("%w: destination %v", core.ErrJunctionNotFound, *dest)
		}
		a.destination = *dest
	} else {
		a.destination = a.chooseDestination(road)
	}

	far := road.OtherEnd(spawn)
	route, err := a.env.Router.Route(ctx, far, a.destination)
	if err != nil {
		a.log.Warn(ctx, "route unavailable; driving to end of spawn road",
			logging.Stringer("from", far),
			logging.Stringer("destination", a.destination),
			logging.Err(err),
		)
		route = nil
		a.routeFailed = true
	}
	a.route = route

	cfg := a.env.Config
	a.sat = newSatisfaction(cfg.Satisfaction, cfg.Straight.DesiredSpeed)
	a.speed = cfg.Straight.DesiredSpeed * cfg.InitialSpeedRatio
	a.initialized = true
	a.startRoad(ctx, road, edge, lane, 0)

	a.log.Debug(ctx, "vehicle initialized",
		logging.Stringer("spawn", spawn),
		logging.Stringer("destination", a.destination),
		logging.Int("route_roads", len(a.route)),
	)
	return nil
}

// chooseDestination picks a random exit other than the spawn point. On a
// map with a single exit the far end of the spawn road is used.
func (a *Agent) chooseDestination(road *core.Road) model.JunctionID {
	exits := lo.Without(a.env.Network.ExitJunctions(), a.spawn)
	if len(exits) == 0 {
		return road.OtherEnd(a.spawn)
	}
	return exits[a.env.Rand.Intn(len(exits))]
}

// Update advances the agent by dt seconds.
func (a *Agent) Update(ctx context.Context, dt float64) {
	if !a.initialized || a.state == model.Arrived || dt <= 0 {
		return
	}
	switch a.state {
	case model.RunningRoad:
		a.updateRoad(ctx, dt)
	case model.RunningJoint:
		a.updateJoint(ctx, dt)
	case model.ChangingLane:
		if a.updateChangingLane(dt) {
			a.finishLaneChange(ctx)
		}
	}
	if a.state != model.Arrived {
		a.sat.observe(a.speed, dt)
	}
}

// startRoad snaps the agent onto lane of road, entered at edge, distance
// metres past the lane start, and plans the following segment.
func (a *Agent) startRoad(ctx context.Context, road *core.Road, edge, lane int, distance float64) {
	a.road, a.edge, a.lane = road, edge, lane
	a.distance = distance
	a.state = model.RunningRoad
	a.yielding = false
	a.change = nil

	dir := road.Direction(edge)
	a.pose = Pose{
		Position: road.StartPoint(edge, lane).Add(dir.Scale(distance)),
		Heading:  core.Angle(dir),
	}
	a.planNext(ctx)
}

// planNext works out how the current road is left: the next road and lane,
// and either a junction arc or a straight continuation. It sets the
// distance at which the current road segment ends.
func (a *Agent) planNext(ctx context.Context) {
	a.nextRoad = nil
	a.hasCurve = false
	a.nextParallel = false
	a.reverse = false
	a.target = a.road.Length
	if len(a.route) == 0 {
		return
	}

	n := a.env.Network
	j := a.road.Junctions[core.OtherEdge(a.edge)]
	next := n.Road(a.route[0])
	if next == nil || next.EdgeOf(j) < 0 {
		a.log.Error(ctx, "route does not continue from junction; ending trip on current road",
			logging.Stringer("junction", j),
			logging.String("road", a.route[0].String()),
		)
		a.route = nil
		a.routeFailed = true
		return
	}
	nextEdge := next.EdgeOf(j)

	var after *core.Road
	if len(a.route) > 1 {
		after = n.Road(a.route[1])
	}
	nextLane, err := SelectLane(next, n.Junction(next.Junctions[core.OtherEdge(nextEdge)]), after, a.env.Rand)
	if err != nil {
		a.log.Error(ctx, "lane selection failed; using lane 0", logging.Err(err))
		nextLane = 0
	}
	a.nextRoad, a.nextEdge, a.nextLane = next, nextEdge, nextLane

	in, out := a.road.Direction(a.edge), next.Direction(nextEdge)
	threshold := a.env.Config.ParallelAngle
	if core.IsParallel(in, out, threshold) {
		if sameDirection(core.Angle(in), core.Angle(out), threshold) {
			a.nextParallel = true
		} else {
			a.reverse = true
		}
		return
	}

	curve, err := core.NewCurveRoute(
		core.TurnLeg{Road: a.road, Edge: a.edge, Lane: a.lane},
		core.TurnLeg{Road: next, Edge: nextEdge, Lane: nextLane},
		j,
	)
	if err != nil {
		a.log.Warn(ctx, "junction arc unavailable; crossing straight", logging.Err(err))
		a.reverse = true
		return
	}
	a.curve = curve
	a.hasCurve = true
	a.target = math.Max(0, curve.Start.Sub(a.road.StartPoint(a.edge, a.lane)).Dot(in))
}

func (a *Agent) updateRoad(ctx context.Context, dt float64) {
	a.yielding = a.mustYield()
	if a.yielding {
		a.speed = 0
	} else {
		ahead := a.senseRoad()
		a.speed = a.env.Config.Straight.NextSpeed(a.speed, ahead.gap, ahead.speed, dt)
	}

	a.distance += a.speed * dt
	dir := a.road.Direction(a.edge)
	a.pose.Position = a.road.StartPoint(a.edge, a.lane).Add(dir.Scale(a.distance))

	if a.distance < a.target {
		return
	}
	switch {
	case a.nextRoad == nil:
		a.arrive(ctx)
	case a.hasCurve:
		a.state = model.RunningJoint
		a.angle = a.curve.StartAngle
		a.pose = Pose{Position: a.curve.Start, Heading: a.curve.Heading(a.angle)}
	case a.reverse:
		a.advanceRoute(ctx, 0)
	default:
		overshoot := a.distance - a.target
		linePoint := a.nextRoad.StartPoint(a.nextEdge, a.nextLane)
		lineDir := a.nextRoad.Direction(a.nextEdge)
		if core.IsOnLine(a.pose.Position, linePoint, lineDir, a.env.Config.LaneChange.LineTolerance) {
			a.advanceRoute(ctx, overshoot)
			return
		}
		a.state = model.ChangingLane
		a.change = newLaneChange(a.pose.Position, linePoint, lineDir, a.env.Config.LaneChange.Lookahead)
	}
}

func (a *Agent) updateJoint(ctx context.Context, dt float64) {
	a.yielding = a.mustYield()
	if a.yielding {
		a.speed = 0
	} else {
		ahead := a.senseJunction()
		a.speed = a.env.Config.Junction.NextSpeed(a.speed, ahead.gap, ahead.speed, dt)
	}

	a.angle = a.curve.Step(a.angle, a.speed, dt)
	if a.curve.Passed(a.angle) {
		entry := a.nextRoad.StartPoint(a.nextEdge, a.nextLane)
		offset := a.curve.End.Sub(entry).Dot(a.nextRoad.Direction(a.nextEdge))
		a.advanceRoute(ctx, math.Max(0, offset))
		return
	}
	a.pose = Pose{Position: a.curve.Position(a.angle), Heading: a.curve.Heading(a.angle)}
}

func (a *Agent) finishLaneChange(ctx context.Context) {
	entry := a.nextRoad.StartPoint(a.nextEdge, a.nextLane)
	offset := a.pose.Position.Sub(entry).Dot(a.nextRoad.Direction(a.nextEdge))
	a.advanceRoute(ctx, math.Max(0, offset))
}

// advanceRoute consumes the next road of the route and starts driving it.
func (a *Agent) advanceRoute(ctx context.Context, distance float64) {
	next, edge, lane := a.nextRoad, a.nextEdge, a.nextLane
	a.route = a.route[1:]
	a.startRoad(ctx, next, edge, lane, distance)
}

// arrive reports the trip exactly once and retires the agent.
func (a *Agent) arrive(ctx context.Context) {
	if a.state == model.Arrived {
		return
	}
	a.state = model.Arrived
	desired := a.env.Config.Straight.DesiredSpeed
	average := a.sat.average(a.speed)
	if a.env.Reporter != nil {
		a.env.Reporter.OnArrived(average, desired)
	}
	a.log.Debug(ctx, "vehicle arrived",
		logging.Stringer("destination", a.destination),
		logging.Float("average_speed", average),
		logging.Bool("route_failed", a.routeFailed),
	)
}

// ID returns the vehicle handle.
func (a *Agent) ID() model.VehicleID { return a.id }

// State returns the driving state.
func (a *Agent) State() model.VehicleState { return a.state }

// Pose returns position and heading.
func (a *Agent) Pose() Pose { return a.pose }

// Speed returns the current speed in metres per second.
func (a *Agent) Speed() float64 { return a.speed }

// Yielding reports whether the agent stopped to give way to an oncoming
// vehicle.
func (a *Agent) Yielding() bool { return a.yielding }

// Road returns the road the agent is indexed under.
func (a *Agent) Road() model.RoadID {
	if a.road == nil {
		return model.NoRoad
	}
	return a.road.ID
}

// Lane returns the current lane.
func (a *Agent) Lane() int { return a.lane }

// Key returns the current road and entry edge.
func (a *Agent) Key() model.LaneKey {
	return model.LaneKey{Road: a.Road(), Edge: a.edge}
}

// NextKey returns the road and entry edge the agent drives onto next.
func (a *Agent) NextKey() (model.LaneKey, bool) {
	if a.nextRoad == nil {
		return model.LaneKey{}, false
	}
	return model.LaneKey{Road: a.nextRoad.ID, Edge: a.nextEdge}, true
}

// Distance returns how far the agent is past the start of its lane.
func (a *Agent) Distance() float64 { return a.distance }

// Junction returns the junction being turned through, if any.
func (a *Agent) Junction() (model.JunctionID, bool) {
	if a.state != model.RunningJoint {
		return model.NoJunction, false
	}
	return a.curve.Junction, true
}

// Curve returns the planned junction arc for the current road.
func (a *Agent) Curve() (core.CurveRoute, bool) { return a.curve, a.hasCurve }

// Spawn returns the junction the agent entered the map at.
func (a *Agent) Spawn() model.JunctionID { return a.spawn }

// Destination returns the junction the agent is heading for.
func (a *Agent) Destination() model.JunctionID { return a.destination }

// Route returns the roads still to be driven after the current one.
func (a *Agent) Route() []model.RoadID {
	return append([]model.RoadID(nil), a.route...)
}

// RouteFailed reports whether the agent fell back to ending its trip
// early because no route was found.
func (a *Agent) RouteFailed() bool { return a.routeFailed }

// Happiness returns the satisfaction counter.
func (a *Agent) Happiness() float64 {
	if a.sat == nil {
		return 0
	}
	return a.sat.happiness
}

// HappinessRatio returns the satisfaction counter as a fraction of its maximum.
func (a *Agent) HappinessRatio() float64 {
	if a.sat == nil {
		return 0
	}
	return a.sat.ratio()
}
