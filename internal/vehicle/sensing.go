package vehicle

import (
	"math"

	"github.com/samber/lo"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/model"
)

// Beam is a detection direction relative to the vehicle heading.
type Beam int

const (
	BeamFront Beam = iota
	BeamFrontLeft
	BeamFrontRight
	BeamLeft
	BeamRight
)

var allBeams = []Beam{BeamFront, BeamFrontLeft, BeamFrontRight, BeamLeft, BeamRight}

// offset returns the beam's angle from the heading, counter-clockwise.
func (b Beam) offset(cfg SensingConfig) float64 {
	switch b {
	case BeamFrontLeft:
		return cfg.DiagonalAngle
	case BeamFrontRight:
		return -cfg.DiagonalAngle
	case BeamLeft:
		return 90
	case BeamRight:
		return -90
	default:
		return 0
	}
}

func (b Beam) length(cfg SensingConfig) float64 {
	if b == BeamLeft || b == BeamRight {
		return cfg.SideLength
	}
	return cfg.FrontLength
}

// obstacle is the nearest thing a vehicle has to keep its distance from.
type obstacle struct {
	gap   float64
	speed float64
	agent *Agent
}

func freeRoad() obstacle { return obstacle{gap: math.Inf(1)} }

func nearer(a, b obstacle) obstacle {
	if b.gap < a.gap {
		return b
	}
	return a
}

// beamHit reports how far along a beam from origin in unit direction dir
// the point q lies, provided it is within radius of the beam.
func beamHit(origin, dir core.Vec2, length, radius float64, q core.Vec2) (float64, bool) {
	rel := q.Sub(origin)
	t := rel.Dot(dir)
	if t <= 0 || t > length {
		return 0, false
	}
	if math.Abs(dir.Cross(rel)) > radius {
		return 0, false
	}
	return t, true
}

// castBeams returns the nearest candidate hit by any of beams.
func (a *Agent) castBeams(beams []Beam, candidates []*Agent) obstacle {
	cfg := a.env.Config.Sensing
	best := freeRoad()
	for _, b := range beams {
		dir := core.UnitFromAngle(a.pose.Heading + b.offset(cfg))
		for _, other := range candidates {
			if other == a {
				continue
			}
			t, ok := beamHit(a.pose.Position, dir, b.length(cfg), cfg.CollisionRadius, other.pose.Position)
			if !ok {
				continue
			}
			best = nearer(best, obstacle{gap: math.Max(0, t-cfg.VehicleLength), speed: other.speed, agent: other})
		}
	}
	return best
}

// sameDirection reports whether two headings differ by no more than
// threshold degrees.
func sameDirection(h1, h2, threshold float64) bool {
	diff := core.NormalizeAngle(h2 - h1)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff <= threshold
}

// roadCandidates returns vehicles on the current lane key and, when the
// next road is known, on the road after the junction.
func (a *Agent) roadCandidates() []*Agent {
	out := append([]*Agent(nil), a.env.Traffic.OnLane(a.Key())...)
	if next, ok := a.NextKey(); ok {
		out = append(out, a.env.Traffic.OnLane(next)...)
	}
	return out
}

// senseRoad finds the obstacle ahead while driving straight: the nearest
// vehicle in the front beam, or a stop line facing a non-green light.
func (a *Agent) senseRoad() obstacle {
	best := a.castBeams([]Beam{BeamFront}, a.roadCandidates())
	if light, ok := a.env.Network.ActiveLight(a.road.ID, core.OtherEdge(a.edge)); ok && light.Color() != model.LightGreen {
		if remaining := math.Min(a.target, a.road.Length) - a.distance; remaining > 0 {
			best = nearer(best, obstacle{gap: remaining})
		}
	}
	return best
}

// compatible reports whether other is heading for the same lane key.
func (a *Agent) compatible(other *Agent) bool {
	mine, ok := a.NextKey()
	if !ok {
		return false
	}
	theirs, ok := other.NextKey()
	return ok && theirs == mine
}

// senseJunction finds the obstacle ahead while turning. Beams cover the
// front and the turn side; the remaining arc is sampled for vehicles on
// the same exit, then the entry of the next road is checked.
func (a *Agent) senseJunction() obstacle {
	cfg := a.env.Config.Sensing
	next, _ := a.NextKey()

	turning := lo.Filter(a.env.Traffic.AtJunction(a.curve.Junction), func(o *Agent, _ int) bool {
		return o != a && a.compatible(o)
	})
	ahead := a.env.Traffic.OnLane(next)
	candidates := append(append([]*Agent(nil), turning...), ahead...)

	beams := []Beam{BeamFront, BeamFrontLeft, BeamLeft}
	if a.curve.Clockwise {
		beams = []Beam{BeamFront, BeamFrontRight, BeamRight}
	}
	best := a.castBeams(beams, candidates)

	remaining := a.curve.Remaining(a.angle)
	for s := cfg.ArcSampleStep; s <= math.Min(remaining, cfg.FrontLength); s += cfg.ArcSampleStep {
		p := a.curve.Position(a.curve.Step(a.angle, s, 1))
		hit, ok := lo.Find(candidates, func(o *Agent) bool {
			return o.pose.Position.DistanceTo(p) <= cfg.CollisionRadius
		})
		if ok {
			return nearer(best, obstacle{gap: math.Max(0, s-cfg.VehicleLength), speed: hit.speed, agent: hit})
		}
	}

	// Nothing on the arc; look at the first vehicle in our lane past it.
	entry := a.nextRoad.StartPoint(a.nextEdge, a.nextLane)
	offset := a.curve.End.Sub(entry).Dot(a.nextRoad.Direction(a.nextEdge))
	for _, o := range ahead {
		if o == a || o.lane != a.nextLane {
			continue
		}
		if o.distance < offset {
			continue
		}
		gap := remaining + o.distance - offset - cfg.VehicleLength
		return nearer(best, obstacle{gap: math.Max(0, gap), speed: o.speed, agent: o})
	}
	return best
}

// conflictZone returns the junction an agent is turning through or, on a
// road, the one it is driving towards.
func (a *Agent) conflictZone() model.JunctionID {
	if a.state == model.RunningJoint {
		return a.curve.Junction
	}
	return a.road.Junctions[core.OtherEdge(a.edge)]
}

// yieldCandidates lists the vehicles an agent may have to stop for: those
// turning through its conflict zone and those changing lanes on either
// side of its road or on the road it drives onto next.
func (a *Agent) yieldCandidates() []*Agent {
	traffic := a.env.Traffic
	out := append([]*Agent(nil), traffic.AtJunction(a.conflictZone())...)
	if a.road == nil {
		return out
	}
	keys := []model.LaneKey{a.Key(), {Road: a.road.ID, Edge: core.OtherEdge(a.edge)}}
	if next, ok := a.NextKey(); ok {
		keys = append(keys, next)
	}
	for _, key := range keys {
		out = append(out, lo.Filter(traffic.OnLane(key), func(o *Agent, _ int) bool {
			return o.state == model.ChangingLane
		})...)
	}
	return out
}

// mustYield reports whether an oncoming vehicle that is not running freely
// on its own road is close enough that the agent has to stop. Of two
// vehicles blocking each other the one with the higher ID gives way.
func (a *Agent) mustYield() bool {
	cfg := a.env.Config.Sensing
	for _, other := range a.yieldCandidates() {
		if other == a || other.state == model.RunningRoad || other.state == model.Arrived {
			continue
		}
		if sameDirection(a.pose.Heading, other.pose.Heading, cfg.SameDirectionAngle) {
			continue
		}
		if other.id > a.id && other.yielding {
			continue
		}
		for _, b := range allBeams {
			dir := core.UnitFromAngle(a.pose.Heading + b.offset(cfg))
			if _, ok := beamHit(a.pose.Position, dir, cfg.StopDistance, cfg.CollisionRadius, other.pose.Position); ok {
				return true
			}
		}
	}
	return false
}

// senseStraightAhead measures the free distance along the heading, used
// while changing lanes.
func (a *Agent) senseStraightAhead() obstacle {
	return a.castBeams([]Beam{BeamFront}, a.roadCandidates())
}
