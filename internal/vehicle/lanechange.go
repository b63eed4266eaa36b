package vehicle

import (
	"math"

	"github.com/signalsfoundry/traffic-simulator/core"
)

type changePhase int

const (
	phaseBlend changePhase = iota
	phaseArc
)

// laneChange tracks a move onto a parallel lane line: first steering
// towards the line, then a circular arc tangent to both the heading and
// the line.
type laneChange struct {
	phase     changePhase
	linePoint core.Vec2
	lineDir   core.Vec2
	aim       core.Vec2
	arc       core.CurveRoute
	angle     float64
}

func newLaneChange(pos, linePoint, lineDir core.Vec2, lookahead float64) *laneChange {
	lc := &laneChange{linePoint: linePoint, lineDir: lineDir.Normalized()}
	lc.retarget(pos, lookahead)
	return lc
}

// retarget fixes the point on the lane line the blend phase steers at.
func (lc *laneChange) retarget(pos core.Vec2, lookahead float64) {
	foot := core.FootOfPerpendicular(pos, lc.linePoint, lc.lineDir)
	lc.aim = foot.Add(lc.lineDir.Scale(lookahead))
}

// tangentArc returns the circle touching the heading line at pos and the
// lane line. The centre lies on the perpendicular of the heading through
// pos and on the bisector, at the crossing X of the two lines, between the
// way back to the vehicle and the way forward along the lane.
func tangentArc(pos, heading, linePoint, lineDir core.Vec2) (core.CurveRoute, bool) {
	x, err := core.Intersection(pos, heading, linePoint, lineDir)
	if err != nil || x.Sub(pos).Dot(heading) <= 0 {
		return core.CurveRoute{}, false
	}
	bisector := core.Bisector(heading.Neg(), lineDir)
	if bisector.IsZero() {
		return core.CurveRoute{}, false
	}
	center, err := core.Intersection(pos, core.Perpendicular(heading), x, bisector)
	if err != nil {
		return core.CurveRoute{}, false
	}
	end := core.FootOfPerpendicular(center, linePoint, lineDir)
	return core.CurveRoute{
		Center:     center,
		Radius:     center.DistanceTo(pos),
		StartAngle: core.Angle(pos.Sub(center)),
		EndAngle:   core.Angle(end.Sub(center)),
		Clockwise:  heading.Cross(lineDir) < 0,
		Start:      pos,
		End:        end,
	}, true
}

// steer rotates heading towards target by at most maxStep degrees.
func steer(heading, target, maxStep float64) float64 {
	diff := core.NormalizeAngle(target - heading)
	if diff > 180 {
		diff -= 360
	}
	step := math.Max(-maxStep, math.Min(maxStep, diff))
	return core.NormalizeAngle(heading + step)
}

// updateChangingLane moves the agent one step through the maneuver and
// reports whether it has settled on the target lane.
func (a *Agent) updateChangingLane(dt float64) bool {
	cfg := a.env.Config.LaneChange
	lc := a.change

	a.yielding = a.mustYield()
	ahead := a.senseStraightAhead()
	switch {
	case a.yielding, ahead.gap < cfg.StopDistance:
		a.speed = 0
	default:
		a.speed = a.env.Config.Straight.NextSpeed(a.speed, ahead.gap, ahead.speed, dt)
	}
	step := a.speed * dt

	if lc.phase == phaseArc {
		lc.angle = lc.arc.Step(lc.angle, a.speed, dt)
		if lc.arc.Passed(lc.angle) {
			return true
		}
		a.pose.Position = lc.arc.Position(lc.angle)
		a.pose.Heading = lc.arc.Heading(lc.angle)
		return false
	}

	pos := a.pose.Position
	offLine := core.DistanceToLine(pos, lc.linePoint, lc.lineDir)
	aligned := sameDirection(a.pose.Heading, core.Angle(lc.lineDir), cfg.HeadingTolerance)
	if offLine <= cfg.LineTolerance && aligned {
		return true
	}

	if step <= 0 {
		return false
	}
	if lc.aim.Sub(pos).Dot(lc.lineDir) <= step {
		lc.retarget(pos, cfg.Lookahead)
	}
	a.pose.Heading = steer(a.pose.Heading, core.Angle(lc.aim.Sub(pos)), cfg.MaxTurnRate*dt)
	heading := core.UnitFromAngle(a.pose.Heading)

	if arc, ok := tangentArc(pos, heading, lc.linePoint, lc.lineDir); ok && arc.Radius < cfg.ArcRadius {
		lc.arc = arc
		lc.angle = arc.StartAngle
		lc.phase = phaseArc
		return false
	}

	next := pos.Add(heading.Scale(step))
	// Never overshoot the lane line while blending.
	if core.IsRightOf(pos, lc.linePoint, lc.lineDir) != core.IsRightOf(next, lc.linePoint, lc.lineDir) {
		a.pose.Position = core.FootOfPerpendicular(next, lc.linePoint, lc.lineDir)
		a.pose.Heading = core.Angle(lc.lineDir)
		return true
	}
	a.pose.Position = next
	return false
}
