package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/traffic-simulator/model"
)

// CurveRoute is the circular arc a vehicle follows through a junction.
// Angles are in [0, 360), counter-clockwise from +x.
type CurveRoute struct {
	Center     Vec2
	Radius     float64
	StartAngle float64
	EndAngle   float64
	Clockwise  bool
	Junction   model.JunctionID

	// Start and End are the arc's tangent points on the incoming and
	// outgoing lane lines.
	Start Vec2
	End   Vec2
}

// TurnLeg names one lane of a road in the direction of travel: traffic
// entering at Edge and driving in Lane.
type TurnLeg struct {
	Road *Road
	Edge int
	Lane int
}

func (l TurnLeg) direction() Vec2 { return l.Road.Along[l.Edge] }

func (l TurnLeg) startPoint() Vec2 { return l.Road.StartPoint(l.Edge, l.Lane) }

// boundary returns the lane boundary line on the inside of the turn: the
// right boundary for clockwise turns, the left one otherwise.
func (l TurnLeg) boundary(clockwise bool) (Vec2, Vec2) {
	if clockwise {
		return l.Road.RightPoint(l.Edge, l.Lane), l.direction()
	}
	return l.Road.LeftPoint(l.Edge, l.Lane), l.direction()
}

// TurnIsClockwise reports whether turning from direction in onto out is a
// clockwise turn.
func TurnIsClockwise(in, out Vec2) bool {
	return AngularDifference(in, out) >= 180
}

// NewCurveRoute builds the arc joining lane in to lane out at junction j.
// The arc is centred where the turn-side boundary lines of the two lanes
// cross; its tangent points are the lane lines' closest approach to that
// centre. Parallel legs have no such centre and yield ErrParallel.
func NewCurveRoute(in, out TurnLeg, j model.JunctionID) (CurveRoute, error) {
	clockwise := TurnIsClockwise(in.direction(), out.direction())

	p0, v0 := in.boundary(clockwise)
	p1, v1 := out.boundary(clockwise)
	center, err := Intersection(p0, v0, p1, v1)
	if err != nil {
		return CurveRoute{}, fmt.Errorf("curve at %v: %w", j, err)
	}

	start := FootOfPerpendicular(center, in.startPoint(), in.direction())
	end := FootOfPerpendicular(center, out.startPoint(), out.direction())

	return CurveRoute{
		Center:     center,
		Radius:     center.DistanceTo(start),
		StartAngle: Angle(start.Sub(center)),
		EndAngle:   Angle(end.Sub(center)),
		Clockwise:  clockwise,
		Junction:   j,
		Start:      start,
		End:        end,
	}, nil
}

// Step advances angle by the arc distance speed*dt in the direction of
// travel and returns the new angle folded into [0, 360).
func (c CurveRoute) Step(angle, speed, dt float64) float64 {
	if c.Radius <= 0 {
		return c.EndAngle
	}
	delta := speed * dt / c.Radius * 180 / math.Pi
	if c.Clockwise {
		delta = -delta
	}
	return NormalizeAngle(angle + delta)
}

// Position returns the point on the arc at angle.
func (c CurveRoute) Position(angle float64) Vec2 {
	return FromPolar(c.Center, c.Radius, angle)
}

// Heading returns the direction of travel, tangent to the arc, at angle.
func (c CurveRoute) Heading(angle float64) float64 {
	if c.Clockwise {
		return NormalizeAngle(angle - 90)
	}
	return NormalizeAngle(angle + 90)
}

// Passed reports whether angle lies beyond the end of the arc.
func (c CurveRoute) Passed(angle float64) bool {
	return ArcPassed(angle, c.StartAngle, c.EndAngle, c.Clockwise)
}

// Remaining returns the arc length left between angle and the end.
func (c CurveRoute) Remaining(angle float64) float64 {
	if c.Passed(angle) {
		return 0
	}
	var sweep float64
	if c.Clockwise {
		sweep = NormalizeAngle(angle - c.EndAngle)
	} else {
		sweep = NormalizeAngle(c.EndAngle - angle)
	}
	return sweep * math.Pi / 180 * c.Radius
}

// Length returns the full arc length.
func (c CurveRoute) Length() float64 {
	return c.Remaining(c.StartAngle)
}

// ArcPassed reports whether angle has moved past end when sweeping from
// start in the given direction. All angles are in [0, 360).
//
// A counter-clockwise sweep with start > end, and a clockwise sweep with
// start < end, cross the 0/360 seam; for those the finished region is the
// gap between end and start rather than everything outside it.
func ArcPassed(angle, start, end float64, clockwise bool) bool {
	if !clockwise {
		if start <= end {
			return angle >= end || angle < start
		}
		return angle >= end && angle < start
	}
	if start >= end {
		return angle <= end || angle > start
	}
	return angle <= end && angle > start
}
