package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/traffic-simulator/model"
)

const angleEps = 1e-6

// crossroads builds a 2-lane four-way junction C at the origin with arms
// 100 m out on each axis.
func crossroads(t *testing.T, opts ...JunctionOption) (*Network, model.JunctionID, map[string]model.RoadID) {
	t.Helper()
	b := NewBuilder(nil)
	c := b.AddJunction("C", Vec2{}, opts...)
	arms := map[string]Vec2{"E": {X: 100}, "N": {Y: 100}, "W": {X: -100}, "S": {Y: -100}}
	roads := make(map[string]model.RoadID, len(arms))
	for _, name := range []string{"E", "N", "W", "S"} {
		b.AddJunction(name, arms[name], AsExit())
	}
	for _, name := range []string{"E", "N", "W", "S"} {
		roads[name] = b.AddRoad("C"+name, Vec2{}, arms[name], 2, 3.5)
	}
	return mustBuild(t, b), c, roads
}

// leg returns the lane on road travelling towards (in) or away from (out)
// junction c.
func leg(n *Network, c model.JunctionID, id model.RoadID, lane int, in bool) TurnLeg {
	r := n.Road(id)
	edge := r.EdgeOf(c)
	if in {
		edge = OtherEdge(edge)
	}
	return TurnLeg{Road: r, Edge: edge, Lane: lane}
}

func TestLeftAndRightTurnsAreMirrorImages(t *testing.T) {
	n, c, roads := crossroads(t)

	left, err := NewCurveRoute(leg(n, c, roads["W"], 0, true), leg(n, c, roads["N"], 0, false), c)
	if err != nil {
		t.Fatalf("left turn: %v", err)
	}
	right, err := NewCurveRoute(leg(n, c, roads["W"], 1, true), leg(n, c, roads["S"], 1, false), c)
	if err != nil {
		t.Fatalf("right turn: %v", err)
	}

	if left.Clockwise || !right.Clockwise {
		t.Fatalf("directions: left cw=%v right cw=%v", left.Clockwise, right.Clockwise)
	}
	if math.Abs(left.Radius-1.75) > angleEps || math.Abs(right.Radius-1.75) > angleEps {
		t.Fatalf("radii = %v, %v, want 1.75", left.Radius, right.Radius)
	}
	if math.Abs(left.Length()-right.Length()) > angleEps {
		t.Fatalf("lengths differ: %v vs %v", left.Length(), right.Length())
	}
	if want := math.Pi / 2 * 1.75; math.Abs(left.Length()-want) > angleEps {
		t.Fatalf("length = %v, want %v", left.Length(), want)
	}

	checks := []struct {
		name                  string
		c                     CurveRoute
		center, start, end    Vec2
		inHeading, outHeading float64
	}{
		{"left", left, Vec2{X: -7, Y: 7}, Vec2{X: -7, Y: 5.25}, Vec2{X: -5.25, Y: 7}, 0, 90},
		{"right", right, Vec2{}, Vec2{Y: 1.75}, Vec2{X: 1.75}, 0, 270},
	}
	for _, tc := range checks {
		if tc.c.Center.DistanceTo(tc.center) > angleEps ||
			tc.c.Start.DistanceTo(tc.start) > angleEps ||
			tc.c.End.DistanceTo(tc.end) > angleEps {
			t.Fatalf("%s: centre %v start %v end %v", tc.name, tc.c.Center, tc.c.Start, tc.c.End)
		}
		if tc.c.Position(tc.c.StartAngle).DistanceTo(tc.c.Start) > angleEps ||
			tc.c.Position(tc.c.EndAngle).DistanceTo(tc.c.End) > angleEps {
			t.Fatalf("%s: arc endpoints do not match tangent points", tc.name)
		}
		if h := tc.c.Heading(tc.c.StartAngle); headingGap(h, tc.inHeading) > angleEps {
			t.Fatalf("%s: entry heading %v, want %v", tc.name, h, tc.inHeading)
		}
		if h := tc.c.Heading(tc.c.EndAngle); headingGap(h, tc.outHeading) > angleEps {
			t.Fatalf("%s: exit heading %v, want %v", tc.name, h, tc.outHeading)
		}
	}
}

// The arc centre is pinned by the two turn-side lane boundaries alone, so
// it does not depend on which of them the construction starts from, and
// start and end sit on one circle. Driving the same lanes the other way
// round takes the mirrored arc on the far side of the junction with the
// same radius.
func TestCurveCentreDoesNotDependOnLegOrder(t *testing.T) {
	n, c, roads := crossroads(t)
	opposite := map[string]string{"E": "W", "W": "E", "N": "S", "S": "N"}

	for _, from := range []string{"E", "N", "W", "S"} {
		for _, to := range []string{"E", "N", "W", "S"} {
			if from == to || opposite[from] == to {
				continue
			}
			for lane := 0; lane < 2; lane++ {
				in, out := leg(n, c, roads[from], lane, true), leg(n, c, roads[to], lane, false)
				curve, err := NewCurveRoute(in, out, c)
				if err != nil {
					t.Fatalf("%s->%s lane %d: %v", from, to, lane, err)
				}

				p0, v0 := in.boundary(curve.Clockwise)
				p1, v1 := out.boundary(curve.Clockwise)
				swapped, err := Intersection(p1, v1, p0, v0)
				if err != nil || swapped.DistanceTo(curve.Center) > angleEps {
					t.Fatalf("%s->%s lane %d: centre %v, from the outgoing side %v (%v)",
						from, to, lane, curve.Center, swapped, err)
				}
				if DistanceToLine(curve.Center, p0, v0) > angleEps || DistanceToLine(curve.Center, p1, v1) > angleEps {
					t.Fatalf("%s->%s lane %d: centre %v is off a boundary", from, to, lane, curve.Center)
				}
				rs, re := curve.Center.DistanceTo(curve.Start), curve.Center.DistanceTo(curve.End)
				if math.Abs(rs-curve.Radius) > angleEps || math.Abs(re-curve.Radius) > angleEps {
					t.Fatalf("%s->%s lane %d: radius %v, start %v, end %v", from, to, lane, curve.Radius, rs, re)
				}

				back, err := NewCurveRoute(leg(n, c, roads[to], lane, true), leg(n, c, roads[from], lane, false), c)
				if err != nil {
					t.Fatalf("%s->%s lane %d: %v", to, from, lane, err)
				}
				if math.Abs(back.Radius-curve.Radius) > angleEps {
					t.Fatalf("%s<->%s lane %d: radii %v and %v", from, to, lane, curve.Radius, back.Radius)
				}
				if back.Clockwise == curve.Clockwise {
					t.Fatalf("%s<->%s lane %d: both turns clockwise=%v", from, to, lane, back.Clockwise)
				}
			}
		}
	}
}

func TestStepAcrossSeamReachesEnd(t *testing.T) {
	n, c, roads := crossroads(t)
	curve, err := NewCurveRoute(leg(n, c, roads["W"], 0, true), leg(n, c, roads["N"], 0, false), c)
	if err != nil {
		t.Fatalf("NewCurveRoute: %v", err)
	}
	// The left turn sweeps 270 -> 0 counter-clockwise, over the seam.
	if curve.StartAngle < curve.EndAngle {
		t.Fatalf("expected a seam-crossing arc, got %v -> %v", curve.StartAngle, curve.EndAngle)
	}

	const speed, dt = 1.0, 0.01
	angle := curve.StartAngle
	prev := curve.Remaining(angle)
	steps := 0
	for !curve.Passed(angle) {
		angle = curve.Step(angle, speed, dt)
		steps++
		if d := curve.Position(angle).DistanceTo(curve.Center); math.Abs(d-curve.Radius) > angleEps {
			t.Fatalf("step %d left the circle: %v", steps, d)
		}
		if r := curve.Remaining(angle); r > prev {
			t.Fatalf("step %d: remaining grew from %v to %v", steps, prev, r)
		} else {
			prev = r
		}
		if steps > 1000 {
			t.Fatalf("never passed the end")
		}
	}
	want := int(curve.Length() / (speed * dt))
	if steps < want || steps > want+1 {
		t.Fatalf("steps = %d, want about %d", steps, want)
	}
	if curve.Remaining(angle) != 0 {
		t.Fatalf("remaining after pass = %v", curve.Remaining(angle))
	}
}

func TestArcPassed(t *testing.T) {
	cases := []struct {
		angle, start, end float64
		cw                bool
		want              bool
	}{
		{45, 0, 90, false, false},
		{90, 0, 90, false, true},
		{200, 0, 90, false, true},
		{355, 350, 10, false, false},
		{5, 350, 10, false, false},
		{15, 350, 10, false, true},
		{45, 90, 0, true, false},
		{0, 90, 0, true, true},
		{300, 90, 0, true, true},
		{5, 10, 350, true, false},
		{355, 10, 350, true, false},
		{345, 10, 350, true, true},
		{349, 350, 10, true, false},
		{180, 350, 10, true, false},
		{10, 350, 10, true, true},
		{355, 350, 10, true, true},
	}
	for _, tc := range cases {
		if got := ArcPassed(tc.angle, tc.start, tc.end, tc.cw); got != tc.want {
			t.Fatalf("ArcPassed(%v, %v->%v, cw=%v) = %v, want %v",
				tc.angle, tc.start, tc.end, tc.cw, got, tc.want)
		}
	}
}

func TestStraightThroughHasNoArc(t *testing.T) {
	n, c, roads := crossroads(t)
	_, err := NewCurveRoute(leg(n, c, roads["W"], 0, true), leg(n, c, roads["E"], 0, false), c)
	if !errors.Is(err, ErrParallel) {
		t.Fatalf("err = %v, want ErrParallel", err)
	}
	if !TurnIsClockwise(Vec2{X: 1}, Vec2{Y: -1}) || TurnIsClockwise(Vec2{X: 1}, Vec2{Y: 1}) {
		t.Fatalf("TurnIsClockwise mismatch")
	}
}

func headingGap(a, b float64) float64 {
	d := NormalizeAngle(a - b)
	return math.Min(d, 360-d)
}
