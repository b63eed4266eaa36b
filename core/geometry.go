package core

import (
	"errors"
	"math"
)

// ErrParallel is returned by Intersection when the two lines do not cross.
var ErrParallel = errors.New("lines are parallel")

// crossEpsilon is the magnitude below which a 2D cross product is treated
// as zero when intersecting lines.
const crossEpsilon = 1e-9

// Vec2 is a point or direction in the simulation plane (metres).
type Vec2 struct {
	X, Y float64
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

// Neg returns -v.
func (v Vec2) Neg() Vec2 { return Vec2{X: -v.X, Y: -v.Y} }

// Dot returns the dot product of two vectors.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Cross returns the z component of the 3D cross product v × o.
func (v Vec2) Cross(o Vec2) float64 { return v.X*o.Y - v.Y*o.X }

// Len returns the Euclidean norm of the vector.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// DistanceTo returns the straight-line distance between two points.
func (v Vec2) DistanceTo(o Vec2) float64 { return v.Sub(o).Len() }

// Normalized returns the unit vector with the same direction. The zero
// vector is returned unchanged.
func (v Vec2) Normalized() Vec2 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// Rotate returns v rotated counter-clockwise by deg degrees.
func (v Vec2) Rotate(deg float64) Vec2 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Vec2{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c}
}

// IsZero reports whether both components are exactly zero.
func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// UnitFromAngle returns the unit vector at deg degrees CCW from +x.
func UnitFromAngle(deg float64) Vec2 {
	return FromPolar(Vec2{}, 1, deg)
}

// NormalizeAngle folds deg into [0, 360).
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// Angle returns the direction of v in degrees in [0, 360), measured
// counter-clockwise from +x.
//
// A vector pointing along -x may carry a negative-zero Y after
// arithmetic; atan2 then reports -180. That case is folded to 180 rather
// than left to the generic wrap so callers never observe 360.
func Angle(v Vec2) float64 {
	if v.Y == 0 && v.X < 0 {
		return 180
	}
	return NormalizeAngle(math.Atan2(v.Y, v.X) * 180 / math.Pi)
}

// AngularDifference returns the counter-clockwise rotation, in [0, 360),
// that takes from onto to.
func AngularDifference(from, to Vec2) float64 {
	return NormalizeAngle(Angle(to) - Angle(from))
}

// IsParallel reports whether a and b are parallel or anti-parallel within
// thresholdDeg degrees.
func IsParallel(a, b Vec2, thresholdDeg float64) bool {
	diff := AngularDifference(a, b)
	return diff <= thresholdDeg ||
		math.Abs(diff-180) <= thresholdDeg ||
		math.Abs(diff-360) <= thresholdDeg
}

// Intersection returns the crossing point of the line through p0 along v0
// and the line through p1 along v1. Parallel lines yield the zero vector and
// ErrParallel.
func Intersection(p0, v0, p1, v1 Vec2) (Vec2, error) {
	cross := v0.Cross(v1)
	if math.Abs(cross) < crossEpsilon {
		return Vec2{}, ErrParallel
	}
	t := p1.Sub(p0).Cross(v1) / cross
	return p0.Add(v0.Scale(t)), nil
}

// FootOfPerpendicular projects point onto the line through linePoint along
// lineVec.
func FootOfPerpendicular(point, linePoint, lineVec Vec2) Vec2 {
	sq := lineVec.Dot(lineVec)
	if sq == 0 {
		return linePoint
	}
	t := point.Sub(linePoint).Dot(lineVec) / sq
	return linePoint.Add(lineVec.Scale(t))
}

// DistanceToLine returns the perpendicular distance from point to the line
// through linePoint along lineVec.
func DistanceToLine(point, linePoint, lineVec Vec2) float64 {
	return point.DistanceTo(FootOfPerpendicular(point, linePoint, lineVec))
}

// FromPolar converts polar coordinates around pole to a cartesian point.
func FromPolar(pole Vec2, radius, deg float64) Vec2 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Vec2{X: pole.X + radius*c, Y: pole.Y + radius*s}
}

// IsOnLine reports whether point lies on the line through linePoint along
// lineVec, judged by the magnitude of the cross product.
func IsOnLine(point, linePoint, lineVec Vec2, threshold float64) bool {
	return math.Abs(lineVec.Cross(point.Sub(linePoint))) <= threshold
}

// IsRightOf reports whether point lies to the right of the directed line
// through linePoint along lineVec. Points directly behind count as right,
// points directly ahead as left.
func IsRightOf(point, linePoint, lineVec Vec2) bool {
	rel := point.Sub(linePoint)
	cross := lineVec.Cross(rel)
	if cross == 0 {
		return lineVec.Dot(rel) < 0
	}
	return cross < 0
}

// Perpendicular returns v rotated clockwise by 90 degrees.
func Perpendicular(v Vec2) Vec2 { return Vec2{X: v.Y, Y: -v.X} }

// Bisector returns the unit vector halfway between a and b.
func Bisector(a, b Vec2) Vec2 {
	return a.Normalized().Add(b.Normalized()).Normalized()
}
