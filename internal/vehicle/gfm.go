package vehicle

import "math"

// Acceleration evaluates the Generalized Force Model for a vehicle at speed
// v with gap s to an obstacle moving at lead. An infinite gap means the
// road ahead is free.
//
//	s0 = d + T*v
//	V  = v0 * (1 - exp(-(s-s0)/R))
//	a  = (V-v)/t1 - θ(v-lead) * (v-lead)/t2 * exp(-(s-s0)/R')
func (p FollowingParams) Acceleration(v, s, lead float64) float64 {
	if math.IsInf(s, 1) {
		return (p.DesiredSpeed - v) / p.Relaxation
	}
	s0 := p.MinGap + p.Headway*v
	desired := p.DesiredSpeed * (1 - math.Exp(-(s-s0)/p.Range))
	a := (desired - v) / p.Relaxation
	if dv := v - lead; dv > 0 {
		a -= dv / p.BrakingTime * math.Exp(-(s-s0)/p.BrakingRange)
	}
	return a
}

// NextSpeed integrates one step of length dt. Speeds never go negative.
func (p FollowingParams) NextSpeed(v, s, lead, dt float64) float64 {
	return math.Max(0, v+p.Acceleration(v, s, lead)*dt)
}
