package vehicle

import (
	"github.com/samber/lo"
)

// satisfaction samples speed into a trailing window and keeps a bounded
// happiness counter that only drives the visual indicator.
type satisfaction struct {
	cfg       SatisfactionConfig
	desired   float64
	samples   []float64
	next      int
	happiness float64

	sampleClock float64
	adjustClock float64
}

func newSatisfaction(cfg SatisfactionConfig, desired float64) *satisfaction {
	return &satisfaction{
		cfg:       cfg,
		desired:   desired,
		samples:   make([]float64, 0, cfg.BufferSize),
		happiness: lo.Clamp(cfg.Initial, 0, cfg.Max),
	}
}

// observe advances the sampling and adjustment clocks by dt at speed.
func (s *satisfaction) observe(speed, dt float64) {
	s.sampleClock += dt
	for s.sampleClock >= s.cfg.SampleInterval {
		s.sampleClock -= s.cfg.SampleInterval
		s.record(speed)
	}
	s.adjustClock += dt
	for s.adjustClock >= s.cfg.AdjustInterval {
		s.adjustClock -= s.cfg.AdjustInterval
		s.happiness = lo.Clamp(s.happiness+s.delta(speed), 0, s.cfg.Max)
	}
}

func (s *satisfaction) record(speed float64) {
	if len(s.samples) < s.cfg.BufferSize {
		s.samples = append(s.samples, speed)
		return
	}
	s.samples[s.next] = speed
	s.next = (s.next + 1) % s.cfg.BufferSize
}

func (s *satisfaction) delta(speed float64) float64 {
	ratio := 0.0
	if s.desired > 0 {
		ratio = speed / s.desired
	}
	for _, step := range s.cfg.Table {
		if ratio >= step.MinRatio {
			return step.Delta
		}
	}
	return 0
}

// average returns the mean of the buffered samples, or fallback when
// nothing has been sampled yet.
func (s *satisfaction) average(fallback float64) float64 {
	if len(s.samples) == 0 {
		return fallback
	}
	return lo.Sum(s.samples) / float64(len(s.samples))
}

// ratio returns happiness as a fraction of its maximum.
func (s *satisfaction) ratio() float64 {
	return s.happiness / s.cfg.Max
}
