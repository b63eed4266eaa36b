package vehicle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidConfig indicates a vehicle configuration that cannot drive.
var ErrInvalidConfig = errors.New("invalid vehicle config")

// FollowingParams is one parameter set of the Generalized Force Model.
type FollowingParams struct {
	// DesiredSpeed is v0 in metres per second.
	DesiredSpeed float64 `json:"desired_speed"`
	// Headway is T, the safe time gap in seconds.
	Headway float64 `json:"headway"`
	// MinGap is d, the standstill distance in metres.
	MinGap float64 `json:"min_gap"`
	// Relaxation is t1, the time to reach the desired speed.
	Relaxation float64 `json:"relaxation"`
	// BrakingTime is t2, the time scale of closing-speed braking.
	BrakingTime float64 `json:"braking_time"`
	// Range is R, the distance scale of the desired-speed term.
	Range float64 `json:"range"`
	// BrakingRange is R', the distance scale of the braking term.
	BrakingRange float64 `json:"braking_range"`
}

// SensingConfig sizes the detection beams.
type SensingConfig struct {
	FrontLength float64 `json:"front_length"`
	SideLength  float64 `json:"side_length"`
	// DiagonalAngle is the offset in degrees of the front-left and
	// front-right beams.
	DiagonalAngle float64 `json:"diagonal_angle"`
	// CollisionRadius is how far from a beam a vehicle still counts as hit.
	CollisionRadius float64 `json:"collision_radius"`
	// VehicleLength is subtracted from beam distances to get gaps.
	VehicleLength float64 `json:"vehicle_length"`
	// ArcSampleStep is the spacing of gap samples along a junction arc.
	ArcSampleStep float64 `json:"arc_sample_step"`
	// StopDistance is how close an oncoming vehicle that is turning or
	// changing lanes may be before the agent yields.
	StopDistance float64 `json:"stop_distance"`
	// SameDirectionAngle is the largest heading difference in degrees at
	// which another vehicle still counts as travelling the same way.
	SameDirectionAngle float64 `json:"same_direction_angle"`
}

// LaneChangeConfig tunes the two-phase lane change.
type LaneChangeConfig struct {
	// MaxTurnRate caps steering in degrees per second.
	MaxTurnRate float64 `json:"max_turn_rate"`
	// Lookahead is how far down the target lane the agent aims.
	Lookahead float64 `json:"lookahead"`
	// ArcRadius is the tangent circle radius below which the agent
	// commits to the final arc.
	ArcRadius float64 `json:"arc_radius"`
	// HeadingTolerance is the heading deviation in degrees treated as aligned.
	HeadingTolerance float64 `json:"heading_tolerance"`
	// LineTolerance is the lateral offset in metres treated as on the lane.
	LineTolerance float64 `json:"line_tolerance"`
	// StopDistance forces a stop when the straight-ahead gap is smaller.
	StopDistance float64 `json:"stop_distance"`
}

// SatisfactionStep adjusts happiness by Delta when speed/desired is at
// least MinRatio.
type SatisfactionStep struct {
	MinRatio float64 `json:"min_ratio"`
	Delta    float64 `json:"delta"`
}

// SatisfactionConfig controls speed sampling and the happiness counter.
type SatisfactionConfig struct {
	SampleInterval float64 `json:"sample_interval"`
	AdjustInterval float64 `json:"adjust_interval"`
	BufferSize     int     `json:"buffer_size"`
	Initial        float64 `json:"initial"`
	Max            float64 `json:"max"`
	// Table is ordered by descending MinRatio; the first matching row wins.
	Table []SatisfactionStep `json:"table"`
}

// Config bundles everything an agent needs to drive.
type Config struct {
	Straight FollowingParams `json:"straight"`
	Junction FollowingParams `json:"junction"`
	// InitialSpeedRatio scales the straight desired speed at spawn.
	InitialSpeedRatio float64 `json:"initial_speed_ratio"`
	// ParallelAngle is the angular threshold in degrees under which two
	// road directions are treated as a straight continuation.
	ParallelAngle float64            `json:"parallel_angle"`
	Sensing       SensingConfig      `json:"sensing"`
	LaneChange    LaneChangeConfig   `json:"lane_change"`
	Satisfaction  SatisfactionConfig `json:"satisfaction"`
}

// DefaultConfig returns the tuned parameters used when no file is given.
func DefaultConfig() Config {
	return Config{
		Straight: FollowingParams{
			DesiredSpeed: 10,
			Headway:      1.2,
			MinGap:       2,
			Relaxation:   1.5,
			BrakingTime:  0.8,
			Range:        10,
			BrakingRange: 5,
		},
		Junction: FollowingParams{
			DesiredSpeed: 5,
			Headway:      1.0,
			MinGap:       1.5,
			Relaxation:   1.0,
			BrakingTime:  0.5,
			Range:        5,
			BrakingRange: 3,
		},
		InitialSpeedRatio: 1,
		ParallelAngle:     5,
		Sensing: SensingConfig{
			FrontLength:        25,
			SideLength:         6,
			DiagonalAngle:      30,
			CollisionRadius:    1.2,
			VehicleLength:      4,
			ArcSampleStep:      1,
			StopDistance:       6,
			SameDirectionAngle: 30,
		},
		LaneChange: LaneChangeConfig{
			MaxTurnRate:      45,
			Lookahead:        10,
			ArcRadius:        25,
			HeadingTolerance: 1,
			LineTolerance:    0.05,
			StopDistance:     1,
		},
		Satisfaction: SatisfactionConfig{
			SampleInterval: 0.5,
			AdjustInterval: 2,
			BufferSize:     600,
			Initial:        50,
			Max:            100,
			Table: []SatisfactionStep{
				{MinRatio: 0.8, Delta: 5},
				{MinRatio: 0.5, Delta: 1},
				{MinRatio: 0.2, Delta: -3},
				{MinRatio: 0, Delta: -8},
			},
		},
	}
}

// LoadConfig overlays JSON from r onto DefaultConfig and validates the result.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode vehicle config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first parameter that would break integration.
func (c Config) Validate() error {
	if err := c.Straight.validate(); err != nil {
		return fmt.Errorf("%w: straight: %v", ErrInvalidConfig, err)
	}
	if err := c.Junction.validate(); err != nil {
		return fmt.Errorf("%w: junction: %v", ErrInvalidConfig, err)
	}
	if c.InitialSpeedRatio < 0 {
		return fmt.Errorf("%w: initial_speed_ratio must not be negative", ErrInvalidConfig)
	}
	if c.Sensing.FrontLength <= 0 || c.Sensing.SideLength <= 0 || c.Sensing.CollisionRadius <= 0 {
		return fmt.Errorf("%w: beam lengths and collision radius must be positive", ErrInvalidConfig)
	}
	if c.Sensing.ArcSampleStep <= 0 {
		return fmt.Errorf("%w: arc_sample_step must be positive", ErrInvalidConfig)
	}
	if c.LaneChange.MaxTurnRate <= 0 || c.LaneChange.Lookahead <= 0 || c.LaneChange.ArcRadius <= 0 {
		return fmt.Errorf("%w: lane change rates and distances must be positive", ErrInvalidConfig)
	}
	s := c.Satisfaction
	if s.SampleInterval <= 0 || s.AdjustInterval <= 0 || s.BufferSize <= 0 || s.Max <= 0 {
		return fmt.Errorf("%w: satisfaction intervals and sizes must be positive", ErrInvalidConfig)
	}
	for i := 1; i < len(s.Table); i++ {
		if s.Table[i].MinRatio > s.Table[i-1].MinRatio {
			return fmt.Errorf("%w: satisfaction table must be ordered by descending min_ratio", ErrInvalidConfig)
		}
	}
	return nil
}

func (p FollowingParams) validate() error {
	switch {
	case p.DesiredSpeed <= 0:
		return errors.New("desired_speed must be positive")
	case p.Relaxation <= 0 || p.BrakingTime <= 0:
		return errors.New("relaxation and braking_time must be positive")
	case p.Range <= 0 || p.BrakingRange <= 0:
		return errors.New("range and braking_range must be positive")
	case p.Headway < 0 || p.MinGap < 0:
		return errors.New("headway and min_gap must not be negative")
	}
	return nil
}
