// Package spawn feeds vehicles into a simulation from every map exit.
package spawn

import (
	"context"
	"errors"
	"math/rand"

	"github.com/samber/lo"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/model"
)

// ErrNoSpawnPoints indicates a map without any exit lanes.
var ErrNoSpawnPoints = errors.New("map has no spawn points")

// Target is the simulation vehicles are spawned into.
type Target interface {
	Network() *core.Network
	Spawn(ctx context.Context, junction model.JunctionID, road model.RoadID, lane int, dest *model.JunctionID) (model.VehicleID, error)
	// TailPosition returns the vehicle nearest the entry of lane on key.
	TailPosition(key model.LaneKey, lane int) (core.Vec2, bool)
}

// Point is one lane leaving a map exit.
type Point struct {
	Junction model.JunctionID
	Road     model.RoadID
	Edge     int
	Lane     int
	Position core.Vec2
}

// Points lists every exit × incident road × lane of n.
func Points(n *core.Network) []Point {
	var out []Point
	for _, id := range n.ExitJunctions() {
		j := n.Junction(id)
		for _, rid := range j.Roads() {
			r := n.Road(rid)
			edge := r.EdgeOf(id)
			for lane := 0; lane < r.Lanes; lane++ {
				out = append(out, Point{
					Junction: id,
					Road:     rid,
					Edge:     edge,
					Lane:     lane,
					Position: r.StartPoint(edge, lane),
				})
			}
		}
	}
	return out
}

type point struct {
	Point
	// sinceSpawn is the time in seconds since this point last spawned.
	sinceSpawn float64
}

// Spawner decides each frame how many vehicles enter and where.
type Spawner struct {
	cfg    Config
	target Target
	points []*point
	rng    *rand.Rand
	log    logging.Logger
}

// Option customises a Spawner.
type Option func(*Spawner)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Spawner) { s.cfg = cfg.ApplyDefaults() }
}

// WithRand sets the random source for counts and point order.
func WithRand(rng *rand.Rand) Option {
	return func(s *Spawner) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithLogger sets the spawner logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Spawner) {
		if log != nil {
			s.log = log
		}
	}
}

// New collects the spawn points of target's network. Every point starts
// ready to spawn.
func New(target Target, opts ...Option) (*Spawner, error) {
	s := &Spawner{
		cfg:    DefaultConfig(),
		target: target,
		rng:    rand.New(rand.NewSource(1)),
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	pts := Points(target.Network())
	if len(pts) == 0 {
		return nil, ErrNoSpawnPoints
	}
	interval := s.cfg.Interval.Seconds()
	s.points = lo.Map(pts, func(p Point, _ int) *point {
		return &point{Point: p, sinceSpawn: interval}
	})
	return s, nil
}

// Points returns the spawn points in discovery order.
func (s *Spawner) Points() []Point {
	return lo.Map(s.points, func(p *point, _ int) Point { return p.Point })
}

// Tick advances point timers by dt seconds and spawns this frame's share
// of vehicles at randomly ordered available points. It returns how many
// vehicles entered.
func (s *Spawner) Tick(ctx context.Context, dt float64) int {
	if dt <= 0 {
		return 0
	}
	for _, p := range s.points {
		p.sinceSpawn += dt
	}

	want := s.count(dt)
	if want == 0 {
		return 0
	}
	order := append([]*point(nil), s.points...)
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	spawned := 0
	for _, p := range order {
		if spawned == want {
			break
		}
		if !s.available(p) {
			continue
		}
		p.sinceSpawn = 0
		id, err := s.target.Spawn(ctx, p.Junction, p.Road, p.Lane, nil)
		if err != nil {
			s.log.Warn(ctx, "spawn failed",
				logging.Stringer("junction", p.Junction),
				logging.Stringer("road", p.Road),
				logging.Int("lane", p.Lane),
				logging.Err(err),
			)
			continue
		}
		spawned++
		s.log.Debug(ctx, "vehicle spawned",
			logging.Stringer("vehicle", id),
			logging.Stringer("junction", p.Junction),
		)
	}
	return spawned
}

// count draws the number of vehicles for a frame of dt seconds. The
// fractional part becomes one more vehicle with matching probability.
func (s *Spawner) count(dt float64) int {
	low := s.cfg.ExpectedPerSecond - s.cfg.Range
	expected := (low + s.rng.Float64()*2*s.cfg.Range) * dt
	n := int(expected)
	if s.rng.Float64() < expected-float64(n) {
		n++
	}
	return n
}

func (s *Spawner) available(p *point) bool {
	if p.sinceSpawn < s.cfg.Interval.Seconds() {
		return false
	}
	tail, ok := s.target.TailPosition(model.LaneKey{Road: p.Road, Edge: p.Edge}, p.Lane)
	return !ok || tail.DistanceTo(p.Position) > s.cfg.NotSpawningDistance
}
