// Package routing plans junction-to-junction routes over a road network.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/internal/observability"
	"github.com/signalsfoundry/traffic-simulator/model"
)

// ErrNoRoute indicates the destination cannot be reached from the start.
var ErrNoRoute = errors.New("no route to destination")

// ErrNetworkNotReady indicates a planner was requested before every road
// had snapped to its junctions.
var ErrNetworkNotReady = errors.New("road network not ready")

// MetricsRecorder receives planner measurements.
type MetricsRecorder interface {
	ObserveRoute(d time.Duration, hops int)
	IncRouteFailures()
}

// Option customises a Planner.
type Option func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(log logging.Logger) Option {
	return func(p *Planner) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetricsRecorder sets the recorder for route timings and failures.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(p *Planner) { p.metrics = m }
}

// Planner finds routes with A* over junctions. Every hop costs one, so
// routes minimise the number of roads travelled. The heuristic is the
// straight-line distance to the destination measured in units of the
// longest road, which never overestimates the hops left.
type Planner struct {
	positions []core.Vec2
	hopLength float64
	// adjacency[a][b] is the road joining junctions a and b, or model.NoRoad.
	adjacency [][]model.RoadID

	log     logging.Logger
	metrics MetricsRecorder
}

// NewPlanner builds the adjacency matrix of a ready network.
func NewPlanner(n *core.Network, opts ...Option) (*Planner, error) {
	if n == nil || !n.Ready() {
		return nil, ErrNetworkNotReady
	}
	p := &Planner{log: logging.Noop()}
	for _, opt := range opts {
		opt(p)
	}

	junctions := n.Junctions()
	p.positions = make([]core.Vec2, len(junctions))
	p.adjacency = make([][]model.RoadID, len(junctions))
	for i, j := range junctions {
		p.positions[i] = j.Position
		row := make([]model.RoadID, len(junctions))
		for k := range row {
			row[k] = model.NoRoad
		}
		p.adjacency[i] = row
	}
	p.hopLength = 1
	for _, r := range n.Roads() {
		p.hopLength = math.Max(p.hopLength, r.Length)
		a, b := r.Junctions[0], r.Junctions[1]
		p.adjacency[a][b] = r.ID
		p.adjacency[b][a] = r.ID
	}
	return p, nil
}

// Road returns the road joining a and b, if they are adjacent.
func (p *Planner) Road(a, b model.JunctionID) (model.RoadID, bool) {
	if !p.valid(a) || !p.valid(b) {
		return model.NoRoad, false
	}
	r := p.adjacency[a][b]
	return r, r != model.NoRoad
}

func (p *Planner) valid(j model.JunctionID) bool {
	return j >= 0 && int(j) < len(p.adjacency)
}

type node struct {
	g, h   float64
	parent model.JunctionID
	open   bool
}

func (n *node) f() float64 { return n.g + n.h }

// Route returns the roads leading from start to dest in travel order. A
// start equal to dest yields an empty route. Among open junctions of equal
// cost the one with the lowest handle is expanded first, so routes are
// reproducible.
func (p *Planner) Route(ctx context.Context, start, dest model.JunctionID) ([]model.RoadID, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := observability.StartSpan(ctx, "routing.Route",
		observability.Junction(start),
		observability.Destination(dest),
	)
	defer span.End()

	if !p.valid(start) || !p.valid(dest) {
		return nil, observability.Fail(span, fmt.Errorf("%w: %v -> %v", core.ErrJunctionNotFound, start, dest))
	}

	began := time.Now()
	route, ok := p.search(start, dest)
	if !ok {
		if p.metrics != nil {
			p.metrics.IncRouteFailures()
		}
		p.log.Warn(ctx, "no route to destination",
			logging.Stringer("start", start),
			logging.Stringer("destination", dest),
		)
		return nil, observability.Fail(span, fmt.Errorf("%w: %v -> %v", ErrNoRoute, start, dest))
	}
	if p.metrics != nil {
		p.metrics.ObserveRoute(time.Since(began), len(route))
	}
	span.SetAttributes(observability.Hops(len(route)))
	return route, nil
}

func (p *Planner) search(start, dest model.JunctionID) ([]model.RoadID, bool) {
	nodes := make([]node, len(p.adjacency))
	for i := range nodes {
		nodes[i] = node{g: math.Inf(1), parent: model.NoJunction}
	}
	goal := p.positions[dest]
	heuristic := func(j int) float64 {
		return p.positions[j].DistanceTo(goal) / p.hopLength
	}
	nodes[start].g = 0
	nodes[start].h = heuristic(int(start))
	nodes[start].open = true
	openCount := 1

	for openCount > 0 {
		current := model.NoJunction
		for i := range nodes {
			if !nodes[i].open {
				continue
			}
			if current == model.NoJunction || nodes[i].f() < nodes[current].f() {
				current = model.JunctionID(i)
			}
		}
		nodes[current].open = false
		openCount--

		if current == dest {
			return p.reconstruct(nodes, dest), true
		}

		for next, road := range p.adjacency[current] {
			if road == model.NoRoad {
				continue
			}
			child := &nodes[next]
			g := nodes[current].g + 1
			if g >= child.g {
				continue
			}
			child.g = g
			child.h = heuristic(next)
			child.parent = current
			if !child.open {
				child.open = true
				openCount++
			}
		}
	}
	return nil, false
}

func (p *Planner) reconstruct(nodes []node, dest model.JunctionID) []model.RoadID {
	var path []model.JunctionID
	for j := dest; j != model.NoJunction; j = nodes[j].parent {
		path = append(path, j)
	}
	for i, k := 0, len(path)-1; i < k; i, k = i+1, k-1 {
		path[i], path[k] = path[k], path[i]
	}
	roads := make([]model.RoadID, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		roads = append(roads, p.adjacency[path[i]][path[i+1]])
	}
	return roads
}
