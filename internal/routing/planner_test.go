package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/model"
)

type fakeRecorder struct {
	routes   int
	hops     []int
	failures int
}

func (f *fakeRecorder) ObserveRoute(_ time.Duration, hops int) {
	f.routes++
	f.hops = append(f.hops, hops)
}

func (f *fakeRecorder) IncRouteFailures() { f.failures++ }

// square builds A(0,0) B(100,0) C(100,100) D(0,100) joined around the
// perimeter, with an optional diagonal A-C.
func square(t *testing.T, diagonal bool) (*core.Network, map[string]model.JunctionID, map[string]model.RoadID) {
	t.Helper()
	b := core.NewBuilder(nil)
	js := map[string]model.JunctionID{
		"A": b.AddJunction("A", core.Vec2{X: 0, Y: 0}),
		"B": b.AddJunction("B", core.Vec2{X: 100, Y: 0}),
		"C": b.AddJunction("C", core.Vec2{X: 100, Y: 100}),
		"D": b.AddJunction("D", core.Vec2{X: 0, Y: 100}),
	}
	rs := map[string]model.RoadID{
		"AB": b.AddRoad("AB", core.Vec2{X: 1, Y: 0}, core.Vec2{X: 99, Y: 0}, 1, 0),
		"BC": b.AddRoad("BC", core.Vec2{X: 100, Y: 1}, core.Vec2{X: 100, Y: 99}, 1, 0),
		"CD": b.AddRoad("CD", core.Vec2{X: 99, Y: 100}, core.Vec2{X: 1, Y: 100}, 1, 0),
		"DA": b.AddRoad("DA", core.Vec2{X: 0, Y: 99}, core.Vec2{X: 0, Y: 1}, 1, 0),
	}
	if diagonal {
		rs["AC"] = b.AddRoad("AC", core.Vec2{X: 2, Y: 2}, core.Vec2{X: 98, Y: 98}, 1, 0)
	}
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n, js, rs
}

func TestRouteTakesDiagonalWhenItSavesAHop(t *testing.T) {
	n, js, rs := square(t, true)
	p, err := NewPlanner(n)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}

	route, err := p.Route(context.Background(), js["A"], js["C"])
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route) != 1 || route[0] != rs["AC"] {
		t.Fatalf("route A->C = %v, want [AC]", route)
	}

	// B and D are two hops from each other with or without the diagonal.
	route, err = p.Route(context.Background(), js["B"], js["D"])
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route) != 2 {
		t.Fatalf("route B->D = %v, want two hops", route)
	}

	route, err = p.Route(context.Background(), js["A"], js["B"])
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route) != 1 || route[0] != rs["AB"] {
		t.Fatalf("route A->B = %v, want [AB]", route)
	}
}

func TestRouteCostIsTopological(t *testing.T) {
	// A straight chain of short roads from A to C runs alongside the
	// two-hop perimeter path. It is shorter in distance but longer in hops,
	// so the perimeter must win.
	b := core.NewBuilder(nil)
	a := b.AddJunction("A", core.Vec2{X: 0, Y: 0})
	bj := b.AddJunction("B", core.Vec2{X: 100, Y: 0})
	c := b.AddJunction("C", core.Vec2{X: 100, Y: 100})
	b.AddJunction("E1", core.Vec2{X: 33, Y: 33})
	b.AddJunction("E2", core.Vec2{X: 66, Y: 66})
	ab := b.AddRoad("AB", core.Vec2{X: 0, Y: 0}, core.Vec2{X: 100, Y: 0}, 1, 0)
	bc := b.AddRoad("BC", core.Vec2{X: 100, Y: 0}, core.Vec2{X: 100, Y: 100}, 1, 0)
	b.AddRoad("AE1", core.Vec2{X: 0, Y: 0}, core.Vec2{X: 33, Y: 33}, 1, 0)
	b.AddRoad("E1E2", core.Vec2{X: 33, Y: 33}, core.Vec2{X: 66, Y: 66}, 1, 0)
	b.AddRoad("E2C", core.Vec2{X: 66, Y: 66}, core.Vec2{X: 100, Y: 100}, 1, 0)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p, err := NewPlanner(n)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	route, err := p.Route(context.Background(), a, c)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route) != 2 || route[0] != ab || route[1] != bc {
		t.Fatalf("route = %v, want [AB BC]", route)
	}
}

func TestRouteTieBreakIsDeterministic(t *testing.T) {
	n, js, rs := square(t, false)
	p, err := NewPlanner(n)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	// B->D has two equal two-hop routes; the lower handle A is expanded first.
	for i := 0; i < 5; i++ {
		route, err := p.Route(context.Background(), js["B"], js["D"])
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if len(route) != 2 || route[0] != rs["AB"] || route[1] != rs["DA"] {
			t.Fatalf("route B->D = %v, want [AB DA]", route)
		}
	}
}

func TestRouteToSelfIsEmpty(t *testing.T) {
	n, js, _ := square(t, false)
	p, err := NewPlanner(n)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	route, err := p.Route(context.Background(), js["A"], js["A"])
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route) != 0 {
		t.Fatalf("route = %v, want empty", route)
	}
}

func TestRouteUnreachableReportsFailure(t *testing.T) {
	b := core.NewBuilder(nil)
	a := b.AddJunction("A", core.Vec2{X: 0, Y: 0})
	b.AddJunction("B", core.Vec2{X: 100, Y: 0})
	c := b.AddJunction("C", core.Vec2{X: 1000, Y: 0})
	b.AddJunction("D", core.Vec2{X: 1100, Y: 0})
	b.AddRoad("AB", core.Vec2{X: 0, Y: 0}, core.Vec2{X: 100, Y: 0}, 1, 0)
	b.AddRoad("CD", core.Vec2{X: 1000, Y: 0}, core.Vec2{X: 1100, Y: 0}, 1, 0)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rec := &fakeRecorder{}
	p, err := NewPlanner(n, WithMetricsRecorder(rec))
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	route, err := p.Route(context.Background(), a, c)
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
	if route != nil {
		t.Fatalf("route = %v, want nil", route)
	}
	if rec.failures != 1 || rec.routes != 0 {
		t.Fatalf("recorder failures=%d routes=%d, want 1/0", rec.failures, rec.routes)
	}
}

func TestRouteUnknownJunction(t *testing.T) {
	n, js, _ := square(t, false)
	p, err := NewPlanner(n)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	if _, err := p.Route(context.Background(), js["A"], model.JunctionID(42)); !errors.Is(err, core.ErrJunctionNotFound) {
		t.Fatalf("err = %v, want ErrJunctionNotFound", err)
	}
}

func TestNewPlannerRequiresReadyNetwork(t *testing.T) {
	if _, err := NewPlanner(nil); !errors.Is(err, ErrNetworkNotReady) {
		t.Fatalf("err = %v, want ErrNetworkNotReady", err)
	}
}

// TestRouteHopCountsMatchShortestPaths cross-checks every pair on a grid
// with holes against unit-weight Dijkstra.
func TestRouteHopCountsMatchShortestPaths(t *testing.T) {
	const size = 5
	const spacing = 50.0
	b := core.NewBuilder(nil)
	ids := make([][]model.JunctionID, size)
	for y := 0; y < size; y++ {
		ids[y] = make([]model.JunctionID, size)
		for x := 0; x < size; x++ {
			ids[y][x] = b.AddJunction(fmt.Sprintf("J%d_%d", x, y), core.Vec2{X: float64(x) * spacing, Y: float64(y) * spacing})
		}
	}
	oracle := simple.NewUndirectedGraph()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			oracle.AddNode(simple.Node(ids[y][x]))
		}
	}
	connect := func(x0, y0, x1, y1 int) {
		from := core.Vec2{X: float64(x0) * spacing, Y: float64(y0) * spacing}
		to := core.Vec2{X: float64(x1) * spacing, Y: float64(y1) * spacing}
		b.AddRoad(fmt.Sprintf("R%d_%d_%d_%d", x0, y0, x1, y1), from, to, 1, 0)
		oracle.SetEdge(simple.Edge{F: simple.Node(ids[y0][x0]), T: simple.Node(ids[y1][x1])})
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			// Knock out a few roads so detours appear.
			if x+1 < size && !(y == 2 && x != 0) {
				connect(x, y, x+1, y)
			}
			if y+1 < size && !(x == 3 && y < 3) {
				connect(x, y, x, y+1)
			}
		}
	}
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p, err := NewPlanner(n)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}

	for _, from := range n.Junctions() {
		shortest := path.DijkstraFrom(simple.Node(from.ID), oracle)
		for _, to := range n.Junctions() {
			want := shortest.WeightTo(int64(to.ID))
			route, err := p.Route(context.Background(), from.ID, to.ID)
			if math.IsInf(want, 1) {
				if !errors.Is(err, ErrNoRoute) {
					t.Fatalf("%s->%s: err = %v, want ErrNoRoute", from.Name, to.Name, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("%s->%s: %v", from.Name, to.Name, err)
			}
			if float64(len(route)) != want {
				t.Fatalf("%s->%s: %d hops, want %v", from.Name, to.Name, len(route), want)
			}
			assertContiguous(t, n, from.ID, to.ID, route)
		}
	}
}

func assertContiguous(t *testing.T, n *core.Network, from, to model.JunctionID, route []model.RoadID) {
	t.Helper()
	at := from
	for _, id := range route {
		next, err := n.OtherEnd(id, at)
		if err != nil {
			t.Fatalf("route %v breaks at %v: %v", route, at, err)
		}
		at = next
	}
	if at != to {
		t.Fatalf("route %v ends at %v, want %v", route, at, to)
	}
}
