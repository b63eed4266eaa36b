package vehicle

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/internal/routing"
	"github.com/signalsfoundry/traffic-simulator/model"
)

type arrival struct {
	average, desired float64
}

type recordingReporter struct {
	arrivals []arrival
}

func (r *recordingReporter) OnArrived(average, desired float64) {
	r.arrivals = append(r.arrivals, arrival{average: average, desired: desired})
}

type manualTimer struct {
	pending []func()
}

func (m *manualTimer) AfterFunc(_ time.Duration, fn func()) func() {
	m.pending = append(m.pending, fn)
	return func() {}
}

func (m *manualTimer) fire() {
	fns := m.pending
	m.pending = nil
	for _, fn := range fns {
		fn()
	}
}

type world struct {
	net      *core.Network
	env      *Env
	index    *Index
	reporter *recordingReporter
	agents   []*Agent
}

func newWorld(t *testing.T, n *core.Network) *world {
	t.Helper()
	planner, err := routing.NewPlanner(n)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	w := &world{net: n, index: NewIndex(), reporter: &recordingReporter{}}
	w.env = &Env{
		Network:  n,
		Router:   planner,
		Reporter: w.reporter,
		Traffic:  w.index,
		Rand:     rand.New(rand.NewSource(7)),
		Config:   DefaultConfig(),
	}
	return w
}

func (w *world) spawn(t *testing.T, spawn model.JunctionID, road model.RoadID, lane int, dest *model.JunctionID) *Agent {
	t.Helper()
	a := NewAgent(model.VehicleID(len(w.agents)), w.env)
	if err := a.Initialize(context.Background(), spawn, road, lane, dest); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	w.agents = append(w.agents, a)
	return a
}

func (w *world) step(dt float64) {
	w.index.Rebuild(w.agents)
	for _, a := range w.agents {
		a.Update(context.Background(), dt)
	}
}

func build(t *testing.T, b *core.Builder) *core.Network {
	t.Helper()
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

func junctionID(t *testing.T, n *core.Network, name string) model.JunctionID {
	t.Helper()
	j, ok := n.JunctionByName(name)
	if !ok {
		t.Fatalf("junction %q missing", name)
	}
	return j.ID
}

func ptr[T any](v T) *T { return &v }
