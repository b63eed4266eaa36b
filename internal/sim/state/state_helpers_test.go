package state

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/model"
)

// corridor builds W - C - E along the x axis with single-lane roads. C is
// signalised when signals is true.
func corridor(t *testing.T, signals bool) *core.Network {
	t.Helper()
	b := core.NewBuilder(nil)
	b.AddJunction("W", core.Vec2{X: -100, Y: 0}, core.AsExit())
	var opts []core.JunctionOption
	if signals {
		opts = append(opts, core.WithSignals(core.SignalConfig{InitialPattern: core.PatternEven, YellowTime: time.Second}))
	}
	b.AddJunction("C", core.Vec2{X: 0, Y: 0}, opts...)
	b.AddJunction("E", core.Vec2{X: 100, Y: 0}, core.AsExit())
	b.AddRoad("WC", core.Vec2{X: -100, Y: 0}, core.Vec2{X: 0, Y: 0}, 1, 0)
	b.AddRoad("CE", core.Vec2{X: 0, Y: 0}, core.Vec2{X: 100, Y: 0}, 1, 0)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

func junction(t *testing.T, n *core.Network, name string) model.JunctionID {
	t.Helper()
	j, ok := n.JunctionByName(name)
	if !ok {
		t.Fatalf("junction %q missing", name)
	}
	return j.ID
}

func road(t *testing.T, n *core.Network, name string) model.RoadID {
	t.Helper()
	for _, r := range n.Roads() {
		if r.Name == name {
			return r.ID
		}
	}
	t.Fatalf("road %q missing", name)
	return model.NoRoad
}

func newTestSimulation(t *testing.T, n *core.Network, opts ...Option) *Simulation {
	t.Helper()
	s, err := New(context.Background(), n, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// stepUntil steps s until done reports true or maxTicks pass.
func stepUntil(t *testing.T, s *Simulation, dt float64, maxTicks int, done func() bool) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		s.Step(context.Background(), dt)
		if done() {
			return
		}
	}
	t.Fatalf("condition not met within %d ticks", maxTicks)
}

type scoreRecorder struct {
	averages []float64
}

func (r *scoreRecorder) OnArrived(average, _ float64) {
	r.averages = append(r.averages, average)
}
