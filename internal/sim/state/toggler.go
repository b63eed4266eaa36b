package state

import (
	"context"
	"time"

	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/model"
)

// Toggler requests a signal change at every signalised junction once per
// period. Commands use it in place of a player.
type Toggler struct {
	sim    *Simulation
	period time.Duration
	since  time.Duration
}

// NewToggler returns a toggler for sim. A non-positive period disables it.
func NewToggler(sim *Simulation, period time.Duration) *Toggler {
	return &Toggler{sim: sim, period: period}
}

// Advance adds dt to the toggler's timer and, once the period has passed,
// queues a toggle at each signalised junction. It returns the number of
// requests queued.
func (t *Toggler) Advance(ctx context.Context, dt time.Duration) int {
	if t == nil || t.period <= 0 {
		return 0
	}
	t.since += dt
	if t.since < t.period {
		return 0
	}
	t.since -= t.period

	queued := 0
	for _, id := range t.junctions() {
		if err := t.sim.RequestToggle(id); err != nil {
			t.sim.log.Warn(ctx, "periodic toggle failed", logging.Int("junction", int(id)), logging.Err(err))
			continue
		}
		queued++
	}
	return queued
}

func (t *Toggler) junctions() []model.JunctionID {
	var out []model.JunctionID
	for _, j := range t.sim.network.Junctions() {
		if j.Signalized() {
			out = append(out, j.ID)
		}
	}
	return out
}
