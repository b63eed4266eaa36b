package vehicle

import (
	"sort"

	"github.com/signalsfoundry/traffic-simulator/model"
)

// Index answers "who is around" queries without a physics engine: vehicles
// are bucketed per road and entry edge, ordered by distance along the
// lane, and turning vehicles are also listed under their junction. It is
// rebuilt once per tick.
type Index struct {
	lanes     map[model.LaneKey][]*Agent
	junctions map[model.JunctionID][]*Agent
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		lanes:     make(map[model.LaneKey][]*Agent),
		junctions: make(map[model.JunctionID][]*Agent),
	}
}

// Rebuild replaces the index contents with agents. Arrived and
// uninitialized agents are skipped.
func (ix *Index) Rebuild(agents []*Agent) {
	for k := range ix.lanes {
		delete(ix.lanes, k)
	}
	for k := range ix.junctions {
		delete(ix.junctions, k)
	}
	for _, a := range agents {
		if a == nil || !a.initialized || a.state == model.Arrived {
			continue
		}
		key := a.Key()
		ix.lanes[key] = append(ix.lanes[key], a)
		if j, ok := a.Junction(); ok {
			ix.junctions[j] = append(ix.junctions[j], a)
		}
	}
	for _, list := range ix.lanes {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].distance < list[j].distance
		})
	}
}

// OnLane implements Traffic.
func (ix *Index) OnLane(key model.LaneKey) []*Agent { return ix.lanes[key] }

// AtJunction implements Traffic.
func (ix *Index) AtJunction(j model.JunctionID) []*Agent { return ix.junctions[j] }

// Tail returns the vehicle closest to the entry of lane on key, if any.
func (ix *Index) Tail(key model.LaneKey, lane int) (*Agent, bool) {
	for _, a := range ix.lanes[key] {
		if a.lane == lane {
			return a, true
		}
	}
	return nil, false
}
