package vehicle

import (
	"testing"

	"github.com/signalsfoundry/traffic-simulator/core"
	"github.com/signalsfoundry/traffic-simulator/model"
)

func TestIndexOrdersLanesAndListsTurningVehicles(t *testing.T) {
	road := &core.Road{ID: 4, Lanes: 2}
	mk := func(id model.VehicleID, lane int, distance float64) *Agent {
		return &Agent{id: id, initialized: true, state: model.RunningRoad, road: road, lane: lane, distance: distance}
	}
	far := mk(1, 0, 80)
	near := mk(2, 1, 10)
	mid := mk(3, 0, 40)
	turning := mk(4, 0, 95)
	turning.state = model.RunningJoint
	turning.curve.Junction = 9
	gone := mk(5, 0, 0)
	gone.state = model.Arrived
	fresh := &Agent{id: 6}

	ix := NewIndex()
	ix.Rebuild([]*Agent{far, near, mid, turning, gone, fresh})

	got := ix.OnLane(model.LaneKey{Road: 4, Edge: 0})
	want := []*Agent{near, mid, far, turning}
	if len(got) != len(want) {
		t.Fatalf("lane holds %d vehicles, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d = %v, want %v", i, got[i].ID(), want[i].ID())
		}
	}
	if at := ix.AtJunction(9); len(at) != 1 || at[0] != turning {
		t.Fatalf("junction 9 lists %v", at)
	}

	if tail, ok := ix.Tail(model.LaneKey{Road: 4}, 0); !ok || tail != mid {
		t.Fatalf("tail of lane 0 = %v, want vehicle 3", tail)
	}
	if tail, ok := ix.Tail(model.LaneKey{Road: 4}, 1); !ok || tail != near {
		t.Fatalf("tail of lane 1 = %v, want vehicle 2", tail)
	}
	if _, ok := ix.Tail(model.LaneKey{Road: 4, Edge: 1}, 0); ok {
		t.Fatalf("opposite carriageway should be empty")
	}

	ix.Rebuild(nil)
	if len(ix.OnLane(model.LaneKey{Road: 4})) != 0 || len(ix.AtJunction(9)) != 0 {
		t.Fatalf("rebuild did not clear the index")
	}
}
