package vehicle

import (
	"fmt"
	"math/rand"

	"github.com/signalsfoundry/traffic-simulator/core"
)

// SelectLane picks the lane to drive on road before leaving it at junction
// j onto out. A nil out means road ends the trip.
//
// Single-lane roads always use lane 0. On two-lane roads a turn to the
// driver's left, which is the road just before road in j's
// counter-clockwise order, uses the curb lane 0; every other exit uses lane
// 1. A trip ending on road picks either lane at random.
func SelectLane(road *core.Road, j *core.Junction, out *core.Road, rng *rand.Rand) (int, error) {
	switch road.Lanes {
	case 1:
		return 0, nil
	case 2:
	default:
		return 0, fmt.Errorf("road %q: %w: %d", road.Name, core.ErrUnsupportedLanes, road.Lanes)
	}
	if out == nil {
		return rng.Intn(2), nil
	}

	roads := j.Roads()
	in := j.IndexOf(road.ID)
	if in < 0 || j.IndexOf(out.ID) < 0 {
		return 0, fmt.Errorf("roads %q and %q do not meet at junction %q", road.Name, out.Name, j.Name)
	}
	if roads[(in-1+len(roads))%len(roads)] == out.ID {
		return 0, nil
	}
	return 1, nil
}
