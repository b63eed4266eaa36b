package model

import "fmt"

// JunctionID is an arena handle for a junction in a road network.
type JunctionID int

// RoadID is an arena handle for a road in a road network.
type RoadID int

// VehicleID identifies a live vehicle within one simulation session.
type VehicleID int

const (
	// NoJunction marks an absent junction reference.
	NoJunction JunctionID = -1
	// NoRoad marks an absent road reference, e.g. a non-adjacent pair in
	// the planner's adjacency matrix.
	NoRoad RoadID = -1
)

func (id JunctionID) String() string { return fmt.Sprintf("J%d", int(id)) }
func (id RoadID) String() string     { return fmt.Sprintf("R%d", int(id)) }
func (id VehicleID) String() string  { return fmt.Sprintf("V%d", int(id)) }

// LaneKey identifies one carriageway of a road: the road plus the endpoint
// index (0 or 1) traffic enters from.
type LaneKey struct {
	Road RoadID
	Edge int
}
