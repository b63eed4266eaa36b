package model

// LightColor is the aspect shown by a traffic light.
type LightColor int

const (
	LightGreen LightColor = iota
	LightYellow
	LightRed
)

func (c LightColor) String() string {
	switch c {
	case LightGreen:
		return "green"
	case LightYellow:
		return "yellow"
	case LightRed:
		return "red"
	default:
		return "unknown"
	}
}

// VehicleState is the phase of a vehicle's driving state machine.
type VehicleState int

const (
	// RunningRoad follows a straight lane line.
	RunningRoad VehicleState = iota
	// RunningJoint follows a circular arc through a junction.
	RunningJoint
	// ChangingLane blends from one lane line onto a parallel one.
	ChangingLane
	// Arrived is terminal; the vehicle has reported and awaits removal.
	Arrived
)

func (s VehicleState) String() string {
	switch s {
	case RunningRoad:
		return "running_road"
	case RunningJoint:
		return "running_joint"
	case ChangingLane:
		return "changing_lane"
	case Arrived:
		return "arrived"
	default:
		return "unknown"
	}
}
