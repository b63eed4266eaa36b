package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/model"
)

var (
	// ErrNoJunction indicates a road end could not be attached to any junction.
	ErrNoJunction = errors.New("no junction to attach road to")
	// ErrDegenerateRoad indicates both ends of a road snapped to the same junction.
	ErrDegenerateRoad = errors.New("road endpoints snap to the same junction")
	// ErrUnsupportedLanes indicates a lane count other than 1 or 2.
	ErrUnsupportedLanes = errors.New("unsupported lane count")
	// ErrJunctionNotFound indicates an unknown junction handle.
	ErrJunctionNotFound = errors.New("junction not found")
	// ErrRoadNotFound indicates an unknown road handle.
	ErrRoadNotFound = errors.New("road not found")
)

// MaxLanes is the largest per-direction lane count the agents can drive.
const MaxLanes = 2

// DefaultLaneWidth is used when a road is added with a non-positive width.
const DefaultLaneWidth = 3.5

// Junction is a graph node joining two or more roads. A junction is a plain
// joint unless it is flagged as a map exit or carries a signal coordinator.
type Junction struct {
	ID       model.JunctionID
	Name     string
	Position Vec2
	// Exit marks a connection to the world outside the map; vehicles spawn
	// and leave here.
	Exit bool
	// Signal is set once signals are installed on a signalised intersection.
	Signal *SignalCoordinator

	signalCfg *SignalConfig
	roads     []model.RoadID
	edges     map[model.RoadID]int
	sorted    bool
}

// Roads returns the incident roads ordered by ascending angle, counter-clockwise
// from +x around the junction.
func (j *Junction) Roads() []model.RoadID {
	out := make([]model.RoadID, len(j.roads))
	copy(out, j.roads)
	return out
}

// EdgeOf returns which endpoint of road touches this junction.
func (j *Junction) EdgeOf(road model.RoadID) (int, bool) {
	e, ok := j.edges[road]
	return e, ok
}

// IndexOf returns the position of road in the junction's angular order, or -1.
func (j *Junction) IndexOf(road model.RoadID) int {
	for i, r := range j.roads {
		if r == road {
			return i
		}
	}
	return -1
}

// Signalized reports whether the junction was configured with traffic lights.
func (j *Junction) Signalized() bool { return j.signalCfg != nil }

func (j *Junction) register(road model.RoadID, edge int) {
	j.roads = append(j.roads, road)
	j.edges[road] = edge
}

// Road is an edge between two junctions carrying Lanes lanes in each
// direction. Index 0 of every per-edge array describes travel from edge 0
// towards edge 1; index 1 the reverse. Traffic keeps left: lane 0 is the
// curb lane, lane Lanes-1 runs along the centre line.
type Road struct {
	ID        model.RoadID
	Name      string
	Junctions [2]model.JunctionID
	Edges     [2]Vec2
	Along     [2]Vec2
	Corners   [2]Vec2
	Lanes     int
	LaneWidth float64

	// Center, Length and Heading describe the pose the road settled in
	// after snapping to its junctions.
	Center  Vec2
	Length  float64
	Heading float64

	lights      [2]*TrafficLight
	placed      [2]Vec2
	initialized bool
}

// Initialized reports whether the road has snapped to its junctions.
func (r *Road) Initialized() bool { return r.initialized }

// EdgeOf returns the endpoint index at junction j, or -1.
func (r *Road) EdgeOf(j model.JunctionID) int {
	switch j {
	case r.Junctions[0]:
		return 0
	case r.Junctions[1]:
		return 1
	default:
		return -1
	}
}

// OtherEnd returns the junction opposite j, or model.NoJunction if j is not
// an endpoint of the road.
func (r *Road) OtherEnd(j model.JunctionID) model.JunctionID {
	switch j {
	case r.Junctions[0]:
		return r.Junctions[1]
	case r.Junctions[1]:
		return r.Junctions[0]
	default:
		return model.NoJunction
	}
}

// OtherEdge maps endpoint index 0 to 1 and 1 to 0.
func OtherEdge(edge int) int { return 1 - edge }

// Direction returns the unit travel direction for traffic entering at edge.
func (r *Road) Direction(edge int) Vec2 { return r.Along[edge].Normalized() }

// laneStep is the vector from the curb corner towards the centre line
// spanning exactly one lane.
func (r *Road) laneStep(edge int) Vec2 {
	return r.Edges[edge].Sub(r.Corners[edge]).Scale(1 / float64(r.Lanes))
}

// LeftPoint returns the left boundary of lane at the edge's end of the road.
func (r *Road) LeftPoint(edge, lane int) Vec2 {
	return r.Corners[edge].Add(r.laneStep(edge).Scale(float64(lane)))
}

// RightPoint returns the right boundary of lane at the edge's end of the road.
func (r *Road) RightPoint(edge, lane int) Vec2 {
	return r.Corners[edge].Add(r.laneStep(edge).Scale(float64(lane + 1)))
}

// StartPoint returns where a vehicle entering at edge in lane starts.
func (r *Road) StartPoint(edge, lane int) Vec2 {
	return r.Corners[edge].Add(r.laneStep(edge).Scale(float64(lane) + 0.5))
}

// Light returns the latent traffic light at edge. It is only meaningful when
// Active reports true.
func (r *Road) Light(edge int) *TrafficLight { return r.lights[edge] }

// activateLight wakes the light at edge for a signalised junction.
func (r *Road) activateLight(edge int) *TrafficLight {
	r.lights[edge].active = true
	return r.lights[edge]
}

// Network is the arena owning every junction and road of a map. After Build
// it is immutable apart from signal state.
type Network struct {
	junctions []*Junction
	roads     []*Road
	ready     bool
}

// Junction returns the junction with the given handle, or nil.
func (n *Network) Junction(id model.JunctionID) *Junction {
	if id < 0 || int(id) >= len(n.junctions) {
		return nil
	}
	return n.junctions[id]
}

// Road returns the road with the given handle, or nil.
func (n *Network) Road(id model.RoadID) *Road {
	if id < 0 || int(id) >= len(n.roads) {
		return nil
	}
	return n.roads[id]
}

// Junctions returns every junction in handle order.
func (n *Network) Junctions() []*Junction { return n.junctions }

// Roads returns every road in handle order.
func (n *Network) Roads() []*Road { return n.roads }

// Ready reports whether every road is initialized and junction orderings
// are fixed.
func (n *Network) Ready() bool { return n.ready }

// JunctionByName looks a junction up by its configured name.
func (n *Network) JunctionByName(name string) (*Junction, bool) {
	for _, j := range n.junctions {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// ExitJunctions returns the handles of all map exits.
func (n *Network) ExitJunctions() []model.JunctionID {
	var out []model.JunctionID
	for _, j := range n.junctions {
		if j.Exit {
			out = append(out, j.ID)
		}
	}
	return out
}

// OtherEnd returns the junction at the far end of road from j.
func (n *Network) OtherEnd(road model.RoadID, j model.JunctionID) (model.JunctionID, error) {
	r := n.Road(road)
	if r == nil {
		return model.NoJunction, fmt.Errorf("%w: %v", ErrRoadNotFound, road)
	}
	other := r.OtherEnd(j)
	if other == model.NoJunction {
		return model.NoJunction, fmt.Errorf("junction %v is not an end of road %v", j, road)
	}
	return other, nil
}

// ActiveLight returns the activated light facing the junction at road's
// edge, if any.
func (n *Network) ActiveLight(road model.RoadID, edge int) (*TrafficLight, bool) {
	r := n.Road(road)
	if r == nil || edge < 0 || edge > 1 {
		return nil, false
	}
	l := r.lights[edge]
	if l == nil || !l.active {
		return nil, false
	}
	return l, true
}

// InstallSignals creates and registers a coordinator on every junction that
// was configured with signals. It must run after Build.
func (n *Network) InstallSignals(clock Timer, log logging.Logger) error {
	if !n.ready {
		return errors.New("install signals: network not ready")
	}
	for _, j := range n.junctions {
		if j.signalCfg == nil || j.Signal != nil {
			continue
		}
		coord := NewSignalCoordinator(*j.signalCfg, clock, log.With(logging.String("junction", j.Name)))
		if err := coord.Register(n, j); err != nil {
			return fmt.Errorf("junction %q: %w", j.Name, err)
		}
		j.Signal = coord
	}
	return nil
}

// JunctionOption customises a junction added to a Builder.
type JunctionOption func(*Junction)

// AsExit marks the junction as a map exit.
func AsExit() JunctionOption {
	return func(j *Junction) { j.Exit = true }
}

// WithSignals equips the junction with a signal coordinator at install time.
func WithSignals(cfg SignalConfig) JunctionOption {
	return func(j *Junction) {
		c := cfg
		j.signalCfg = &c
	}
}

// Builder collects pre-placed junctions and roads and connects them.
type Builder struct {
	junctions []*Junction
	roads     []*Road
	log       logging.Logger
}

// NewBuilder returns an empty builder.
func NewBuilder(log logging.Logger) *Builder {
	if log == nil {
		log = logging.Noop()
	}
	return &Builder{log: log}
}

// AddJunction places a junction at pos.
func (b *Builder) AddJunction(name string, pos Vec2, opts ...JunctionOption) model.JunctionID {
	j := &Junction{
		ID:       model.JunctionID(len(b.junctions)),
		Name:     name,
		Position: pos,
		edges:    make(map[model.RoadID]int),
	}
	for _, opt := range opts {
		opt(j)
	}
	b.junctions = append(b.junctions, j)
	return j.ID
}

// AddRoad places a road roughly between from and to. Its true pose is
// decided by the junctions nearest to those points during Build.
func (b *Builder) AddRoad(name string, from, to Vec2, lanes int, laneWidth float64) model.RoadID {
	if laneWidth <= 0 {
		laneWidth = DefaultLaneWidth
	}
	r := &Road{
		ID:        model.RoadID(len(b.roads)),
		Name:      name,
		Lanes:     lanes,
		LaneWidth: laneWidth,
		placed:    [2]Vec2{from, to},
		Junctions: [2]model.JunctionID{model.NoJunction, model.NoJunction},
	}
	r.lights[0] = newTrafficLight()
	r.lights[1] = newTrafficLight()
	b.roads = append(b.roads, r)
	return r.ID
}

// Build snaps every road onto its nearest junctions, derives lane geometry
// and fixes each junction's angular road order.
func (b *Builder) Build() (*Network, error) {
	for _, r := range b.roads {
		if r.Lanes < 1 || r.Lanes > MaxLanes {
			return nil, fmt.Errorf("road %q: %w: %d", r.Name, ErrUnsupportedLanes, r.Lanes)
		}
		if err := b.connect(r); err != nil {
			return nil, fmt.Errorf("road %q: %w", r.Name, err)
		}
	}

	n := &Network{junctions: b.junctions, roads: b.roads}
	for _, r := range n.roads {
		if !r.initialized {
			return nil, fmt.Errorf("road %q was not initialized", r.Name)
		}
	}
	for _, j := range n.junctions {
		arrangeRoads(n, j)
	}
	n.ready = true

	b.log.Info(context.Background(), "road network ready",
		logging.Int("junctions", len(n.junctions)),
		logging.Int("roads", len(n.roads)),
		logging.Int("exits", len(n.ExitJunctions())),
	)
	return n, nil
}

// connect attaches both ends of r to their nearest junctions and re-poses
// the road between them.
func (b *Builder) connect(r *Road) error {
	for edge := 0; edge < 2; edge++ {
		j := b.nearestJunction(r.placed[edge])
		if j == nil {
			return ErrNoJunction
		}
		r.Junctions[edge] = j.ID
	}
	if r.Junctions[0] == r.Junctions[1] {
		return ErrDegenerateRoad
	}
	for edge := 0; edge < 2; edge++ {
		b.junctions[r.Junctions[edge]].register(r.ID, edge)
	}
	repose(r, b.junctions[r.Junctions[0]].Position, b.junctions[r.Junctions[1]].Position)
	return nil
}

func (b *Builder) nearestJunction(p Vec2) *Junction {
	var nearest *Junction
	minDist := math.MaxFloat64
	for _, j := range b.junctions {
		if d := p.DistanceTo(j.Position); d < minDist {
			nearest = j
			minDist = d
		}
	}
	return nearest
}

// repose moves the road to the midpoint of its junctions, stretches it to
// their true distance and aligns it with them, then derives lane geometry.
func repose(r *Road, p0, p1 Vec2) {
	r.Center = p0.Add(p1).Scale(0.5)
	r.Length = p0.DistanceTo(p1)
	r.Heading = Angle(p1.Sub(p0))

	r.Edges = [2]Vec2{p0, p1}
	r.Along[0] = p1.Sub(p0)
	r.Along[1] = r.Along[0].Neg()

	carriageway := r.LaneWidth * float64(r.Lanes)
	for edge := 0; edge < 2; edge++ {
		left := r.Along[edge].Normalized().Rotate(90)
		r.Corners[edge] = r.Edges[edge].Add(left.Scale(carriageway))
	}
	r.initialized = true
}

// arrangeRoads sorts the junction's roads by the angle at which they leave
// it. It runs once; later calls are no-ops so the order never changes.
func arrangeRoads(n *Network, j *Junction) {
	if j.sorted {
		return
	}
	angle := func(id model.RoadID) float64 {
		r := n.roads[id]
		return Angle(r.Along[j.edges[id]])
	}
	sort.SliceStable(j.roads, func(a, b int) bool {
		return angle(j.roads[a]) < angle(j.roads[b])
	})
	j.sorted = true
}
