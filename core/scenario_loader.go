package core

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/signalsfoundry/traffic-simulator/internal/logging"
)

// MapSummary is a small summary of what was loaded from a map file.
// It's mainly useful for logging from main().
type MapSummary struct {
	JunctionNames []string
	RoadNames     []string
	Exits         int
	Signalized    int
}

// Feature properties understood by LoadMap.
//
// Junctions are Point features:
//
//	{"kind": "joint" | "intersection" | "exit", "name": "J1",
//	 "signal": true, "initial_pattern": "even" | "odd", "yellow_seconds": 2}
//
// Roads are LineString features whose first and last vertices give a rough
// placement; they snap to the nearest junctions when the network is built:
//
//	{"name": "R1", "lanes": 2, "lane_width": 3.5}
const (
	propKind           = "kind"
	propName           = "name"
	propSignal         = "signal"
	propInitialPattern = "initial_pattern"
	propYellowSeconds  = "yellow_seconds"
	propLanes          = "lanes"
	propLaneWidth      = "lane_width"
)

// LoadMap reads a GeoJSON FeatureCollection describing junctions and roads,
// builds the road network and returns it with a summary.
//
// Coordinates are taken as planar metres; no projection is applied.
func LoadMap(r io.Reader, log logging.Logger) (*Network, *MapSummary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadMap: read failed: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadMap: decode failed: %w", err)
	}

	b := NewBuilder(log)
	summary := &MapSummary{}

	// 1) Junctions. Roads snap to them, so they go first.
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		name := f.Properties.MustString(propName, fmt.Sprintf("junction-%d", i))
		opts, err := junctionOptions(f.Properties)
		if err != nil {
			return nil, nil, fmt.Errorf("LoadMap: junction %q: %w", name, err)
		}
		b.AddJunction(name, Vec2{X: p.X(), Y: p.Y()}, opts...)
		summary.JunctionNames = append(summary.JunctionNames, name)
		if strings.EqualFold(f.Properties.MustString(propKind, ""), "exit") {
			summary.Exits++
		}
		if f.Properties.MustBool(propSignal, false) {
			summary.Signalized++
		}
	}

	// 2) Roads
	for i, f := range fc.Features {
		ls, ok := f.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		name := f.Properties.MustString(propName, fmt.Sprintf("road-%d", i))
		if len(ls) < 2 {
			return nil, nil, fmt.Errorf("LoadMap: road %q needs at least two vertices", name)
		}
		from, to := ls[0], ls[len(ls)-1]
		b.AddRoad(name,
			Vec2{X: from.X(), Y: from.Y()},
			Vec2{X: to.X(), Y: to.Y()},
			f.Properties.MustInt(propLanes, 1),
			f.Properties.MustFloat64(propLaneWidth, DefaultLaneWidth),
		)
		summary.RoadNames = append(summary.RoadNames, name)
	}

	n, err := b.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("LoadMap: %w", err)
	}
	return n, summary, nil
}

func junctionOptions(props geojson.Properties) ([]JunctionOption, error) {
	var opts []JunctionOption
	switch kind := strings.ToLower(strings.TrimSpace(props.MustString(propKind, ""))); kind {
	case "exit", "outside":
		opts = append(opts, AsExit())
	case "", "joint", "intersection":
	default:
		return nil, fmt.Errorf("unknown junction kind %q", kind)
	}

	if !props.MustBool(propSignal, false) {
		return opts, nil
	}
	cfg := SignalConfig{
		YellowTime: time.Duration(props.MustFloat64(propYellowSeconds, DefaultYellowTime.Seconds()) * float64(time.Second)),
	}
	switch strings.ToLower(props.MustString(propInitialPattern, "even")) {
	case "even", "":
		cfg.InitialPattern = PatternEven
	case "odd":
		cfg.InitialPattern = PatternOdd
	default:
		return nil, fmt.Errorf("unknown initial pattern %q", props.MustString(propInitialPattern, ""))
	}
	return append(opts, WithSignals(cfg)), nil
}
