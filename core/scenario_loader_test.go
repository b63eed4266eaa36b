package core

import (
	"strings"
	"testing"
)

const testMap = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
     "properties": {"kind": "intersection", "name": "Centre", "signal": true, "initial_pattern": "odd", "yellow_seconds": 3}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-120, 0]},
     "properties": {"kind": "exit", "name": "West"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 80]},
     "properties": {"kind": "exit", "name": "North"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [90, 0]},
     "properties": {"name": "Bend"}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[-118, 2], [-40, 1], [1, -1]]},
     "properties": {"name": "West Ave", "lanes": 2}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 2], [0, 79]]},
     "properties": {"name": "North St", "lanes": 1, "lane_width": 3}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[2, 0], [88, 0]]},
     "properties": {"name": "East Rd"}}
  ]
}`

func TestLoadMap(t *testing.T) {
	n, summary, err := LoadMap(strings.NewReader(testMap), nil)
	if err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	if len(n.Junctions()) != 4 || len(n.Roads()) != 3 {
		t.Fatalf("loaded %d junctions %d roads", len(n.Junctions()), len(n.Roads()))
	}
	if summary.Exits != 2 || summary.Signalized != 1 || len(summary.RoadNames) != 3 {
		t.Fatalf("summary = %+v", summary)
	}

	centre, ok := n.JunctionByName("Centre")
	if !ok || !centre.Signalized() || centre.Exit {
		t.Fatalf("centre = %+v, %v", centre, ok)
	}
	if west, _ := n.JunctionByName("West"); !west.Exit {
		t.Fatalf("West should be an exit")
	}
	if bend, _ := n.JunctionByName("Bend"); bend.Exit || bend.Signalized() {
		t.Fatalf("Bend should be a plain joint")
	}

	west := n.Road(0)
	if west.Lanes != 2 || west.LaneWidth != DefaultLaneWidth || !near(west.Length, 120) {
		t.Fatalf("West Ave = lanes %d width %v length %v", west.Lanes, west.LaneWidth, west.Length)
	}
	north := n.Road(1)
	if north.Lanes != 1 || north.LaneWidth != 3 || !near(north.Length, 80) {
		t.Fatalf("North St = lanes %d width %v length %v", north.Lanes, north.LaneWidth, north.Length)
	}
	if len(centre.Roads()) != 3 {
		t.Fatalf("centre roads = %v", centre.Roads())
	}
}

func TestLoadMapErrors(t *testing.T) {
	cases := map[string]string{
		"bad json": `{"type": "FeatureCollection", "features": [`,
		"unknown kind": `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {"kind": "roundabout"}}]}`,
		"unknown pattern": `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {"signal": true, "initial_pattern": "diagonal"}}]}`,
		"road without junctions": `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 0], [10, 0]]}, "properties": {}}]}`,
		"three lanes": `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {}},
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [10, 0]}, "properties": {}},
			{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 0], [10, 0]]}, "properties": {"lanes": 3}}]}`,
	}
	for name, data := range cases {
		if _, _, err := LoadMap(strings.NewReader(data), nil); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}
