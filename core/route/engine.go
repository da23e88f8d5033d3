package route

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

// ErrNoPath is returned when no feasible path around the avoided zones
// exists.
var ErrNoPath = errors.New("route: no feasible path")

// Engine computes a path between two points while avoiding geofenced zones.
// Implementations may call external routing services; DetourEngine is the
// built-in planner and tests use it directly.
type Engine interface {
	Plan(ctx context.Context, origin, dest geo.Point, avoid []model.FlightRestriction) (model.Route, error)
}

// DetourEngine plans routes on a visibility graph: the origin, destination
// and detour vertices ringing each avoided zone become nodes, edges connect
// pairs whose segment crosses no zone, and A* finds the shortest chain.
type DetourEngine struct {
	// CruiseSpeedKmh converts distance into the duration estimate. ETAs
	// are later recomputed per vehicle.
	CruiseSpeedKmh float64
	// RingVertices is the number of detour points placed around each
	// avoided circular zone.
	RingVertices int
	// InflationFactor pushes detour points beyond the zone radius so the
	// sampled legs stay clear.
	InflationFactor float64
}

// NewDetourEngine returns an engine with operational defaults.
func NewDetourEngine(cruiseSpeedKmh float64) *DetourEngine {
	if cruiseSpeedKmh <= 0 {
		cruiseSpeedKmh = 60
	}
	return &DetourEngine{CruiseSpeedKmh: cruiseSpeedKmh, RingVertices: 8, InflationFactor: 1.35}
}

// Plan implements Engine.
func (e *DetourEngine) Plan(ctx context.Context, origin, dest geo.Point, avoid []model.FlightRestriction) (model.Route, error) {
	if err := ctx.Err(); err != nil {
		return model.Route{}, err
	}

	zones := circularZones(avoid)
	if !anyBlocks(zones, origin, dest) {
		return e.finish(origin, dest, nil, avoid), nil
	}

	nodes := []geo.Point{origin, dest}
	for _, z := range zones {
		ring := z
		ring.RadiusKm *= e.InflationFactor
		for i := 0; i < e.RingVertices; i++ {
			bearing := float64(i) * 360 / float64(e.RingVertices)
			nodes = append(nodes, geo.Offset(ring.Center, bearing, ring.RadiusKm))
		}
	}

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := range nodes {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if anyBlocks(zones, nodes[i], nodes[j]) {
				continue
			}
			w := geo.DistanceKm(nodes[i], nodes[j])
			g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(i), T: simple.Node(j), W: w})
		}
	}

	heuristic := func(x, y graph.Node) float64 {
		return geo.DistanceKm(nodes[x.ID()], nodes[y.ID()])
	}
	shortest, _ := path.AStar(simple.Node(0), simple.Node(1), g, heuristic)
	p, _ := shortest.To(1)
	if len(p) < 2 {
		return model.Route{}, fmt.Errorf("%w: %d zones in the way", ErrNoPath, len(zones))
	}

	var waypoints []geo.Point
	for _, n := range p[1 : len(p)-1] {
		waypoints = append(waypoints, nodes[n.ID()])
	}
	return e.finish(origin, dest, waypoints, avoid), nil
}

func (e *DetourEngine) finish(origin, dest geo.Point, waypoints []geo.Point, avoid []model.FlightRestriction) model.Route {
	r := model.Route{Origin: origin, Destination: dest, Waypoints: waypoints}
	for _, fr := range avoid {
		r.RestrictionIDs = append(r.RestrictionIDs, fr.ID)
	}
	r.DistanceKm = r.Leg()
	r.Duration = time.Duration(r.DistanceKm / e.CruiseSpeedKmh * float64(time.Hour))
	return r
}

// circularZones reduces restrictions to circles usable as graph obstacles.
// Polygon restrictions are wrapped in their bounding circle.
func circularZones(frs []model.FlightRestriction) []geo.Circle {
	var zones []geo.Circle
	for _, fr := range frs {
		switch {
		case fr.Zone != nil:
			zones = append(zones, *fr.Zone)
		case len(fr.Polygon) >= 3:
			zones = append(zones, boundingCircle(fr.Polygon))
		}
	}
	return zones
}

func boundingCircle(pg geo.Polygon) geo.Circle {
	var c geo.Point
	for _, p := range pg {
		c.Lat += p.Lat
		c.Lon += p.Lon
	}
	c.Lat /= float64(len(pg))
	c.Lon /= float64(len(pg))
	var r float64
	for _, p := range pg {
		if d := geo.DistanceKm(c, p); d > r {
			r = d
		}
	}
	return geo.Circle{Center: c, RadiusKm: r}
}

func anyBlocks(zones []geo.Circle, a, b geo.Point) bool {
	for _, z := range zones {
		if geo.SegmentIntersectsCircle(a, b, z) {
			return true
		}
	}
	return false
}
