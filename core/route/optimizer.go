package route

import (
	"context"
	"fmt"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

// Optimizer produces the primary route for a dispatch plus at least one
// alternate whenever the direct path crosses a restriction or a high-risk
// weather cell.
type Optimizer struct {
	engine Engine
}

// NewOptimizer wraps an engine.
func NewOptimizer(engine Engine) *Optimizer {
	return &Optimizer{engine: engine}
}

// Optimize plans origin -> dest. avoid lists the restrictions the route must
// not cross (prohibited zones without an approved clearance); weather is the
// snapshot backing the dispatch decision.
func (o *Optimizer) Optimize(ctx context.Context, origin, dest geo.Point, avoid []model.FlightRestriction, weather model.WeatherSnapshot) (model.Route, error) {
	primary, err := o.engine.Plan(ctx, origin, dest, avoid)
	if err != nil {
		return model.Route{}, fmt.Errorf("plan primary: %w", err)
	}

	// An alternate is mandatory when the direct line is obstructed or the
	// weather cell is risky: the dispatcher may need a ground-level or
	// offset option mid-flight.
	needAlternate := len(primary.Waypoints) > 0 || weather.Risk >= model.RiskHigh
	if needAlternate {
		if alt, err := o.alternate(ctx, origin, dest, avoid); err == nil {
			primary.Alternates = append(primary.Alternates, alt)
		}
	}
	return primary, nil
}

// alternate plans a dogleg through a midpoint offset perpendicular to the
// direct bearing, giving a physically distinct corridor.
func (o *Optimizer) alternate(ctx context.Context, origin, dest geo.Point, avoid []model.FlightRestriction) (model.Route, error) {
	mid := geo.Point{
		Lat: (origin.Lat + dest.Lat) / 2,
		Lon: (origin.Lon + dest.Lon) / 2,
	}
	offset := geo.Offset(mid, geo.BearingDeg(origin, dest)+90, geo.DistanceKm(origin, dest)*0.25)

	first, err := o.engine.Plan(ctx, origin, offset, avoid)
	if err != nil {
		return model.Route{}, err
	}
	second, err := o.engine.Plan(ctx, offset, dest, avoid)
	if err != nil {
		return model.Route{}, err
	}

	alt := model.Route{Origin: origin, Destination: dest}
	alt.Waypoints = append(alt.Waypoints, first.Waypoints...)
	alt.Waypoints = append(alt.Waypoints, offset)
	alt.Waypoints = append(alt.Waypoints, second.Waypoints...)
	alt.RestrictionIDs = first.RestrictionIDs
	alt.DistanceKm = alt.Leg()
	alt.Duration = first.Duration + second.Duration
	return alt, nil
}
