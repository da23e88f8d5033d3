package route

import (
	"context"
	"errors"
	"testing"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

var (
	origin = geo.Point{Lat: 48.80, Lon: 2.0}
	dest   = geo.Point{Lat: 48.80, Lon: 3.0}
	onPath = geo.Point{Lat: 48.80, Lon: 2.5}
)

func restriction(id string, c geo.Circle) model.FlightRestriction {
	return model.FlightRestriction{ID: id, Severity: model.SeverityProhibited, Zone: &c}
}

func TestPlanDirectWhenClear(t *testing.T) {
	e := NewDetourEngine(60)
	r, err := e.Plan(context.Background(), origin, dest, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(r.Waypoints) != 0 {
		t.Fatalf("clear sky should go direct, got waypoints %v", r.Waypoints)
	}
	direct := geo.DistanceKm(origin, dest)
	if r.DistanceKm < direct*0.99 || r.DistanceKm > direct*1.01 {
		t.Errorf("direct distance %f, want ~%f", r.DistanceKm, direct)
	}
	if r.Duration <= 0 {
		t.Error("duration must be positive")
	}
}

func TestPlanDetoursAroundZone(t *testing.T) {
	e := NewDetourEngine(60)
	avoid := []model.FlightRestriction{restriction("nfz-1", geo.Circle{Center: onPath, RadiusKm: 8})}
	r, err := e.Plan(context.Background(), origin, dest, avoid)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(r.Waypoints) == 0 {
		t.Fatal("obstructed path must produce detour waypoints")
	}
	// Every leg of the detour must stay clear of the zone.
	pts := append([]geo.Point{r.Origin}, r.Waypoints...)
	pts = append(pts, r.Destination)
	zone := geo.Circle{Center: onPath, RadiusKm: 8}
	for i := 1; i < len(pts); i++ {
		if geo.SegmentIntersectsCircle(pts[i-1], pts[i], zone) {
			t.Fatalf("leg %d crosses the avoided zone", i)
		}
	}
	if r.DistanceKm <= geo.DistanceKm(origin, dest) {
		t.Error("detour must be longer than the direct line")
	}
	if len(r.RestrictionIDs) != 1 || r.RestrictionIDs[0] != "nfz-1" {
		t.Errorf("considered restrictions not recorded: %v", r.RestrictionIDs)
	}
}

func TestPlanNoPath(t *testing.T) {
	e := NewDetourEngine(60)
	// The zone swallows the origin: every edge out of it is blocked.
	avoid := []model.FlightRestriction{restriction("nfz-1", geo.Circle{Center: origin, RadiusKm: 10})}
	_, err := e.Plan(context.Background(), origin, dest, avoid)
	if !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
}

func TestPlanPolygonZone(t *testing.T) {
	e := NewDetourEngine(60)
	avoid := []model.FlightRestriction{{
		ID:       "poly-1",
		Severity: model.SeverityProhibited,
		Polygon: geo.Polygon{
			{Lat: 48.75, Lon: 2.45},
			{Lat: 48.75, Lon: 2.55},
			{Lat: 48.85, Lon: 2.55},
			{Lat: 48.85, Lon: 2.45},
		},
	}}
	r, err := e.Plan(context.Background(), origin, dest, avoid)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(r.Waypoints) == 0 {
		t.Fatal("polygon zone on the path must force a detour")
	}
}

func TestPlanCanceledContext(t *testing.T) {
	e := NewDetourEngine(60)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Plan(ctx, origin, dest, nil); err == nil {
		t.Fatal("canceled context must abort planning")
	}
}

func TestOptimizeAlternateOnDetour(t *testing.T) {
	o := NewOptimizer(NewDetourEngine(60))
	avoid := []model.FlightRestriction{restriction("nfz-1", geo.Circle{Center: onPath, RadiusKm: 8})}
	r, err := o.Optimize(context.Background(), origin, dest, avoid, model.WeatherSnapshot{Risk: model.RiskLow})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(r.Alternates) == 0 {
		t.Fatal("obstructed primary must carry an alternate")
	}
	alt := r.Alternates[0]
	if alt.Origin != origin || alt.Destination != dest || len(alt.Waypoints) == 0 {
		t.Fatalf("alternate malformed: %+v", alt)
	}
}

func TestOptimizeAlternateOnRiskyWeather(t *testing.T) {
	o := NewOptimizer(NewDetourEngine(60))
	r, err := o.Optimize(context.Background(), origin, dest, nil, model.WeatherSnapshot{Risk: model.RiskHigh})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(r.Waypoints) != 0 {
		t.Fatalf("primary should stay direct, got %v", r.Waypoints)
	}
	if len(r.Alternates) == 0 {
		t.Fatal("high weather risk must force an alternate corridor")
	}
}

func TestOptimizeNoAlternateWhenClear(t *testing.T) {
	o := NewOptimizer(NewDetourEngine(60))
	r, err := o.Optimize(context.Background(), origin, dest, nil, model.WeatherSnapshot{Risk: model.RiskLow})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(r.Alternates) != 0 {
		t.Fatalf("clear direct route needs no alternate, got %d", len(r.Alternates))
	}
}
