package weather

import (
	"context"
	"testing"
	"time"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

type fakeProvider struct {
	current model.Conditions
	hourly  []model.HourlyForecast
	calls   int
	err     error
}

func (f *fakeProvider) Fetch(_ context.Context, _ geo.Point) (model.Conditions, []model.HourlyForecast, error) {
	f.calls++
	return f.current, f.hourly, f.err
}

var clear = model.Conditions{WindSpeedKmh: 10, VisibilityKm: 10, PrecipitationMm: 0, CloudCoverPct: 20}

func TestSnapshotSuitable(t *testing.T) {
	p := &fakeProvider{current: clear}
	a := NewAdvisory(p, Thresholds{}, 0)
	snap, err := a.Snapshot(context.Background(), geo.Point{Lat: 48.85, Lon: 2.35})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Suitable || snap.Risk != model.RiskLow || len(snap.Restrictions) != 0 {
		t.Fatalf("clear conditions should be suitable, got %+v", snap)
	}
	if snap.FetchedAt.IsZero() {
		t.Error("FetchedAt must be stamped")
	}
}

func TestSnapshotVerdicts(t *testing.T) {
	cases := []struct {
		name     string
		c        model.Conditions
		suitable bool
		risk     model.RiskLevel
	}{
		{"high wind", model.Conditions{WindSpeedKmh: 55, VisibilityKm: 10}, false, model.RiskHigh},
		{"fog and rain", model.Conditions{WindSpeedKmh: 10, VisibilityKm: 0.5, PrecipitationMm: 8}, false, model.RiskSevere},
		{"borderline wind", model.Conditions{WindSpeedKmh: 35, VisibilityKm: 10}, true, model.RiskModerate},
	}
	for _, tc := range cases {
		a := NewAdvisory(&fakeProvider{current: tc.c}, Thresholds{}, 0)
		snap, err := a.Snapshot(context.Background(), geo.Point{})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if snap.Suitable != tc.suitable || snap.Risk != tc.risk {
			t.Errorf("%s: suitable=%v risk=%s, want suitable=%v risk=%s", tc.name, snap.Suitable, snap.Risk, tc.suitable, tc.risk)
		}
	}
}

func TestSnapshotCachedWithinFreshness(t *testing.T) {
	p := &fakeProvider{current: clear}
	a := NewAdvisory(p, Thresholds{}, 15*time.Minute)
	now := time.Now()
	a.SetClock(func() time.Time { return now })

	at := geo.Point{Lat: 48.85, Lon: 2.35}
	if _, err := a.Snapshot(context.Background(), at); err != nil {
		t.Fatal(err)
	}
	now = now.Add(5 * time.Minute)
	if _, err := a.Snapshot(context.Background(), at); err != nil {
		t.Fatal(err)
	}
	if p.calls != 1 {
		t.Fatalf("fresh snapshot must be reused, provider called %d times", p.calls)
	}

	now = now.Add(11 * time.Minute) // past the window
	if _, err := a.Snapshot(context.Background(), at); err != nil {
		t.Fatal(err)
	}
	if p.calls != 2 {
		t.Fatalf("stale snapshot must be refreshed, provider called %d times", p.calls)
	}
}

func TestSnapshotDistinctCells(t *testing.T) {
	p := &fakeProvider{current: clear}
	a := NewAdvisory(p, Thresholds{}, 15*time.Minute)
	if _, err := a.Snapshot(context.Background(), geo.Point{Lat: 48.85, Lon: 2.35}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Snapshot(context.Background(), geo.Point{Lat: 49.85, Lon: 2.35}); err != nil {
		t.Fatal(err)
	}
	if p.calls != 2 {
		t.Fatalf("distinct cells need distinct fetches, got %d", p.calls)
	}
}

func TestHourlySuitability(t *testing.T) {
	p := &fakeProvider{
		current: clear,
		hourly: []model.HourlyForecast{
			{Conditions: model.Conditions{WindSpeedKmh: 10, VisibilityKm: 10}},
			{Conditions: model.Conditions{WindSpeedKmh: 70, VisibilityKm: 10}},
		},
	}
	a := NewAdvisory(p, Thresholds{}, 0)
	snap, err := a.Snapshot(context.Background(), geo.Point{})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Hourly) != 2 || !snap.Hourly[0].Suitable || snap.Hourly[1].Suitable {
		t.Fatalf("hourly verdicts wrong: %+v", snap.Hourly)
	}
}

func TestBorderline(t *testing.T) {
	if Borderline(model.WeatherSnapshot{Suitable: true, Risk: model.RiskLow}) {
		t.Error("suitable verdicts are not borderline")
	}
	if !Borderline(model.WeatherSnapshot{Suitable: false, Risk: model.RiskHigh}) {
		t.Error("one-breach denial is borderline")
	}
	if Borderline(model.WeatherSnapshot{Suitable: false, Risk: model.RiskSevere}) {
		t.Error("severe verdicts are never overridable")
	}
}
