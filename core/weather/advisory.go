package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

// Provider fetches raw conditions for a coordinate. Implementations wrap
// live weather integrations; tests inject fakes with fixed conditions.
type Provider interface {
	Fetch(ctx context.Context, at geo.Point) (model.Conditions, []model.HourlyForecast, error)
}

// Thresholds define the go/no-go limits applied to conditions.
type Thresholds struct {
	MaxWindSpeedKmh    float64 `json:"max_wind_speed_kmh"`
	MinVisibilityKm    float64 `json:"min_visibility_km"`
	MaxPrecipitationMm float64 `json:"max_precipitation_mm"`
	MaxCloudCoverPct   float64 `json:"max_cloud_cover_pct"`
}

// SetDefaults fills unset thresholds with operational defaults.
func (t *Thresholds) SetDefaults() {
	if t.MaxWindSpeedKmh == 0 {
		t.MaxWindSpeedKmh = 40
	}
	if t.MinVisibilityKm == 0 {
		t.MinVisibilityKm = 1.5
	}
	if t.MaxPrecipitationMm == 0 {
		t.MaxPrecipitationMm = 5
	}
	if t.MaxCloudCoverPct == 0 {
		t.MaxCloudCoverPct = 95
	}
}

// Advisory computes flight-suitability verdicts and caches snapshots for a
// bounded freshness window. Snapshots older than the window are refreshed
// before being reused for a new dispatch decision.
type Advisory struct {
	provider  Provider
	limits    Thresholds
	freshness time.Duration

	mu    sync.RWMutex
	cache map[string]model.WeatherSnapshot
	now   func() time.Time
}

// NewAdvisory builds an advisory over the given provider. freshness bounds
// snapshot reuse; zero falls back to 15 minutes.
func NewAdvisory(p Provider, limits Thresholds, freshness time.Duration) *Advisory {
	limits.SetDefaults()
	if freshness <= 0 {
		freshness = 15 * time.Minute
	}
	return &Advisory{
		provider:  p,
		limits:    limits,
		freshness: freshness,
		cache:     make(map[string]model.WeatherSnapshot),
		now:       time.Now,
	}
}

// SetClock overrides the advisory clock. Used by tests.
func (a *Advisory) SetClock(now func() time.Time) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

func cacheKey(p geo.Point) string {
	// Quantized to ~1 km cells so nearby lookups share a snapshot.
	return fmt.Sprintf("%.2f:%.2f", p.Lat, p.Lon)
}

// Snapshot returns a fresh verdict for the coordinate, refreshing through
// the provider when the cached snapshot has aged out.
func (a *Advisory) Snapshot(ctx context.Context, at geo.Point) (model.WeatherSnapshot, error) {
	key := cacheKey(at)
	a.mu.RLock()
	cached, ok := a.cache[key]
	now := a.now()
	a.mu.RUnlock()
	if ok && cached.Fresh(now, a.freshness) {
		return cached, nil
	}

	current, hourly, err := a.provider.Fetch(ctx, at)
	if err != nil {
		return model.WeatherSnapshot{}, fmt.Errorf("weather fetch: %w", err)
	}
	snap := a.evaluate(at, current, hourly)
	a.mu.Lock()
	snap.FetchedAt = a.now()
	a.cache[key] = snap
	a.mu.Unlock()
	return snap, nil
}

// evaluate derives the verdict, risk level and restriction notes from raw
// conditions.
func (a *Advisory) evaluate(at geo.Point, current model.Conditions, hourly []model.HourlyForecast) model.WeatherSnapshot {
	snap := model.WeatherSnapshot{Location: at, Current: current}

	var breaches []string
	if current.WindSpeedKmh > a.limits.MaxWindSpeedKmh {
		breaches = append(breaches, fmt.Sprintf("wind %.0f km/h exceeds limit %.0f", current.WindSpeedKmh, a.limits.MaxWindSpeedKmh))
	}
	if current.VisibilityKm < a.limits.MinVisibilityKm {
		breaches = append(breaches, fmt.Sprintf("visibility %.1f km below limit %.1f", current.VisibilityKm, a.limits.MinVisibilityKm))
	}
	if current.PrecipitationMm > a.limits.MaxPrecipitationMm {
		breaches = append(breaches, fmt.Sprintf("precipitation %.1f mm exceeds limit %.1f", current.PrecipitationMm, a.limits.MaxPrecipitationMm))
	}
	if current.CloudCoverPct > a.limits.MaxCloudCoverPct {
		breaches = append(breaches, fmt.Sprintf("cloud cover %.0f%% exceeds limit %.0f%%", current.CloudCoverPct, a.limits.MaxCloudCoverPct))
	}
	snap.Restrictions = breaches
	snap.Suitable = len(breaches) == 0
	snap.Risk = a.risk(current, len(breaches))

	for _, h := range hourly {
		h.Suitable = h.Conditions.WindSpeedKmh <= a.limits.MaxWindSpeedKmh &&
			h.Conditions.VisibilityKm >= a.limits.MinVisibilityKm &&
			h.Conditions.PrecipitationMm <= a.limits.MaxPrecipitationMm
		snap.Hourly = append(snap.Hourly, h)
	}
	return snap
}

func (a *Advisory) risk(c model.Conditions, breaches int) model.RiskLevel {
	switch {
	case breaches >= 2:
		return model.RiskSevere
	case breaches == 1:
		return model.RiskHigh
	// Borderline: within 80% of any limit.
	case c.WindSpeedKmh > 0.8*a.limits.MaxWindSpeedKmh,
		c.PrecipitationMm > 0.8*a.limits.MaxPrecipitationMm,
		c.VisibilityKm < 1.25*a.limits.MinVisibilityKm:
		return model.RiskModerate
	default:
		return model.RiskLow
	}
}

// Borderline reports whether a denied verdict is close enough to the limits
// for an emergency authority override. Severe verdicts are never overridable.
func Borderline(s model.WeatherSnapshot) bool {
	return !s.Suitable && s.Risk <= model.RiskHigh
}
