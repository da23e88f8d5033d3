package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelink/medfleet/core/geo"
)

// Route is a planned path between origin and destination.
type Route struct {
	Origin      geo.Point     `json:"origin"`
	Destination geo.Point     `json:"destination"`
	Waypoints   []geo.Point   `json:"waypoints"`
	DistanceKm  float64       `json:"distance_km"`
	Duration    time.Duration `json:"duration"`
	// RestrictionIDs lists the active restrictions considered while
	// planning.
	RestrictionIDs []string `json:"restriction_ids,omitempty"`
	Alternates     []Route  `json:"alternates,omitempty"`
}

// Leg returns the straight-line distance of the full waypoint chain.
func (r Route) Leg() float64 {
	pts := append([]geo.Point{r.Origin}, r.Waypoints...)
	pts = append(pts, r.Destination)
	var d float64
	for i := 1; i < len(pts); i++ {
		d += geo.DistanceKm(pts[i-1], pts[i])
	}
	return d
}

// RiskLevel grades a weather verdict.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskModerate
	RiskHigh
	RiskSevere
)

// String returns a human-readable representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "high"
	case RiskSevere:
		return "severe"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the risk level as its string form.
func (r RiskLevel) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

// UnmarshalJSON decodes the risk level from its string form.
func (r *RiskLevel) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw {
	case "low":
		*r = RiskLow
	case "moderate":
		*r = RiskModerate
	case "high":
		*r = RiskHigh
	case "severe":
		*r = RiskSevere
	default:
		return fmt.Errorf("unknown risk level %q", raw)
	}
	return nil
}

// Conditions is one observed or forecast weather sample.
type Conditions struct {
	WindSpeedKmh    float64 `json:"wind_speed_kmh"`
	VisibilityKm    float64 `json:"visibility_km"`
	PrecipitationMm float64 `json:"precipitation_mm"`
	CloudCoverPct   float64 `json:"cloud_cover_pct"`
	TemperatureC    float64 `json:"temperature_c"`
}

// HourlyForecast is one forecast hour with its flight-suitability verdict.
type HourlyForecast struct {
	At         time.Time  `json:"at"`
	Conditions Conditions `json:"conditions"`
	Suitable   bool       `json:"suitable"`
}

// WeatherSnapshot is a point-in-time advisory for a coordinate. It is valid
// for a bounded freshness window and must be refreshed before being reused
// for a new dispatch decision.
type WeatherSnapshot struct {
	Location     geo.Point        `json:"location"`
	Current      Conditions       `json:"current"`
	Hourly       []HourlyForecast `json:"hourly,omitempty"`
	Suitable     bool             `json:"suitable"`
	Risk         RiskLevel        `json:"risk"`
	Restrictions []string         `json:"restrictions,omitempty"`
	FetchedAt    time.Time        `json:"fetched_at"`
}

// Fresh reports whether the snapshot is younger than window at time now.
func (s WeatherSnapshot) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(s.FetchedAt) <= window
}

// RestrictionSeverity grades a flight restriction.
type RestrictionSeverity int

const (
	SeverityAdvisory RestrictionSeverity = iota
	SeverityRestricted
	SeverityProhibited
)

// String returns a human-readable representation of the severity.
func (s RestrictionSeverity) String() string {
	switch s {
	case SeverityAdvisory:
		return "advisory"
	case SeverityRestricted:
		return "restricted"
	case SeverityProhibited:
		return "prohibited"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the severity as its string form.
func (s RestrictionSeverity) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON decodes the severity from its string form.
func (s *RestrictionSeverity) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw {
	case "advisory":
		*s = SeverityAdvisory
	case "restricted":
		*s = SeverityRestricted
	case "prohibited":
		*s = SeverityProhibited
	default:
		return fmt.Errorf("unknown restriction severity %q", raw)
	}
	return nil
}

// FlightRestriction is a geofenced no-fly or caution zone. Either Zone or
// Polygon is set.
type FlightRestriction struct {
	ID        string              `json:"id"`
	Reason    string              `json:"reason"`
	Authority string              `json:"authority"`
	Severity  RestrictionSeverity `json:"severity"`
	Zone      *geo.Circle         `json:"zone,omitempty"`
	Polygon   geo.Polygon         `json:"polygon,omitempty"`
	EffectiveFrom  time.Time      `json:"effective_from"`
	EffectiveUntil time.Time      `json:"effective_until"`
	// Exemptions lists tags (e.g. "emergency-medical") that may request
	// clearance through the zone.
	Exemptions []string `json:"exemptions,omitempty"`
}

// ActiveAt reports whether the restriction is in force at t.
func (fr FlightRestriction) ActiveAt(t time.Time) bool {
	if !fr.EffectiveFrom.IsZero() && t.Before(fr.EffectiveFrom) {
		return false
	}
	if !fr.EffectiveUntil.IsZero() && t.After(fr.EffectiveUntil) {
		return false
	}
	return true
}

// Blocks reports whether the segment a-b crosses the restriction's geofence.
func (fr FlightRestriction) Blocks(a, b geo.Point) bool {
	if fr.Zone != nil && geo.SegmentIntersectsCircle(a, b, *fr.Zone) {
		return true
	}
	if len(fr.Polygon) >= 3 && geo.SegmentIntersectsPolygon(a, b, fr.Polygon) {
		return true
	}
	return false
}

// Exempts reports whether any of the request's tags match the restriction's
// exemption list.
func (fr FlightRestriction) Exempts(tags []string) bool {
	for _, t := range tags {
		for _, e := range fr.Exemptions {
			if t == e {
				return true
			}
		}
	}
	return false
}
