package config

import (
	"fmt"
	"time"

	"github.com/carelink/medfleet/core/weather"
)

// WeatherConfig parameterises the weather advisory.
type WeatherConfig struct {
	// ProviderURL is the forecast endpoint queried for conditions.
	ProviderURL string `json:"provider_url"`
	// FreshnessMinutes bounds how long a cached snapshot feeds new
	// dispatch decisions.
	FreshnessMinutes int                `json:"freshness_minutes"`
	Thresholds       weather.Thresholds `json:"thresholds"`
}

// SetDefaults applies operational defaults.
func (c *WeatherConfig) SetDefaults() {
	if c.ProviderURL == "" {
		c.ProviderURL = "https://api.open-meteo.com/v1/forecast"
	}
	if c.FreshnessMinutes == 0 {
		c.FreshnessMinutes = 15
	}
	c.Thresholds.SetDefaults()
}

// Freshness returns the snapshot window as a duration.
func (c WeatherConfig) Freshness() time.Duration {
	return time.Duration(c.FreshnessMinutes) * time.Minute
}

// AirspaceConfig parameterises the compliance gate.
type AirspaceConfig struct {
	// AuthorityURL is the regulator endpoint brokering emergency clearances.
	// Empty switches to the auto-approve authority.
	AuthorityURL string `json:"authority_url"`
	// ClearanceTTLMinutes is the validity window of an approved clearance.
	ClearanceTTLMinutes int `json:"clearance_ttl_minutes"`
}

// SetDefaults applies operational defaults.
func (c *AirspaceConfig) SetDefaults() {
	if c.ClearanceTTLMinutes == 0 {
		c.ClearanceTTLMinutes = 30
	}
}

// ClearanceTTL returns the clearance validity as a duration.
func (c AirspaceConfig) ClearanceTTL() time.Duration {
	return time.Duration(c.ClearanceTTLMinutes) * time.Minute
}

// RouteConfig parameterises the route engine.
type RouteConfig struct {
	// CruiseSpeedKmh is the planning speed when a vehicle reports none.
	CruiseSpeedKmh float64 `json:"cruise_speed_kmh"`
}

// SetDefaults applies operational defaults.
func (c *RouteConfig) SetDefaults() {
	if c.CruiseSpeedKmh == 0 {
		c.CruiseSpeedKmh = 60
	}
}

// FleetConfig parameterises the fleet registry.
type FleetConfig struct {
	// HeartbeatWindowSeconds bounds how stale a vehicle heartbeat may be
	// before it is excluded from candidate pools.
	HeartbeatWindowSeconds int `json:"heartbeat_window_seconds"`
	// TelemetryTopic is the MQTT subscription feeding vehicle telemetry.
	TelemetryTopic string `json:"telemetry_topic"`
}

// SetDefaults applies operational defaults.
func (c *FleetConfig) SetDefaults() {
	if c.HeartbeatWindowSeconds == 0 {
		c.HeartbeatWindowSeconds = 120
	}
	if c.TelemetryTopic == "" {
		c.TelemetryTopic = "vehicle/+/telemetry"
	}
}

// HeartbeatWindow returns the staleness bound as a duration.
func (c FleetConfig) HeartbeatWindow() time.Duration {
	return time.Duration(c.HeartbeatWindowSeconds) * time.Second
}

// CustodyConfig selects the custody ledger backend.
type CustodyConfig struct {
	// Backend selects the entry store: "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the SQLite database location.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *CustodyConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Path == "" {
		c.Path = "custody.db"
	}
}

// Validate checks mandatory fields.
func (c CustodyConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown custody backend %s", c.Backend)
	}
	if c.Backend == "sqlite" && c.Path == "" {
		return fmt.Errorf("custody path is required")
	}
	return nil
}

// APIConfig parameterises the HTTP surface.
type APIConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
}
