package model

import (
	"fmt"
	"time"

	"github.com/carelink/medfleet/core/geo"
)

// Cargo describes the medical payload of a delivery request.
type Cargo struct {
	Description  string  `json:"description"`
	WeightKg     float64 `json:"weight_kg"`
	VolumeLiters float64 `json:"volume_liters"`
	MinTempC     float64 `json:"min_temp_c"`
	MaxTempC     float64 `json:"max_temp_c"`
	// TempCritical marks cargo whose integrity is lost outside the range
	// (vaccines, blood products, specimens).
	TempCritical bool `json:"temp_critical"`
}

// TempControlled reports whether the cargo needs an actively cooled
// compartment.
func (c Cargo) TempControlled() bool {
	return c.MinTempC != 0 || c.MaxTempC != 0
}

// TempInRange reports whether t satisfies the cargo's required range.
func (c Cargo) TempInRange(t float64) bool {
	if !c.TempControlled() {
		return true
	}
	return t >= c.MinTempC && t <= c.MaxTempC
}

// DeliveryRequest is the immutable intake record. Once accepted into
// scheduling it is never mutated; the scheduler snapshots it into a Delivery.
type DeliveryRequest struct {
	ID             string    `json:"id"`
	Origin         geo.Point `json:"origin"`
	Destination    geo.Point `json:"destination"`
	Cargo          Cargo     `json:"cargo"`
	Priority       Priority  `json:"priority"`
	Requester      string    `json:"requester"`
	RequesterRole  string    `json:"requester_role,omitempty"`
	PatientContext string    `json:"patient_context,omitempty"`
	// Deadline bounds arrival for life-critical cargo (golden hour).
	Deadline      time.Time `json:"deadline,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
	ExemptionTags []string  `json:"exemption_tags,omitempty"`
}

// Validate checks the request before it enters the queue.
func (r DeliveryRequest) Validate() error {
	if r.Requester == "" {
		return fmt.Errorf("requester must not be empty")
	}
	if r.Cargo.WeightKg <= 0 {
		return fmt.Errorf("cargo weight must be positive")
	}
	if r.Cargo.VolumeLiters <= 0 {
		return fmt.Errorf("cargo volume must be positive")
	}
	if r.Cargo.TempControlled() && r.Cargo.MinTempC > r.Cargo.MaxTempC {
		return fmt.Errorf("cargo temperature range inverted")
	}
	return nil
}

// HasExemption reports whether the request carries the given airspace
// exemption tag.
func (r DeliveryRequest) HasExemption(tag string) bool {
	for _, t := range r.ExemptionTags {
		if t == tag {
			return true
		}
	}
	return false
}

// CostEstimate is emitted with each committed delivery. Settlement happens
// elsewhere.
type CostEstimate struct {
	DistanceKm        float64 `json:"distance_km"`
	BaseFee           float64 `json:"base_fee"`
	DistanceFee       float64 `json:"distance_fee"`
	PrioritySurcharge float64 `json:"priority_surcharge"`
	TempSurcharge     float64 `json:"temp_surcharge"`
	Total             float64 `json:"total"`
	Currency          string  `json:"currency"`
}

// TrackingPoint is one telemetry sample in a delivery's location history.
// Sequence numbers are assigned by the vehicle and must increase
// monotonically; replays of an already-seen sequence are dropped.
type TrackingPoint struct {
	Sequence     uint64    `json:"sequence"`
	Location     geo.Point `json:"location"`
	AltitudeM    float64   `json:"altitude_m"`
	SpeedKmh     float64   `json:"speed_kmh"`
	BatteryLevel float64   `json:"battery_level"`
	CargoTempC   float64   `json:"cargo_temp_c"`
	Timestamp    time.Time `json:"timestamp"`
}

// GateDecisions records the go/no-go evidence behind a dispatch, referenced
// by compliance reports.
type GateDecisions struct {
	WeatherSuitable   bool      `json:"weather_suitable"`
	WeatherRisk       string    `json:"weather_risk"`
	WeatherCheckedAt  time.Time `json:"weather_checked_at"`
	AirspaceClear     bool      `json:"airspace_clear"`
	RestrictionIDs    []string  `json:"restriction_ids,omitempty"`
	ClearanceCode     string    `json:"clearance_code,omitempty"`
	WeatherOverride   string    `json:"weather_override,omitempty"`
	OverrideAuthority string    `json:"override_authority,omitempty"`
}

// Delivery is the scheduled, tracked instance of a request. Created by the
// scheduler, mutated only by the tracker and the escalation lane, archived
// once terminal.
type Delivery struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	VehicleID string         `json:"vehicle_id"`
	FleetID   string         `json:"fleet_id"`
	Cargo     Cargo          `json:"cargo"`
	Priority  Priority       `json:"priority"`
	Status    DeliveryStatus `json:"status"`
	Route     Route          `json:"route"`

	ScheduledAt  time.Time `json:"scheduled_at"`
	DispatchedAt time.Time `json:"dispatched_at,omitempty"`
	ETA          time.Time `json:"eta,omitempty"`
	DeliveredAt  time.Time `json:"delivered_at,omitempty"`

	Requester string        `json:"requester"`
	Cost      CostEstimate  `json:"cost"`
	Gates     GateDecisions `json:"gates"`

	History []TrackingPoint `json:"history,omitempty"`

	// TempBreached is set by the tracker when in-flight telemetry reports
	// cargo temperature outside the required range. It is never cleared.
	TempBreached bool `json:"temp_breached,omitempty"`

	// EmergencyTicket is set when the delivery entered via the escalation
	// lane.
	EmergencyTicket string `json:"emergency_ticket,omitempty"`
}

// LastKnownLocation returns the most recent tracking point, or the route
// origin if no telemetry has arrived yet.
func (d Delivery) LastKnownLocation() geo.Point {
	if len(d.History) == 0 {
		return d.Route.Origin
	}
	return d.History[len(d.History)-1].Location
}
