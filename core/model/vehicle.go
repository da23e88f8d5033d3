package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelink/medfleet/core/geo"
)

// VehicleKind distinguishes aerial drones from autonomous ground robots.
type VehicleKind int

const (
	KindDrone VehicleKind = iota
	KindGroundRobot
)

// String returns a human-readable representation of the vehicle kind.
func (k VehicleKind) String() string {
	switch k {
	case KindDrone:
		return "drone"
	case KindGroundRobot:
		return "ground_robot"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind as its string form.
func (k VehicleKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

// UnmarshalJSON decodes the kind from its string form.
func (k *VehicleKind) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw {
	case "drone":
		*k = KindDrone
	case "ground_robot":
		*k = KindGroundRobot
	default:
		return fmt.Errorf("unknown vehicle kind %q", raw)
	}
	return nil
}

// CargoCompartment is a single cargo bay of a vehicle.
type CargoCompartment struct {
	ID             string  `json:"id"`
	VolumeLiters   float64 `json:"volume_liters"`
	TempControlled bool    `json:"temp_controlled"`
	TargetTempC    float64 `json:"target_temp_c"`
	CurrentTempC   float64 `json:"current_temp_c"`
	Occupied       bool    `json:"occupied"`
	SecurityLevel  int     `json:"security_level"`
}

// Vehicle represents a drone or ground robot participating in deliveries.
// Status changes go through FleetRegistry; the struct itself carries no
// locking.
type Vehicle struct {
	ID      string        `json:"id"`
	FleetID string        `json:"fleet_id"`
	Kind    VehicleKind   `json:"kind"`
	Status  VehicleStatus `json:"status"`

	Location   geo.Point `json:"location"`
	HeadingDeg float64   `json:"heading_deg"`
	SpeedKmh   float64   `json:"speed_kmh"`

	BatteryLevel    float64 `json:"battery_level"` // 0..1
	MaxRangeKm      float64 `json:"max_range_km"`
	MaxPayloadKg    float64 `json:"max_payload_kg"`
	MaxVolumeLiters float64 `json:"max_volume_liters"`
	AvgSpeedKmh     float64 `json:"avg_speed_kmh"`

	Compartments []CargoCompartment `json:"compartments"`

	// Sensor capability flags consulted by cargo matching.
	HasTempSensor      bool `json:"has_temp_sensor"`
	HasCamera          bool `json:"has_camera"`
	HasEmergencyBeacon bool `json:"has_emergency_beacon"`

	ActiveDeliveryID string `json:"active_delivery_id,omitempty"`

	// LastAbortProtocol records the emergency-return mode of the most
	// recent abort, kept until the vehicle clears inspection.
	LastAbortProtocol string    `json:"last_abort_protocol,omitempty"`
	LastSeen          time.Time `json:"last_seen"`
}

// Validate checks that the vehicle registration is sound.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id must not be empty")
	}
	if v.MaxRangeKm <= 0 {
		return fmt.Errorf("vehicle %s: max range must be positive", v.ID)
	}
	if v.MaxPayloadKg <= 0 {
		return fmt.Errorf("vehicle %s: max payload must be positive", v.ID)
	}
	if v.AvgSpeedKmh <= 0 {
		return fmt.Errorf("vehicle %s: average speed must be positive", v.ID)
	}
	return nil
}

// RemainingRangeKm estimates the distance the vehicle can still cover with
// its current battery or fuel level.
func (v Vehicle) RemainingRangeKm() float64 {
	if v.BatteryLevel < 0 {
		return 0
	}
	return v.MaxRangeKm * v.BatteryLevel
}

// CanCarry reports whether the cargo fits the vehicle's payload, volume and
// temperature capabilities.
func (v Vehicle) CanCarry(c Cargo) bool {
	if c.WeightKg > v.MaxPayloadKg || c.VolumeLiters > v.MaxVolumeLiters {
		return false
	}
	if !c.TempControlled() {
		return true
	}
	if !v.HasTempSensor {
		return false
	}
	for _, comp := range v.Compartments {
		if comp.Occupied || !comp.TempControlled {
			continue
		}
		if comp.VolumeLiters >= c.VolumeLiters {
			return true
		}
	}
	return false
}

// WastedCapacity returns the normalized spare payload plus volume left if the
// vehicle carried the cargo. Candidates are ranked ascending so small cargo
// does not claim the largest vehicle.
func (v Vehicle) WastedCapacity(c Cargo) float64 {
	wasteW := (v.MaxPayloadKg - c.WeightKg) / v.MaxPayloadKg
	wasteV := (v.MaxVolumeLiters - c.VolumeLiters) / v.MaxVolumeLiters
	return wasteW + wasteV
}

// Fleet groups vehicles under one operator.
type Fleet struct {
	ID                  string    `json:"id"`
	Operator            string    `json:"operator"`
	BaseLocation        geo.Point `json:"base_location"`
	OperationalRadiusKm float64   `json:"operational_radius_km"`
	MaxDailyDeliveries  int       `json:"max_daily_deliveries"`
	DailyDeliveries     int       `json:"daily_deliveries"`
	Certifications      []string  `json:"certifications"`
	InsurancePolicy     string    `json:"insurance_policy"`
}

// Covers reports whether dest lies inside the fleet's operational radius.
func (f Fleet) Covers(dest geo.Point) bool {
	return geo.DistanceKm(f.BaseLocation, dest) <= f.OperationalRadiusKm
}

// HasDailyCapacity reports whether the fleet can accept one more delivery
// today. A zero MaxDailyDeliveries means unlimited.
func (f Fleet) HasDailyCapacity() bool {
	return f.MaxDailyDeliveries <= 0 || f.DailyDeliveries < f.MaxDailyDeliveries
}
