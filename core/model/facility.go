package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelink/medfleet/core/geo"
)

// AccessMethod identifies how a locker compartment was opened.
type AccessMethod int

const (
	AccessCode AccessMethod = iota
	AccessApp
	AccessBiometric
)

// String returns a human-readable representation of the access method.
func (m AccessMethod) String() string {
	switch m {
	case AccessCode:
		return "code"
	case AccessApp:
		return "app"
	case AccessBiometric:
		return "biometric"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the method as its string form.
func (m AccessMethod) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON decodes the method from its string form.
func (m *AccessMethod) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw {
	case "code":
		*m = AccessCode
	case "app":
		*m = AccessApp
	case "biometric":
		*m = AccessBiometric
	default:
		return fmt.Errorf("unknown access method %q", raw)
	}
	return nil
}

// LockerCompartment is a single temperature-zoned bay of a smart locker.
type LockerCompartment struct {
	ID           string  `json:"id"`
	VolumeLiters float64 `json:"volume_liters"`
	TargetTempC  float64 `json:"target_temp_c"`
	CurrentTempC float64 `json:"current_temp_c"`
	// ToleranceC bounds the allowed deviation before an excursion alert.
	ToleranceC    float64 `json:"tolerance_c"`
	Occupied      bool    `json:"occupied"`
	DeliveryID    string  `json:"delivery_id,omitempty"`
	BackupCooling bool    `json:"backup_cooling"`
}

// InExcursion reports whether the compartment temperature left its band.
func (c LockerCompartment) InExcursion() bool {
	if c.ToleranceC <= 0 {
		return false
	}
	dev := c.CurrentTempC - c.TargetTempC
	return dev > c.ToleranceC || dev < -c.ToleranceC
}

// AccessEvent is one entry in a locker's append-only access log.
type AccessEvent struct {
	CompartmentID string       `json:"compartment_id"`
	Method        AccessMethod `json:"method"`
	Actor         string       `json:"actor"`
	Opened        bool         `json:"opened"`
	Timestamp     time.Time    `json:"timestamp"`
}

// SecurityEvent is one entry in a locker's security log.
type SecurityEvent struct {
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// SmartLocker is a pickup/drop-off point with independent temperature zones.
type SmartLocker struct {
	ID           string              `json:"id"`
	Location     geo.Point           `json:"location"`
	Compartments []LockerCompartment `json:"compartments"`
}

// SupplyChainHub is a regional hub supplying vehicles, inventory and staff
// capacity to fleets. The dispatch core only reads its available-capacity
// numbers.
type SupplyChainHub struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Location        geo.Point `json:"location"`
	CapacityVolume  float64   `json:"capacity_volume_liters"`
	CapacityWeight  float64   `json:"capacity_weight_kg"`
	TempZones       []float64 `json:"temp_zones_c"`
	EquipmentCount  int       `json:"equipment_count"`
	StaffCount      int       `json:"staff_count"`
	OpensAt         string    `json:"opens_at"`  // "08:00"
	ClosesAt        string    `json:"closes_at"` // "20:00"
	OnTimeRate      float64   `json:"on_time_rate"`
	UtilizationRate float64   `json:"utilization_rate"`
}
