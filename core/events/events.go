// Package events defines the domain events published on the internal bus.
// Notification endpoints, metrics bridges and audit consumers subscribe to
// them.
package events

import (
	"time"

	"github.com/carelink/medfleet/core/model"
)

// DeliveryScheduled is published when a request commits to a vehicle.
type DeliveryScheduled struct {
	DeliveryID string
	VehicleID  string
	Priority   model.Priority
	Emergency  bool
	ETA        time.Time
}

// DeliveryRejected is published when no dispatch could be committed.
type DeliveryRejected struct {
	RequestID string
	Reason    string
	Priority  model.Priority
}

// DeliveryStatusChanged is published on every lifecycle transition.
type DeliveryStatusChanged struct {
	DeliveryID string
	From       model.DeliveryStatus
	To         model.DeliveryStatus
	At         time.Time
}

// DeliveryAborted is published when an in-transit delivery aborts. The
// requester and clinical contact are notified immediately, not only on final
// status.
type DeliveryAborted struct {
	DeliveryID string
	VehicleID  string
	Protocol   string
	Reason     string
	At         time.Time
}

// EmergencyDeclared is published when a request enters the escalation lane.
type EmergencyDeclared struct {
	TicketID  string
	RequestID string
	Priority  model.Priority
	At        time.Time
}

// WeatherOverridden is published when a clinical authority overrides a
// borderline weather verdict. The justification is part of the permanent
// record.
type WeatherOverridden struct {
	DeliveryID    string
	Authority     string
	Justification string
	Risk          model.RiskLevel
	At            time.Time
}

// TemperatureExcursion is published when cargo or locker temperature leaves
// its band. For life-critical cargo this is fatal to the delivery attempt.
type TemperatureExcursion struct {
	DeliveryID    string
	CompartmentID string
	TempC         float64
	At            time.Time
}

// LockerFailover is published when a locker compartment switches to backup
// cooling or power.
type LockerFailover struct {
	LockerID      string
	CompartmentID string
	Reason        string
	At            time.Time
}
