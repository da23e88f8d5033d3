package model

import (
	"encoding/json"
	"fmt"
)

// VehicleStatus is the lifecycle state of a vehicle.
type VehicleStatus int

const (
	VehicleAvailable VehicleStatus = iota
	VehicleAssigned
	VehicleInTransit
	VehicleReturning
	VehicleMaintenance
	VehicleGrounded
)

// String returns a human-readable representation of the vehicle status.
func (s VehicleStatus) String() string {
	switch s {
	case VehicleAvailable:
		return "available"
	case VehicleAssigned:
		return "assigned"
	case VehicleInTransit:
		return "in_transit"
	case VehicleReturning:
		return "returning"
	case VehicleMaintenance:
		return "maintenance"
	case VehicleGrounded:
		return "grounded"
	default:
		return "unknown"
	}
}

// ParseVehicleStatus converts the wire representation into a VehicleStatus.
func ParseVehicleStatus(s string) (VehicleStatus, error) {
	switch s {
	case "available":
		return VehicleAvailable, nil
	case "assigned":
		return VehicleAssigned, nil
	case "in_transit":
		return VehicleInTransit, nil
	case "returning":
		return VehicleReturning, nil
	case "maintenance":
		return VehicleMaintenance, nil
	case "grounded":
		return VehicleGrounded, nil
	default:
		return VehicleAvailable, fmt.Errorf("unknown vehicle status %q", s)
	}
}

// MarshalJSON encodes the status as its string form.
func (s VehicleStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON decodes the status from its string form.
func (s *VehicleStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseVehicleStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CanTransitionTo reports whether the transition s -> next is legal.
// Maintenance and grounded are reachable from any state; leaving them
// returns the vehicle to available.
func (s VehicleStatus) CanTransitionTo(next VehicleStatus) bool {
	if next == VehicleMaintenance || next == VehicleGrounded {
		return true
	}
	switch s {
	case VehicleAvailable:
		return next == VehicleAssigned
	case VehicleAssigned:
		return next == VehicleInTransit || next == VehicleAvailable
	case VehicleInTransit:
		return next == VehicleReturning
	case VehicleReturning:
		return next == VehicleAvailable
	case VehicleMaintenance, VehicleGrounded:
		return next == VehicleAvailable
	default:
		return false
	}
}

// DeliveryStatus is the lifecycle state of a delivery.
type DeliveryStatus int

const (
	DeliveryRequested DeliveryStatus = iota
	DeliveryScheduled
	DeliveryComplianceCheck
	DeliveryDispatched
	DeliveryInTransit
	DeliveryArrived
	DeliveryDelivered
	DeliveryRejected
	DeliveryAborted
	DeliveryFailed
	DeliveryCancelled
)

// String returns a human-readable representation of the delivery status.
func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryRequested:
		return "requested"
	case DeliveryScheduled:
		return "scheduled"
	case DeliveryComplianceCheck:
		return "compliance_check"
	case DeliveryDispatched:
		return "dispatched"
	case DeliveryInTransit:
		return "in_transit"
	case DeliveryArrived:
		return "arrived"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryRejected:
		return "rejected"
	case DeliveryAborted:
		return "aborted"
	case DeliveryFailed:
		return "delivery_failed"
	case DeliveryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseDeliveryStatus converts the wire representation into a DeliveryStatus.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	switch s {
	case "requested":
		return DeliveryRequested, nil
	case "scheduled":
		return DeliveryScheduled, nil
	case "compliance_check":
		return DeliveryComplianceCheck, nil
	case "dispatched":
		return DeliveryDispatched, nil
	case "in_transit":
		return DeliveryInTransit, nil
	case "arrived":
		return DeliveryArrived, nil
	case "delivered":
		return DeliveryDelivered, nil
	case "rejected":
		return DeliveryRejected, nil
	case "aborted":
		return DeliveryAborted, nil
	case "delivery_failed":
		return DeliveryFailed, nil
	case "cancelled":
		return DeliveryCancelled, nil
	default:
		return DeliveryRequested, fmt.Errorf("unknown delivery status %q", s)
	}
}

// MarshalJSON encodes the status as its string form.
func (s DeliveryStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON decodes the status from its string form.
func (s *DeliveryStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseDeliveryStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Terminal reports whether the status is final. Terminal deliveries are
// archived, never deleted.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliveryDelivered, DeliveryRejected, DeliveryAborted, DeliveryFailed, DeliveryCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	switch s {
	case DeliveryRequested:
		return next == DeliveryScheduled || next == DeliveryRejected || next == DeliveryCancelled
	case DeliveryScheduled:
		return next == DeliveryComplianceCheck || next == DeliveryCancelled
	case DeliveryComplianceCheck:
		return next == DeliveryDispatched || next == DeliveryRejected || next == DeliveryCancelled
	case DeliveryDispatched:
		return next == DeliveryInTransit
	case DeliveryInTransit:
		return next == DeliveryArrived || next == DeliveryAborted
	case DeliveryArrived:
		return next == DeliveryDelivered || next == DeliveryFailed
	default:
		return false
	}
}

// Priority orders delivery requests. Higher values preempt lower ones in the
// scheduling queue.
type Priority int

const (
	PriorityRoutine Priority = iota
	PriorityUrgent
	PriorityCritical
	PriorityLifeThreatening
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityRoutine:
		return "routine"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical"
	case PriorityLifeThreatening:
		return "life_threatening"
	default:
		return "unknown"
	}
}

// ParsePriority converts the wire representation into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "routine":
		return PriorityRoutine, nil
	case "urgent":
		return PriorityUrgent, nil
	case "critical":
		return PriorityCritical, nil
	case "life_threatening":
		return PriorityLifeThreatening, nil
	default:
		return PriorityRoutine, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalJSON encodes the priority as its string form.
func (p Priority) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

// UnmarshalJSON decodes the priority from its string form.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Emergency reports whether the priority enters via the escalation lane.
func (p Priority) Emergency() bool {
	return p >= PriorityCritical
}
