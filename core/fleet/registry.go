package fleet

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

// ErrVehicleNotFound is returned when the registry has no such vehicle.
var ErrVehicleNotFound = errors.New("fleet: vehicle not found")

// ErrFleetNotFound is returned when the registry has no such fleet.
var ErrFleetNotFound = errors.New("fleet: fleet not found")

// ErrNotReservable is returned when a compare-and-set reservation loses the
// race or the vehicle is not available.
var ErrNotReservable = errors.New("fleet: vehicle not reservable")

// ErrIllegalTransition is returned for a vehicle state change the state
// machine does not permit.
var ErrIllegalTransition = errors.New("fleet: illegal vehicle transition")

// AbortProtocol is the emergency-return mode of a vehicle leaving in_transit
// abnormally.
type AbortProtocol int

const (
	AbortReturnToBase AbortProtocol = iota
	AbortAutoLand
	AbortEmergencyBeacon
)

// String returns a human-readable representation of the abort protocol.
func (p AbortProtocol) String() string {
	switch p {
	case AbortReturnToBase:
		return "return-to-base"
	case AbortAutoLand:
		return "auto-land"
	case AbortEmergencyBeacon:
		return "emergency-beacon"
	default:
		return "unknown"
	}
}

// ParseAbortProtocol converts the wire representation into an AbortProtocol.
func ParseAbortProtocol(s string) (AbortProtocol, error) {
	switch s {
	case "", "return-to-base":
		return AbortReturnToBase, nil
	case "auto-land":
		return AbortAutoLand, nil
	case "emergency-beacon":
		return AbortEmergencyBeacon, nil
	default:
		return AbortReturnToBase, fmt.Errorf("unknown abort protocol %q", s)
	}
}

// Registry is the source of truth for fleets and vehicles. All status
// mutations go through it so the reservation rule holds: available ->
// assigned succeeds only when the prior state is exactly available.
type Registry struct {
	mu       sync.RWMutex
	fleets   map[string]model.Fleet
	vehicles map[string]*model.Vehicle

	// heartbeatWindow excludes vehicles with stale telemetry from
	// selection. Zero disables the check.
	heartbeatWindow time.Duration
	dailyReset      time.Time
	now             func() time.Time
}

// NewRegistry creates an empty registry. heartbeatWindow bounds telemetry
// staleness for candidate selection; zero disables the check.
func NewRegistry(heartbeatWindow time.Duration) *Registry {
	return &Registry{
		fleets:          make(map[string]model.Fleet),
		vehicles:        make(map[string]*model.Vehicle),
		heartbeatWindow: heartbeatWindow,
		now:             time.Now,
	}
}

// SetClock overrides the registry clock. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// RegisterFleet adds or replaces a fleet.
func (r *Registry) RegisterFleet(f model.Fleet) error {
	if f.ID == "" {
		return fmt.Errorf("fleet id must not be empty")
	}
	r.mu.Lock()
	r.fleets[f.ID] = f
	r.mu.Unlock()
	return nil
}

// RegisterVehicle adds or replaces a vehicle. The fleet must exist.
func (r *Registry) RegisterVehicle(v model.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fleets[v.FleetID]; !ok {
		return fmt.Errorf("%w: %s", ErrFleetNotFound, v.FleetID)
	}
	if v.LastSeen.IsZero() {
		v.LastSeen = r.now()
	}
	r.vehicles[v.ID] = &v
	return nil
}

// Fleet returns a copy of the fleet.
func (r *Registry) Fleet(id string) (model.Fleet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fleets[id]
	if !ok {
		return model.Fleet{}, fmt.Errorf("%w: %s", ErrFleetNotFound, id)
	}
	return f, nil
}

// Vehicle returns a copy of the vehicle.
func (r *Registry) Vehicle(id string) (model.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vehicles[id]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("%w: %s", ErrVehicleNotFound, id)
	}
	return *v, nil
}

// Vehicles returns a snapshot of all vehicles.
func (r *Registry) Vehicles() []model.Vehicle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateTelemetry ingests a vehicle health/position push from the status
// feed.
func (r *Registry) UpdateTelemetry(id string, loc geo.Point, heading, speed, battery float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, id)
	}
	v.Location = loc
	v.HeadingDeg = heading
	v.SpeedKmh = speed
	if battery >= 0 {
		v.BatteryLevel = battery
	}
	v.LastSeen = r.now()
	return nil
}

// Candidates returns vehicles eligible to carry the cargo to dest: status
// available, fresh heartbeat, fleet coverage and daily capacity, cargo fit.
// The returned slice is a copy ordered by vehicle ID for determinism;
// ranking happens in the scheduler.
func (r *Registry) Candidates(dest geo.Point, cargo model.Cargo) []model.Vehicle {
	r.mu.Lock()
	r.resetDailyLocked()
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var out []model.Vehicle
	for _, v := range r.vehicles {
		if v.Status != model.VehicleAvailable {
			continue
		}
		if r.heartbeatWindow > 0 && now.Sub(v.LastSeen) > r.heartbeatWindow {
			continue
		}
		f, ok := r.fleets[v.FleetID]
		if !ok || !f.Covers(dest) || !f.HasDailyCapacity() {
			continue
		}
		if !v.CanCarry(cargo) {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reserve performs the atomic compare-and-set available -> assigned. Exactly
// one of two concurrent callers wins; the loser receives ErrNotReservable
// and retries against its next-ranked candidate.
func (r *Registry) Reserve(vehicleID, deliveryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	if v.Status != model.VehicleAvailable {
		return fmt.Errorf("%w: %s is %s", ErrNotReservable, vehicleID, v.Status)
	}
	v.Status = model.VehicleAssigned
	v.ActiveDeliveryID = deliveryID
	if f, ok := r.fleets[v.FleetID]; ok {
		f.DailyDeliveries++
		r.fleets[v.FleetID] = f
	}
	return nil
}

// Release undoes a reservation that never launched (gate denial, timeout,
// cancellation). assigned -> available.
func (r *Registry) Release(vehicleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	if v.Status != model.VehicleAssigned {
		return fmt.Errorf("%w: release from %s", ErrIllegalTransition, v.Status)
	}
	v.Status = model.VehicleAvailable
	v.ActiveDeliveryID = ""
	if f, ok := r.fleets[v.FleetID]; ok && f.DailyDeliveries > 0 {
		f.DailyDeliveries--
		r.fleets[v.FleetID] = f
	}
	return nil
}

// Transition moves the vehicle through its state machine, rejecting illegal
// transitions.
func (r *Registry) Transition(vehicleID string, next model.VehicleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(vehicleID, next)
}

func (r *Registry) transitionLocked(vehicleID string, next model.VehicleStatus) error {
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	if !v.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v.Status, next)
	}
	v.Status = next
	if next == model.VehicleAvailable {
		v.ActiveDeliveryID = ""
	}
	return nil
}

// Abort handles a vehicle leaving in_transit abnormally. The vehicle flies
// its emergency protocol home and is quarantined in maintenance until
// inspected, because cargo integrity cannot be assumed after an abort.
func (r *Registry) Abort(vehicleID string, protocol AbortProtocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	if v.Status != model.VehicleInTransit {
		return fmt.Errorf("%w: abort from %s", ErrIllegalTransition, v.Status)
	}
	v.Status = model.VehicleReturning
	v.ActiveDeliveryID = ""
	v.LastAbortProtocol = protocol.String()
	return nil
}

// Quarantine docks a returning vehicle into maintenance after an abort.
func (r *Registry) Quarantine(vehicleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	if v.Status != model.VehicleReturning {
		return fmt.Errorf("%w: quarantine from %s", ErrIllegalTransition, v.Status)
	}
	v.Status = model.VehicleMaintenance
	return nil
}

// ClearMaintenance returns an inspected vehicle to service.
func (r *Registry) ClearMaintenance(vehicleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	if v.Status != model.VehicleMaintenance && v.Status != model.VehicleGrounded {
		return fmt.Errorf("%w: clear from %s", ErrIllegalTransition, v.Status)
	}
	v.Status = model.VehicleAvailable
	v.LastAbortProtocol = ""
	return nil
}

// resetDailyLocked zeroes fleet daily counters when the UTC day rolls over.
func (r *Registry) resetDailyLocked() {
	now := r.now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !day.After(r.dailyReset) {
		return
	}
	r.dailyReset = day
	for id, f := range r.fleets {
		f.DailyDeliveries = 0
		r.fleets[id] = f
	}
}
