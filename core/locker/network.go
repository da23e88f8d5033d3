// Package locker manages the smart-locker pickup and drop-off network:
// temperature-zoned compartments, multi-method access control and
// append-only access and security logs.
package locker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carelink/medfleet/core/events"
	"github.com/carelink/medfleet/core/logger"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/internal/eventbus"
)

// ErrLockerNotFound is returned when the network has no such locker.
var ErrLockerNotFound = errors.New("locker: locker not found")

// ErrCompartmentNotFound is returned when the locker has no such
// compartment.
var ErrCompartmentNotFound = errors.New("locker: compartment not found")

// ErrCompartmentOccupied is returned when assigning cargo to a busy
// compartment.
var ErrCompartmentOccupied = errors.New("locker: compartment occupied")

// ErrAccessDenied is returned when the presented credential does not match.
var ErrAccessDenied = errors.New("locker: access denied")

// Network tracks lockers, their compartment states and their logs. Every
// open/close event is recorded; temperature excursions alert and fail over
// to backup cooling.
type Network struct {
	mu       sync.RWMutex
	lockers  map[string]*model.SmartLocker
	access   map[string][]model.AccessEvent   // locker id -> append-only log
	security map[string][]model.SecurityEvent // locker id -> append-only log
	codes    map[string]string                // locker/compartment -> access code

	bus *eventbus.Bus
	log logger.Logger
	now func() time.Time
}

// NewNetwork creates an empty locker network.
func NewNetwork(bus *eventbus.Bus, log logger.Logger) *Network {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Network{
		lockers:  make(map[string]*model.SmartLocker),
		access:   make(map[string][]model.AccessEvent),
		security: make(map[string][]model.SecurityEvent),
		codes:    make(map[string]string),
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the network clock. Used by tests.
func (n *Network) SetClock(now func() time.Time) {
	n.mu.Lock()
	n.now = now
	n.mu.Unlock()
}

// Register adds or replaces a locker.
func (n *Network) Register(l model.SmartLocker) error {
	if l.ID == "" {
		return fmt.Errorf("locker id must not be empty")
	}
	n.mu.Lock()
	cp := l
	n.lockers[l.ID] = &cp
	n.mu.Unlock()
	return nil
}

// Locker returns a copy of the locker.
func (n *Network) Locker(id string) (model.SmartLocker, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	l, ok := n.lockers[id]
	if !ok {
		return model.SmartLocker{}, fmt.Errorf("%w: %s", ErrLockerNotFound, id)
	}
	return *l, nil
}

// Lockers returns a snapshot of all lockers ordered by ID.
func (n *Network) Lockers() []model.SmartLocker {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]model.SmartLocker, 0, len(n.lockers))
	for _, l := range n.lockers {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssignCompartment places a delivery into a free compartment matching the
// cargo's temperature needs and returns the generated access code.
func (n *Network) AssignCompartment(lockerID, deliveryID string, cargo model.Cargo, code string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.lockers[lockerID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrLockerNotFound, lockerID)
	}
	for i := range l.Compartments {
		c := &l.Compartments[i]
		if c.Occupied || c.VolumeLiters < cargo.VolumeLiters {
			continue
		}
		if cargo.TempControlled() && !cargo.TempInRange(c.TargetTempC) {
			continue
		}
		c.Occupied = true
		c.DeliveryID = deliveryID
		n.codes[lockerID+"/"+c.ID] = code
		return c.ID, nil
	}
	return "", fmt.Errorf("%w: no free compartment in %s", ErrCompartmentOccupied, lockerID)
}

// Open validates the credential, opens the compartment and appends the
// access event. Failed attempts land in the security log.
func (n *Network) Open(lockerID, compartmentID, credential string, method model.AccessMethod, actor string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.lockers[lockerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockerNotFound, lockerID)
	}
	c := findCompartment(l, compartmentID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCompartmentNotFound, compartmentID)
	}
	if want := n.codes[lockerID+"/"+compartmentID]; want == "" || want != credential {
		n.security[lockerID] = append(n.security[lockerID], model.SecurityEvent{
			Kind:      "access_denied",
			Detail:    fmt.Sprintf("compartment %s, method %s, actor %s", compartmentID, method, actor),
			Timestamp: n.now(),
		})
		return ErrAccessDenied
	}
	n.access[lockerID] = append(n.access[lockerID], model.AccessEvent{
		CompartmentID: compartmentID,
		Method:        method,
		Actor:         actor,
		Opened:        true,
		Timestamp:     n.now(),
	})
	c.Occupied = false
	c.DeliveryID = ""
	delete(n.codes, lockerID+"/"+compartmentID)
	return nil
}

// ReportTemperature ingests a compartment temperature reading. Excursions
// alert on the bus and flip the compartment to backup cooling.
func (n *Network) ReportTemperature(lockerID, compartmentID string, tempC float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.lockers[lockerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockerNotFound, lockerID)
	}
	c := findCompartment(l, compartmentID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCompartmentNotFound, compartmentID)
	}
	c.CurrentTempC = tempC
	if !c.InExcursion() {
		return nil
	}
	n.log.Warnf("locker %s compartment %s excursion: %.1fC target %.1fC", lockerID, compartmentID, tempC, c.TargetTempC)
	if n.bus != nil {
		n.bus.Publish(events.TemperatureExcursion{
			DeliveryID:    c.DeliveryID,
			CompartmentID: compartmentID,
			TempC:         tempC,
			At:            n.now(),
		})
	}
	if !c.BackupCooling {
		c.BackupCooling = true
		n.security[lockerID] = append(n.security[lockerID], model.SecurityEvent{
			Kind:      "cooling_failover",
			Detail:    fmt.Sprintf("compartment %s switched to backup cooling at %.1fC", compartmentID, tempC),
			Timestamp: n.now(),
		})
		if n.bus != nil {
			n.bus.Publish(events.LockerFailover{
				LockerID:      lockerID,
				CompartmentID: compartmentID,
				Reason:        "temperature excursion",
				At:            n.now(),
			})
		}
	}
	return nil
}

// AccessLog returns the locker's append-only access log.
func (n *Network) AccessLog(lockerID string) []model.AccessEvent {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]model.AccessEvent(nil), n.access[lockerID]...)
}

// SecurityLog returns the locker's security-event log.
func (n *Network) SecurityLog(lockerID string) []model.SecurityEvent {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]model.SecurityEvent(nil), n.security[lockerID]...)
}

func findCompartment(l *model.SmartLocker, id string) *model.LockerCompartment {
	for i := range l.Compartments {
		if l.Compartments[i].ID == id {
			return &l.Compartments[i]
		}
	}
	return nil
}
