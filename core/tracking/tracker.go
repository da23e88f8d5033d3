package tracking

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carelink/medfleet/core/command"
	"github.com/carelink/medfleet/core/dispatch"
	"github.com/carelink/medfleet/core/events"
	"github.com/carelink/medfleet/core/fleet"
	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/logger"
	"github.com/carelink/medfleet/core/metrics"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/internal/eventbus"
)

// ErrDeliveryNotFound is returned when the tracker has no such delivery.
var ErrDeliveryNotFound = errors.New("tracking: delivery not found")

// ErrNotCancellable is returned when cancellation is requested past the
// point of no return. In-transit deliveries can only be aborted.
var ErrNotCancellable = errors.New("tracking: delivery not cancellable, abort only")

// ErrIllegalTransition is returned for a delivery state change the state
// machine does not permit.
var ErrIllegalTransition = errors.New("tracking: illegal delivery transition")

// CustodySealer seals proof-of-delivery certificates and records linked
// incident entries. Implemented by the custody ledger.
type CustodySealer interface {
	Seal(pod model.ProofOfDelivery) (model.ProofOfDelivery, error)
	RecordIncident(deliveryID, kind, detail string) error
}

// Tracker owns the lifecycle of every admitted delivery: the telemetry
// stream, the location history, ETA recomputation and the arrival
// verification gate. Deliveries are archived once terminal, never deleted.
type Tracker struct {
	mu         sync.RWMutex
	deliveries map[string]*model.Delivery

	registry  *fleet.Registry
	publisher command.Publisher
	sealer    CustodySealer
	bus       *eventbus.Bus
	log       logger.Logger
	metrics   metrics.Sink
	now       func() time.Time
}

// NewTracker creates a tracker. sink may be nil.
func NewTracker(reg *fleet.Registry, pub command.Publisher, sealer CustodySealer, bus *eventbus.Bus, log logger.Logger, sink metrics.Sink) (*Tracker, error) {
	if reg == nil || pub == nil || sealer == nil || bus == nil {
		return nil, fmt.Errorf("tracking: nil collaborator provided to NewTracker")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Tracker{
		deliveries: make(map[string]*model.Delivery),
		registry:   reg,
		publisher:  pub,
		sealer:     sealer,
		bus:        bus,
		log:        log,
		metrics:    sink,
		now:        time.Now,
	}, nil
}

// SetClock overrides the tracker clock. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Admit registers a delivery committed by the scheduler.
func (t *Tracker) Admit(del model.Delivery) error {
	if del.ID == "" {
		return fmt.Errorf("tracking: delivery id must not be empty")
	}
	if del.Status.Terminal() {
		return fmt.Errorf("tracking: cannot admit terminal delivery %s", del.ID)
	}
	t.mu.Lock()
	cp := del
	t.deliveries[del.ID] = &cp
	t.mu.Unlock()
	t.recordActive()
	return nil
}

// Get returns a copy of the delivery.
func (t *Tracker) Get(id string) (model.Delivery, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.deliveries[id]
	if !ok {
		return model.Delivery{}, fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
	}
	return *d, nil
}

// List returns a snapshot of all deliveries ordered by ID.
func (t *Tracker) List() []model.Delivery {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Delivery, 0, len(t.deliveries))
	for _, d := range t.deliveries {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyTelemetry ingests one tracking point. Points are ordered by the
// vehicle-assigned sequence number; replaying an already-seen sequence is a
// no-op so duplicate pushes never corrupt history ordering. The first point
// moves a dispatched delivery to in_transit.
func (t *Tracker) ApplyTelemetry(id string, pt model.TrackingPoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.deliveries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
	}
	if d.Status != model.DeliveryDispatched && d.Status != model.DeliveryInTransit {
		return fmt.Errorf("%w: telemetry in %s", ErrIllegalTransition, d.Status)
	}
	if len(d.History) > 0 && pt.Sequence <= d.History[len(d.History)-1].Sequence {
		return nil // idempotent replay
	}
	if pt.Timestamp.IsZero() {
		pt.Timestamp = t.now()
	}
	d.History = append(d.History, pt)

	if d.Status == model.DeliveryDispatched {
		t.setStatusLocked(d, model.DeliveryInTransit)
	}

	// Recompute ETA from the remaining leg at the reported speed.
	speed := pt.SpeedKmh
	if speed <= 0 {
		if v, err := t.registry.Vehicle(d.VehicleID); err == nil {
			speed = v.AvgSpeedKmh
		}
	}
	if speed > 0 {
		remaining := geo.DistanceKm(pt.Location, d.Route.Destination)
		d.ETA = pt.Timestamp.Add(time.Duration(remaining / speed * float64(time.Hour)))
	}

	if err := t.registry.UpdateTelemetry(d.VehicleID, pt.Location, 0, pt.SpeedKmh, pt.BatteryLevel); err != nil {
		t.log.Debugf("vehicle telemetry %s: %v", d.VehicleID, err)
	}

	if d.Cargo.TempCritical && !d.Cargo.TempInRange(pt.CargoTempC) && !d.TempBreached {
		d.TempBreached = true
		t.bus.Publish(events.TemperatureExcursion{
			DeliveryID: d.ID,
			TempC:      pt.CargoTempC,
			At:         pt.Timestamp,
		})
		if err := t.sealer.RecordIncident(d.ID, "temperature_excursion",
			fmt.Sprintf("cargo at %.1fC outside %.1f..%.1fC", pt.CargoTempC, d.Cargo.MinTempC, d.Cargo.MaxTempC)); err != nil {
			t.log.Errorf("incident record %s: %v", d.ID, err)
		}
		t.log.Warnf("delivery %s temperature excursion: %.1fC", d.ID, pt.CargoTempC)
	}

	if tr, ok := t.metrics.(metrics.TelemetryRecorder); ok && t.metrics != nil {
		if err := tr.RecordTrackingPoint(d.ID, d.VehicleID, pt); err != nil {
			t.log.Errorf("telemetry metrics: %v", err)
		}
	}
	return nil
}

// Arrive moves an in-transit delivery to arrived and starts the vehicle's
// return leg. Cargo condition verification happens at proof submission.
func (t *Tracker) Arrive(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.deliveries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
	}
	if !d.Status.CanTransitionTo(model.DeliveryArrived) {
		return fmt.Errorf("%w: arrive from %s", ErrIllegalTransition, d.Status)
	}
	t.setStatusLocked(d, model.DeliveryArrived)
	if err := t.registry.Transition(d.VehicleID, model.VehicleReturning); err != nil {
		t.log.Errorf("vehicle %s returning: %v", d.VehicleID, err)
	}
	return nil
}

// SubmitProof verifies recipient identity, location and cargo condition and
// seals the certificate. A failed check, or a recorded in-flight
// temperature breach on temperature-critical cargo, lands the delivery in
// delivery_failed with a linked incident instead.
func (t *Tracker) SubmitProof(pod model.ProofOfDelivery) (model.ProofOfDelivery, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.deliveries[pod.DeliveryID]
	if !ok {
		return model.ProofOfDelivery{}, fmt.Errorf("%w: %s", ErrDeliveryNotFound, pod.DeliveryID)
	}
	if d.Status != model.DeliveryArrived {
		return model.ProofOfDelivery{}, fmt.Errorf("%w: proof in %s", ErrIllegalTransition, d.Status)
	}
	if pod.Timestamp.IsZero() {
		pod.Timestamp = t.now()
	}
	pod.Condition.TemperatureOK = d.Cargo.TempInRange(pod.Condition.TemperatureC)

	reason := ""
	switch {
	case pod.RecipientID == "":
		reason = "recipient identity missing"
	case d.TempBreached && d.Cargo.TempCritical:
		// A breach observed in flight is never masked by a clean reading
		// at the door.
		reason = "in-flight temperature excursion on temperature-critical cargo"
	case !pod.Condition.TemperatureOK:
		reason = fmt.Sprintf("cargo at %.1fC outside required range", pod.Condition.TemperatureC)
	case !pod.Condition.PackagingIntact:
		reason = "packaging damaged"
	case !pod.Condition.QuantityComplete:
		reason = "quantity incomplete"
	}
	if reason != "" {
		t.setStatusLocked(d, model.DeliveryFailed)
		t.recordActiveLocked()
		if err := t.sealer.RecordIncident(d.ID, "proof_verification_failed", reason); err != nil {
			t.log.Errorf("incident record %s: %v", d.ID, err)
		}
		if d.TempBreached && d.Cargo.TempCritical {
			return model.ProofOfDelivery{}, fmt.Errorf("%w: %s", dispatch.ErrTemperatureExcursion, reason)
		}
		return model.ProofOfDelivery{}, fmt.Errorf("%w: %s", dispatch.ErrProofVerificationFailed, reason)
	}

	sealed, err := t.sealer.Seal(pod)
	if err != nil {
		return model.ProofOfDelivery{}, fmt.Errorf("seal proof: %w", err)
	}
	t.setStatusLocked(d, model.DeliveryDelivered)
	d.DeliveredAt = pod.Timestamp
	t.recordActiveLocked()
	t.log.Infof("delivery %s delivered, certificate %s", d.ID, sealed.Certificate)
	return sealed, nil
}

// Abort handles an in-flight failure: the vehicle is ordered home on its
// emergency protocol and quarantined, the delivery becomes aborted, and the
// requester is notified immediately through the bus. The cargo may be
// rescheduled as a new request.
func (t *Tracker) Abort(id string, protocol fleet.AbortProtocol, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.deliveries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
	}
	if !d.Status.CanTransitionTo(model.DeliveryAborted) {
		return fmt.Errorf("%w: abort from %s", ErrIllegalTransition, d.Status)
	}
	if _, err := t.publisher.SendAbort(d.VehicleID, command.AbortOrder{
		DeliveryID: d.ID,
		Protocol:   protocol.String(),
		Reason:     reason,
	}); err != nil {
		t.log.Errorf("abort order %s: %v", d.VehicleID, err)
	}
	if err := t.registry.Abort(d.VehicleID, protocol); err != nil {
		return err
	}
	t.setStatusLocked(d, model.DeliveryAborted)
	if err := t.sealer.RecordIncident(d.ID, "in_flight_abort", reason); err != nil {
		t.log.Errorf("incident record %s: %v", d.ID, err)
	}
	t.bus.Publish(events.DeliveryAborted{
		DeliveryID: d.ID,
		VehicleID:  d.VehicleID,
		Protocol:   protocol.String(),
		Reason:     reason,
		At:         t.now(),
	})
	t.recordActiveLocked()
	return nil
}

// Cancel withdraws a delivery that has not launched. The scheduler only
// admits deliveries after the launch ack, so this path serves deliveries
// staged ahead of launch by external admitters (operator consoles, batch
// planners) at scheduled or compliance_check. The only side effect is
// releasing the vehicle reservation.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.deliveries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
	}
	switch d.Status {
	case model.DeliveryScheduled, model.DeliveryComplianceCheck:
	default:
		return fmt.Errorf("%w: status %s", ErrNotCancellable, d.Status)
	}
	if err := t.registry.Release(d.VehicleID); err != nil {
		t.log.Errorf("release %s: %v", d.VehicleID, err)
	}
	t.setStatusLocked(d, model.DeliveryCancelled)
	t.recordActiveLocked()
	return nil
}

// VehicleDocked completes a vehicle's return leg: aborted vehicles are
// quarantined for inspection, ordinary returns go back to available.
func (t *Tracker) VehicleDocked(vehicleID string) error {
	v, err := t.registry.Vehicle(vehicleID)
	if err != nil {
		return err
	}
	if v.Status != model.VehicleReturning {
		return fmt.Errorf("%w: dock from %s", ErrIllegalTransition, v.Status)
	}
	if t.lastAborted(vehicleID) {
		return t.registry.Quarantine(vehicleID)
	}
	return t.registry.Transition(vehicleID, model.VehicleAvailable)
}

func (t *Tracker) lastAborted(vehicleID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var last *model.Delivery
	for _, d := range t.deliveries {
		if d.VehicleID != vehicleID {
			continue
		}
		if last == nil || d.ScheduledAt.After(last.ScheduledAt) {
			last = d
		}
	}
	return last != nil && last.Status == model.DeliveryAborted
}

func (t *Tracker) setStatusLocked(d *model.Delivery, next model.DeliveryStatus) {
	from := d.Status
	d.Status = next
	t.bus.Publish(events.DeliveryStatusChanged{
		DeliveryID: d.ID,
		From:       from,
		To:         next,
		At:         t.now(),
	})
}

func (t *Tracker) recordActive() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.recordActiveLocked()
}

func (t *Tracker) recordActiveLocked() {
	ar, ok := t.metrics.(metrics.ActiveDeliveriesRecorder)
	if !ok || t.metrics == nil {
		return
	}
	n := 0
	for _, d := range t.deliveries {
		if !d.Status.Terminal() {
			n++
		}
	}
	if err := ar.RecordActiveDeliveries(n); err != nil {
		t.log.Errorf("active deliveries metrics: %v", err)
	}
}
