package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/medfleet/core/airspace"
	"github.com/carelink/medfleet/core/command"
	"github.com/carelink/medfleet/core/events"
	"github.com/carelink/medfleet/core/fleet"
	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/logger"
	"github.com/carelink/medfleet/core/metrics"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/core/route"
	"github.com/carelink/medfleet/core/weather"
	"github.com/carelink/medfleet/internal/eventbus"
)

// errCandidateUnfit marks a candidate that cannot serve this request
// (range shortfall after routing, launch ack failure). The scheduler moves
// to the next candidate without terminating the request.
var errCandidateUnfit = errors.New("candidate unfit")

// DeliveryStore receives committed deliveries. Implemented by the tracker.
type DeliveryStore interface {
	Admit(model.Delivery) error
}

// Scheduler is the central coordinator: it accepts delivery requests, ranks
// them by priority, selects an eligible vehicle and orchestrates the
// weather, airspace and routing gates before committing a dispatch.
type Scheduler struct {
	registry  *fleet.Registry
	weather   *weather.Advisory
	airspace  *airspace.Gate
	routes    *route.Optimizer
	publisher command.Publisher
	store     DeliveryStore

	cfg     Config
	queue   *requestQueue
	log     logger.Logger
	metrics metrics.Sink
	bus     *eventbus.Bus
	now     func() time.Time
}

// NewScheduler creates a scheduler. All collaborators are required except
// sink, which may be nil.
func NewScheduler(reg *fleet.Registry, wx *weather.Advisory, gate *airspace.Gate, opt *route.Optimizer, pub command.Publisher, store DeliveryStore, cfg Config, log logger.Logger, sink metrics.Sink, bus *eventbus.Bus) (*Scheduler, error) {
	if reg == nil || wx == nil || gate == nil || opt == nil || pub == nil || store == nil || bus == nil {
		return nil, fmt.Errorf("dispatch: nil collaborator provided to NewScheduler")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Scheduler{
		registry:  reg,
		weather:   wx,
		airspace:  gate,
		routes:    opt,
		publisher: pub,
		store:     store,
		cfg:       cfg,
		queue:     newRequestQueue(cfg.QueueCapacity),
		log:       log,
		metrics:   sink,
		bus:       bus,
		now:       time.Now,
	}, nil
}

// SetClock overrides the scheduler clock. Used by tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run processes queued requests until the context is canceled. Requests are
// served strictly in priority order, FIFO within a level; the routine path
// consults its gates sequentially to avoid wasted compute.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.wake:
			for {
				p := s.queue.pop()
				if p == nil {
					break
				}
				del, err := s.schedule(ctx, p.req)
				p.done <- outcome{delivery: del, err: err}
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// Submit validates and enqueues a request, blocking until it is scheduled or
// rejected. The returned error is a *Rejection for terminal denials.
func (s *Scheduler) Submit(ctx context.Context, req model.DeliveryRequest) (model.Delivery, error) {
	if err := req.Validate(); err != nil {
		return model.Delivery{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = s.now()
	}
	p := &pending{req: req, done: make(chan outcome, 1)}
	if !s.queue.push(p) {
		return model.Delivery{}, NewRejection(ErrDispatchTimeout)
	}
	select {
	case out := <-p.done:
		return out.delivery, out.err
	case <-ctx.Done():
		return model.Delivery{}, ctx.Err()
	}
}

// QueueDepth returns the number of requests awaiting a scheduling slot.
func (s *Scheduler) QueueDepth() int { return s.queue.len() }

// schedule runs one bounded scheduling attempt: filter, rank, reserve,
// gate, commit. Retryable failures move on to the next candidate up to the
// configured retry budget; terminal denials convert into a Rejection.
func (s *Scheduler) schedule(ctx context.Context, req model.DeliveryRequest) (model.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.AttemptTimeoutSeconds)*time.Second)
	defer cancel()

	deliveryID := uuid.NewString()
	cands := s.registry.Candidates(req.Destination, req.Cargo)
	if fr, ok := s.metrics.(metrics.FleetSizeRecorder); ok && s.metrics != nil {
		if err := fr.RecordFleetSize(len(cands)); err != nil {
			s.log.Errorf("fleet size metrics: %v", err)
		}
	}
	if len(cands) == 0 {
		return model.Delivery{}, s.reject(req, s.noCandidateReason(req))
	}
	cands = s.rank(cands, req)

	retries := 0
	for _, cand := range cands {
		if ctx.Err() != nil {
			return model.Delivery{}, s.reject(req, ErrDispatchTimeout)
		}
		if !s.rangeSufficient(cand, req, s.estimatedTripKm(cand, req)) {
			continue
		}
		if err := s.registry.Reserve(cand.ID, deliveryID); err != nil {
			// Lost the atomic race; the next-ranked candidate may still
			// be free.
			s.log.Debugf("reserve %s: %v", cand.ID, err)
			retries++
			if retries > s.cfg.MaxRetries {
				break
			}
			continue
		}
		del, err := s.gateAndCommit(ctx, req, cand, deliveryID, false, "", "")
		if err == nil {
			return del, nil
		}
		if rerr := s.registry.Release(cand.ID); rerr != nil {
			s.log.Errorf("release %s: %v", cand.ID, rerr)
		}
		if errors.Is(err, errCandidateUnfit) {
			s.log.Warnf("candidate %s unfit for %s: %v", cand.ID, req.ID, err)
			continue
		}
		if Retryable(err) {
			retries++
			if retries > s.cfg.MaxRetries {
				return model.Delivery{}, s.reject(req, ErrDispatchTimeout)
			}
			continue
		}
		// Terminal for this request: weather and airspace denials do not
		// improve with a different vehicle.
		return model.Delivery{}, s.reject(req, err)
	}
	return model.Delivery{}, s.reject(req, ErrNoAvailableVehicle)
}

// noCandidateReason distinguishes "nothing free right now" from "no vehicle
// could ever carry this cargo".
func (s *Scheduler) noCandidateReason(req model.DeliveryRequest) error {
	for _, v := range s.registry.Vehicles() {
		if v.CanCarry(req.Cargo) {
			return ErrNoAvailableVehicle
		}
	}
	return ErrPayloadExceedsCapacity
}

// rank orders candidates by fewest wasted capacity units, then soonest
// availability (time to reach the pickup), then shortest distance, with the
// vehicle ID as the deterministic tie-break.
func (s *Scheduler) rank(cands []model.Vehicle, req model.DeliveryRequest) []model.Vehicle {
	type scored struct {
		v     model.Vehicle
		waste float64
		eta   float64
		dist  float64
	}
	items := make([]scored, 0, len(cands))
	for _, v := range cands {
		d := geo.DistanceKm(v.Location, req.Origin)
		items = append(items, scored{
			v:     v,
			waste: v.WastedCapacity(req.Cargo),
			eta:   d / v.AvgSpeedKmh,
			dist:  d,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].waste != items[j].waste {
			return items[i].waste < items[j].waste
		}
		if items[i].eta != items[j].eta {
			return items[i].eta < items[j].eta
		}
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].v.ID < items[j].v.ID
	})
	out := make([]model.Vehicle, len(items))
	for i, it := range items {
		out[i] = it.v
	}
	return out
}

// estimatedTripKm is the straight-line pickup + delivery + return-to-base
// distance used for pre-reservation filtering.
func (s *Scheduler) estimatedTripKm(v model.Vehicle, req model.DeliveryRequest) float64 {
	trip := geo.DistanceKm(v.Location, req.Origin) + geo.DistanceKm(req.Origin, req.Destination)
	if f, err := s.registry.Fleet(v.FleetID); err == nil {
		trip += geo.DistanceKm(req.Destination, f.BaseLocation)
	}
	return trip
}

func (s *Scheduler) rangeSufficient(v model.Vehicle, req model.DeliveryRequest, tripKm float64) bool {
	return v.RemainingRangeKm() >= tripKm*(1+s.cfg.RangeSafetyMargin)
}

// gateAndCommit runs the weather, routing and airspace gates for a reserved
// vehicle and, when all pass, launches and hands the delivery to the
// tracker. overrideAuthority and ticketID are non-empty only on the
// escalation lane: the first when a logged weather override applies, the
// second tying the admitted delivery back to its escalation ticket.
func (s *Scheduler) gateAndCommit(ctx context.Context, req model.DeliveryRequest, v model.Vehicle, deliveryID string, emergency bool, overrideAuthority, ticketID string) (model.Delivery, error) {
	var lat []metrics.GateLatency
	record := func(gate string, start time.Time) {
		lat = append(lat, metrics.GateLatency{
			Gate:       gate,
			DeliveryID: deliveryID,
			Emergency:  emergency,
			Latency:    time.Since(start),
		})
	}

	wxStart := time.Now()
	snap, err := s.weather.Snapshot(ctx, req.Origin)
	record("weather", wxStart)
	if err != nil {
		return model.Delivery{}, fmt.Errorf("%w: %v", errCandidateUnfit, err)
	}
	gates := model.GateDecisions{
		WeatherSuitable:  snap.Suitable,
		WeatherRisk:      snap.Risk.String(),
		WeatherCheckedAt: snap.FetchedAt,
	}
	if !snap.Suitable {
		if overrideAuthority == "" || !weather.Borderline(snap) {
			return model.Delivery{}, ErrWeatherUnsuitable
		}
		gates.WeatherOverride = fmt.Sprintf("risk %s overridden: %s", snap.Risk, req.PatientContext)
		gates.OverrideAuthority = overrideAuthority
		s.bus.Publish(events.WeatherOverridden{
			DeliveryID:    deliveryID,
			Authority:     overrideAuthority,
			Justification: req.PatientContext,
			Risk:          snap.Risk,
			At:            s.now(),
		})
	}

	avoid := s.avoidable(req)
	rtStart := time.Now()
	planned, err := s.routes.Optimize(ctx, req.Origin, req.Destination, avoid, snap)
	record("route", rtStart)
	if err != nil {
		if errors.Is(err, route.ErrNoPath) {
			return model.Delivery{}, ErrAirspaceRestricted
		}
		return model.Delivery{}, fmt.Errorf("%w: %v", errCandidateUnfit, err)
	}

	asStart := time.Now()
	verdict := s.airspace.Check(planned, req.ExemptionTags)
	record("airspace", asStart)
	gates.AirspaceClear = verdict.Clear
	gates.RestrictionIDs = verdict.RestrictionIDs()
	if len(verdict.Blocking) > 0 {
		return model.Delivery{}, ErrAirspaceRestricted
	}
	for _, fr := range verdict.Exemptible {
		clr, err := s.airspace.RequestClearance(ctx, fr.ID, deliveryID, "medical exemption: "+req.Cargo.Description)
		if err != nil {
			return model.Delivery{}, fmt.Errorf("%w: %s", ErrComplianceViolation, fr.ID)
		}
		gates.ClearanceCode = clr.Code
	}

	// Re-verify range against the planned route, not the straight line.
	tripKm := geo.DistanceKm(v.Location, req.Origin) + planned.DistanceKm
	if f, err := s.registry.Fleet(v.FleetID); err == nil {
		tripKm += geo.DistanceKm(req.Destination, f.BaseLocation)
	}
	if !s.rangeSufficient(v, req, tripKm) {
		return model.Delivery{}, fmt.Errorf("%w: range %0.1f km short of %0.1f km trip", errCandidateUnfit, v.RemainingRangeKm(), tripKm)
	}

	del := model.Delivery{
		ID:              deliveryID,
		RequestID:       req.ID,
		VehicleID:       v.ID,
		FleetID:         v.FleetID,
		Cargo:           req.Cargo,
		Priority:        req.Priority,
		Status:          model.DeliveryScheduled,
		Route:           planned,
		ScheduledAt:     s.now(),
		Requester:       req.Requester,
		Cost:            s.estimateCost(planned, req),
		Gates:           gates,
		EmergencyTicket: ticketID,
	}

	launchStart := time.Now()
	ok, err := s.launch(v.ID, del)
	record("launch", launchStart)
	if err != nil || !ok {
		return model.Delivery{}, fmt.Errorf("%w: launch ack: %v", errCandidateUnfit, err)
	}

	del.Status = model.DeliveryDispatched
	del.DispatchedAt = s.now()
	pickup := geo.DistanceKm(v.Location, req.Origin)
	del.ETA = del.DispatchedAt.Add(time.Duration((pickup + planned.DistanceKm) / v.AvgSpeedKmh * float64(time.Hour)))

	if err := s.registry.Transition(v.ID, model.VehicleInTransit); err != nil {
		s.log.Errorf("transition %s in_transit: %v", v.ID, err)
	}
	if err := s.store.Admit(del); err != nil {
		return model.Delivery{}, fmt.Errorf("admit delivery: %w", err)
	}

	s.bus.Publish(events.DeliveryScheduled{
		DeliveryID: del.ID,
		VehicleID:  v.ID,
		Priority:   del.Priority,
		Emergency:  emergency,
		ETA:        del.ETA,
	})
	s.recordOutcome(del, emergency, lat)
	s.log.Infof("delivery %s dispatched on %s, eta %s", del.ID, v.ID, del.ETA.Format(time.RFC3339))
	return del, nil
}

// avoidable lists prohibited zones the request carries no exemption for;
// the route engine must plan around them.
func (s *Scheduler) avoidable(req model.DeliveryRequest) []model.FlightRestriction {
	var avoid []model.FlightRestriction
	for _, fr := range s.airspace.Restrictions() {
		if fr.Severity == model.SeverityProhibited && !fr.Exempts(req.ExemptionTags) {
			avoid = append(avoid, fr)
		}
	}
	return avoid
}

func (s *Scheduler) launch(vehicleID string, del model.Delivery) (bool, error) {
	cmdID, err := s.publisher.SendLaunch(vehicleID, command.LaunchOrder{
		DeliveryID: del.ID,
		Route:      del.Route,
		Priority:   del.Priority,
	})
	if err != nil {
		return false, err
	}
	return s.publisher.WaitForAck(cmdID, time.Duration(s.cfg.AckTimeoutSeconds)*time.Second)
}

func (s *Scheduler) estimateCost(r model.Route, req model.DeliveryRequest) model.CostEstimate {
	c := model.CostEstimate{
		DistanceKm:  r.DistanceKm,
		BaseFee:     s.cfg.Cost.BaseFee,
		DistanceFee: r.DistanceKm * s.cfg.Cost.PerKmFee,
		Currency:    s.cfg.Cost.Currency,
	}
	c.PrioritySurcharge = float64(req.Priority) * s.cfg.Cost.PriorityFactor * c.BaseFee
	if req.Cargo.TempControlled() {
		c.TempSurcharge = s.cfg.Cost.TempControlledFee
	}
	c.Total = c.BaseFee + c.DistanceFee + c.PrioritySurcharge + c.TempSurcharge
	return c
}

func (s *Scheduler) reject(req model.DeliveryRequest, err error) *Rejection {
	rej := NewRejection(err)
	s.bus.Publish(events.DeliveryRejected{
		RequestID: req.ID,
		Reason:    rej.ReasonCode,
		Priority:  req.Priority,
	})
	if s.metrics != nil {
		rec := metrics.DispatchOutcome{
			Priority: req.Priority,
			Outcome:  "rejected",
			Reason:   rej.ReasonCode,
			Time:     s.now(),
		}
		if err := s.metrics.RecordDispatchOutcome([]metrics.DispatchOutcome{rec}); err != nil {
			s.log.Errorf("outcome metrics: %v", err)
		}
	}
	s.log.Warnf("request %s rejected: %s", req.ID, rej.ReasonCode)
	return rej
}

func (s *Scheduler) recordOutcome(del model.Delivery, emergency bool, lat []metrics.GateLatency) {
	if s.metrics == nil {
		return
	}
	rec := metrics.DispatchOutcome{
		DeliveryID: del.ID,
		VehicleID:  del.VehicleID,
		FleetID:    del.FleetID,
		Priority:   del.Priority,
		Outcome:    "scheduled",
		Emergency:  emergency,
		Time:       s.now(),
	}
	if err := s.metrics.RecordDispatchOutcome([]metrics.DispatchOutcome{rec}); err != nil {
		s.log.Errorf("outcome metrics: %v", err)
	}
	if lr, ok := s.metrics.(metrics.GateLatencyRecorder); ok {
		if err := lr.RecordGateLatency(lat); err != nil {
			s.log.Errorf("latency metrics: %v", err)
		}
	}
}
