package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/medfleet/core/events"
	"github.com/carelink/medfleet/core/model"
)

// ErrNotEmergency is returned when a routine request enters the escalation
// lane.
var ErrNotEmergency = errors.New("dispatch: request priority is not emergency grade")

// Notifier delivers emergency notifications to an external endpoint.
// Implementations wrap paging/webhook integrations; tests record calls.
type Notifier interface {
	Notify(ctx context.Context, endpoint string, payload any) error
}

// Ticket identifies an escalation-lane admission.
type Ticket struct {
	ID            string         `json:"id"`
	RequestID     string         `json:"request_id"`
	Priority      model.Priority `json:"priority"`
	ClearanceCode string         `json:"clearance_code,omitempty"`
	OpenedAt      time.Time      `json:"opened_at"`
}

// EmergencyNotification is the payload fanned out to emergency-service
// endpoints and the destination facility, in parallel with dispatch.
type EmergencyNotification struct {
	TicketID   string    `json:"ticket_id"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Priority   string    `json:"priority"`
	Cargo      string    `json:"cargo"`
	ETA        time.Time `json:"eta,omitempty"`
	Aborted    bool      `json:"aborted,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// EscalationLane is the parallel, higher-priority path for life-critical
// requests. It bypasses the queue, consults the gates concurrently, may
// obtain expedited airspace clearance, and can proceed on a borderline
// weather verdict when a configured clinical authority logs an override.
type EscalationLane struct {
	sched    *Scheduler
	notifier Notifier
	cfg      EmergencyConfig
}

// NewEscalationLane wires the lane over the scheduler's collaborators.
func NewEscalationLane(sched *Scheduler, notifier Notifier) (*EscalationLane, error) {
	if sched == nil {
		return nil, fmt.Errorf("dispatch: nil scheduler provided to NewEscalationLane")
	}
	return &EscalationLane{sched: sched, notifier: notifier, cfg: sched.cfg.Emergency}, nil
}

// Submit admits a critical or life_threatening request. The vehicle search
// and the weather prefetch run concurrently to minimise latency; the
// notification fan-out runs in parallel with dispatch, not after it.
func (l *EscalationLane) Submit(ctx context.Context, req model.DeliveryRequest) (Ticket, model.Delivery, error) {
	if !req.Priority.Emergency() {
		return Ticket{}, model.Delivery{}, ErrNotEmergency
	}
	if err := req.Validate(); err != nil {
		return Ticket{}, model.Delivery{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = l.sched.now()
	}
	if req.Deadline.IsZero() {
		req.Deadline = req.RequestedAt.Add(time.Duration(l.cfg.GoldenHourMinutes) * time.Minute)
	}
	if !req.HasExemption(l.cfg.ExemptionTag) {
		req.ExemptionTags = append(req.ExemptionTags, l.cfg.ExemptionTag)
	}

	ticket := Ticket{
		ID:        "EMG-" + uuid.NewString()[:8],
		RequestID: req.ID,
		Priority:  req.Priority,
		OpenedAt:  l.sched.now(),
	}
	l.sched.bus.Publish(events.EmergencyDeclared{
		TicketID:  ticket.ID,
		RequestID: req.ID,
		Priority:  req.Priority,
		At:        ticket.OpenedAt,
	})

	ctx, cancel := context.WithTimeout(ctx, time.Duration(l.sched.cfg.AttemptTimeoutSeconds)*time.Second)
	defer cancel()

	// Warm the gates while the candidate search runs: the snapshot lands
	// in the advisory cache and the commit path reuses it within the
	// freshness window.
	var (
		wg    sync.WaitGroup
		cands []model.Vehicle
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := l.sched.weather.Snapshot(ctx, req.Origin); err != nil {
			l.sched.log.Warnf("emergency weather prefetch: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		cands = l.sched.rank(l.sched.registry.Candidates(req.Destination, req.Cargo), req)
	}()
	wg.Wait()

	if len(cands) == 0 {
		err := l.sched.reject(req, l.sched.noCandidateReason(req))
		l.notifyAll(EmergencyNotification{
			TicketID: ticket.ID,
			Priority: req.Priority.String(),
			Cargo:    req.Cargo.Description,
			Reason:   err.ReasonCode,
		})
		return ticket, model.Delivery{}, err
	}

	override := l.overrideAuthority(req)
	deliveryID := uuid.NewString()
	retries := 0
	for _, cand := range cands {
		if ctx.Err() != nil {
			return ticket, model.Delivery{}, l.sched.reject(req, ErrDispatchTimeout)
		}
		if !l.sched.rangeSufficient(cand, req, l.sched.estimatedTripKm(cand, req)) {
			continue
		}
		if err := l.sched.registry.Reserve(cand.ID, deliveryID); err != nil {
			retries++
			if retries > l.sched.cfg.MaxRetries {
				break
			}
			continue
		}
		del, err := l.sched.gateAndCommit(ctx, req, cand, deliveryID, true, override, ticket.ID)
		if err == nil {
			ticket.ClearanceCode = del.Gates.ClearanceCode
			l.notifyAll(EmergencyNotification{
				TicketID:   ticket.ID,
				DeliveryID: del.ID,
				Priority:   del.Priority.String(),
				Cargo:      del.Cargo.Description,
				ETA:        del.ETA,
			})
			return ticket, del, nil
		}
		if rerr := l.sched.registry.Release(cand.ID); rerr != nil {
			l.sched.log.Errorf("release %s: %v", cand.ID, rerr)
		}
		if errors.Is(err, errCandidateUnfit) {
			continue
		}
		if Retryable(err) {
			retries++
			if retries > l.sched.cfg.MaxRetries {
				return ticket, model.Delivery{}, l.sched.reject(req, ErrDispatchTimeout)
			}
			continue
		}
		rej := l.sched.reject(req, err)
		l.notifyAll(EmergencyNotification{
			TicketID: ticket.ID,
			Priority: req.Priority.String(),
			Cargo:    req.Cargo.Description,
			Reason:   rej.ReasonCode,
		})
		return ticket, model.Delivery{}, rej
	}
	rej := l.sched.reject(req, ErrNoAvailableVehicle)
	l.notifyAll(EmergencyNotification{
		TicketID: ticket.ID,
		Priority: req.Priority.String(),
		Cargo:    req.Cargo.Description,
		Reason:   rej.ReasonCode,
	})
	return ticket, model.Delivery{}, rej
}

// overrideAuthority returns the requester identity when their role permits
// a borderline weather override, empty otherwise.
func (l *EscalationLane) overrideAuthority(req model.DeliveryRequest) string {
	for _, role := range l.cfg.OverrideRoles {
		if role == req.RequesterRole {
			return req.Requester
		}
	}
	return ""
}

// notifyAll fans the notification out to every configured endpoint without
// blocking the dispatch path.
func (l *EscalationLane) notifyAll(n EmergencyNotification) {
	if l.notifier == nil {
		return
	}
	for _, ep := range l.cfg.NotifyEndpoints {
		go func(ep string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := l.notifier.Notify(ctx, ep, n); err != nil {
				l.sched.log.Errorf("notify %s: %v", ep, err)
			}
		}(ep)
	}
}
