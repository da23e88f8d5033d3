package airspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

// ErrClearanceDenied is returned when the airspace authority refuses an
// emergency clearance request.
var ErrClearanceDenied = errors.New("airspace: clearance denied")

// ClearanceStatus is the lifecycle of an airspace clearance request.
type ClearanceStatus int

const (
	ClearancePending ClearanceStatus = iota
	ClearanceApproved
	ClearanceDenied
	ClearanceExpired
)

// String returns a human-readable representation of the clearance status.
func (s ClearanceStatus) String() string {
	switch s {
	case ClearancePending:
		return "pending"
	case ClearanceApproved:
		return "approved"
	case ClearanceDenied:
		return "denied"
	case ClearanceExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Clearance is a time-boxed authorization to fly through a restricted zone.
type Clearance struct {
	Code          string          `json:"code"`
	DeliveryID    string          `json:"delivery_id"`
	RestrictionID string          `json:"restriction_id"`
	Status        ClearanceStatus `json:"status"`
	IssuedAt      time.Time       `json:"issued_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Justification string          `json:"justification,omitempty"`
}

// Authority brokers clearance requests with the external airspace authority.
// Tests inject fakes returning fixed decisions.
type Authority interface {
	RequestClearance(ctx context.Context, restrictionID, deliveryID, justification string) (ClearanceStatus, error)
}

// Verdict is the result of a route compliance check.
type Verdict struct {
	Clear bool `json:"clear"`
	// Blocking lists prohibited restrictions with no matching exemption.
	Blocking []model.FlightRestriction `json:"blocking,omitempty"`
	// Exemptible lists prohibited restrictions the request may clear via
	// an emergency clearance.
	Exemptible []model.FlightRestriction `json:"exemptible,omitempty"`
	// Advisories lists crossed restricted/advisory zones that do not block
	// dispatch but are recorded with the route.
	Advisories []model.FlightRestriction `json:"advisories,omitempty"`
}

// RestrictionIDs returns every crossed restriction id, for route records.
func (v Verdict) RestrictionIDs() []string {
	var ids []string
	for _, set := range [][]model.FlightRestriction{v.Blocking, v.Exemptible, v.Advisories} {
		for _, fr := range set {
			ids = append(ids, fr.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Gate holds active flight restrictions and brokers clearance requests. The
// restriction set is read-mostly; refreshes swap it atomically under the
// write lock.
type Gate struct {
	mu           sync.RWMutex
	restrictions map[string]model.FlightRestriction
	clearances   map[string]Clearance
	authority    Authority
	clearanceTTL time.Duration
	now          func() time.Time
}

// NewGate builds a gate over the given authority. clearanceTTL bounds how
// long an approved clearance remains usable; zero falls back to 30 minutes.
func NewGate(authority Authority, clearanceTTL time.Duration) *Gate {
	if clearanceTTL <= 0 {
		clearanceTTL = 30 * time.Minute
	}
	return &Gate{
		restrictions: make(map[string]model.FlightRestriction),
		clearances:   make(map[string]Clearance),
		authority:    authority,
		clearanceTTL: clearanceTTL,
		now:          time.Now,
	}
}

// SetClock overrides the gate clock. Used by tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// PutRestriction adds or replaces a restriction.
func (g *Gate) PutRestriction(fr model.FlightRestriction) error {
	if fr.ID == "" {
		return fmt.Errorf("restriction id must not be empty")
	}
	g.mu.Lock()
	g.restrictions[fr.ID] = fr
	g.mu.Unlock()
	return nil
}

// RemoveRestriction drops a restriction.
func (g *Gate) RemoveRestriction(id string) {
	g.mu.Lock()
	delete(g.restrictions, id)
	g.mu.Unlock()
}

// Restrictions returns the active restrictions at time now.
func (g *Gate) Restrictions() []model.FlightRestriction {
	g.mu.RLock()
	defer g.mu.RUnlock()
	now := g.now()
	out := make([]model.FlightRestriction, 0, len(g.restrictions))
	for _, fr := range g.restrictions {
		if fr.ActiveAt(now) {
			out = append(out, fr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Check evaluates the planned route against active restrictions. Prohibited
// zones block dispatch unless the request carries a matching exemption tag,
// in which case they are reported as exemptible and a clearance must be
// approved before dispatch.
func (g *Gate) Check(route model.Route, exemptionTags []string) Verdict {
	var v Verdict
	legs := routeLegs(route)
	for _, fr := range g.Restrictions() {
		crossed := false
		for _, leg := range legs {
			if fr.Blocks(leg[0], leg[1]) {
				crossed = true
				break
			}
		}
		if !crossed {
			continue
		}
		switch fr.Severity {
		case model.SeverityProhibited:
			if fr.Exempts(exemptionTags) {
				v.Exemptible = append(v.Exemptible, fr)
			} else {
				v.Blocking = append(v.Blocking, fr)
			}
		default:
			v.Advisories = append(v.Advisories, fr)
		}
	}
	v.Clear = len(v.Blocking) == 0 && len(v.Exemptible) == 0
	return v
}

// RequestClearance asks the authority for expedited passage through the
// restriction and records the machine-generated clearance code. The
// clearance must be approved before the delivery may be dispatched.
func (g *Gate) RequestClearance(ctx context.Context, restrictionID, deliveryID, justification string) (Clearance, error) {
	status, err := g.authority.RequestClearance(ctx, restrictionID, deliveryID, justification)
	if err != nil {
		return Clearance{}, fmt.Errorf("airspace authority: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	c := Clearance{
		Code:          clearanceCode(),
		DeliveryID:    deliveryID,
		RestrictionID: restrictionID,
		Status:        status,
		IssuedAt:      now,
		ExpiresAt:     now.Add(g.clearanceTTL),
		Justification: justification,
	}
	g.clearances[c.Code] = c
	if status != ClearanceApproved {
		return c, fmt.Errorf("%w: restriction %s", ErrClearanceDenied, restrictionID)
	}
	return c, nil
}

// Clearance looks up a clearance by code, expiring it lazily.
func (g *Gate) Clearance(code string) (Clearance, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.clearances[code]
	if !ok {
		return Clearance{}, false
	}
	if c.Status == ClearanceApproved && g.now().After(c.ExpiresAt) {
		c.Status = ClearanceExpired
		g.clearances[code] = c
	}
	return c, true
}

func clearanceCode() string {
	return "CLR-" + strings.ToUpper(uuid.NewString()[:8])
}

func routeLegs(r model.Route) [][2]geo.Point {
	pts := append([]geo.Point{r.Origin}, r.Waypoints...)
	pts = append(pts, r.Destination)
	legs := make([][2]geo.Point, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		legs = append(legs, [2]geo.Point{pts[i-1], pts[i]})
	}
	return legs
}
