package airspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

type fakeAuthority struct {
	status ClearanceStatus
	err    error
	calls  int
}

func (f *fakeAuthority) RequestClearance(_ context.Context, _, _, _ string) (ClearanceStatus, error) {
	f.calls++
	return f.status, f.err
}

var (
	origin = geo.Point{Lat: 48.80, Lon: 2.0}
	dest   = geo.Point{Lat: 48.80, Lon: 3.0}
	onPath = geo.Point{Lat: 48.80, Lon: 2.5}
)

func directRoute() model.Route {
	return model.Route{Origin: origin, Destination: dest}
}

func zone(id string, sev model.RestrictionSeverity, exemptions ...string) model.FlightRestriction {
	return model.FlightRestriction{
		ID:         id,
		Severity:   sev,
		Zone:       &geo.Circle{Center: onPath, RadiusKm: 5},
		Exemptions: exemptions,
	}
}

func TestCheckBlocking(t *testing.T) {
	g := NewGate(&fakeAuthority{status: ClearanceApproved}, 0)
	if err := g.PutRestriction(zone("nfz-1", model.SeverityProhibited)); err != nil {
		t.Fatal(err)
	}
	v := g.Check(directRoute(), nil)
	if v.Clear || len(v.Blocking) != 1 || v.Blocking[0].ID != "nfz-1" {
		t.Fatalf("prohibited zone must block, got %+v", v)
	}
}

func TestCheckExemptible(t *testing.T) {
	g := NewGate(&fakeAuthority{status: ClearanceApproved}, 0)
	if err := g.PutRestriction(zone("nfz-1", model.SeverityProhibited, "emergency-medical")); err != nil {
		t.Fatal(err)
	}
	v := g.Check(directRoute(), []string{"emergency-medical"})
	if v.Clear || len(v.Exemptible) != 1 || len(v.Blocking) != 0 {
		t.Fatalf("tagged request must see the zone as exemptible, got %+v", v)
	}
	// Without the tag it blocks.
	v = g.Check(directRoute(), []string{"other"})
	if len(v.Blocking) != 1 {
		t.Fatalf("untagged request must be blocked, got %+v", v)
	}
}

func TestCheckAdvisory(t *testing.T) {
	g := NewGate(&fakeAuthority{}, 0)
	if err := g.PutRestriction(zone("adv-1", model.SeverityAdvisory)); err != nil {
		t.Fatal(err)
	}
	v := g.Check(directRoute(), nil)
	if !v.Clear || len(v.Advisories) != 1 {
		t.Fatalf("advisory zones are recorded but do not block, got %+v", v)
	}
	ids := v.RestrictionIDs()
	if len(ids) != 1 || ids[0] != "adv-1" {
		t.Fatalf("restriction ids wrong: %v", ids)
	}
}

func TestCheckIgnoresUncrossedAndInactive(t *testing.T) {
	g := NewGate(&fakeAuthority{}, 0)
	far := zone("far", model.SeverityProhibited)
	far.Zone = &geo.Circle{Center: geo.Point{Lat: 50.5, Lon: 2.5}, RadiusKm: 5}
	expired := zone("expired", model.SeverityProhibited)
	expired.EffectiveUntil = time.Now().Add(-time.Hour)
	for _, fr := range []model.FlightRestriction{far, expired} {
		if err := g.PutRestriction(fr); err != nil {
			t.Fatal(err)
		}
	}
	if v := g.Check(directRoute(), nil); !v.Clear {
		t.Fatalf("uncrossed and expired zones must not block, got %+v", v)
	}
}

func TestRequestClearanceApproved(t *testing.T) {
	auth := &fakeAuthority{status: ClearanceApproved}
	g := NewGate(auth, 30*time.Minute)
	clr, err := g.RequestClearance(context.Background(), "nfz-1", "d1", "medical exemption: blood")
	if err != nil {
		t.Fatalf("clearance: %v", err)
	}
	if clr.Status != ClearanceApproved || clr.Code == "" {
		t.Fatalf("approved clearance wrong: %+v", clr)
	}
	got, ok := g.Clearance(clr.Code)
	if !ok || got.DeliveryID != "d1" {
		t.Fatalf("clearance lookup failed: %+v ok=%v", got, ok)
	}
	if auth.calls != 1 {
		t.Errorf("authority consulted %d times", auth.calls)
	}
}

func TestRequestClearanceDenied(t *testing.T) {
	g := NewGate(&fakeAuthority{status: ClearanceDenied}, 0)
	clr, err := g.RequestClearance(context.Background(), "nfz-1", "d1", "justification")
	if !errors.Is(err, ErrClearanceDenied) {
		t.Fatalf("expected ErrClearanceDenied, got %v", err)
	}
	if clr.Status != ClearanceDenied {
		t.Fatalf("denied clearance still recorded: %+v", clr)
	}
}

func TestClearanceLazyExpiry(t *testing.T) {
	g := NewGate(&fakeAuthority{status: ClearanceApproved}, 30*time.Minute)
	now := time.Now()
	g.SetClock(func() time.Time { return now })
	clr, err := g.RequestClearance(context.Background(), "nfz-1", "d1", "j")
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(31 * time.Minute)
	got, ok := g.Clearance(clr.Code)
	if !ok || got.Status != ClearanceExpired {
		t.Fatalf("aged clearance must expire lazily, got %+v", got)
	}
}

func TestRemoveRestriction(t *testing.T) {
	g := NewGate(&fakeAuthority{}, 0)
	if err := g.PutRestriction(zone("nfz-1", model.SeverityProhibited)); err != nil {
		t.Fatal(err)
	}
	g.RemoveRestriction("nfz-1")
	if v := g.Check(directRoute(), nil); !v.Clear {
		t.Fatalf("removed restriction must not block, got %+v", v)
	}
}
