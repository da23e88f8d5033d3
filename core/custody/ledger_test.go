package custody

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/carelink/medfleet/core/model"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(NewMemoryStore())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	return l
}

func TestSealAssignsCertificate(t *testing.T) {
	l := newTestLedger(t)
	pod := model.ProofOfDelivery{DeliveryID: "d1", RecipientID: "nurse-7", Timestamp: time.Now()}
	sealed, err := l.Seal(pod)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed.Certificate == "" {
		t.Fatal("sealed proof must carry a certificate")
	}
	entries, err := l.Chain("d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Kind != KindProofSealed {
		t.Fatalf("chain wrong: %+v", entries)
	}
	if entries[0].Hash != sealed.Certificate {
		t.Error("certificate must equal the entry hash")
	}
}

func TestChainLinksAndVerifies(t *testing.T) {
	l := newTestLedger(t)
	if err := l.RecordIncident("d1", "temperature_excursion", "cargo at 12.0C"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Seal(model.ProofOfDelivery{DeliveryID: "d1", RecipientID: "r"}); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordIncident("d1", "note", "correction linked to the original"); err != nil {
		t.Fatal(err)
	}

	entries, err := l.Chain("d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].PrevHash != "" {
		t.Error("genesis entry has no predecessor")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Fatalf("entry %d not linked to predecessor", i)
		}
	}
	if err := Verify(entries); err != nil {
		t.Fatalf("intact chain must verify: %v", err)
	}
}

func TestChainsIsolatedPerDelivery(t *testing.T) {
	l := newTestLedger(t)
	if err := l.RecordIncident("d1", "k", "a"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordIncident("d2", "k", "b"); err != nil {
		t.Fatal(err)
	}
	e2, err := l.Chain("d2")
	if err != nil {
		t.Fatal(err)
	}
	if len(e2) != 1 || e2[0].PrevHash != "" {
		t.Fatalf("d2 chain must start fresh: %+v", e2)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLedger(t)
	if err := l.RecordIncident("d1", "k", "original detail"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordIncident("d1", "k", "second"); err != nil {
		t.Fatal(err)
	}
	entries, err := l.Chain("d1")
	if err != nil {
		t.Fatal(err)
	}

	tampered := append([]Entry(nil), entries...)
	tampered[0].Payload = json.RawMessage(`{"kind":"k","detail":"rewritten"}`)
	if err := Verify(tampered); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("payload tamper must break the chain, got %v", err)
	}

	relinked := append([]Entry(nil), entries...)
	relinked[1].PrevHash = "0000"
	if err := Verify(relinked); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("link tamper must break the chain, got %v", err)
	}
}

func TestGenerateReport(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Seal(model.ProofOfDelivery{DeliveryID: "d1", RecipientID: "r"}); err != nil {
		t.Fatal(err)
	}
	del := model.Delivery{
		ID:        "d1",
		VehicleID: "v1",
		Status:    model.DeliveryDelivered,
		Priority:  model.PriorityUrgent,
		Route:     model.Route{DistanceKm: 18.5},
	}
	rep, err := l.GenerateReport(del)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.ReportID == "" || rep.DeliveryID != "d1" || !rep.ChainIntact {
		t.Fatalf("report malformed: %+v", rep)
	}
	if rep.Status != "delivered" || rep.RouteDistanceKm != 18.5 {
		t.Fatalf("report fields wrong: %+v", rep)
	}

	// Generation itself lands in the ledger.
	entries, err := l.Chain("d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[1].Kind != KindComplianceReport {
		t.Fatalf("report entry missing: %+v", entries)
	}
	if err := Verify(entries); err != nil {
		t.Fatalf("chain broken after report: %v", err)
	}
}
