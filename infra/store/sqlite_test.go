package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/carelink/medfleet/core/custody"
)

func entry(id, deliveryID, prev string) custody.Entry {
	return custody.Entry{
		ID:         id,
		DeliveryID: deliveryID,
		Kind:       custody.KindIncident,
		Timestamp:  time.Now().UTC(),
		Payload:    json.RawMessage(`{"kind":"k","detail":"d"}`),
		PrevHash:   prev,
		Hash:       "h-" + id,
	}
}

func TestAppendAndByDelivery(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	ctx := context.Background()
	for _, e := range []custody.Entry{
		entry("e1", "d1", ""),
		entry("e2", "d1", "h-e1"),
		entry("e3", "d2", ""),
	} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}

	got, err := s.ByDelivery(ctx, "d1")
	if err != nil {
		t.Fatalf("by delivery: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e2" {
		t.Fatalf("entries wrong: %+v", got)
	}
	if got[1].PrevHash != "h-e1" || got[1].Hash != "h-e2" {
		t.Fatalf("chain fields lost in round trip: %+v", got[1])
	}

	other, err := s.ByDelivery(ctx, "d2")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 1 || other[0].ID != "e3" {
		t.Fatalf("d2 entries wrong: %+v", other)
	}

	if empty, err := s.ByDelivery(ctx, "ghost"); err != nil || len(empty) != 0 {
		t.Fatalf("unknown delivery: %v %v", empty, err)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(context.Background(), entry("e1", "d1", "")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s2.Close() }()
	got, err := s2.ByDelivery(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("entries did not survive reopen: %+v", got)
	}
}

func TestLedgerOverSQLite(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatal(err)
	}
	l, err := custody.NewLedger(s)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Close() }()

	if err := l.RecordIncident("d1", "temperature_excursion", "cargo at 12.0C"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordIncident("d1", "in_flight_abort", "motor fault"); err != nil {
		t.Fatal(err)
	}
	entries, err := l.Chain("d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if err := custody.Verify(entries); err != nil {
		t.Fatalf("chain must verify through sqlite: %v", err)
	}
}
