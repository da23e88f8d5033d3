// Package custody implements the append-only chain-of-custody ledger:
// proof-of-delivery certificates, linked incident records and compliance
// report artifacts. Sealed entries are never amended; corrections are new
// entries linked to the original.
package custody

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/medfleet/core/model"
)

// Entry kinds appended to the ledger.
const (
	KindProofSealed      = "proof_sealed"
	KindIncident         = "incident"
	KindComplianceReport = "compliance_report"
)

// ErrChainBroken is returned when verification finds a hash mismatch.
var ErrChainBroken = errors.New("custody: hash chain broken")

// Entry is one immutable ledger record. Hash covers the payload plus the
// previous entry's hash, making tampering evident.
type Entry struct {
	ID         string          `json:"id"`
	DeliveryID string          `json:"delivery_id"`
	Kind       string          `json:"kind"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
}

// Store persists ledger entries. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ByDelivery(ctx context.Context, deliveryID string) ([]Entry, error)
	Close() error
}

// Ledger seals proofs and appends incidents over a Store. Entries chain
// per delivery: each new entry carries the hash of the delivery's previous
// one.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	lastHash map[string]string
	now      func() time.Time
}

// NewLedger creates a ledger over the given store.
func NewLedger(store Store) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("custody: nil store provided to NewLedger")
	}
	return &Ledger{store: store, lastHash: make(map[string]string), now: time.Now}, nil
}

// SetClock overrides the ledger clock. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Close releases the underlying store.
func (l *Ledger) Close() error { return l.store.Close() }

// Seal appends the proof-of-delivery and stamps its certificate. The
// certificate doubles as the entry hash, tying the attestation into the
// chain.
func (l *Ledger) Seal(pod model.ProofOfDelivery) (model.ProofOfDelivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	payload, err := json.Marshal(pod)
	if err != nil {
		return model.ProofOfDelivery{}, err
	}
	e, err := l.appendLocked(pod.DeliveryID, KindProofSealed, payload)
	if err != nil {
		return model.ProofOfDelivery{}, err
	}
	pod.Certificate = e.Hash
	return pod, nil
}

// IncidentPayload is the body of an incident entry.
type IncidentPayload struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// RecordIncident appends a linked incident entry for the delivery.
func (l *Ledger) RecordIncident(deliveryID, kind, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	payload, err := json.Marshal(IncidentPayload{Kind: kind, Detail: detail})
	if err != nil {
		return err
	}
	_, err = l.appendLocked(deliveryID, KindIncident, payload)
	return err
}

// Chain returns the ledger entries for a delivery in append order.
func (l *Ledger) Chain(deliveryID string) ([]Entry, error) {
	return l.store.ByDelivery(context.Background(), deliveryID)
}

// Verify walks the entries and checks every hash against its content and
// predecessor.
func Verify(entries []Entry) error {
	for i, e := range entries {
		if entryHash(e) != e.Hash {
			return fmt.Errorf("%w: entry %d", ErrChainBroken, i)
		}
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			return fmt.Errorf("%w: entry %d prev link", ErrChainBroken, i)
		}
	}
	return nil
}

func (l *Ledger) appendLocked(deliveryID, kind string, payload json.RawMessage) (Entry, error) {
	e := Entry{
		ID:         uuid.NewString(),
		DeliveryID: deliveryID,
		Kind:       kind,
		Timestamp:  l.now(),
		Payload:    payload,
		PrevHash:   l.lastHash[deliveryID],
	}
	e.Hash = entryHash(e)
	if err := l.store.Append(context.Background(), e); err != nil {
		return Entry{}, fmt.Errorf("custody append: %w", err)
	}
	l.lastHash[deliveryID] = e.Hash
	return e, nil
}

func entryHash(e Entry) string {
	h := sha256.New()
	h.Write([]byte(e.ID))
	h.Write([]byte(e.DeliveryID))
	h.Write([]byte(e.Kind))
	h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write(e.Payload)
	h.Write([]byte(e.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}
