package custody

import (
	"encoding/json"
	"time"

	"github.com/carelink/medfleet/core/model"
)

// ComplianceReport is the audit artifact produced on demand for regulatory
// submission. It references the delivery's gate decisions and the full
// custody chain.
type ComplianceReport struct {
	ReportID        string              `json:"report_id"`
	DeliveryID      string              `json:"delivery_id"`
	GeneratedAt     time.Time           `json:"generated_at"`
	Status          string              `json:"status"`
	Priority        string              `json:"priority"`
	VehicleID       string              `json:"vehicle_id"`
	Gates           model.GateDecisions `json:"gates"`
	RouteDistanceKm float64             `json:"route_distance_km"`
	Entries         []Entry             `json:"custody_entries"`
	ChainIntact     bool                `json:"chain_intact"`
}

// GenerateReport builds the compliance artifact for the delivery and
// appends it to the ledger so the generation itself is auditable.
func (l *Ledger) GenerateReport(del model.Delivery) (ComplianceReport, error) {
	entries, err := l.Chain(del.ID)
	if err != nil {
		return ComplianceReport{}, err
	}
	rep := ComplianceReport{
		DeliveryID:      del.ID,
		GeneratedAt:     l.now(),
		Status:          del.Status.String(),
		Priority:        del.Priority.String(),
		VehicleID:       del.VehicleID,
		Gates:           del.Gates,
		RouteDistanceKm: del.Route.DistanceKm,
		Entries:         entries,
		ChainIntact:     Verify(entries) == nil,
	}

	payload, err := json.Marshal(struct {
		Status      string `json:"status"`
		ChainIntact bool   `json:"chain_intact"`
	}{rep.Status, rep.ChainIntact})
	if err != nil {
		return ComplianceReport{}, err
	}
	l.mu.Lock()
	e, err := l.appendLocked(del.ID, KindComplianceReport, payload)
	l.mu.Unlock()
	if err != nil {
		return ComplianceReport{}, err
	}
	rep.ReportID = e.ID
	return rep, nil
}
