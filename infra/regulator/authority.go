// Package regulator brokers clearance requests with the external airspace
// authority.
package regulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carelink/medfleet/core/airspace"
)

// HTTPAuthority implements airspace.Authority against a regulator endpoint.
type HTTPAuthority struct {
	endpoint string
	client   *http.Client
}

// NewHTTPAuthority builds an authority client for the given endpoint.
func NewHTTPAuthority(endpoint string) *HTTPAuthority {
	return &HTTPAuthority{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// RequestClearance POSTs the clearance request and maps the decision.
func (a *HTTPAuthority) RequestClearance(ctx context.Context, restrictionID, deliveryID, justification string) (airspace.ClearanceStatus, error) {
	body, err := json.Marshal(struct {
		RestrictionID string `json:"restriction_id"`
		DeliveryID    string `json:"delivery_id"`
		Justification string `json:"justification"`
	}{restrictionID, deliveryID, justification})
	if err != nil {
		return airspace.ClearancePending, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return airspace.ClearancePending, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return airspace.ClearancePending, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return airspace.ClearancePending, fmt.Errorf("regulator returned %s", resp.Status)
	}
	var decision struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return airspace.ClearancePending, fmt.Errorf("decode decision: %w", err)
	}
	switch decision.Status {
	case "approved":
		return airspace.ClearanceApproved, nil
	case "denied":
		return airspace.ClearanceDenied, nil
	default:
		return airspace.ClearancePending, nil
	}
}

// AutoApprove is the authority used when no regulator endpoint is configured.
// Every documented emergency request is approved; the justification still
// lands in the clearance record.
type AutoApprove struct{}

// RequestClearance approves requests that carry a justification.
func (AutoApprove) RequestClearance(_ context.Context, _, _, justification string) (airspace.ClearanceStatus, error) {
	if justification == "" {
		return airspace.ClearanceDenied, nil
	}
	return airspace.ClearanceApproved, nil
}
