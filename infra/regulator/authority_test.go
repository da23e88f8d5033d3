package regulator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carelink/medfleet/core/airspace"
)

func TestRequestClearanceDecisions(t *testing.T) {
	cases := []struct {
		name     string
		decision string
		want     airspace.ClearanceStatus
	}{
		{"approved", "approved", airspace.ClearanceApproved},
		{"denied", "denied", airspace.ClearanceDenied},
		{"pending", "under_review", airspace.ClearancePending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got struct {
				RestrictionID string `json:"restriction_id"`
				DeliveryID    string `json:"delivery_id"`
				Justification string `json:"justification"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode request: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"` + tc.decision + `"}`))
			}))
			defer srv.Close()

			a := NewHTTPAuthority(srv.URL)
			status, err := a.RequestClearance(context.Background(), "tfr-17", "d1", "blood transport")
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if status != tc.want {
				t.Errorf("status = %s, want %s", status, tc.want)
			}
			if got.RestrictionID != "tfr-17" || got.DeliveryID != "d1" || got.Justification != "blood transport" {
				t.Errorf("unexpected request body %+v", got)
			}
		})
	}
}

func TestRequestClearanceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewHTTPAuthority(srv.URL)
	status, err := a.RequestClearance(context.Background(), "tfr-17", "d1", "blood transport")
	if err == nil {
		t.Fatalf("expected error on non-200 response")
	}
	if status != airspace.ClearancePending {
		t.Errorf("status = %s, want pending", status)
	}
}

func TestAutoApprove(t *testing.T) {
	status, err := AutoApprove{}.RequestClearance(context.Background(), "tfr-17", "d1", "organ transport")
	if err != nil || status != airspace.ClearanceApproved {
		t.Fatalf("documented request must be approved, got %s %v", status, err)
	}
	status, err = AutoApprove{}.RequestClearance(context.Background(), "tfr-17", "d1", "")
	if err != nil || status != airspace.ClearanceDenied {
		t.Fatalf("undocumented request must be denied, got %s %v", status, err)
	}
}
