// Package deliveries exposes the dispatch and tracking operations over HTTP.
package deliveries

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carelink/medfleet/core/custody"
	"github.com/carelink/medfleet/core/dispatch"
	"github.com/carelink/medfleet/core/fleet"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/core/tracking"
)

// Handler serves the delivery lifecycle endpoints.
type Handler struct {
	sched   *dispatch.Scheduler
	lane    *dispatch.EscalationLane
	tracker *tracking.Tracker
	ledger  *custody.Ledger
}

// NewHandler wires the delivery API over the dispatch core.
func NewHandler(sched *dispatch.Scheduler, lane *dispatch.EscalationLane, tracker *tracking.Tracker, ledger *custody.Ledger) *Handler {
	return &Handler{sched: sched, lane: lane, tracker: tracker, ledger: ledger}
}

// Register mounts the delivery routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/deliveries", h.submit)
	mux.HandleFunc("POST /api/deliveries/emergency", h.submitEmergency)
	mux.HandleFunc("GET /api/deliveries", h.list)
	mux.HandleFunc("GET /api/deliveries/{id}", h.get)
	mux.HandleFunc("POST /api/deliveries/{id}/telemetry", h.telemetry)
	mux.HandleFunc("POST /api/deliveries/{id}/arrive", h.arrive)
	mux.HandleFunc("POST /api/deliveries/{id}/proof", h.proof)
	mux.HandleFunc("POST /api/deliveries/{id}/abort", h.abort)
	mux.HandleFunc("POST /api/deliveries/{id}/cancel", h.cancel)
	mux.HandleFunc("GET /api/deliveries/{id}/custody", h.custodyChain)
	mux.HandleFunc("GET /api/deliveries/{id}/report", h.report)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req model.DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	del, err := h.sched.Submit(r.Context(), req)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, del)
}

func (h *Handler) submitEmergency(w http.ResponseWriter, r *http.Request) {
	var req model.DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ticket, del, err := h.lane.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotEmergency) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Ticket   dispatch.Ticket `json:"ticket"`
		Delivery model.Delivery  `json:"delivery"`
	}{ticket, del})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.List())
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	del, err := h.tracker.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, del)
}

func (h *Handler) telemetry(w http.ResponseWriter, r *http.Request) {
	var pt model.TrackingPoint
	if err := json.NewDecoder(r.Body).Decode(&pt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.tracker.ApplyTelemetry(r.PathValue("id"), pt); err != nil {
		writeTrackingError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) arrive(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Arrive(r.PathValue("id")); err != nil {
		writeTrackingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) proof(w http.ResponseWriter, r *http.Request) {
	var pod model.ProofOfDelivery
	if err := json.NewDecoder(r.Body).Decode(&pod); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pod.DeliveryID = r.PathValue("id")
	sealed, err := h.tracker.SubmitProof(pod)
	if err != nil {
		if errors.Is(err, dispatch.ErrProofVerificationFailed) || errors.Is(err, dispatch.ErrTemperatureExcursion) {
			writeJSON(w, http.StatusUnprocessableEntity, struct {
				Error string `json:"error"`
			}{err.Error()})
			return
		}
		writeTrackingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sealed)
}

func (h *Handler) abort(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Protocol string `json:"protocol"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	protocol, err := fleet.ParseAbortProtocol(body.Protocol)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.tracker.Abort(r.PathValue("id"), protocol, body.Reason); err != nil {
		writeTrackingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Cancel(r.PathValue("id")); err != nil {
		writeTrackingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) custodyChain(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Chain(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	del, err := h.tracker.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	rep, err := h.ledger.GenerateReport(del)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeDispatchError(w http.ResponseWriter, err error) {
	var rej *dispatch.Rejection
	if errors.As(err, &rej) {
		writeJSON(w, http.StatusUnprocessableEntity, rej)
		return
	}
	if errors.Is(err, dispatch.ErrDispatchTimeout) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeTrackingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracking.ErrDeliveryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, tracking.ErrIllegalTransition), errors.Is(err, tracking.ErrNotCancellable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
