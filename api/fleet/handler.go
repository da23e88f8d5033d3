// Package fleet exposes fleet and vehicle administration over HTTP.
package fleet

import (
	"encoding/json"
	"errors"
	"net/http"

	corefleet "github.com/carelink/medfleet/core/fleet"
	"github.com/carelink/medfleet/core/model"
)

// Handler serves the fleet registry endpoints.
type Handler struct {
	registry *corefleet.Registry
}

// NewHandler wires the fleet API over the registry.
func NewHandler(registry *corefleet.Registry) *Handler {
	return &Handler{registry: registry}
}

// Register mounts the fleet routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/fleets", h.registerFleet)
	mux.HandleFunc("POST /api/vehicles", h.registerVehicle)
	mux.HandleFunc("GET /api/vehicles", h.listVehicles)
	mux.HandleFunc("GET /api/vehicles/{id}", h.getVehicle)
	mux.HandleFunc("POST /api/vehicles/{id}/maintenance/clear", h.clearMaintenance)
}

func (h *Handler) registerFleet(w http.ResponseWriter, r *http.Request) {
	var f model.Fleet
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.RegisterFleet(f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) registerVehicle(w http.ResponseWriter, r *http.Request) {
	var v model.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.RegisterVehicle(v); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, corefleet.ErrFleetNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.registry.Vehicles())
}

func (h *Handler) getVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.registry.Vehicle(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, v)
}

func (h *Handler) clearMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.ClearMaintenance(r.PathValue("id")); err != nil {
		status := http.StatusConflict
		if errors.Is(err, corefleet.ErrVehicleNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
