// Package facilities exposes the locker network and hub registry over HTTP.
package facilities

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/hub"
	"github.com/carelink/medfleet/core/locker"
	"github.com/carelink/medfleet/core/model"
)

// Handler serves locker and hub endpoints.
type Handler struct {
	lockers *locker.Network
	hubs    *hub.Registry
}

// NewHandler wires the facilities API.
func NewHandler(lockers *locker.Network, hubs *hub.Registry) *Handler {
	return &Handler{lockers: lockers, hubs: hubs}
}

// Register mounts the facility routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/lockers", h.registerLocker)
	mux.HandleFunc("GET /api/lockers", h.listLockers)
	mux.HandleFunc("POST /api/lockers/{id}/open", h.openCompartment)
	mux.HandleFunc("POST /api/lockers/{id}/temperature", h.reportTemperature)
	mux.HandleFunc("GET /api/lockers/{id}/access-log", h.accessLog)
	mux.HandleFunc("GET /api/lockers/{id}/security-log", h.securityLog)
	mux.HandleFunc("POST /api/hubs", h.registerHub)
	mux.HandleFunc("GET /api/hubs", h.listHubs)
}

func (h *Handler) registerLocker(w http.ResponseWriter, r *http.Request) {
	var l model.SmartLocker
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.lockers.Register(l); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) listLockers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.lockers.Lockers())
}

func (h *Handler) openCompartment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompartmentID string             `json:"compartment_id"`
		Credential    string             `json:"credential"`
		Method        model.AccessMethod `json:"method"`
		Actor         string             `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := h.lockers.Open(r.PathValue("id"), body.CompartmentID, body.Credential, body.Method, body.Actor)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, locker.ErrAccessDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, locker.ErrLockerNotFound), errors.Is(err, locker.ErrCompartmentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (h *Handler) reportTemperature(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompartmentID string  `json:"compartment_id"`
		TempC         float64 `json:"temp_c"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.lockers.ReportTemperature(r.PathValue("id"), body.CompartmentID, body.TempC); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) accessLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.lockers.AccessLog(r.PathValue("id")))
}

func (h *Handler) securityLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.lockers.SecurityLog(r.PathValue("id")))
}

func (h *Handler) registerHub(w http.ResponseWriter, r *http.Request) {
	var sh model.SupplyChainHub
	if err := json.NewDecoder(r.Body).Decode(&sh); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.hubs.Register(sh); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// listHubs supports optional capacity filtering: ?lat=&lon=&volume=&weight=.
func (h *Handler) listHubs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("volume") != "" || q.Get("weight") != "" {
		lat, _ := strconv.ParseFloat(q.Get("lat"), 64)
		lon, _ := strconv.ParseFloat(q.Get("lon"), 64)
		volume, _ := strconv.ParseFloat(q.Get("volume"), 64)
		weight, _ := strconv.ParseFloat(q.Get("weight"), 64)
		writeJSON(w, h.hubs.WithCapacity(geo.Point{Lat: lat, Lon: lon}, volume, weight))
		return
	}
	writeJSON(w, h.hubs.Hubs())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
