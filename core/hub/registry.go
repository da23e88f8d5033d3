// Package hub tracks regional supply-chain hubs: their storage and staff
// capacity, operating hours and delivery performance.
package hub

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

// ErrHubNotFound is returned when the registry has no such hub.
var ErrHubNotFound = errors.New("hub: hub not found")

// Registry is the in-memory index of supply-chain hubs.
type Registry struct {
	mu   sync.RWMutex
	hubs map[string]*model.SupplyChainHub
	now  func() time.Time
}

// NewRegistry creates an empty hub registry.
func NewRegistry() *Registry {
	return &Registry{
		hubs: make(map[string]*model.SupplyChainHub),
		now:  time.Now,
	}
}

// SetClock overrides the registry clock. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Register adds or replaces a hub.
func (r *Registry) Register(h model.SupplyChainHub) error {
	if h.ID == "" {
		return fmt.Errorf("hub id must not be empty")
	}
	r.mu.Lock()
	cp := h
	r.hubs[h.ID] = &cp
	r.mu.Unlock()
	return nil
}

// Hub returns a copy of the hub.
func (r *Registry) Hub(id string) (model.SupplyChainHub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hubs[id]
	if !ok {
		return model.SupplyChainHub{}, fmt.Errorf("%w: %s", ErrHubNotFound, id)
	}
	return *h, nil
}

// Hubs returns a snapshot of all hubs ordered by ID.
func (r *Registry) Hubs() []model.SupplyChainHub {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SupplyChainHub, 0, len(r.hubs))
	for _, h := range r.hubs {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WithCapacity returns hubs that can absorb the given volume and weight and
// are currently within operating hours, nearest to the given point first.
func (r *Registry) WithCapacity(near geo.Point, volumeLiters, weightKg float64) []model.SupplyChainHub {
	r.mu.RLock()
	now := r.now()
	out := make([]model.SupplyChainHub, 0, len(r.hubs))
	for _, h := range r.hubs {
		if h.CapacityVolume < volumeLiters || h.CapacityWeight < weightKg {
			continue
		}
		if !openAt(*h, now) {
			continue
		}
		out = append(out, *h)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		di := geo.DistanceKm(near, out[i].Location)
		dj := geo.DistanceKm(near, out[j].Location)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReserveCapacity deducts a pending transfer from the hub's free capacity.
func (r *Registry) ReserveCapacity(id string, volumeLiters, weightKg float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHubNotFound, id)
	}
	if h.CapacityVolume < volumeLiters || h.CapacityWeight < weightKg {
		return fmt.Errorf("hub %s lacks capacity for %.1fL / %.1fkg", id, volumeLiters, weightKg)
	}
	h.CapacityVolume -= volumeLiters
	h.CapacityWeight -= weightKg
	return nil
}

// ReleaseCapacity returns previously reserved capacity to the hub.
func (r *Registry) ReleaseCapacity(id string, volumeLiters, weightKg float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHubNotFound, id)
	}
	h.CapacityVolume += volumeLiters
	h.CapacityWeight += weightKg
	return nil
}

// RecordDeparture folds one dispatch outcome into the hub's rolling
// performance numbers using an exponential moving average.
func (r *Registry) RecordDeparture(id string, onTime bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHubNotFound, id)
	}
	sample := 0.0
	if onTime {
		sample = 1.0
	}
	const alpha = 0.1
	h.OnTimeRate = h.OnTimeRate*(1-alpha) + sample*alpha
	return nil
}

// openAt reports whether the hub's operating window covers t. Hours are
// local wall-clock "HH:MM" strings; an unset window means always open.
func openAt(h model.SupplyChainHub, t time.Time) bool {
	if h.OpensAt == "" || h.ClosesAt == "" {
		return true
	}
	open, err1 := time.Parse("15:04", h.OpensAt)
	close, err2 := time.Parse("15:04", h.ClosesAt)
	if err1 != nil || err2 != nil {
		return true
	}
	minutes := t.Hour()*60 + t.Minute()
	om := open.Hour()*60 + open.Minute()
	cm := close.Hour()*60 + close.Minute()
	if om <= cm {
		return minutes >= om && minutes < cm
	}
	// window crosses midnight
	return minutes >= om || minutes < cm
}
