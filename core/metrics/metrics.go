package metrics

import (
	"time"

	"github.com/carelink/medfleet/core/model"
)

// DispatchOutcome is one scheduling decision to be recorded.
type DispatchOutcome struct {
	DeliveryID string
	VehicleID  string
	FleetID    string
	Priority   model.Priority
	Outcome    string // "scheduled", "rejected", "aborted", ...
	Reason     string // rejection reason code, empty on success
	Emergency  bool
	Time       time.Time
}

// Sink records dispatch outcomes for observability purposes.
type Sink interface {
	RecordDispatchOutcome(recs []DispatchOutcome) error
}

// GateLatency measures one gate consultation during a scheduling attempt.
type GateLatency struct {
	Gate       string // "weather", "airspace", "route", "launch"
	DeliveryID string
	Emergency  bool
	Latency    time.Duration
}

// GateLatencyRecorder is implemented by sinks that track gate latencies.
type GateLatencyRecorder interface {
	RecordGateLatency(recs []GateLatency) error
}

// FleetSizeRecorder is implemented by sinks that track the candidate pool.
type FleetSizeRecorder interface {
	RecordFleetSize(n int) error
}

// TelemetryRecorder is implemented by sinks that persist raw tracking
// points (e.g. the Influx sink).
type TelemetryRecorder interface {
	RecordTrackingPoint(deliveryID, vehicleID string, pt model.TrackingPoint) error
}

// ActiveDeliveriesRecorder is implemented by sinks exposing the number of
// non-terminal deliveries.
type ActiveDeliveriesRecorder interface {
	RecordActiveDeliveries(n int) error
}

// NopSink discards every record. It is the fallback when no backend is
// configured or reachable.
type NopSink struct{}

func (NopSink) RecordDispatchOutcome([]DispatchOutcome) error { return nil }

// Config selects and parameterises the metric sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
