package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/carelink/medfleet/core/metrics"
	"github.com/carelink/medfleet/core/model"
)

// PromSink records dispatch outcomes in Prometheus metrics.
type PromSink struct {
	outcomes *prometheus.CounterVec
	gates    *prometheus.HistogramVec
	fleet    prometheus.Gauge
	active   prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_outcomes_total",
		Help: "Total number of dispatch scheduling decisions",
	}, []string{"fleet_id", "priority", "outcome", "emergency"})
	gates := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_gate_latency_seconds",
		Help:    "Time spent consulting each dispatch gate",
		Buckets: prometheus.DefBuckets,
	}, []string{"gate", "emergency"})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_candidate_vehicles_total",
		Help: "Number of candidate vehicles considered for the last request",
	})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deliveries_active_total",
		Help: "Number of deliveries in a non-terminal state",
	})

	if err := reg.Register(outcomes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			outcomes = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(gates); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			gates = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fleet); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fleet = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(active); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			active = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{outcomes: outcomes, gates: gates, fleet: fleet, active: active}, nil
}

// RecordDispatchOutcome increments the counter for each scheduling decision.
func (s *PromSink) RecordDispatchOutcome(recs []coremetrics.DispatchOutcome) error {
	for _, r := range recs {
		s.outcomes.WithLabelValues(r.FleetID, priorityLabel(r.Priority), r.Outcome, strconv.FormatBool(r.Emergency)).Inc()
	}
	return nil
}

// RecordGateLatency records per-gate consultation latencies.
func (s *PromSink) RecordGateLatency(recs []coremetrics.GateLatency) error {
	for _, r := range recs {
		s.gates.WithLabelValues(r.Gate, strconv.FormatBool(r.Emergency)).Observe(r.Latency.Seconds())
	}
	return nil
}

// RecordFleetSize sets the gauge to the size of the last candidate pool.
func (s *PromSink) RecordFleetSize(n int) error {
	if s.fleet != nil {
		s.fleet.Set(float64(n))
	}
	return nil
}

// RecordActiveDeliveries sets the gauge of non-terminal deliveries.
func (s *PromSink) RecordActiveDeliveries(n int) error {
	if s.active != nil {
		s.active.Set(float64(n))
	}
	return nil
}

func priorityLabel(p model.Priority) string {
	return p.String()
}
