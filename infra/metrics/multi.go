package metrics

import (
	coremetrics "github.com/carelink/medfleet/core/metrics"
	"github.com/carelink/medfleet/core/model"
)

// MultiSink fans out records to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatchOutcome forwards the record to all sinks, returning the
// first error encountered.
func (m *MultiSink) RecordDispatchOutcome(recs []coremetrics.DispatchOutcome) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatchOutcome(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordGateLatency forwards gate latencies when supported by the sink.
func (m *MultiSink) RecordGateLatency(recs []coremetrics.GateLatency) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.GateLatencyRecorder); ok {
			if err := rec.RecordGateLatency(recs); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetSize forwards candidate-pool sizes when supported by the sink.
func (m *MultiSink) RecordFleetSize(n int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.FleetSizeRecorder); ok {
			if err := rec.RecordFleetSize(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTrackingPoint forwards raw telemetry when supported by the sink.
func (m *MultiSink) RecordTrackingPoint(deliveryID, vehicleID string, pt model.TrackingPoint) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.TelemetryRecorder); ok {
			if err := rec.RecordTrackingPoint(deliveryID, vehicleID, pt); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordActiveDeliveries forwards the active-delivery gauge when supported.
func (m *MultiSink) RecordActiveDeliveries(n int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ActiveDeliveriesRecorder); ok {
			if err := rec.RecordActiveDeliveries(n); err != nil {
				return err
			}
		}
	}
	return nil
}
