package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	corelogger "github.com/carelink/medfleet/core/logger"
	coremetrics "github.com/carelink/medfleet/core/metrics"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/infra/logger"
)

// InfluxSink writes dispatch outcomes and raw telemetry to an InfluxDB
// instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      corelogger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and returns
// a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDispatchOutcome writes scheduling decisions as line protocol events.
func (s *InfluxSink) RecordDispatchOutcome(recs []coremetrics.DispatchOutcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("dispatch_outcome").
			AddTag("delivery_id", r.DeliveryID).
			AddTag("fleet_id", r.FleetID).
			AddTag("priority", r.Priority.String()).
			AddTag("outcome", r.Outcome).
			AddTag("emergency", strconv.FormatBool(r.Emergency)).
			AddTag("component", "dispatch_scheduler").
			AddField("vehicle_id", r.VehicleID).
			AddField("reason", r.Reason).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordGateLatency writes per-gate consultation latencies.
func (s *InfluxSink) RecordGateLatency(recs []coremetrics.GateLatency) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("dispatch_gate_latency").
			AddTag("gate", r.Gate).
			AddTag("delivery_id", r.DeliveryID).
			AddTag("emergency", strconv.FormatBool(r.Emergency)).
			AddTag("component", "dispatch_scheduler").
			AddField("latency_ms", round3(r.Latency.Seconds()*1000)).
			SetTime(time.Now())
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordTrackingPoint persists a raw telemetry sample.
func (s *InfluxSink) RecordTrackingPoint(deliveryID, vehicleID string, pt model.TrackingPoint) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("delivery_telemetry").
		AddTag("delivery_id", deliveryID).
		AddTag("vehicle_id", vehicleID).
		AddTag("component", "delivery_tracker").
		AddField("sequence", int64(pt.Sequence)).
		AddField("lat", pt.Location.Lat).
		AddField("lon", pt.Location.Lon).
		AddField("altitude_m", round3(pt.AltitudeM)).
		AddField("battery", round3(pt.BatteryLevel)).
		AddField("cargo_temp_c", round3(pt.CargoTempC)).
		SetTime(pt.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
