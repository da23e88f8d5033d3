package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/carelink/medfleet/core/geo"
	corelogger "github.com/carelink/medfleet/core/logger"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/infra/logger"
)

// TelemetryMessage is the wire format vehicles publish on their telemetry
// topic.
type TelemetryMessage struct {
	VehicleID    string    `json:"vehicle_id"`
	DeliveryID   string    `json:"delivery_id,omitempty"`
	Sequence     uint64    `json:"sequence"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	AltitudeM    float64   `json:"altitude_m"`
	HeadingDeg   float64   `json:"heading_deg"`
	SpeedKmh     float64   `json:"speed_kmh"`
	BatteryLevel float64   `json:"battery_level"`
	CargoTempC   float64   `json:"cargo_temp_c"`
	Docked       bool      `json:"docked"`
	Timestamp    time.Time `json:"timestamp"`
}

// TelemetryHandler receives decoded vehicle telemetry.
type TelemetryHandler interface {
	UpdateTelemetry(vehicleID string, loc geo.Point, heading, speed, battery float64) error
	ApplyTelemetry(deliveryID string, pt model.TrackingPoint) error
	VehicleDocked(vehicleID string) error
}

// TelemetryFeed subscribes to the fleet telemetry topic and forwards every
// sample to the handler.
type TelemetryFeed struct {
	cli     pahoClient
	topic   string
	qos     byte
	handler TelemetryHandler
	logger  corelogger.Logger
}

// NewTelemetryFeed connects to the broker and subscribes to the telemetry
// topic. The topic usually carries a wildcard, e.g. "vehicle/+/telemetry".
func NewTelemetryFeed(cfg Config, topic string, handler TelemetryHandler) (*TelemetryFeed, error) {
	if handler == nil {
		return nil, fmt.Errorf("telemetry handler must not be nil")
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_telemetry")
	qos := byte(0)
	if q, ok := cfg.QoS["telemetry"]; ok {
		qos = q
	}
	f := &TelemetryFeed{topic: topic, qos: qos, handler: handler, logger: log}

	opts.OnConnect = func(c paho.Client) {
		if token := c.Subscribe(f.topic, f.qos, f.onMessage); token.Wait() && token.Error() != nil {
			log.Errorf("telemetry subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("telemetry connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	f.cli = c
	return f, nil
}

func (f *TelemetryFeed) onMessage(_ paho.Client, msg paho.Message) {
	var m TelemetryMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		f.logger.Errorf("failed to decode telemetry: %v", err)
		return
	}
	if m.VehicleID == "" {
		f.logger.Warnf("telemetry without vehicle id on %s", msg.Topic())
		return
	}
	loc := geo.Point{Lat: m.Lat, Lon: m.Lon}
	if m.Docked {
		if err := f.handler.VehicleDocked(m.VehicleID); err != nil {
			f.logger.Warnf("vehicle %s dock rejected: %v", m.VehicleID, err)
		}
		return
	}
	if m.DeliveryID == "" {
		// Heartbeat only; the tracker forwards in-delivery samples itself.
		if err := f.handler.UpdateTelemetry(m.VehicleID, loc, m.HeadingDeg, m.SpeedKmh, m.BatteryLevel); err != nil {
			f.logger.Warnf("vehicle %s telemetry rejected: %v", m.VehicleID, err)
		}
		return
	}
	pt := model.TrackingPoint{
		Sequence:     m.Sequence,
		Location:     loc,
		AltitudeM:    m.AltitudeM,
		SpeedKmh:     m.SpeedKmh,
		BatteryLevel: m.BatteryLevel,
		CargoTempC:   m.CargoTempC,
		Timestamp:    m.Timestamp,
	}
	if err := f.handler.ApplyTelemetry(m.DeliveryID, pt); err != nil {
		f.logger.Warnf("delivery %s telemetry rejected: %v", m.DeliveryID, err)
	}
}

// Disconnect closes the feed's MQTT connection.
func (f *TelemetryFeed) Disconnect() {
	if f.cli != nil && f.cli.IsConnected() {
		f.cli.Disconnect(250)
	}
}
