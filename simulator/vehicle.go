package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/carelink/medfleet/core/command"
	"github.com/carelink/medfleet/core/geo"
)

// SimulatedVehicle connects to MQTT, acknowledges launch and abort orders
// and publishes telemetry while flying the ordered route.
type SimulatedVehicle struct {
	ID          string
	Broker      string
	Strategy    AckStrategy
	Interval    time.Duration
	SpeedKmh    float64
	Battery     float64 // 0..1
	DrainPerKm  float64
	CargoTempC  float64
	TempDriftC  float64 // per telemetry tick while flying
	Origin      geo.Point

	client paho.Client
	ackCh  chan string

	mu       sync.Mutex
	flight   *flight
	seq      uint64
	location geo.Point
}

type flight struct {
	deliveryID string
	path       []geo.Point
	leg        int
	aborted    bool
}

type commandEnvelope struct {
	CommandID  string          `json:"command_id"`
	Kind       string          `json:"kind"`
	DeliveryID string          `json:"delivery_id"`
	Order      json.RawMessage `json:"order"`
}

// Run connects to the broker and simulates the vehicle until ctx is done.
func (v *SimulatedVehicle) Run(ctx context.Context) error {
	cli, err := newMQTTClient(v.Broker, "sim-"+v.ID)
	if err != nil {
		return err
	}
	v.client = cli
	v.ackCh = make(chan string, 50)
	v.location = v.Origin
	if v.Interval <= 0 {
		v.Interval = 2 * time.Second
	}
	if v.SpeedKmh <= 0 {
		v.SpeedKmh = 60
	}
	if v.DrainPerKm <= 0 {
		v.DrainPerKm = 0.01
	}

	for i := 0; i < 3; i++ {
		go v.ackWorker(ctx)
	}
	topic := fmt.Sprintf("vehicle/%s/command", v.ID)
	if token := cli.Subscribe(topic, 0, v.onCommand); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}

	ticker := time.NewTicker(v.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v.tick()
		case <-ctx.Done():
			close(v.ackCh)
			cli.Disconnect(250)
			return nil
		}
	}
}

func (v *SimulatedVehicle) onCommand(_ paho.Client, msg paho.Message) {
	var env commandEnvelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		log.Printf("%s: decode command: %v", v.ID, err)
		return
	}
	switch env.Kind {
	case "launch":
		var order command.LaunchOrder
		if err := json.Unmarshal(env.Order, &order); err != nil {
			log.Printf("%s: decode launch order: %v", v.ID, err)
			return
		}
		path := append([]geo.Point{order.Route.Origin}, order.Route.Waypoints...)
		path = append(path, order.Route.Destination)
		v.mu.Lock()
		v.flight = &flight{deliveryID: env.DeliveryID, path: path}
		v.seq = 0
		v.mu.Unlock()
	case "abort":
		v.mu.Lock()
		if v.flight != nil {
			v.flight.aborted = true
		}
		v.mu.Unlock()
	}
	select {
	case v.ackCh <- env.CommandID:
	default:
		log.Printf("%s: ack queue full, dropping command %s", v.ID, env.CommandID)
	}
}

func (v *SimulatedVehicle) ackWorker(ctx context.Context) {
	for {
		select {
		case cmdID, ok := <-v.ackCh:
			if !ok {
				return
			}
			v.Strategy.Ack(ctx, v.client, v.ID, cmdID)
		case <-ctx.Done():
			return
		}
	}
}

// tick advances the flight by one telemetry interval and publishes a sample.
func (v *SimulatedVehicle) tick() {
	v.mu.Lock()
	stepKm := v.SpeedKmh * v.Interval.Hours()
	var deliveryID string
	docked := false
	if f := v.flight; f != nil {
		if f.aborted {
			// return to origin and dock
			v.location = v.Origin
			v.flight = nil
			docked = true
		} else {
			deliveryID = f.deliveryID
			v.advance(f, stepKm)
			v.Battery -= stepKm * v.DrainPerKm
			if v.Battery < 0 {
				v.Battery = 0
			}
			v.CargoTempC += v.TempDriftC
			if f.leg >= len(f.path)-1 {
				v.flight = nil
			}
		}
	}
	v.seq++
	sample := struct {
		VehicleID    string    `json:"vehicle_id"`
		DeliveryID   string    `json:"delivery_id,omitempty"`
		Sequence     uint64    `json:"sequence"`
		Lat          float64   `json:"lat"`
		Lon          float64   `json:"lon"`
		SpeedKmh     float64   `json:"speed_kmh"`
		BatteryLevel float64   `json:"battery_level"`
		CargoTempC   float64   `json:"cargo_temp_c"`
		Docked       bool      `json:"docked"`
		Timestamp    time.Time `json:"timestamp"`
	}{
		VehicleID:    v.ID,
		DeliveryID:   deliveryID,
		Sequence:     v.seq,
		Lat:          v.location.Lat,
		Lon:          v.location.Lon,
		SpeedKmh:     v.SpeedKmh,
		BatteryLevel: v.Battery,
		CargoTempC:   v.CargoTempC,
		Docked:       docked,
		Timestamp:    time.Now().UTC(),
	}
	v.mu.Unlock()

	payload, err := json.Marshal(sample)
	if err != nil {
		log.Printf("%s: marshal telemetry: %v", v.ID, err)
		return
	}
	topic := fmt.Sprintf("vehicle/%s/telemetry", v.ID)
	token := v.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("%s: telemetry publish timeout", v.ID)
	}
}

// advance moves the vehicle stepKm along the flight path.
func (v *SimulatedVehicle) advance(f *flight, stepKm float64) {
	for stepKm > 0 && f.leg < len(f.path)-1 {
		next := f.path[f.leg+1]
		d := geo.DistanceKm(v.location, next)
		if d <= stepKm {
			v.location = next
			f.leg++
			stepKm -= d
			continue
		}
		frac := stepKm / d
		v.location = geo.Point{
			Lat: v.location.Lat + (next.Lat-v.location.Lat)*frac,
			Lon: v.location.Lon + (next.Lon-v.location.Lon)*frac,
		}
		stepKm = 0
	}
}
