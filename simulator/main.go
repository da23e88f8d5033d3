// Command simulator runs a fleet of simulated delivery vehicles against an
// MQTT broker: they acknowledge launch and abort orders and stream position,
// battery and cargo-temperature telemetry.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/carelink/medfleet/core/geo"
)

type simConfig struct {
	Broker     string
	Count      int
	IDPrefix   string
	Lat        float64
	Lon        float64
	SpeedKmh   float64
	Interval   time.Duration
	AckLatency time.Duration
	DropRate   float64
	CargoTempC float64
	TempDriftC float64
	Verbose    bool
}

func main() {
	cfg := parseFlags()
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strat := RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate}
	var wg sync.WaitGroup
	for i := 0; i < cfg.Count; i++ {
		v := &SimulatedVehicle{
			ID:         fmt.Sprintf("%s-%02d", cfg.IDPrefix, i+1),
			Broker:     cfg.Broker,
			Strategy:   strat,
			Interval:   cfg.Interval,
			SpeedKmh:   cfg.SpeedKmh,
			Battery:    1.0,
			DrainPerKm: 0.01,
			CargoTempC: cfg.CargoTempC,
			TempDriftC: cfg.TempDriftC,
			Origin:     geo.Point{Lat: cfg.Lat, Lon: cfg.Lon},
		}
		wg.Add(1)
		go func(v *SimulatedVehicle) {
			defer wg.Done()
			if err := v.Run(ctx); err != nil {
				log.Printf("%s: %v", v.ID, err)
			}
		}(v)
	}
	wg.Wait()
}

func parseFlags() simConfig {
	var cfg simConfig
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.IntVar(&cfg.Count, "count", 1, "number of vehicles")
	flag.StringVar(&cfg.IDPrefix, "id-prefix", "drone", "vehicle id prefix")
	flag.Float64Var(&cfg.Lat, "lat", 48.8566, "base latitude")
	flag.Float64Var(&cfg.Lon, "lon", 2.3522, "base longitude")
	flag.Float64Var(&cfg.SpeedKmh, "speed", 60, "cruise speed km/h")
	flag.DurationVar(&cfg.Interval, "interval", 2*time.Second, "telemetry publish interval")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "ack latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "ack drop rate")
	flag.Float64Var(&cfg.CargoTempC, "cargo-temp", 5, "initial cargo temperature")
	flag.Float64Var(&cfg.TempDriftC, "temp-drift", 0, "cargo temperature drift per tick")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}
