// Package app wires the configuration into a running dispatch service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apideliveries "github.com/carelink/medfleet/api/deliveries"
	apifacilities "github.com/carelink/medfleet/api/facilities"
	apifleet "github.com/carelink/medfleet/api/fleet"
	"github.com/carelink/medfleet/config"
	"github.com/carelink/medfleet/core/airspace"
	"github.com/carelink/medfleet/core/custody"
	"github.com/carelink/medfleet/core/dispatch"
	"github.com/carelink/medfleet/core/fleet"
	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/hub"
	"github.com/carelink/medfleet/core/locker"
	corelogger "github.com/carelink/medfleet/core/logger"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/core/route"
	"github.com/carelink/medfleet/core/tracking"
	"github.com/carelink/medfleet/core/weather"
	"github.com/carelink/medfleet/infra/logger"
	"github.com/carelink/medfleet/infra/metrics"
	"github.com/carelink/medfleet/infra/mqtt"
	"github.com/carelink/medfleet/infra/notify"
	"github.com/carelink/medfleet/infra/regulator"
	"github.com/carelink/medfleet/infra/store"
	"github.com/carelink/medfleet/infra/weatherapi"
	"github.com/carelink/medfleet/internal/eventbus"
)

// Service orchestrates the dispatch core, the vehicle channels and the HTTP
// surface.
type Service struct {
	Registry  *fleet.Registry
	Scheduler *dispatch.Scheduler
	Lane      *dispatch.EscalationLane
	Tracker   *tracking.Tracker
	Ledger    *custody.Ledger
	Lockers   *locker.Network
	Hubs      *hub.Registry
	Gate      *airspace.Gate

	cfg       *config.Config
	bus       *eventbus.Bus
	log       corelogger.Logger
	publisher *mqtt.PahoPublisher
	feed      *mqtt.TelemetryFeed
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	publisher, err := mqtt.NewPahoPublisher(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt publisher: %w", err)
	}

	sink, err := metrics.NewSink(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metric sink: %w", err)
	}

	bus := eventbus.New()
	registry := fleet.NewRegistry(cfg.Fleet.HeartbeatWindow())
	advisory := weather.NewAdvisory(
		weatherapi.NewHTTPProvider(cfg.Weather.ProviderURL),
		cfg.Weather.Thresholds,
		cfg.Weather.Freshness(),
	)

	var authority airspace.Authority = regulator.AutoApprove{}
	if cfg.Airspace.AuthorityURL != "" {
		authority = regulator.NewHTTPAuthority(cfg.Airspace.AuthorityURL)
	}
	gate := airspace.NewGate(authority, cfg.Airspace.ClearanceTTL())
	optimizer := route.NewOptimizer(route.NewDetourEngine(cfg.Route.CruiseSpeedKmh))

	var entryStore custody.Store
	if cfg.Custody.Backend == "sqlite" {
		s, err := store.NewSQLiteStore(cfg.Custody.Path)
		if err != nil {
			return nil, fmt.Errorf("custody store: %w", err)
		}
		entryStore = s
	} else {
		entryStore = custody.NewMemoryStore()
	}
	ledger, err := custody.NewLedger(entryStore)
	if err != nil {
		return nil, err
	}

	tracker, err := tracking.NewTracker(registry, publisher, ledger, bus, logger.New("tracker"), sink)
	if err != nil {
		return nil, err
	}
	sched, err := dispatch.NewScheduler(registry, advisory, gate, optimizer, publisher, tracker, cfg.Dispatch, logger.New("scheduler"), sink, bus)
	if err != nil {
		return nil, err
	}
	lane, err := dispatch.NewEscalationLane(sched, notify.NewWebhook())
	if err != nil {
		return nil, err
	}

	feed, err := mqtt.NewTelemetryFeed(cfg.MQTT, cfg.Fleet.TelemetryTopic, telemetrySink{registry, tracker})
	if err != nil {
		return nil, fmt.Errorf("telemetry feed: %w", err)
	}

	return &Service{
		Registry:  registry,
		Scheduler: sched,
		Lane:      lane,
		Tracker:   tracker,
		Ledger:    ledger,
		Lockers:   locker.NewNetwork(bus, logger.New("lockers")),
		Hubs:      hub.NewRegistry(),
		Gate:      gate,
		cfg:       cfg,
		bus:       bus,
		log:       logg,
		publisher: publisher,
		feed:      feed,
	}, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Scheduler.Run(ctx)
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	apideliveries.NewHandler(s.Scheduler, s.Lane, s.Tracker, s.Ledger).Register(mux)
	apifleet.NewHandler(s.Registry).Register(mux)
	apifacilities.NewHandler(s.Lockers, s.Hubs).Register(mux)
	srv := &http.Server{Addr: s.cfg.API.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("api listening on %s", s.cfg.API.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.feed.Disconnect()
	s.publisher.Disconnect()
	s.bus.Close()
	return s.Ledger.Close()
}

// telemetrySink routes decoded vehicle telemetry into the registry and the
// tracker.
type telemetrySink struct {
	registry *fleet.Registry
	tracker  *tracking.Tracker
}

func (t telemetrySink) UpdateTelemetry(vehicleID string, loc geo.Point, heading, speed, battery float64) error {
	return t.registry.UpdateTelemetry(vehicleID, loc, heading, speed, battery)
}

func (t telemetrySink) ApplyTelemetry(deliveryID string, pt model.TrackingPoint) error {
	return t.tracker.ApplyTelemetry(deliveryID, pt)
}

func (t telemetrySink) VehicleDocked(vehicleID string) error {
	return t.tracker.VehicleDocked(vehicleID)
}
