package deliveries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carelink/medfleet/core/airspace"
	"github.com/carelink/medfleet/core/custody"
	"github.com/carelink/medfleet/core/dispatch"
	"github.com/carelink/medfleet/core/fleet"
	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
	"github.com/carelink/medfleet/core/route"
	"github.com/carelink/medfleet/core/tracking"
	"github.com/carelink/medfleet/core/weather"
	"github.com/carelink/medfleet/infra/mqtt"
	"github.com/carelink/medfleet/internal/eventbus"
)

var apiBase = geo.Point{Lat: 48.8566, Lon: 2.3522}

type clearProvider struct{}

func (clearProvider) Fetch(context.Context, geo.Point) (model.Conditions, []model.HourlyForecast, error) {
	return model.Conditions{WindSpeedKmh: 10, VisibilityKm: 10}, nil, nil
}

type approvingAuthority struct{}

func (approvingAuthority) RequestClearance(context.Context, string, string, string) (airspace.ClearanceStatus, error) {
	return airspace.ClearanceApproved, nil
}

type apiEnv struct {
	mux     *http.ServeMux
	reg     *fleet.Registry
	tracker *tracking.Tracker
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	reg := fleet.NewRegistry(0)
	if err := reg.RegisterFleet(model.Fleet{ID: "f1", BaseLocation: apiBase, OperationalRadiusKm: 100}); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterVehicle(model.Vehicle{
		ID: "v1", FleetID: "f1", Location: apiBase,
		MaxRangeKm: 200, MaxPayloadKg: 5, MaxVolumeLiters: 10, AvgSpeedKmh: 60, BatteryLevel: 1,
	}); err != nil {
		t.Fatal(err)
	}

	bus := eventbus.New()
	pub := mqtt.NewMockPublisher()
	ledger, err := custody.NewLedger(custody.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := tracking.NewTracker(reg, pub, ledger, bus, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	adv := weather.NewAdvisory(clearProvider{}, weather.Thresholds{}, time.Minute)
	gate := airspace.NewGate(approvingAuthority{}, 0)
	opt := route.NewOptimizer(route.NewDetourEngine(60))
	sched, err := dispatch.NewScheduler(reg, adv, gate, opt, pub, tracker, dispatch.Config{}, nil, nil, bus)
	if err != nil {
		t.Fatal(err)
	}
	lane, err := dispatch.NewEscalationLane(sched, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	NewHandler(sched, lane, tracker, ledger).Register(mux)
	return &apiEnv{mux: mux, reg: reg, tracker: tracker}
}

func (e *apiEnv) submitDelivery(t *testing.T) model.Delivery {
	t.Helper()
	body := `{"origin":{"lat":48.8566,"lon":2.3522},"destination":{"lat":48.8566,"lon":2.62},"cargo":{"description":"blood units","weight_kg":2,"volume_liters":3},"priority":"urgent","requester":"hopital-necker"}`
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit status %d: %s", rr.Code, rr.Body.String())
	}
	var del model.Delivery
	if err := json.Unmarshal(rr.Body.Bytes(), &del); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return del
}

func TestSubmitAndGetDelivery(t *testing.T) {
	env := newAPIEnv(t)
	del := env.submitDelivery(t)
	if del.Status != model.DeliveryDispatched || del.VehicleID != "v1" {
		t.Fatalf("unexpected delivery %+v", del)
	}

	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/deliveries/"+del.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/deliveries", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list status %d", rr.Code)
	}
	var out []model.Delivery
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(out))
	}

	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/deliveries/ghost", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("ghost status %d", rr.Code)
	}
}

func TestSubmitRejectedRequest(t *testing.T) {
	env := newAPIEnv(t)
	// 50 kg exceeds every vehicle in the fleet.
	body := `{"origin":{"lat":48.8566,"lon":2.3522},"destination":{"lat":48.8566,"lon":2.62},"cargo":{"description":"equipment","weight_kg":50,"volume_liters":3},"priority":"routine","requester":"hopital-necker"}`
	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries", strings.NewReader(body)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var rej dispatch.Rejection
	if err := json.Unmarshal(rr.Body.Bytes(), &rej); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rej.ReasonCode != "PayloadExceedsCapacity" {
		t.Fatalf("reason = %s", rej.ReasonCode)
	}
}

func TestEmergencyEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	body := `{"origin":{"lat":48.8566,"lon":2.3522},"destination":{"lat":48.8566,"lon":2.62},"cargo":{"description":"o-neg blood","weight_kg":2,"volume_liters":3},"priority":"life_threatening","requester":"samu-75"}`
	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/emergency", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Ticket   dispatch.Ticket `json:"ticket"`
		Delivery model.Delivery  `json:"delivery"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Ticket.ID == "" || out.Delivery.Status != model.DeliveryDispatched {
		t.Fatalf("unexpected response %+v", out)
	}

	// Routine priority is refused at the door.
	routine := strings.Replace(body, "life_threatening", "routine", 1)
	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/emergency", strings.NewReader(routine)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("routine status %d", rr.Code)
	}
}

func TestTelemetryProofAndReport(t *testing.T) {
	env := newAPIEnv(t)
	del := env.submitDelivery(t)

	ptBody := fmt.Sprintf(`{"sequence":1,"location":{"lat":48.8566,"lon":2.5},"speed_kmh":60,"battery_level":0.9,"cargo_temp_c":5,"timestamp":%q}`, time.Now().UTC().Format(time.RFC3339))
	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/telemetry", strings.NewReader(ptBody)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("telemetry status %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/arrive", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("arrive status %d: %s", rr.Code, rr.Body.String())
	}

	proof := `{"method":"signature","recipient_id":"nurse-42","condition":{"packaging_intact":true,"temperature_ok":true,"quantity_complete":true}}`
	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/proof", strings.NewReader(proof)))
	if rr.Code != http.StatusOK {
		t.Fatalf("proof status %d: %s", rr.Code, rr.Body.String())
	}
	var sealed model.ProofOfDelivery
	if err := json.Unmarshal(rr.Body.Bytes(), &sealed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sealed.Certificate == "" {
		t.Fatalf("certificate missing")
	}

	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/deliveries/"+del.ID+"/custody", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("custody status %d", rr.Code)
	}
	var entries []custody.Entry
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("custody chain empty")
	}

	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/deliveries/"+del.ID+"/report", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("report status %d: %s", rr.Code, rr.Body.String())
	}
	var rep custody.ComplianceReport
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.ChainIntact {
		t.Fatalf("chain not intact")
	}
}

func TestProofRejectedOnDamagedPackaging(t *testing.T) {
	env := newAPIEnv(t)
	del := env.submitDelivery(t)

	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/arrive", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("arrive status %d", rr.Code)
	}

	proof := `{"method":"signature","recipient_id":"nurse-42","condition":{"packaging_intact":false,"temperature_ok":true,"quantity_complete":true}}`
	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/proof", strings.NewReader(proof)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("proof status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAbortAndCancel(t *testing.T) {
	env := newAPIEnv(t)
	del := env.submitDelivery(t)

	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/cancel", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("cancel of dispatched delivery must conflict, got %d", rr.Code)
	}

	ptBody := fmt.Sprintf(`{"sequence":1,"location":{"lat":48.8566,"lon":2.5},"speed_kmh":60,"battery_level":0.9,"timestamp":%q}`, time.Now().UTC().Format(time.RFC3339))
	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/telemetry", strings.NewReader(ptBody)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("telemetry status %d", rr.Code)
	}

	abort := `{"protocol":"return-to-base","reason":"weather deterioration"}`
	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/"+del.ID+"/abort", strings.NewReader(abort)))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("abort status %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	env.mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/deliveries/ghost/abort", strings.NewReader(abort)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("ghost abort status %d", rr.Code)
	}
}
