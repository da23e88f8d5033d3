package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"mqtt": {"broker": "tcp://localhost:1883", "client_id": "medfleet", "ack_topic": "vehicle/ack"},
		"dispatch": {"range_safety_margin": 0.3, "max_retries": 5},
		"weather": {"freshness_minutes": 10},
		"custody": {"backend": "memory"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" || cfg.MQTT.ClientID != "medfleet" {
		t.Fatalf("mqtt section wrong: %+v", cfg.MQTT)
	}
	if cfg.Dispatch.RangeSafetyMargin != 0.3 || cfg.Dispatch.MaxRetries != 5 {
		t.Fatalf("dispatch section wrong: %+v", cfg.Dispatch)
	}
	if cfg.Weather.FreshnessMinutes != 10 {
		t.Fatalf("weather section wrong: %+v", cfg.Weather)
	}
	if cfg.Custody.Backend != "memory" {
		t.Fatalf("custody section wrong: %+v", cfg.Custody)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "mqtt:\n  broker: tcp://localhost:1883\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dispatch.RangeSafetyMargin != 0.20 || cfg.Dispatch.QueueCapacity != 256 {
		t.Fatalf("dispatch defaults missing: %+v", cfg.Dispatch)
	}
	if cfg.Weather.FreshnessMinutes != 15 || cfg.Weather.Thresholds.MaxWindSpeedKmh != 40 {
		t.Fatalf("weather defaults missing: %+v", cfg.Weather)
	}
	if cfg.Airspace.ClearanceTTLMinutes != 30 {
		t.Fatalf("airspace defaults missing: %+v", cfg.Airspace)
	}
	if cfg.Fleet.HeartbeatWindowSeconds != 120 || cfg.Fleet.TelemetryTopic != "vehicle/+/telemetry" {
		t.Fatalf("fleet defaults missing: %+v", cfg.Fleet)
	}
	if cfg.Custody.Backend != "sqlite" || cfg.Custody.Path != "custody.db" {
		t.Fatalf("custody defaults missing: %+v", cfg.Custody)
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Fatalf("api defaults missing: %+v", cfg.API)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "mqtt:\n  broker: tcp://file:1883\n")
	t.Setenv("MF_MQTT__BROKER", "tcp://env:1883")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://env:1883" {
		t.Fatalf("env override not applied: %s", cfg.MQTT.Broker)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", "broker = 'x'")
	if _, err := Load(path); err == nil {
		t.Fatal("unsupported format must be rejected")
	}
}

func TestLoadRejectsBadCustodyBackend(t *testing.T) {
	path := writeConfig(t, "config.yaml", "custody:\n  backend: postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown custody backend must be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must error")
	}
}
