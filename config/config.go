// Package config loads the service configuration from JSON or YAML files
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/carelink/medfleet/core/dispatch"
	"github.com/carelink/medfleet/core/metrics"
	"github.com/carelink/medfleet/infra/mqtt"
)

type Config struct {
	MQTT     mqtt.Config     `json:"mqtt"`
	Dispatch dispatch.Config `json:"dispatch"`
	Metrics  metrics.Config  `json:"metrics"`
	Weather  WeatherConfig   `json:"weather"`
	Airspace AirspaceConfig  `json:"airspace"`
	Route    RouteConfig     `json:"route"`
	Fleet    FleetConfig     `json:"fleet"`
	Custody  CustodyConfig   `json:"custody"`
	API      APIConfig       `json:"api"`
}

// Load reads the configuration file at path. MF_-prefixed environment
// variables override file values, with "__" as the nesting separator.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("MF_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "mf_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.SetDefaults()
	cfg.Weather.SetDefaults()
	cfg.Airspace.SetDefaults()
	cfg.Route.SetDefaults()
	cfg.Fleet.SetDefaults()
	cfg.Custody.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Custody.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
