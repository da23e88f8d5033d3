// Package weatherapi fetches flight conditions from an open-meteo style
// forecast endpoint.
package weatherapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carelink/medfleet/core/geo"
	"github.com/carelink/medfleet/core/model"
)

// HTTPProvider implements weather.Provider over a forecast HTTP API.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider builds a provider for the given endpoint.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type forecastResponse struct {
	Current struct {
		WindSpeedKmh    float64 `json:"wind_speed_10m"`
		WindGustKmh     float64 `json:"wind_gusts_10m"`
		VisibilityM     float64 `json:"visibility"`
		PrecipitationMm float64 `json:"precipitation"`
		TemperatureC    float64 `json:"temperature_2m"`
		CloudCoverPct   float64 `json:"cloud_cover"`
	} `json:"current"`
	Hourly struct {
		Time            []string  `json:"time"`
		WindSpeedKmh    []float64 `json:"wind_speed_10m"`
		PrecipitationMm []float64 `json:"precipitation"`
	} `json:"hourly"`
}

// Fetch queries current and hourly conditions at the coordinate.
func (p *HTTPProvider) Fetch(ctx context.Context, at geo.Point) (model.Conditions, []model.HourlyForecast, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", at.Lat))
	q.Set("longitude", fmt.Sprintf("%.4f", at.Lon))
	q.Set("current", "temperature_2m,precipitation,cloud_cover,visibility,wind_speed_10m,wind_gusts_10m")
	q.Set("hourly", "wind_speed_10m,precipitation")
	q.Set("forecast_hours", "6")
	q.Set("wind_speed_unit", "kmh")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.Conditions{}, nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return model.Conditions{}, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return model.Conditions{}, nil, fmt.Errorf("forecast endpoint returned %s", resp.Status)
	}
	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return model.Conditions{}, nil, fmt.Errorf("decode forecast: %w", err)
	}

	wind := fr.Current.WindSpeedKmh
	if fr.Current.WindGustKmh > wind {
		wind = fr.Current.WindGustKmh
	}
	cond := model.Conditions{
		WindSpeedKmh:    wind,
		VisibilityKm:    fr.Current.VisibilityM / 1000,
		PrecipitationMm: fr.Current.PrecipitationMm,
		TemperatureC:    fr.Current.TemperatureC,
		CloudCoverPct:   fr.Current.CloudCoverPct,
	}
	var hourly []model.HourlyForecast
	for i := range fr.Hourly.Time {
		t, err := time.Parse("2006-01-02T15:04", fr.Hourly.Time[i])
		if err != nil {
			continue
		}
		h := model.HourlyForecast{At: t, Conditions: cond}
		if i < len(fr.Hourly.WindSpeedKmh) {
			h.Conditions.WindSpeedKmh = fr.Hourly.WindSpeedKmh[i]
		}
		if i < len(fr.Hourly.PrecipitationMm) {
			h.Conditions.PrecipitationMm = fr.Hourly.PrecipitationMm[i]
		}
		hourly = append(hourly, h)
	}
	return cond, hourly, nil
}
