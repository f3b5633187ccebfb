// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package weather

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 10 * time.Second

// pingCity is the lookup used to probe the upstream.
const pingCity = "London"

// Recorder observes upstream calls. status is the HTTP status code or
// "error" when no response arrived.
type Recorder interface {
	ObserveUpstream(endpoint, status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpstream(string, string) {}

// Client calls the OpenWeather API.
type Client struct {
	baseURL  *url.URL
	apiKey   string
	http     *http.Client
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRecorder registers an upstream call observer.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code(CodeConfigInvalid).With("api_url", baseURL).Errorf("weather api url must be absolute")
	}
	if apiKey == "" {
		return nil, oops.Code(CodeConfigInvalid).Errorf("weather api key is required")
	}

	c := &Client{
		baseURL:  u,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: DefaultTimeout},
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type owmWeather struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmCurrent struct {
	Name  string `json:"name"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []owmWeather `json:"weather"`
}

type owmForecast struct {
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Weather []owmWeather `json:"weather"`
	} `json:"list"`
}

type owmAirPollution struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components Pollutants `json:"components"`
	} `json:"list"`
}

func firstWeather(ws []owmWeather) owmWeather {
	if len(ws) == 0 {
		return owmWeather{}
	}
	return ws[0]
}

func round(f float64) int { return int(math.Round(f)) }

func validCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", oops.Code(CodeInvalidRequest).Errorf("city is required")
	}
	return city, nil
}

// Current returns the current weather for city in metric units.
func (c *Client) Current(ctx context.Context, city string) (*Current, error) {
	city, err := validCity(city)
	if err != nil {
		return nil, err
	}

	var raw owmCurrent
	if err := c.get(ctx, "weather", url.Values{"q": {city}, "units": {"metric"}}, &raw); err != nil {
		return nil, oops.With("city", city).Wrap(err)
	}

	w := firstWeather(raw.Weather)
	return &Current{
		Location:    raw.Name,
		Country:     raw.Sys.Country,
		Coordinates: Coordinates{Lat: raw.Coord.Lat, Lon: raw.Coord.Lon},
		Temperature: round(raw.Main.Temp),
		Description: w.Description,
		Humidity:    raw.Main.Humidity,
		WindSpeed:   raw.Wind.Speed,
		Icon:        w.Icon,
		Timestamp:   c.now().UTC(),
	}, nil
}

// Forecast returns the five-day forecast for city.
func (c *Client) Forecast(ctx context.Context, city string) (*Forecast, error) {
	city, err := validCity(city)
	if err != nil {
		return nil, err
	}

	var raw owmForecast
	if err := c.get(ctx, "forecast", url.Values{"q": {city}, "units": {"metric"}}, &raw); err != nil {
		return nil, oops.With("city", city).Wrap(err)
	}

	f := &Forecast{
		Location: raw.City.Name,
		Country:  raw.City.Country,
		Items:    make([]ForecastItem, 0, len(raw.List)),
	}
	for _, item := range raw.List {
		f.Items = append(f.Items, ForecastItem{
			Date:        time.Unix(item.Dt, 0).UTC(),
			Temperature: round(item.Main.Temp),
			Description: firstWeather(item.Weather).Description,
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
		})
	}
	return f, nil
}

// AirQuality returns the current air pollution reading at lat, lon.
func (c *Client) AirQuality(ctx context.Context, lat, lon float64) (*AirQuality, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 || math.IsNaN(lat) || math.IsNaN(lon) {
		return nil, oops.Code(CodeInvalidRequest).
			With("lat", lat).
			With("lon", lon).
			Errorf("coordinates out of range")
	}

	params := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
	var raw owmAirPollution
	if err := c.get(ctx, "air_pollution", params, &raw); err != nil {
		return nil, err
	}
	if len(raw.List) == 0 {
		return nil, oops.Code(CodeNoData).
			With("lat", lat).
			With("lon", lon).
			Errorf("no air quality data for this location")
	}

	item := raw.List[0]
	return &AirQuality{
		Coordinates:     Coordinates{Lat: raw.Coord.Lat, Lon: raw.Coord.Lon},
		AQI:             item.Main.AQI,
		Label:           AQILabel(item.Main.AQI),
		Recommendations: AQIRecommendations(item.Main.AQI),
		Components:      item.Components,
		Timestamp:       time.Unix(item.Dt, 0).UTC(),
	}, nil
}

// Ping checks that the upstream answers an authenticated lookup.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var raw owmCurrent
	return c.get(ctx, "weather", url.Values{"q": {pingCity}, "units": {"metric"}}, &raw)
}

// get issues GET {base}/data/2.5/{endpoint} and decodes a 200 response
// into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL.JoinPath("data", "2.5", endpoint)
	params.Set("appid", c.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return oops.Code(CodeUpstreamFailed).With("endpoint", endpoint).Wrap(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.recorder.ObserveUpstream(endpoint, "error")
		c.logger.WarnContext(ctx, "weather upstream unreachable", "endpoint", endpoint, "error", err)
		return oops.Code(CodeUpstreamFailed).With("endpoint", endpoint).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	c.recorder.ObserveUpstream(endpoint, strconv.Itoa(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for reuse
		return oops.Code(CodeCityNotFound).
			With("endpoint", endpoint).
			Errorf("city not found, please check the name and try again")
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.ErrorContext(ctx, "weather upstream rejected api key", "endpoint", endpoint)
		return oops.Code(CodeUpstreamAuth).
			With("endpoint", endpoint).
			Errorf("weather service unavailable")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // diagnostic only
		return oops.Code(CodeUpstreamFailed).
			With("endpoint", endpoint).
			With("status", resp.StatusCode).
			With("body", string(body)).
			Errorf("weather upstream returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return oops.Code(CodeUpstreamFailed).
			With("endpoint", endpoint).
			With("operation", "decode response").
			Wrap(err)
	}
	return nil
}
