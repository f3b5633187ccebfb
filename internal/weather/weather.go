// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package weather is a thin client for the OpenWeather HTTP API.
package weather

import "time"

// Error codes.
const (
	CodeCityNotFound   = "WEATHER_CITY_NOT_FOUND"
	CodeNoData         = "WEATHER_NO_DATA"
	CodeUpstreamAuth   = "WEATHER_UPSTREAM_UNAUTHORIZED"
	CodeUpstreamFailed = "WEATHER_UPSTREAM_FAILED"
	CodeInvalidRequest = "VALIDATION_FAILED"
	CodeConfigInvalid  = "WEATHER_CONFIG_INVALID"
)

// Coordinates is a point on the globe.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Current is the present weather at a location.
type Current struct {
	Location    string      `json:"location"`
	Country     string      `json:"country"`
	Coordinates Coordinates `json:"coordinates"`
	Temperature int         `json:"temperature"`
	Description string      `json:"description"`
	Humidity    int         `json:"humidity"`
	WindSpeed   float64     `json:"windSpeed"`
	Icon        string      `json:"icon"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ForecastItem is one three-hour forecast step.
type ForecastItem struct {
	Date        time.Time `json:"date"`
	Temperature int       `json:"temperature"`
	Description string    `json:"description"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
}

// Forecast is the five-day forecast for a location.
type Forecast struct {
	Location string         `json:"location"`
	Country  string         `json:"country"`
	Items    []ForecastItem `json:"items"`
}

// Pollutants are component concentrations in μg/m³.
type Pollutants struct {
	CO   float64 `json:"co"`
	NO   float64 `json:"no"`
	NO2  float64 `json:"no2"`
	O3   float64 `json:"o3"`
	SO2  float64 `json:"so2"`
	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	NH3  float64 `json:"nh3"`
}

// AirQuality is the current air pollution reading at a point.
type AirQuality struct {
	Coordinates     Coordinates `json:"coordinates"`
	AQI             int         `json:"aqi"`
	Label           string      `json:"label"`
	Recommendations []string    `json:"recommendations"`
	Components      Pollutants  `json:"components"`
	Timestamp       time.Time   `json:"timestamp"`
}

var aqiLabels = [...]string{"Unknown", "Good", "Fair", "Moderate", "Poor", "Very Poor"}

// AQILabel names an OpenWeather air quality index (1 good .. 5 very poor).
func AQILabel(aqi int) string {
	if aqi < 1 || aqi >= len(aqiLabels) {
		return aqiLabels[0]
	}
	return aqiLabels[aqi]
}

// AQIRecommendations returns health advice for an air quality index.
func AQIRecommendations(aqi int) []string {
	switch aqi {
	case 1:
		return []string{"Air quality is satisfactory", "Perfect for outdoor activities"}
	case 2:
		return []string{"Air quality is acceptable", "Outdoor activities are safe"}
	case 3:
		return []string{"Moderate air quality", "Sensitive individuals should limit exposure"}
	case 4:
		return []string{"Poor air quality", "Limit outdoor activities"}
	case 5:
		return []string{"Very poor air quality", "Avoid outdoor activities"}
	}
	return []string{"Air quality data unavailable"}
}
