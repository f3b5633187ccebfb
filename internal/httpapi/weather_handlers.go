// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/skycast/skycast/internal/history"
	"github.com/skycast/skycast/pkg/errutil"
)

type cityQuery struct {
	City string `form:"city" binding:"required,max=100"`
}

type coordinatesQuery struct {
	Lat *float64 `form:"lat" binding:"required,gte=-90,lte=90"`
	Lon *float64 `form:"lon" binding:"required,gte=-180,lte=180"`
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

type historyPath struct {
	ID string `uri:"id" binding:"required,ulid"`
}

func (s *Server) handleCurrentWeather(c *gin.Context) {
	var q cityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	current, err := s.deps.Weather.Current(ctx, q.City)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.deps.History.Record(ctx, claimsFrom(c).UserID(), q.City, history.Location{
		City:      current.Location,
		Country:   current.Country,
		Latitude:  current.Coordinates.Lat,
		Longitude: current.Coordinates.Lon,
	})
	respond(c, http.StatusOK, "", current)
}

func (s *Server) handleForecast(c *gin.Context) {
	var q cityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortValidation(c, err)
		return
	}
	forecast, err := s.deps.Weather.Forecast(c.Request.Context(), q.City)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", forecast)
}

func (s *Server) handleAirQuality(c *gin.Context) {
	var q coordinatesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortValidation(c, err)
		return
	}
	aq, err := s.deps.Weather.AirQuality(c.Request.Context(), *q.Lat, *q.Lon)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", aq)
}

// handleWeatherHealth probes the upstream API. It is public so load
// balancers can use it.
func (s *Server) handleWeatherHealth(c *gin.Context) {
	if err := s.deps.Weather.Ping(c.Request.Context()); err != nil {
		errutil.LogErrorContext(c.Request.Context(), s.logger, slog.LevelWarn, "weather upstream unhealthy", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "healthy"})
}

func (s *Server) handleListHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortValidation(c, err)
		return
	}
	entries, err := s.deps.History.List(c.Request.Context(), claimsFrom(c).UserID(), q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"items": entries, "count": len(entries)})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	var p historyPath
	if err := c.ShouldBindUri(&p); err != nil {
		abortValidation(c, err)
		return
	}
	id := ulid.MustParseStrict(p.ID)
	if err := s.deps.History.Delete(c.Request.Context(), claimsFrom(c).UserID(), id); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "history entry deleted", nil)
}

func (s *Server) handleClearHistory(c *gin.Context) {
	n, err := s.deps.History.Clear(c.Request.Context(), claimsFrom(c).UserID())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "history cleared", gin.H{"deleted": n})
}
