// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skycast/skycast/internal/account"
	"github.com/skycast/skycast/internal/auth"
)

type preferencesRequest struct {
	TemperatureUnit *auth.TemperatureUnit `json:"temperatureUnit" binding:"omitempty,oneof=celsius fahrenheit"`
	Theme           *auth.Theme           `json:"theme" binding:"omitempty,oneof=light dark system"`
	Notifications   *bool                 `json:"notifications"`
}

func (r *preferencesRequest) patch() account.PreferencesPatch {
	return account.PreferencesPatch{
		TemperatureUnit: r.TemperatureUnit,
		Theme:           r.Theme,
		Notifications:   r.Notifications,
	}
}

type updateProfileRequest struct {
	FirstName   *string             `json:"firstName"`
	LastName    *string             `json:"lastName"`
	Preferences *preferencesRequest `json:"preferences"`
}

func (s *Server) handleGetProfile(c *gin.Context) {
	user, err := s.deps.Accounts.Profile(c.Request.Context(), claimsFrom(c).UserID())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", viewUser(user))
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortValidation(c, err)
		return
	}

	upd := account.ProfileUpdate{FirstName: req.FirstName, LastName: req.LastName}
	if req.Preferences != nil {
		patch := req.Preferences.patch()
		upd.Preferences = &patch
	}
	user, err := s.deps.Accounts.UpdateProfile(c.Request.Context(), claimsFrom(c).UserID(), upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "profile updated", viewUser(user))
}

func (s *Server) handleUpdatePreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortValidation(c, err)
		return
	}
	prefs, err := s.deps.Accounts.UpdatePreferences(c.Request.Context(), claimsFrom(c).UserID(), req.patch())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "preferences updated", prefs)
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	if err := s.deps.Accounts.Delete(c.Request.Context(), claimsFrom(c).UserID()); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "account deleted", nil)
}
