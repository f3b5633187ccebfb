// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
)

// Version headers.
const (
	AcceptVersionHeader     = "Accept-Version"
	VersionHeader           = "X-API-Version"
	CurrentVersionHeader    = "X-API-Current"
	SupportedVersionsHeader = "X-API-Supported"
	DeprecatedHeader        = "X-API-Deprecated"
)

// APIVersion describes one published API version.
type APIVersion struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Status     string   `json:"status"`
	Released   string   `json:"released"`
	Deprecated bool     `json:"deprecated"`
	Endpoints  []string `json:"endpoints,omitempty"`

	semver *semver.Version
}

// apiVersions lists published versions, newest last.
var apiVersions = []*APIVersion{
	{
		Name:     "v1",
		Version:  "1.0.0",
		Status:   "stable",
		Released: "2025-07-06",
		Endpoints: []string{
			"/api/v1/auth",
			"/api/v1/profile",
			"/api/v1/weather",
		},
		semver: semver.MustParse("1.0.0"),
	},
}

func currentVersion() *APIVersion { return apiVersions[len(apiVersions)-1] }

func supportedNames() []string {
	names := make([]string, 0, len(apiVersions))
	for _, v := range apiVersions {
		names = append(names, v.Name)
	}
	return names
}

// negotiate picks the newest version satisfying an Accept-Version
// constraint such as "^1.0" or "1.x".
func negotiate(constraint string) (*APIVersion, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, oops.Code(CodeVersionUnsupported).
			With("accept_version", constraint).
			Errorf("invalid Accept-Version constraint")
	}
	for i := len(apiVersions) - 1; i >= 0; i-- {
		if c.Check(apiVersions[i].semver) {
			return apiVersions[i], nil
		}
	}
	return nil, oops.Code(CodeVersionUnsupported).
		With("accept_version", constraint).
		With("supported", supportedNames()).
		Errorf("no supported API version satisfies %q", constraint)
}

// versioned sets the version headers for routes served as version v and
// rejects requests whose Accept-Version excludes it.
func (s *Server) versioned(v *APIVersion) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(VersionHeader, v.Name)
		c.Header(CurrentVersionHeader, currentVersion().Name)
		c.Header(SupportedVersionsHeader, strings.Join(supportedNames(), ", "))
		if v.Deprecated {
			c.Header(DeprecatedHeader, "true")
		}

		if accept := c.GetHeader(AcceptVersionHeader); accept != "" {
			chosen, err := negotiate(accept)
			if err != nil {
				s.fail(c, err)
				return
			}
			if chosen != v {
				s.fail(c, oops.Code(CodeVersionUnsupported).
					With("accept_version", accept).
					Errorf("this route serves %s, use /api/%s", v.Name, chosen.Name))
				return
			}
		}
		c.Next()
	}
}

func (s *Server) handleVersions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current":   currentVersion().Name,
		"supported": supportedNames(),
		"versions":  apiVersions,
	})
}

func (s *Server) versionInfo(v *APIVersion) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, v)
	}
}
