// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package main is the entry point for the Skycast server.
package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
