// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// defaultRobots declares no restrictions. With it in place every crawl
// is robots-compliant, which matches the parser's treatment of an
// absent document.
const defaultRobots = "User-agent: *\nAllow: /\n"

// SiteFiles serves the site's robots.txt and is also the robots source
// the decision engine evaluates, so the declared policy and the checked
// policy are always the same document.
type SiteFiles struct {
	robots string
}

func NewSiteFiles(robotsPath string) *SiteFiles {
	doc := defaultRobots
	if robotsPath != "" {
		raw, err := os.ReadFile(robotsPath)
		if err != nil {
			slog.Warn("Could not read robots file, using default", "path", robotsPath, "error", err)
		} else {
			doc = string(raw)
		}
	}
	return &SiteFiles{robots: doc}
}

// Document returns the robots.txt content the site declares.
func (s *SiteFiles) Document(context.Context) string {
	return s.robots
}

func (s *SiteFiles) RobotsTxt(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(s.robots))
}
