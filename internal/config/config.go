// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package config

import (
	"fmt"
	"log/slog"
	"os"
)

// USDC on Base, the default settlement asset.
const defaultAsset = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

type Config struct {
	DatabaseURL      string
	SiteID           string
	PayToAddress     string
	Network          string
	Asset            string
	BaseURL          string
	Port             string
	PolicyAPIURL     string
	ViolationSinkURL string
	FacilitatorURL   string
	AdminToken       string
	RobotsFile       string
	DNSServer        string
	AppVersion       string
}

func Load() (*Config, error) {
	siteID := os.Getenv("SITE_ID")
	if siteID == "" {
		return nil, fmt.Errorf("SITE_ID environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}

	network := os.Getenv("X402_NETWORK")
	if network == "" {
		network = "base"
	}

	asset := os.Getenv("X402_ASSET")
	if asset == "" {
		asset = defaultAsset
	}

	payTo := os.Getenv("PAYTO_ADDRESS")
	if payTo == "" {
		// Not fatal: the gate serves protected content as unprotected
		// until a payout address is configured.
		slog.Warn("PAYTO_ADDRESS not configured, protected resources will be served without a challenge")
	}

	return &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SiteID:           siteID,
		PayToAddress:     payTo,
		Network:          network,
		Asset:            asset,
		BaseURL:          baseURL,
		Port:             port,
		PolicyAPIURL:     os.Getenv("POLICY_API_URL"),
		ViolationSinkURL: os.Getenv("VIOLATION_SINK_URL"),
		FacilitatorURL:   os.Getenv("FACILITATOR_URL"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		RobotsFile:       os.Getenv("ROBOTS_FILE"),
		DNSServer:        os.Getenv("DNS_SERVER"),
		AppVersion:       "1.4.2",
	}, nil
}
