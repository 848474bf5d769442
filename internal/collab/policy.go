// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tollgate/internal/policy"
	"tollgate/internal/telemetry"
)

const policyCollaborator = "policy-api"

// PolicyClient fetches the site's agent policy table. Any failure yields
// an empty table, which makes every agent resolve to the monetize
// default; the gate never waits on a broken policy API.
type PolicyClient struct {
	baseURL  string
	siteID   string
	client   *http.Client
	cache    *telemetry.TTLCache[policy.Table]
	registry *telemetry.Registry
}

func NewPolicyClient(baseURL, siteID string, registry *telemetry.Registry) *PolicyClient {
	return &PolicyClient{
		baseURL:  baseURL,
		siteID:   siteID,
		client:   newHTTPClient(3 * time.Second),
		cache:    telemetry.NewTTLCache[policy.Table]("policy-tables", 16, 5*time.Minute),
		registry: registry,
	}
}

type policyEntry struct {
	Agent  string `json:"agent"`
	Action string `json:"action"`
}

type policyResponse struct {
	Policies []policyEntry `json:"policies"`
}

// Table returns the current policy table for the site. Cached for five
// minutes; an unconfigured or unreachable API returns an empty table.
func (p *PolicyClient) Table(ctx context.Context) policy.Table {
	if p.baseURL == "" {
		return policy.Table{}
	}
	if cached, ok := p.cache.Get(p.siteID); ok {
		return cached
	}
	if p.registry.InCooldown(policyCollaborator) {
		return policy.Table{}
	}

	table, err := p.fetch(ctx)
	if err != nil {
		p.registry.RecordFailure(policyCollaborator, err.Error())
		slog.Warn("Policy table fetch failed", "site_id", p.siteID, "error", err)
		return policy.Table{}
	}

	p.cache.Set(p.siteID, table)
	return table
}

func (p *PolicyClient) fetch(ctx context.Context) (policy.Table, error) {
	start := time.Now()

	endpoint := fmt.Sprintf("%s/policies?site=%s", p.baseURL, url.QueryEscape(p.siteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", clientUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy API returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var decoded policyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("policy API response unparseable: %w", err)
	}

	table := make(policy.Table, len(decoded.Policies))
	for _, entry := range decoded.Policies {
		action, err := policy.ParseAction(entry.Action)
		if err != nil {
			slog.Warn("Skipping policy entry with unknown action", "agent", entry.Agent, "action", entry.Action)
			continue
		}
		table[entry.Agent] = action
	}

	p.registry.RecordSuccess(policyCollaborator, time.Since(start))
	return table, nil
}
