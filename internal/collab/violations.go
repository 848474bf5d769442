// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tollgate/internal/agent"
	"tollgate/internal/telemetry"
)

const sinkCollaborator = "violation-sink"

// Violation is one observed crawl of a protected path, compliant or not,
// reported to the analytics backend.
type Violation struct {
	SiteID           string                    `json:"site_id"`
	AgentName        string                    `json:"agent_name"`
	Path             string                    `json:"path"`
	RobotsCompliance bool                      `json:"robots_compliance"`
	PaymentStatus    string                    `json:"payment_status"`
	Verification     *agent.VerificationResult `json:"verification,omitempty"`
}

// Reporter ships violations to the sink without ever blocking a gate
// decision: each report runs in its own goroutine with its own timeout.
type Reporter struct {
	sinkURL  string
	client   *http.Client
	registry *telemetry.Registry
}

func NewReporter(sinkURL string, registry *telemetry.Registry) *Reporter {
	return &Reporter{
		sinkURL:  sinkURL,
		client:   newHTTPClient(5 * time.Second),
		registry: registry,
	}
}

// Report delivers v asynchronously. Fire-and-forget: errors are counted
// and logged, never returned.
func (r *Reporter) Report(v Violation) {
	if r.sinkURL == "" {
		return
	}
	if r.registry.InCooldown(sinkCollaborator) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		if err := r.post(ctx, v); err != nil {
			r.registry.RecordFailure(sinkCollaborator, err.Error())
			slog.Debug("Violation report failed", "agent", v.AgentName, "error", err)
			return
		}
		r.registry.RecordSuccess(sinkCollaborator, time.Since(start))
	}()
}

func (r *Reporter) post(ctx context.Context, v Violation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.sinkURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", clientUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("violation sink returned %d", resp.StatusCode)
	}
	return nil
}
