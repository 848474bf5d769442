// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tollgate/internal/challenge"
	"tollgate/internal/telemetry"
)

const facilitatorCollaborator = "facilitator"

// Facilitator verifies payment proofs. This is the one collaborator that
// fails CLOSED: an unreachable or confused facilitator means the payment
// is not valid, never that verification is skipped.
type Facilitator struct {
	baseURL  string
	client   *http.Client
	registry *telemetry.Registry
}

func NewFacilitator(baseURL string, registry *telemetry.Registry) *Facilitator {
	return &Facilitator{
		baseURL:  baseURL,
		client:   newHTTPClient(10 * time.Second),
		registry: registry,
	}
}

// Verify submits a payment proof against the requirements it claims to
// satisfy. Every failure path returns IsValid=false with a reason.
func (f *Facilitator) Verify(ctx context.Context, paymentHeader string, reqs challenge.PaymentRequirements) challenge.VerifyResponse {
	if f.baseURL == "" {
		return challenge.VerifyResponse{InvalidReason: "no facilitator configured"}
	}

	result, err := f.post(ctx, paymentHeader, reqs)
	if err != nil {
		f.registry.RecordFailure(facilitatorCollaborator, err.Error())
		slog.Warn("Payment verification failed closed", "error", err)
		return challenge.VerifyResponse{InvalidReason: "verification unavailable"}
	}
	return result
}

func (f *Facilitator) post(ctx context.Context, paymentHeader string, reqs challenge.PaymentRequirements) (challenge.VerifyResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(challenge.VerifyRequest{
		X402Version:         challenge.Version,
		PaymentHeader:       paymentHeader,
		PaymentRequirements: reqs,
	})
	if err != nil {
		return challenge.VerifyResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return challenge.VerifyResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", clientUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return challenge.VerifyResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return challenge.VerifyResponse{}, fmt.Errorf("facilitator returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return challenge.VerifyResponse{}, err
	}

	var result challenge.VerifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return challenge.VerifyResponse{}, fmt.Errorf("facilitator response unparseable: %w", err)
	}

	f.registry.RecordSuccess(facilitatorCollaborator, time.Since(start))
	return result, nil
}
