// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tollgate/internal/challenge"
	"tollgate/internal/store"
)

// DiscoveryResource is one protected resource in the well-known catalog.
type DiscoveryResource struct {
	Resource    string                          `json:"resource"`
	Type        string                          `json:"type"`
	X402Version int                             `json:"x402Version"`
	Accepts     []challenge.PaymentRequirements `json:"accepts"`
	LastUpdated string                          `json:"lastUpdated"`
}

// DiscoveryResponse is the /.well-known/402.json document: a read-only
// projection of protection state in the same descriptor format the gate
// emits on a challenge.
type DiscoveryResponse struct {
	X402Version int                 `json:"x402Version"`
	Items       []DiscoveryResource `json:"items"`
}

type DiscoveryHandler struct {
	Store   store.Store
	Builder *challenge.Builder
}

func NewDiscoveryHandler(st store.Store, builder *challenge.Builder) *DiscoveryHandler {
	return &DiscoveryHandler{Store: st, Builder: builder}
}

func (h *DiscoveryHandler) WellKnown(c *gin.Context) {
	resources, err := h.Store.ListProtected(c.Request.Context())
	if err != nil {
		slog.Error("Discovery listing failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	items := make([]DiscoveryResource, 0, len(resources))
	for i := range resources {
		res := &resources[i]
		reqs, err := h.Builder.Build(c.Request.Context(), res)
		if errors.Is(err, challenge.ErrNoPayee) {
			break
		}
		if err != nil {
			slog.Warn("Skipping resource in discovery catalog", "resource", res.ID, "error", err)
			continue
		}
		items = append(items, DiscoveryResource{
			Resource:    reqs.Resource,
			Type:        "http",
			X402Version: challenge.Version,
			Accepts:     []challenge.PaymentRequirements{*reqs},
			LastUpdated: now,
		})
	}

	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, DiscoveryResponse{
		X402Version: challenge.Version,
		Items:       items,
	})
}
