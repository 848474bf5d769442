// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"tollgate/internal/store"
	"tollgate/internal/telemetry"
)

type HealthHandler struct {
	Store     store.Store
	Registry  *telemetry.Registry
	StartTime time.Time
}

func NewHealthHandler(st store.Store, registry *telemetry.Registry) *HealthHandler {
	return &HealthHandler{
		Store:     st,
		Registry:  registry,
		StartTime: time.Now(),
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	storeStatus := "healthy"
	if err := h.Store.HealthCheck(c.Request.Context()); err != nil {
		storeStatus = "unhealthy: " + err.Error()
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := gin.H{
		"status":  "ok",
		"runtime": "go",
		"uptime":  time.Since(h.StartTime).String(),
		"store": gin.H{
			"status": storeStatus,
		},
		"memory": gin.H{
			"alloc_mb":       memStats.Alloc / 1024 / 1024,
			"sys_mb":         memStats.Sys / 1024 / 1024,
			"num_goroutines": runtime.NumGoroutine(),
		},
	}

	if h.Registry != nil {
		collaboratorStats := h.Registry.AllStats()
		collaborators := make([]gin.H, 0, len(collaboratorStats))
		for _, cs := range collaboratorStats {
			collaborators = append(collaborators, gin.H{
				"name":                 cs.Name,
				"state":                string(cs.State),
				"total_calls":          cs.TotalCalls,
				"success_count":        cs.SuccessCount,
				"failure_count":        cs.FailureCount,
				"consecutive_failures": cs.ConsecFailures,
				"avg_latency_ms":       cs.AvgLatencyMs,
				"in_cooldown":          cs.InCooldown,
			})
		}
		response["collaborators"] = collaborators
	}

	c.JSON(http.StatusOK, response)
}
