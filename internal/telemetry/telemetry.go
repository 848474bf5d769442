// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package telemetry tracks the health of the gate's best-effort
// collaborators (policy API, violation sink, payment facilitator).
// Collaborator failures never change a gate verdict; this registry only
// feeds the health endpoint and the cooldown that stops the gate from
// hammering a dead endpoint.
package telemetry

import (
	"sync"
	"time"
)

type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"

	degradedThreshold  = 3
	unhealthyThreshold = 5
	cooldownBase       = 5 * time.Second
	cooldownMax        = 5 * time.Minute
)

// CollaboratorStats is a snapshot of one collaborator's recent behavior.
type CollaboratorStats struct {
	Name           string      `json:"name"`
	State          HealthState `json:"state"`
	TotalCalls     int64       `json:"total_calls"`
	SuccessCount   int64       `json:"success_count"`
	FailureCount   int64       `json:"failure_count"`
	ConsecFailures int         `json:"consecutive_failures"`
	LastError      string      `json:"last_error,omitempty"`
	AvgLatencyMs   float64     `json:"avg_latency_ms"`
	InCooldown     bool        `json:"in_cooldown"`
	CooldownUntil  *time.Time  `json:"cooldown_until,omitempty"`
}

type collaborator struct {
	mu             sync.Mutex
	name           string
	totalCalls     int64
	successCount   int64
	failureCount   int64
	consecFailures int
	lastError      string
	latencySumMs   float64
	latencyCount   int64
	cooldownUntil  time.Time
}

// Registry tracks any number of named collaborators. Safe for
// concurrent use from request goroutines and fire-and-forget reporters.
type Registry struct {
	mu            sync.RWMutex
	collaborators map[string]*collaborator
}

func NewRegistry() *Registry {
	return &Registry{collaborators: make(map[string]*collaborator)}
}

func (r *Registry) get(name string) *collaborator {
	r.mu.RLock()
	c, ok := r.collaborators[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.collaborators[name]; ok {
		return c
	}
	c = &collaborator{name: name}
	r.collaborators[name] = c
	return c
}

func (r *Registry) RecordSuccess(name string, latency time.Duration) {
	c := r.get(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalCalls++
	c.successCount++
	c.consecFailures = 0
	c.cooldownUntil = time.Time{}
	c.latencySumMs += float64(latency.Microseconds()) / 1000.0
	c.latencyCount++
}

func (r *Registry) RecordFailure(name, errMsg string) {
	c := r.get(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalCalls++
	c.failureCount++
	c.consecFailures++
	c.lastError = errMsg

	if c.consecFailures >= degradedThreshold {
		backoff := cooldownBase << (c.consecFailures - degradedThreshold)
		if backoff > cooldownMax || backoff <= 0 {
			backoff = cooldownMax
		}
		c.cooldownUntil = time.Now().Add(backoff)
	}
}

// InCooldown reports whether calls to the collaborator should be skipped
// for now. Unknown names are never in cooldown.
func (r *Registry) InCooldown(name string) bool {
	r.mu.RLock()
	c, ok := r.collaborators[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.cooldownUntil.IsZero() && time.Now().Before(c.cooldownUntil)
}

func (r *Registry) Stats(name string) CollaboratorStats {
	c := r.get(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (r *Registry) AllStats() []CollaboratorStats {
	r.mu.RLock()
	names := make([]string, 0, len(r.collaborators))
	for name := range r.collaborators {
		names = append(names, name)
	}
	r.mu.RUnlock()

	stats := make([]CollaboratorStats, 0, len(names))
	for _, name := range names {
		stats = append(stats, r.Stats(name))
	}
	return stats
}

func (c *collaborator) snapshot() CollaboratorStats {
	s := CollaboratorStats{
		Name:           c.name,
		TotalCalls:     c.totalCalls,
		SuccessCount:   c.successCount,
		FailureCount:   c.failureCount,
		ConsecFailures: c.consecFailures,
		LastError:      c.lastError,
	}

	switch {
	case c.consecFailures >= unhealthyThreshold:
		s.State = Unhealthy
	case c.consecFailures >= degradedThreshold:
		s.State = Degraded
	default:
		s.State = Healthy
	}

	if c.latencyCount > 0 {
		s.AvgLatencyMs = c.latencySumMs / float64(c.latencyCount)
	}

	if !c.cooldownUntil.IsZero() && time.Now().Before(c.cooldownUntil) {
		s.InCooldown = true
		t := c.cooldownUntil
		s.CooldownUntil = &t
	}

	return s
}
