// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package store persists protected-resource state. The only write path
// that matters for correctness is EnsureBinding: a resource's bind hash
// and invoice id are created once and never regenerated, so concurrent
// first writes must converge on a single durable pair.
package store

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("store: not found")

// Resource is a piece of gated content and its protection state.
type Resource struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Protected   bool   `json:"protected"`
	Price       string `json:"price"`
	BlockHumans bool   `json:"block_humans"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Binding is the persistent challenge identity of a resource: a secret
// nonce, the hash derived from it, and the invoice id. Created lazily on
// first challenge, then never changes.
type Binding struct {
	Nonce     string `json:"nonce"`
	BindHash  string `json:"bind_hash"`
	InvoiceID string `json:"invoice_id"`
}

// Store is the persistence boundary for the gate. Implementations must
// make EnsureBinding first-writer-wins: whichever candidate lands first
// is returned to every caller from then on.
type Store interface {
	GetResourceBySlug(ctx context.Context, slug string) (*Resource, error)
	ListProtected(ctx context.Context) ([]Resource, error)
	GetBinding(ctx context.Context, resourceID string) (*Binding, error)
	EnsureBinding(ctx context.Context, resourceID string, candidate Binding) (Binding, error)
	HealthCheck(ctx context.Context) error
	Close()
}

// Memory is the in-process Store used when no DATABASE_URL is configured
// and throughout the tests.
type Memory struct {
	mu        sync.Mutex
	resources map[string]*Resource
	bindings  map[string]Binding
}

func NewMemory() *Memory {
	return &Memory{
		resources: make(map[string]*Resource),
		bindings:  make(map[string]Binding),
	}
}

// Seed registers a resource, replacing any previous one with the same slug.
func (m *Memory) Seed(res Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := res
	m.resources[res.Slug] = &copied
}

func (m *Memory) GetResourceBySlug(_ context.Context, slug string) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[slug]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *res
	return &copied, nil
}

func (m *Memory) ListProtected(_ context.Context) ([]Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Resource
	for _, res := range m.resources {
		if res.Protected {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (m *Memory) GetBinding(_ context.Context, resourceID string) (*Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[resourceID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// EnsureBinding stores candidate only if no binding exists yet and
// returns whichever binding is durable afterwards.
func (m *Memory) EnsureBinding(_ context.Context, resourceID string, candidate Binding) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.bindings[resourceID]; ok {
		return existing, nil
	}
	m.bindings[resourceID] = candidate
	return candidate, nil
}

func (m *Memory) HealthCheck(context.Context) error { return nil }

func (m *Memory) Close() {}
