// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package challenge constructs x402 payment requirements for protected
// resources. The bind hash and invoice id backing a challenge are
// created once per resource and reused forever after: a payment
// authorized against an older hash must stay verifiable, so regenerating
// them would be a security bug, not a cache miss.
package challenge

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tollgate/internal/store"
)

// ErrNoPayee signals that no payout address is configured. The caller
// must treat the resource as unprotected rather than emit a challenge
// with an empty payee.
var ErrNoPayee = errors.New("challenge: no payee address configured")

const (
	defaultScheme  = "exact"
	defaultTimeout = 300
	nonceBytes     = 16
)

// Builder derives payment requirements from protection state and the
// site's network configuration.
type Builder struct {
	payTo   string
	network string
	asset   string
	baseURL string
	store   store.Store
}

func NewBuilder(payTo, network, asset, baseURL string, st store.Store) *Builder {
	return &Builder{
		payTo:   payTo,
		network: network,
		asset:   asset,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		store:   st,
	}
}

// Build assembles the payment requirements for a protected resource,
// creating and persisting the bind hash and invoice id on first use.
// Returns ErrNoPayee when the site has no payout address.
func (b *Builder) Build(ctx context.Context, res *store.Resource) (*PaymentRequirements, error) {
	if b.payTo == "" {
		return nil, ErrNoPayee
	}

	amount, err := AtomicAmount(res.Price)
	if err != nil {
		return nil, fmt.Errorf("challenge: bad price for resource %s: %w", res.ID, err)
	}

	binding, err := b.ensureBinding(ctx, res)
	if err != nil {
		return nil, err
	}

	return &PaymentRequirements{
		Scheme:            defaultScheme,
		Network:           b.network,
		MaxAmountRequired: amount,
		Resource:          b.ResourceURL(res),
		Description:       fmt.Sprintf("Access to %q", res.Title),
		MimeType:          "text/html",
		PayTo:             b.payTo,
		MaxTimeoutSeconds: defaultTimeout,
		Asset:             b.asset,
		Extra: map[string]any{
			"bind_hash":   binding.BindHash,
			"invoice_id":  binding.InvoiceID,
			"resource_id": res.ID,
			"slug":        res.Slug,
		},
	}, nil
}

// ResourceURL is the absolute URL advertised for a resource.
func (b *Builder) ResourceURL(res *store.Resource) string {
	return fmt.Sprintf("%s/content/%s", b.baseURL, res.Slug)
}

// ensureBinding reads the persisted binding or creates one through the
// store's first-writer-wins path. The candidate pair is derived fresh
// each time, but only the first to land ever becomes durable.
func (b *Builder) ensureBinding(ctx context.Context, res *store.Resource) (store.Binding, error) {
	existing, err := b.store.GetBinding(ctx, res.ID)
	if err != nil {
		return store.Binding{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	nonce, err := newNonce()
	if err != nil {
		return store.Binding{}, fmt.Errorf("challenge: nonce generation failed: %w", err)
	}

	candidate := store.Binding{
		Nonce:     nonce,
		BindHash:  bindHash(res.ID, b.payTo, res.Price, nonce),
		InvoiceID: newInvoiceID(res.ID),
	}
	return b.store.EnsureBinding(ctx, res.ID, candidate)
}

// bindHash ties the resource, payee and price to the secret nonce. The
// nonce makes the hash non-derivable from mutable fields alone, so later
// price or payee changes do not silently re-key outstanding challenges.
func bindHash(resourceID, payTo, price, nonce string) string {
	sum := sha256.Sum256([]byte(resourceID + "|" + payTo + "|" + price + "|" + nonce))
	return hex.EncodeToString(sum[:])
}

func newNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// newInvoiceID is opaque to the protocol; it only has to be unique and
// stable once persisted.
func newInvoiceID(resourceID string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", resourceID, time.Now().Unix(), suffix)
}

// AtomicAmount converts a decimal price string to the integer number of
// six-decimal asset units, truncating anything beyond six fractional
// digits. It never goes through floating point.
func AtomicAmount(price string) (string, error) {
	price = strings.TrimSpace(price)
	if price == "" {
		return "", errors.New("empty price")
	}

	whole, frac, _ := strings.Cut(price, ".")
	if whole == "" {
		whole = "0"
	}
	for _, r := range whole {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid price %q", price)
		}
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid price %q", price)
		}
	}

	if len(frac) > 6 {
		frac = frac[:6]
	}
	frac += strings.Repeat("0", 6-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		combined = "0"
	}
	return combined, nil
}

// Envelope wraps requirements in the payment-required response shape.
func Envelope(errMsg string, accepts ...PaymentRequirements) PaymentRequiredResponse {
	if accepts == nil {
		accepts = []PaymentRequirements{}
	}
	return PaymentRequiredResponse{
		X402Version: Version,
		Error:       errMsg,
		Accepts:     accepts,
	}
}

// EncodeHeader serializes the envelope for a WWW-Authenticate style
// header: base64 over the JSON encoding.
func EncodeHeader(env PaymentRequiredResponse) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("challenge: envelope encode failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
