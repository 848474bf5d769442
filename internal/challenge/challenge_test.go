// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package challenge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"tollgate/internal/store"
)

const (
	testPayTo   = "0xABC0000000000000000000000000000000000001"
	testNetwork = "base"
	testAsset   = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testBaseURL = "https://example.com"
)

func testResource() *store.Resource {
	return &store.Resource{
		ID:        "res-1",
		Slug:      "paid-post",
		Title:     "Paid Post",
		Protected: true,
		Price:     "0.10",
	}
}

func newTestBuilder(st store.Store) *Builder {
	return NewBuilder(testPayTo, testNetwork, testAsset, testBaseURL, st)
}

func TestBuildRequirements(t *testing.T) {
	b := newTestBuilder(store.NewMemory())

	reqs, err := b.Build(context.Background(), testResource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reqs.MaxAmountRequired != "100000" {
		t.Errorf("expected amount 100000 for price 0.10, got %s", reqs.MaxAmountRequired)
	}
	if reqs.PayTo != testPayTo {
		t.Errorf("expected payTo %s, got %s", testPayTo, reqs.PayTo)
	}
	if reqs.Asset != testAsset {
		t.Errorf("expected asset %s, got %s", testAsset, reqs.Asset)
	}
	if reqs.Scheme != "exact" || reqs.Network != testNetwork {
		t.Errorf("unexpected scheme/network: %s/%s", reqs.Scheme, reqs.Network)
	}
	if reqs.Resource != testBaseURL+"/content/paid-post" {
		t.Errorf("unexpected resource URL %s", reqs.Resource)
	}
	if reqs.Extra["bind_hash"] == "" || reqs.Extra["invoice_id"] == "" {
		t.Error("extra must carry bind_hash and invoice_id")
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	b := newTestBuilder(store.NewMemory())
	res := testResource()

	first, err := b.Build(context.Background(), res)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := b.Build(context.Background(), res)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if first.Extra["bind_hash"] != second.Extra["bind_hash"] {
		t.Error("bind_hash must be byte-identical across builds")
	}
	if first.Extra["invoice_id"] != second.Extra["invoice_id"] {
		t.Error("invoice_id must be byte-identical across builds")
	}
}

func TestBuildNoPayee(t *testing.T) {
	st := store.NewMemory()
	b := NewBuilder("", testNetwork, testAsset, testBaseURL, st)

	_, err := b.Build(context.Background(), testResource())
	if err != ErrNoPayee {
		t.Fatalf("expected ErrNoPayee, got %v", err)
	}

	// The skip path must not create a binding.
	binding, err := st.GetBinding(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("binding lookup: %v", err)
	}
	if binding != nil {
		t.Error("no binding should be persisted when no payee is configured")
	}
}

func TestBuildBadPrice(t *testing.T) {
	b := newTestBuilder(store.NewMemory())
	res := testResource()
	res.Price = "ten dollars"

	if _, err := b.Build(context.Background(), res); err == nil {
		t.Error("expected error for unparseable price")
	}
}

func TestAtomicAmount(t *testing.T) {
	cases := []struct {
		price string
		want  string
	}{
		{"0.10", "100000"},
		{"0.1", "100000"},
		{"1", "1000000"},
		{"1.5", "1500000"},
		{"12.345678", "12345678"},
		{"0.0000019", "1"},
		{"0", "0"},
		{"0.000000", "0"},
		{".5", "500000"},
	}
	for _, tc := range cases {
		got, err := AtomicAmount(tc.price)
		if err != nil {
			t.Errorf("AtomicAmount(%q): %v", tc.price, err)
			continue
		}
		if got != tc.want {
			t.Errorf("AtomicAmount(%q) = %q, want %q", tc.price, got, tc.want)
		}
	}

	for _, bad := range []string{"", "abc", "1.2.3", "-1", "1,50"} {
		if _, err := AtomicAmount(bad); err == nil {
			t.Errorf("AtomicAmount(%q) should error", bad)
		}
	}
}

func TestEncodeHeaderRoundTrip(t *testing.T) {
	b := newTestBuilder(store.NewMemory())
	reqs, err := b.Build(context.Background(), testResource())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	header, err := EncodeHeader(Envelope("", *reqs))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		t.Fatalf("header is not valid base64: %v", err)
	}

	var env PaymentRequiredResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("header payload is not valid JSON: %v", err)
	}
	if env.X402Version != Version {
		t.Errorf("expected version %d, got %d", Version, env.X402Version)
	}
	if len(env.Accepts) != 1 || env.Accepts[0].MaxAmountRequired != "100000" {
		t.Errorf("envelope lost the requirements: %+v", env.Accepts)
	}
}

func TestEnvelopeNeverNilAccepts(t *testing.T) {
	env := Envelope("nothing to pay for")
	if env.Accepts == nil {
		t.Error("accepts must serialize as an empty array, not null")
	}
}
