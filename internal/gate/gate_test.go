// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package gate

import (
	"context"
	"sync"
	"testing"

	"tollgate/internal/challenge"
	"tollgate/internal/collab"
	"tollgate/internal/policy"
	"tollgate/internal/store"
)

const (
	testPayTo = "0xABC0000000000000000000000000000000000001"
	testAsset = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	agentUA   = "ClaudeBot/1.0"
	browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36"
)

type stubPolicies struct {
	table policy.Table
}

func (s *stubPolicies) Table(context.Context) policy.Table { return s.table }

type stubReporter struct {
	mu      sync.Mutex
	reports []collab.Violation
}

func (s *stubReporter) Report(v collab.Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, v)
}

func (s *stubReporter) all() []collab.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collab.Violation(nil), s.reports...)
}

type stubRobots struct {
	doc string
}

func (s *stubRobots) Document(context.Context) string { return s.doc }

type engineFixture struct {
	engine   *Engine
	store    *store.Memory
	reporter *stubReporter
	policies *stubPolicies
	robots   *stubRobots
}

func newFixture(payTo string) *engineFixture {
	st := store.NewMemory()
	f := &engineFixture{
		store:    st,
		reporter: &stubReporter{},
		policies: &stubPolicies{table: policy.Table{}},
		robots:   &stubRobots{},
	}
	builder := challenge.NewBuilder(payTo, "base", testAsset, "https://example.com", st)
	f.engine = NewEngine("site-1", builder, f.policies, f.reporter, f.robots, nil)
	return f
}

func protectedResource() *store.Resource {
	return &store.Resource{
		ID:        "res-1",
		Slug:      "paid-post",
		Title:     "Paid Post",
		Protected: true,
		Price:     "0.10",
	}
}

func (f *engineFixture) decide(res *store.Resource, userAgent string) Verdict {
	return f.engine.Decide(context.Background(), Request{
		UserAgent: userAgent,
		Path:      "/content/paid-post",
		Resource:  res,
	}, Principal{})
}

func TestUnprotectedAlwaysAllows(t *testing.T) {
	f := newFixture(testPayTo)
	res := &store.Resource{ID: "res-2", Slug: "free", BlockHumans: true}

	for _, ua := range []string{agentUA, browserUA, ""} {
		v := f.decide(res, ua)
		if v.Outcome != Allow {
			t.Errorf("unprotected resource must allow %q, got %s", ua, v.Outcome)
		}
	}
	if len(f.reporter.all()) != 0 {
		t.Error("unprotected requests must not be reported")
	}
}

func TestAdminBypass(t *testing.T) {
	f := newFixture(testPayTo)

	v := f.engine.Decide(context.Background(), Request{
		UserAgent: agentUA,
		Path:      "/content/paid-post",
		Resource:  protectedResource(),
	}, Principal{Admin: true, Subject: "ops"})

	if v.Outcome != Allow {
		t.Fatalf("admin principal must bypass the gate, got %s", v.Outcome)
	}
	if len(f.reporter.all()) != 0 {
		t.Error("admin bypass must not hit the violation sink")
	}
}

func TestAgentMonetizeDefault(t *testing.T) {
	f := newFixture(testPayTo)

	v := f.decide(protectedResource(), agentUA)
	if v.Outcome != Challenge {
		t.Fatalf("expected challenge, got %s", v.Outcome)
	}
	if v.Requirements == nil {
		t.Fatal("challenge verdict must carry requirements")
	}
	if v.Requirements.MaxAmountRequired != "100000" {
		t.Errorf("expected amount 100000, got %s", v.Requirements.MaxAmountRequired)
	}
	if v.Requirements.Asset != testAsset {
		t.Errorf("expected configured asset, got %s", v.Requirements.Asset)
	}
	if v.Requirements.PayTo != testPayTo {
		t.Errorf("expected payTo %s, got %s", testPayTo, v.Requirements.PayTo)
	}

	reports := f.reporter.all()
	if len(reports) != 1 || reports[0].PaymentStatus != "challenged" {
		t.Errorf("expected one challenged report, got %+v", reports)
	}
}

func TestAgentPolicyBlock(t *testing.T) {
	f := newFixture(testPayTo)
	f.policies.table = policy.Table{"ClaudeBot": policy.Block}

	v := f.decide(protectedResource(), agentUA)
	if v.Outcome != Block {
		t.Fatalf("expected block, got %s", v.Outcome)
	}
	if v.Requirements != nil {
		t.Error("blocked agent must not receive a challenge")
	}

	// Fail-fast ordering: no binding side effect for a blocked agent.
	binding, err := f.store.GetBinding(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("binding lookup: %v", err)
	}
	if binding != nil {
		t.Error("block verdict must not create a challenge binding")
	}
}

func TestAgentPolicyAllow(t *testing.T) {
	f := newFixture(testPayTo)
	f.policies.table = policy.Table{"ClaudeBot": policy.Allow}

	v := f.decide(protectedResource(), agentUA)
	if v.Outcome != Allow {
		t.Fatalf("expected allow, got %s", v.Outcome)
	}

	reports := f.reporter.all()
	if len(reports) != 1 || reports[0].PaymentStatus != "allowed" {
		t.Errorf("expected one allowed report, got %+v", reports)
	}
}

func TestHumanAllowedByDefault(t *testing.T) {
	f := newFixture(testPayTo)

	v := f.decide(protectedResource(), browserUA)
	if v.Outcome != Allow {
		t.Fatalf("human should pass a resource without block_humans, got %s", v.Outcome)
	}
	if len(f.reporter.all()) != 0 {
		t.Error("human requests must not be reported")
	}
}

func TestHumanChallengedWhenBlockHumans(t *testing.T) {
	f := newFixture(testPayTo)
	res := protectedResource()
	res.BlockHumans = true

	v := f.decide(res, browserUA)
	if v.Outcome != Challenge {
		t.Fatalf("expected challenge for human on block_humans resource, got %s", v.Outcome)
	}
	if len(f.reporter.all()) != 0 {
		t.Error("human challenges are not robots violations")
	}
}

func TestRedirectPreferredOverLocalChallenge(t *testing.T) {
	f := newFixture(testPayTo)
	res := protectedResource()
	res.RedirectURL = "https://pay.example.com/link/123"

	v := f.decide(res, agentUA)
	if v.Outcome != Redirect {
		t.Fatalf("expected redirect, got %s", v.Outcome)
	}
	if v.RedirectURL != res.RedirectURL {
		t.Errorf("unexpected redirect target %s", v.RedirectURL)
	}

	binding, err := f.store.GetBinding(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("binding lookup: %v", err)
	}
	if binding != nil {
		t.Error("redirect path must not create a local challenge binding")
	}
}

func TestNoPayeeServesUnprotected(t *testing.T) {
	f := newFixture("")

	v := f.decide(protectedResource(), agentUA)
	if v.Outcome != Allow {
		t.Fatalf("missing payee must degrade to allow, got %s", v.Outcome)
	}
	if v.Reason != "no payee configured" {
		t.Errorf("unexpected reason %q", v.Reason)
	}
}

func TestRobotsComplianceIsObservabilityOnly(t *testing.T) {
	f := newFixture(testPayTo)
	f.robots.doc = "User-agent: *\nDisallow: /content\n"

	v := f.decide(protectedResource(), agentUA)
	if v.Outcome != Challenge {
		t.Fatalf("non-compliance must not change the verdict, got %s", v.Outcome)
	}

	reports := f.reporter.all()
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	if reports[0].RobotsCompliance {
		t.Error("report should record the robots violation")
	}
	if reports[0].SiteID != "site-1" || reports[0].AgentName != "ClaudeBot" {
		t.Errorf("report misattributed: %+v", reports[0])
	}
}

func TestRobotsCompliantCrawlReported(t *testing.T) {
	f := newFixture(testPayTo)
	f.robots.doc = "User-agent: *\nDisallow: /admin\n"

	f.decide(protectedResource(), agentUA)

	reports := f.reporter.all()
	if len(reports) != 1 || !reports[0].RobotsCompliance {
		t.Errorf("compliant crawl should be reported as compliant, got %+v", reports)
	}
}

func TestChallengeBindingStableAcrossRequests(t *testing.T) {
	f := newFixture(testPayTo)
	res := protectedResource()

	first := f.decide(res, agentUA)
	second := f.decide(res, agentUA)

	if first.Requirements.Extra["bind_hash"] != second.Requirements.Extra["bind_hash"] {
		t.Error("bind_hash must be stable across repeated challenges")
	}
	if first.Requirements.Extra["invoice_id"] != second.Requirements.Extra["invoice_id"] {
		t.Error("invoice_id must be stable across repeated challenges")
	}
}

func TestGenericAgentMonetized(t *testing.T) {
	f := newFixture(testPayTo)

	v := f.decide(protectedResource(), "SomeCompanyCrawler")
	if v.Outcome != Challenge {
		t.Fatalf("generic agent should be monetized, got %s", v.Outcome)
	}
	reports := f.reporter.all()
	if len(reports) != 1 || reports[0].AgentName != "Generic Agent" {
		t.Errorf("expected Generic Agent report, got %+v", reports)
	}
}
