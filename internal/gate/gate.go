// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package gate decides, per request, whether protected content is
// served, refused, or put behind a payment challenge. Each decision is
// stateless and self-contained; the only durable side effect is the
// first-writer-wins creation of a resource's challenge binding.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"tollgate/internal/agent"
	"tollgate/internal/challenge"
	"tollgate/internal/collab"
	"tollgate/internal/policy"
	"tollgate/internal/robots"
	"tollgate/internal/store"
	"tollgate/internal/telemetry"
)

// Outcome is the terminal disposition of a request.
type Outcome int

const (
	Allow Outcome = iota
	Block
	Challenge
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Block:
		return "block"
	case Challenge:
		return "challenge"
	case Redirect:
		return "redirect"
	default:
		return "allow"
	}
}

// Request is the immutable per-request input to a decision. Built at
// request entry, discarded after the verdict.
type Request struct {
	UserAgent string
	Path      string
	ClientIP  string
	Resource  *store.Resource
}

// Principal identifies the requester beyond its user-agent. The Admin
// flag is the operator escape valve: it short-circuits the whole gate
// and is deliberately an explicit, auditable branch rather than an
// ambient capability check. It is not a security boundary.
type Principal struct {
	Admin   bool
	Subject string
}

// Verdict is the engine's answer plus whatever the response writer
// needs to act on it.
type Verdict struct {
	Outcome      Outcome
	Agent        agent.Identity
	Reason       string
	Requirements *challenge.PaymentRequirements
	RedirectURL  string
}

// PolicySource supplies the site's agent policy table.
type PolicySource interface {
	Table(ctx context.Context) policy.Table
}

// ViolationReporter ships crawl observations to the analytics sink.
// Implementations must never block the caller.
type ViolationReporter interface {
	Report(v collab.Violation)
}

// RobotsSource supplies the site's current robots.txt document.
type RobotsSource interface {
	Document(ctx context.Context) string
}

// IdentityVerifier confirms a claimed crawler identity from its IP.
type IdentityVerifier interface {
	Verify(ctx context.Context, agentName, clientIP string) agent.VerificationResult
}

// Engine orchestrates classification, robots compliance, policy
// resolution and challenge construction into a single verdict.
type Engine struct {
	siteID   string
	builder  *challenge.Builder
	policies PolicySource
	reporter ViolationReporter
	robots   RobotsSource
	verifier IdentityVerifier
	rules    *telemetry.TTLCache[robots.RuleSet]
}

func NewEngine(siteID string, builder *challenge.Builder, policies PolicySource, reporter ViolationReporter, robotsSrc RobotsSource, verifier IdentityVerifier) *Engine {
	return &Engine{
		siteID:   siteID,
		builder:  builder,
		policies: policies,
		reporter: reporter,
		robots:   robotsSrc,
		verifier: verifier,
		rules:    telemetry.NewTTLCache[robots.RuleSet]("robots-rules", 256, 10*time.Minute),
	}
}

// Decide evaluates one request. Ordering is deliberate: unprotected and
// admin requests exit before classification, and a blocked agent exits
// before any challenge state is touched, so a blacklisted crawler never
// causes a binding to be created.
func (e *Engine) Decide(ctx context.Context, req Request, principal Principal) Verdict {
	res := req.Resource
	if res == nil || !res.Protected {
		return Verdict{Outcome: Allow, Reason: "unprotected"}
	}

	if principal.Admin {
		slog.Info("Gate bypassed by admin principal", "subject", principal.Subject, "path", req.Path)
		return Verdict{Outcome: Allow, Reason: "admin bypass"}
	}

	identity := agent.Classify(req.UserAgent)
	if identity.IsAgent {
		return e.decideAgent(ctx, req, identity)
	}
	return e.decideHuman(ctx, req, identity)
}

func (e *Engine) decideAgent(ctx context.Context, req Request, identity agent.Identity) Verdict {
	// Compliance is observability only. It feeds the violation report
	// and nothing else; a non-compliant crawl does not change the
	// verdict.
	compliant := e.robotsCompliance(ctx, identity.Name, req.Path)
	if !compliant {
		slog.Info("Robots policy violation observed", "agent", identity.Name, "path", req.Path)
	}

	action := policy.Resolve(identity.Name, e.policies.Table(ctx))

	switch action {
	case policy.Block:
		e.report(identity, req, compliant, "blocked")
		return Verdict{Outcome: Block, Agent: identity, Reason: "policy block"}
	case policy.Allow:
		e.report(identity, req, compliant, "allowed")
		return Verdict{Outcome: Allow, Agent: identity, Reason: "policy allow"}
	}

	return e.challenge(ctx, req, identity, compliant)
}

func (e *Engine) decideHuman(ctx context.Context, req Request, identity agent.Identity) Verdict {
	if !req.Resource.BlockHumans {
		return Verdict{Outcome: Allow, Agent: identity, Reason: "human"}
	}
	return e.challenge(ctx, req, identity, true)
}

// challenge is the shared monetize path for agents and for humans on
// block_humans resources. An externally issued payment link wins over a
// locally built 402.
func (e *Engine) challenge(ctx context.Context, req Request, identity agent.Identity, compliant bool) Verdict {
	res := req.Resource

	if res.RedirectURL != "" {
		if identity.IsAgent {
			e.report(identity, req, compliant, "redirected")
		}
		return Verdict{Outcome: Redirect, Agent: identity, RedirectURL: res.RedirectURL, Reason: "payment link"}
	}

	reqs, err := e.builder.Build(ctx, res)
	if errors.Is(err, challenge.ErrNoPayee) {
		// Configuration gap, not a request failure: serve the content
		// rather than emit a challenge with an empty payee.
		slog.Warn("Resource served unprotected: no payee address configured", "resource", res.ID)
		return Verdict{Outcome: Allow, Agent: identity, Reason: "no payee configured"}
	}
	if err != nil {
		slog.Error("Challenge construction failed, serving unprotected", "resource", res.ID, "error", err)
		return Verdict{Outcome: Allow, Agent: identity, Reason: "challenge unavailable"}
	}

	if identity.IsAgent {
		e.report(identity, req, compliant, "challenged")
	}
	return Verdict{Outcome: Challenge, Agent: identity, Requirements: reqs, Reason: "monetize"}
}

// robotsCompliance parses the site's robots document for the agent and
// checks the requested path. An absent or empty document is compliant by
// definition. Parsed rule sets are cached by document hash.
func (e *Engine) robotsCompliance(ctx context.Context, agentName, path string) bool {
	doc := e.robots.Document(ctx)
	if doc == "" {
		return true
	}

	sum := sha256.Sum256([]byte(doc))
	key := hex.EncodeToString(sum[:8]) + "|" + agentName

	rules, ok := e.rules.Get(key)
	if !ok {
		rules = robots.Parse(doc, agentName)
		e.rules.Set(key, rules)
	}
	return robots.IsPathAllowed(path, rules)
}

// report enriches the violation with best-effort rDNS verification and
// hands it to the fire-and-forget reporter. Never blocks the decision.
func (e *Engine) report(identity agent.Identity, req Request, compliant bool, status string) {
	v := collab.Violation{
		SiteID:           e.siteID,
		AgentName:        identity.Name,
		Path:             req.Path,
		RobotsCompliance: compliant,
		PaymentStatus:    status,
	}

	if e.verifier != nil && identity.Name != agent.GenericName && req.ClientIP != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if result := e.verifier.Verify(ctx, identity.Name, req.ClientIP); result.Checked {
				v.Verification = &result
			}
			e.reporter.Report(v)
		}()
		return
	}

	e.reporter.Report(v)
}
