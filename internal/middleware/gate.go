// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tollgate/internal/challenge"
	"tollgate/internal/collab"
	"tollgate/internal/gate"
	"tollgate/internal/store"
)

// ResourceKey is where the gate leaves the loaded resource for the
// downstream content handler.
const ResourceKey = "gate_resource"

const adminTokenHeader = "X-Admin-Token"

// GateDeps wires the payment gate middleware.
type GateDeps struct {
	Engine       *gate.Engine
	Store        store.Store
	Facilitator  *collab.Facilitator
	Limiter      *VerifyLimiter
	AdminToken   string
	DiscoveryURL string
	Currency     string
}

// PaymentGate intercepts requests for resources addressed by the :slug
// route param and enforces the gate verdict. On ALLOW the request
// continues to the content handler; every other outcome is terminal
// here. The gate path never returns a 500: collaborator trouble degrades
// to a well-formed verdict instead.
func PaymentGate(deps GateDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := deps.Store.GetResourceBySlug(c.Request.Context(), c.Param("slug"))
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no such resource"})
			return
		}
		if err != nil {
			slog.Error("Resource lookup failed, serving without gate", "slug", c.Param("slug"), "error", err)
			c.Next()
			return
		}
		c.Set(ResourceKey, res)

		verdict := deps.Engine.Decide(c.Request.Context(), gate.Request{
			UserAgent: c.Request.UserAgent(),
			Path:      c.Request.URL.Path,
			ClientIP:  c.ClientIP(),
			Resource:  res,
		}, principalFrom(c, deps.AdminToken))

		switch verdict.Outcome {
		case gate.Allow:
			c.Next()
		case gate.Block:
			writeBlocked(c, verdict)
		case gate.Redirect:
			c.Redirect(http.StatusFound, verdict.RedirectURL)
			c.Abort()
		case gate.Challenge:
			handleChallenge(c, deps, verdict)
		}
	}
}

// principalFrom models the requester identity explicitly. Admin bypass
// requires a configured token and a constant-time match; with no token
// configured there is no bypass at all.
func principalFrom(c *gin.Context, adminToken string) gate.Principal {
	if adminToken == "" {
		return gate.Principal{}
	}
	presented := c.GetHeader(adminTokenHeader)
	if presented == "" {
		return gate.Principal{}
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(adminToken)) == 1 {
		return gate.Principal{Admin: true, Subject: "token"}
	}
	return gate.Principal{}
}

// handleChallenge gives a paying requester its content and everyone else
// the 402. Verification is fail-closed: any trouble reaching the
// facilitator re-emits the challenge.
func handleChallenge(c *gin.Context, deps GateDeps, verdict gate.Verdict) {
	proof := c.GetHeader("X-Payment")
	if proof == "" || verdict.Requirements == nil {
		writePaymentRequired(c, deps, verdict, "")
		return
	}

	if deps.Limiter != nil && !deps.Limiter.Admit(c.ClientIP()) {
		writePaymentRequired(c, deps, verdict, "too many verification attempts")
		return
	}

	result := deps.Facilitator.Verify(c.Request.Context(), proof, *verdict.Requirements)
	if !result.IsValid {
		reason := result.InvalidReason
		if reason == "" {
			reason = "payment verification failed"
		}
		writePaymentRequired(c, deps, verdict, reason)
		return
	}

	if encoded, err := json.Marshal(result); err == nil {
		c.Header("X-Payment-Response", base64.StdEncoding.EncodeToString(encoded))
	}
	slog.Info("Payment verified",
		"resource", verdict.Requirements.Resource,
		"payer", result.Payer,
		"transaction", result.Transaction,
	)
	c.Next()
}

func writeBlocked(c *gin.Context, verdict gate.Verdict) {
	name := verdict.Agent.Name
	if name == "" {
		name = "unknown agent"
	}
	c.String(http.StatusForbidden, "Access denied: %s is blocked on this site.", name)
	c.Abort()
}

// writePaymentRequired emits the x402 challenge: the base64 envelope in
// WWW-Authenticate, the X-402 discovery headers, CORS for cross-origin
// reads, and a JSON or HTML body depending on the requester.
func writePaymentRequired(c *gin.Context, deps GateDeps, verdict gate.Verdict, errMsg string) {
	reqs := verdict.Requirements
	env := challenge.Envelope(errMsg, *reqs)

	if header, err := challenge.EncodeHeader(env); err == nil {
		c.Header("WWW-Authenticate", header)
	}

	c.Header("X-402-Version", fmt.Sprintf("%d", challenge.Version))
	c.Header("X-402-Scheme", reqs.Scheme)
	c.Header("X-402-Network", reqs.Network)
	c.Header("X-402-Amount", reqs.MaxAmountRequired)
	c.Header("X-402-Currency", deps.Currency)
	c.Header("X-402-Asset", reqs.Asset)
	c.Header("X-402-PayTo", reqs.PayTo)
	c.Header("X-402-Resource", reqs.Resource)
	c.Header("X-402-Discovery", deps.DiscoveryURL)

	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Expose-Headers", "WWW-Authenticate, X-Payment-Response, X-402-Version, X-402-Scheme, X-402-Network, X-402-Amount, X-402-Currency, X-402-Asset, X-402-PayTo, X-402-Resource, X-402-Discovery")

	if wantsHTML(c) {
		writePaywallHTML(c, env)
	} else {
		c.JSON(http.StatusPaymentRequired, env)
	}
	c.Abort()
}

// wantsHTML is true for human-facing browsers: an Accept header asking
// for text/html plus a browser marker in the user-agent. Agent clients
// get the machine-readable envelope.
func wantsHTML(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	ua := strings.ToLower(c.Request.UserAgent())
	return strings.Contains(accept, "text/html") && strings.Contains(ua, "mozilla")
}
