// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package agent

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"
)

// VerificationResult describes a reverse-DNS identity check for a
// requester that claims to be a named crawler. Verification is an
// observability enrichment on violation reports; it never changes the
// gate verdict.
type VerificationResult struct {
	Checked  bool   `json:"checked"`
	Verified bool   `json:"verified"`
	Hostname string `json:"hostname,omitempty"`
}

// operatorDomains maps crawler signatures to the registrable domains
// their published IP ranges reverse-resolve into.
var operatorDomains = map[string][]string{
	"GPTBot":            {"openai.com"},
	"ChatGPT-User":      {"openai.com"},
	"OAI-SearchBot":     {"openai.com"},
	"Googlebot":         {"googlebot.com", "google.com"},
	"Google-Extended":   {"googlebot.com", "google.com"},
	"GoogleOther":       {"googlebot.com", "google.com"},
	"Bingbot":           {"msn.com"},
	"Applebot":          {"apple.com"},
	"Applebot-Extended": {"apple.com"},
	"Amazonbot":         {"amazonaws.com", "amazon.com"},
	"Baiduspider":       {"baidu.com", "baidu.jp"},
	"YandexBot":         {"yandex.ru", "yandex.net", "yandex.com"},
	"DuckDuckBot":       {"duckduckgo.com"},
}

// Verifier confirms a claimed crawler identity by PTR lookup followed by
// a forward A/AAAA check, the standard operator-published procedure.
type Verifier struct {
	server  string
	timeout time.Duration
}

func NewVerifier(server string) *Verifier {
	if server == "" {
		server = "1.1.1.1:53"
	}
	return &Verifier{server: server, timeout: 2 * time.Second}
}

// Verify checks whether clientIP reverse-resolves into one of the
// registrable domains operated by the named crawler, and that the name
// resolves back to the same address. Agents without a published operator
// domain are reported as unchecked. Lookup failures are unchecked, not
// failed: verification is best-effort.
func (v *Verifier) Verify(ctx context.Context, agentName, clientIP string) VerificationResult {
	domains, ok := operatorDomains[agentName]
	if !ok {
		return VerificationResult{}
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return VerificationResult{}
	}

	hostname, err := v.lookupPTR(ctx, ip)
	if err != nil || hostname == "" {
		slog.Debug("rDNS verification inconclusive", "agent", agentName, "ip", clientIP, "error", err)
		return VerificationResult{}
	}

	// The registrable domain must match, not a bare suffix, so
	// "googlebot.com.evil.example" does not pass.
	registrable, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimSuffix(hostname, "."))
	if err != nil {
		return VerificationResult{Checked: true, Hostname: hostname}
	}

	matched := false
	for _, d := range domains {
		if strings.EqualFold(registrable, d) {
			matched = true
			break
		}
	}
	if !matched {
		return VerificationResult{Checked: true, Hostname: hostname}
	}

	if !v.forwardConfirm(ctx, hostname, ip) {
		return VerificationResult{Checked: true, Hostname: hostname}
	}

	return VerificationResult{Checked: true, Verified: true, Hostname: hostname}
}

func (v *Verifier) lookupPTR(ctx context.Context, ip net.IP) (string, error) {
	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	client := &dns.Client{Timeout: v.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, v.server)
	if err != nil {
		return "", err
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return ptr.Ptr, nil
		}
	}
	return "", nil
}

func (v *Verifier) forwardConfirm(ctx context.Context, hostname string, ip net.IP) bool {
	qtype := dns.TypeA
	if ip.To4() == nil {
		qtype = dns.TypeAAAA
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(strings.TrimSuffix(hostname, ".")), qtype)

	client := &dns.Client{Timeout: v.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, v.server)
	if err != nil {
		return false
	}
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			if rec.A.Equal(ip) {
				return true
			}
		case *dns.AAAA:
			if rec.AAAA.Equal(ip) {
				return true
			}
		}
	}
	return false
}
