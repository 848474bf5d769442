// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package agent

import "strings"

// GenericName is reported when a user-agent looks automated but matches
// no named signature.
const GenericName = "Generic Agent"

// Identity is the result of classifying a raw User-Agent string.
type Identity struct {
	IsAgent bool   `json:"is_agent"`
	Name    string `json:"agent_name,omitempty"`
}

// knownSignatures is matched in order against the lowercased user-agent;
// the first hit wins and its name is reported verbatim. Named AI crawlers
// come before the generic product markers so "GPTBot/1.0" classifies as
// GPTBot, not "bot/".
var knownSignatures = []string{
	"GPTBot",
	"ChatGPT-User",
	"OAI-SearchBot",
	"ClaudeBot",
	"Claude-Web",
	"Claude-User",
	"anthropic-ai",
	"Google-Extended",
	"GoogleOther",
	"PerplexityBot",
	"Perplexity-User",
	"Applebot-Extended",
	"Applebot",
	"CCBot",
	"Bytespider",
	"Meta-ExternalAgent",
	"Meta-ExternalFetcher",
	"FacebookBot",
	"Amazonbot",
	"cohere-ai",
	"cohere-training-data-crawler",
	"Diffbot",
	"DuckAssistBot",
	"Kangaroo Bot",
	"PanguBot",
	"Timpibot",
	"Webzio-Extended",
	"YouBot",
	"AI2Bot",
	"Omgilibot",
	"omgili",
	"MistralAI-User",
	"Googlebot",
	"Bingbot",
	"Slurp",
	"DuckDuckBot",
	"Baiduspider",
	"YandexBot",
	"PetalBot",
	"SemrushBot",
	"AhrefsBot",
	"MJ12bot",
	"DotBot",
	"bot/",
	"agent/",
}

// genericKeywords catch self-declared automation that is not in the
// signature registry.
var genericKeywords = []string{"bot", "crawler", "spider", "scraper"}

// Classify inspects a raw User-Agent string and reports whether the
// requester declares itself as an automated agent. It never fails: an
// empty or unrecognizable string is classified as human, the permissive
// branch.
func Classify(userAgent string) Identity {
	if strings.TrimSpace(userAgent) == "" {
		return Identity{}
	}

	lower := strings.ToLower(userAgent)

	for _, sig := range knownSignatures {
		if strings.Contains(lower, strings.ToLower(sig)) {
			return Identity{IsAgent: true, Name: sig}
		}
	}

	for _, kw := range genericKeywords {
		if strings.Contains(lower, kw) {
			return Identity{IsAgent: true, Name: GenericName}
		}
	}

	return Identity{}
}

// KnownSignatures returns a copy of the signature registry, in match
// order. Used by the discovery and admin surfaces.
func KnownSignatures() []string {
	out := make([]string, len(knownSignatures))
	copy(out, knownSignatures)
	return out
}
