// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package robots parses robots.txt documents and evaluates whether a
// request path is permitted for a given agent. It is a best-effort
// parser: malformed lines are skipped, an empty or missing document
// yields a fully permissive rule set, and nothing here ever errors.
package robots

import (
	"strconv"
	"strings"
)

// RuleSet holds the directives that apply to one queried agent,
// collected from every matching User-agent block in the document.
type RuleSet struct {
	Agent      string
	Allows     []string
	Disallows  []string
	CrawlDelay int
}

// HasDisallow reports whether any disallow directive applies to the
// agent. A rule set without one means the site declares no restriction,
// so any access is compliant.
func (r RuleSet) HasDisallow() bool {
	return len(r.Disallows) > 0
}

// Parse extracts the rules that apply to agentName. A block applies when
// its User-agent token is "*" or is a case-insensitive substring match of
// the queried name in either direction: registry names are often prefixes
// of the full product token seen in request logs.
func Parse(document, agentName string) RuleSet {
	rules := RuleSet{Agent: agentName}
	if strings.TrimSpace(document) == "" {
		return rules
	}

	// Consecutive User-agent lines share the directives that follow.
	blockApplies := false
	inDirectives := false

	for _, raw := range strings.Split(document, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		field, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		switch field {
		case "user-agent":
			if inDirectives {
				blockApplies = false
				inDirectives = false
			}
			if agentTokenMatches(value, agentName) {
				blockApplies = true
			}
		case "disallow":
			inDirectives = true
			if blockApplies && value != "" {
				rules.Disallows = append(rules.Disallows, value)
			}
		case "allow":
			inDirectives = true
			if blockApplies && value != "" {
				rules.Allows = append(rules.Allows, value)
			}
		case "crawl-delay":
			inDirectives = true
			if blockApplies {
				if delay, err := strconv.Atoi(value); err == nil && delay > 0 {
					rules.CrawlDelay = delay
				}
			}
		default:
			inDirectives = true
		}
	}

	return rules
}

// IsPathAllowed evaluates path against the rule set. An explicit Allow
// match wins regardless of directive order; otherwise any Disallow match
// denies; with neither, the default is allowed.
func IsPathAllowed(path string, rules RuleSet) bool {
	if path == "" {
		path = "/"
	}

	for _, pattern := range rules.Allows {
		if patternMatches(pattern, path) {
			return true
		}
	}
	for _, pattern := range rules.Disallows {
		if patternMatches(pattern, path) {
			return false
		}
	}
	return true
}

func splitDirective(line string) (field, value string, ok bool) {
	i := strings.Index(line, ":")
	if i <= 0 {
		return "", "", false
	}
	field = strings.ToLower(strings.TrimSpace(line[:i]))
	value = strings.TrimSpace(line[i+1:])
	return field, value, true
}

func agentTokenMatches(token, agentName string) bool {
	token = strings.TrimSpace(token)
	if token == "*" {
		return true
	}
	if token == "" || agentName == "" {
		return false
	}
	t := strings.ToLower(token)
	a := strings.ToLower(agentName)
	return strings.Contains(a, t) || strings.Contains(t, a)
}

// patternMatches treats a pattern without wildcards as a path prefix.
// A "*" matches any sequence of characters.
func patternMatches(pattern, path string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.HasPrefix(path, pattern)
	}

	segments := strings.Split(pattern, "*")

	// First segment is anchored at the start of the path.
	if !strings.HasPrefix(path, segments[0]) {
		return false
	}
	rest := path[len(segments[0]):]

	for _, seg := range segments[1:] {
		if seg == "" {
			continue
		}
		i := strings.Index(rest, seg)
		if i < 0 {
			return false
		}
		rest = rest[i+len(seg):]
	}
	return true
}
