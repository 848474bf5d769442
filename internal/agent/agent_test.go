// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package agent

import "testing"

func TestClassifyNamedAgent(t *testing.T) {
	id := Classify("GPTBot/1.0")
	if !id.IsAgent {
		t.Fatal("GPTBot should classify as agent")
	}
	if id.Name != "GPTBot" {
		t.Errorf("expected agent name GPTBot, got %q", id.Name)
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// The full ClaudeBot token contains "bot" too; the named signature
	// must win over the generic keyword.
	id := Classify("Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)")
	if id.Name != "ClaudeBot" {
		t.Errorf("expected ClaudeBot, got %q", id.Name)
	}
}

func TestClassifyBrowser(t *testing.T) {
	id := Classify("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if id.IsAgent {
		t.Errorf("browser user-agent classified as agent %q", id.Name)
	}
}

func TestClassifyEmpty(t *testing.T) {
	if id := Classify(""); id.IsAgent {
		t.Error("empty user-agent should not be an agent")
	}
	if id := Classify("   "); id.IsAgent {
		t.Error("blank user-agent should not be an agent")
	}
}

func TestClassifyGenericFallback(t *testing.T) {
	cases := map[string]string{
		"SomeCompanyCrawler":         GenericName,
		"data-spider 2.1":            GenericName,
		"MegaCorp scraper v3":        GenericName,
		"randombot":                  GenericName,
		"AcmeReader agent/0.9 linux": "agent/",
	}
	for ua, want := range cases {
		id := Classify(ua)
		if !id.IsAgent {
			t.Errorf("%q should classify as agent", ua)
			continue
		}
		if id.Name != want {
			t.Errorf("%q: expected name %q, got %q", ua, want, id.Name)
		}
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	id := Classify("gptbot/2.0")
	if !id.IsAgent || id.Name != "GPTBot" {
		t.Errorf("lowercased signature should still match, got %+v", id)
	}
}

func TestKnownSignaturesIsACopy(t *testing.T) {
	sigs := KnownSignatures()
	if len(sigs) == 0 {
		t.Fatal("signature registry is empty")
	}
	sigs[0] = "mutated"
	if KnownSignatures()[0] == "mutated" {
		t.Error("KnownSignatures must return a copy")
	}
}
