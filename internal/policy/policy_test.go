// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package policy

import "testing"

func TestResolveDefaultsToMonetize(t *testing.T) {
	if got := Resolve("UnknownBot", Table{}); got != Monetize {
		t.Errorf("expected monetize for unknown agent, got %s", got)
	}
	if got := Resolve("UnknownBot", nil); got != Monetize {
		t.Errorf("expected monetize for nil table, got %s", got)
	}
}

func TestResolveExactMatch(t *testing.T) {
	table := Table{
		"ClaudeBot": Block,
		"GPTBot":    Allow,
	}

	if got := Resolve("ClaudeBot", table); got != Block {
		t.Errorf("expected block for ClaudeBot, got %s", got)
	}
	if got := Resolve("GPTBot", table); got != Allow {
		t.Errorf("expected allow for GPTBot, got %s", got)
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	table := Table{"ClaudeBot": Block}

	// No fuzzy matching at this layer: policy decisions must be exact.
	if got := Resolve("claudebot", table); got != Monetize {
		t.Errorf("case variant should miss and default to monetize, got %s", got)
	}
}

func TestParseAction(t *testing.T) {
	for name, want := range map[string]Action{
		"monetize": Monetize,
		"allow":    Allow,
		"block":    Block,
	} {
		got, err := ParseAction(name)
		if err != nil {
			t.Errorf("ParseAction(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseAction(%q) = %s, want %s", name, got, want)
		}
	}

	if _, err := ParseAction("obliterate"); err == nil {
		t.Error("unknown action should error")
	}
}

func TestActionString(t *testing.T) {
	if Monetize.String() != "monetize" || Allow.String() != "allow" || Block.String() != "block" {
		t.Error("Action string forms are wrong")
	}
}
