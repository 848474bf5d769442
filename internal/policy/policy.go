// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package policy maps a classified agent identity to the site-configured
// disposition. Lookup is exact and case-sensitive as registered: policy
// decisions must be precise and auditable, unlike the deliberately
// permissive matching in the robots compliance check.
package policy

import "fmt"

// Action is the site-configured disposition for an agent identity.
// Monetize is the zero value so an unconfigured or unrecognized identity
// always falls through to the payment flow.
type Action int

const (
	Monetize Action = iota
	Allow
	Block
)

func (a Action) String() string {
	switch a {
	case Monetize:
		return "monetize"
	case Allow:
		return "allow"
	case Block:
		return "block"
	default:
		return "monetize"
	}
}

// ParseAction decodes the wire form used by the policy API.
func ParseAction(s string) (Action, error) {
	switch s {
	case "monetize":
		return Monetize, nil
	case "allow":
		return Allow, nil
	case "block":
		return Block, nil
	default:
		return Monetize, fmt.Errorf("unknown policy action %q", s)
	}
}

// Table is a site-scoped mapping of agent name to action.
type Table map[string]Action

// Resolve looks up agentName in the table. Unmatched identities default
// to Monetize.
func Resolve(agentName string, table Table) Action {
	if action, ok := table[agentName]; ok {
		return action
	}
	return Monetize
}
