// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package collab holds the clients for the gate's external
// collaborators: the agent policy API, the violation-report sink, and
// the payment facilitator. Policy lookup and violation reporting are
// best-effort side channels with their own timeouts; only payment
// verification is allowed to matter, and it fails closed.
package collab

import (
	"fmt"
	"net/http"
	"time"
)

const clientUserAgent = "Tollgate-Gate/1.0"

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}
