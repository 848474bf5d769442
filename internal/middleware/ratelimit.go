// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package middleware

import (
	"sync"
	"time"
)

const (
	// Verification attempts allowed per client IP per window. Each
	// attempt costs a facilitator round trip, so a client replaying
	// garbage proofs gets its challenge back without one.
	VerifyLimitWindow      = 60 * time.Second
	VerifyLimitMaxAttempts = 10
)

// VerifyLimiter bounds payment-verification attempts per client IP with
// a sliding window. The gate decision itself is never rate limited.
type VerifyLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func NewVerifyLimiter() *VerifyLimiter {
	l := &VerifyLimiter{attempts: make(map[string][]time.Time)}
	go l.cleanupLoop()
	return l
}

// Admit records an attempt and reports whether it is within the limit.
func (l *VerifyLimiter) Admit(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	recent := pruneBefore(l.attempts[ip], now.Add(-VerifyLimitWindow))

	if len(recent) >= VerifyLimitMaxAttempts {
		l.attempts[ip] = recent
		return false
	}

	l.attempts[ip] = append(recent, now)
	return true
}

func (l *VerifyLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-VerifyLimitWindow)
		for ip, attempts := range l.attempts {
			remaining := pruneBefore(attempts, cutoff)
			if len(remaining) == 0 {
				delete(l.attempts, ip)
			} else {
				l.attempts[ip] = remaining
			}
		}
		l.mu.Unlock()
	}
}

func pruneBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	result := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}
