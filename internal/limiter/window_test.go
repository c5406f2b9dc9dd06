// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package limiter

import (
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func TestWindowLimitScenario(t *testing.T) {
	// {max=5, window=10s, burst=2, cooldown=0}: 5 requests at t=0..4 are
	// allowed, the 6th at t=4.5 is denied with a window-exceeded reason.
	p := Policy{Tier: TierStandard, MaxRequests: 5, Window: 10 * time.Second, BurstLimit: 2}
	w := &requestWindow{}

	for i := 0; i < 5; i++ {
		d := w.evaluate(p, at(float64(i)))
		if !d.Allowed {
			t.Fatalf("request %d at t=%d denied: %s", i+1, i, d.Reason)
		}
		w.record(at(float64(i)))
	}

	d := w.evaluate(p, at(4.5))
	if d.Allowed {
		t.Fatal("6th request should be denied")
	}
	if d.Code != DenyWindow {
		t.Errorf("deny code = %q, want %q", d.Code, DenyWindow)
	}
	if !strings.Contains(d.Reason, "rate limit exceeded") {
		t.Errorf("reason %q should name the window check", d.Reason)
	}
	if !strings.Contains(d.Reason, "limit 5") {
		t.Errorf("reason %q should name the limit", d.Reason)
	}
}

func TestBurstLimitScenario(t *testing.T) {
	// Same policy: requests at t=0.0 and t=0.5 are allowed (burst=2
	// exactly met), a 3rd at t=0.8 is denied with a burst reason.
	p := Policy{Tier: TierStandard, MaxRequests: 5, Window: 10 * time.Second, BurstLimit: 2}
	w := &requestWindow{}

	for _, ts := range []float64{0.0, 0.5} {
		d := w.evaluate(p, at(ts))
		if !d.Allowed {
			t.Fatalf("request at t=%.1f denied: %s", ts, d.Reason)
		}
		w.record(at(ts))
	}

	d := w.evaluate(p, at(0.8))
	if d.Allowed {
		t.Fatal("3rd request within 1s should be denied")
	}
	if d.Code != DenyBurst {
		t.Errorf("deny code = %q, want %q", d.Code, DenyBurst)
	}
	if !strings.Contains(d.Reason, "limit 2") {
		t.Errorf("reason %q should name the burst limit", d.Reason)
	}
}

func TestCooldownCheck(t *testing.T) {
	p := Policy{Tier: TierCritical, MaxRequests: 3, Window: 60 * time.Second, BurstLimit: 1, Cooldown: 5 * time.Second}
	w := &requestWindow{}

	d := w.evaluate(p, at(0))
	if !d.Allowed {
		t.Fatalf("first request denied: %s", d.Reason)
	}
	w.record(at(0))

	d = w.evaluate(p, at(2))
	if d.Allowed {
		t.Fatal("request inside cooldown should be denied")
	}
	if d.Code != DenyCooldown {
		t.Errorf("deny code = %q, want %q", d.Code, DenyCooldown)
	}
	// Remaining cooldown is 3.0 seconds, computed exactly.
	if !strings.Contains(d.Reason, "3.0 seconds") {
		t.Errorf("reason %q should state exact retry time", d.Reason)
	}

	d = w.evaluate(p, at(5))
	if !d.Allowed {
		t.Errorf("request after cooldown should be allowed: %s", d.Reason)
	}
}

func TestCooldownZeroDisablesCheck(t *testing.T) {
	p := Policy{Tier: TierHighFrequency, MaxRequests: 100, Window: 10 * time.Second, BurstLimit: 50}
	w := &requestWindow{}

	w.record(at(0))
	d := w.evaluate(p, at(0.001))
	if !d.Allowed {
		t.Errorf("cooldown=0 must disable the cooldown check: %s", d.Reason)
	}
}

func TestFreshWindowAllowsFirstRequest(t *testing.T) {
	p := Policy{Tier: TierCritical, MaxRequests: 1, Window: time.Minute, BurstLimit: 1, Cooldown: 10 * time.Second}
	w := &requestWindow{}

	d := w.evaluate(p, at(0))
	if !d.Allowed {
		t.Errorf("brand-new sequence must allow its first request: %s", d.Reason)
	}
}

func TestPruneKeepsOrderAndDropsExpired(t *testing.T) {
	w := &requestWindow{}
	for i := 0; i < 10; i++ {
		w.record(at(float64(i)))
	}

	w.prune(at(12), 5*time.Second)

	// Cutoff at t=7: entries at or before it are dropped, t=8 and t=9 stay.
	if len(w.times) != 2 {
		t.Fatalf("len = %d, want 2", len(w.times))
	}
	for i := 1; i < len(w.times); i++ {
		if w.times[i].Before(w.times[i-1]) {
			t.Fatal("sequence must stay sorted ascending")
		}
	}
}

func TestWindowInvariant(t *testing.T) {
	// Allowed requests in any trailing window never exceed MaxRequests.
	p := Policy{Tier: TierStandard, MaxRequests: 8, Window: 4 * time.Second, BurstLimit: 8}
	w := &requestWindow{}

	var allowedTimes []time.Time
	for i := 0; i < 400; i++ {
		now := at(float64(i) * 0.05)
		d := w.evaluate(p, now)
		if d.Allowed {
			w.record(now)
			allowedTimes = append(allowedTimes, now)
		}
	}

	for _, end := range allowedTimes {
		start := end.Add(-p.Window)
		count := 0
		for _, ts := range allowedTimes {
			if ts.After(start) && !ts.After(end) {
				count++
			}
		}
		if count > p.MaxRequests {
			t.Fatalf("window invariant violated: %d allowed in window ending %v", count, end)
		}
	}
}

func TestBurstInvariant(t *testing.T) {
	p := Policy{Tier: TierStandard, MaxRequests: 100, Window: 10 * time.Second, BurstLimit: 3}
	w := &requestWindow{}

	var allowedTimes []time.Time
	for i := 0; i < 300; i++ {
		now := at(float64(i) * 0.07)
		d := w.evaluate(p, now)
		if d.Allowed {
			w.record(now)
			allowedTimes = append(allowedTimes, now)
		}
	}

	for _, end := range allowedTimes {
		start := end.Add(-time.Second)
		count := 0
		for _, ts := range allowedTimes {
			if ts.After(start) && !ts.After(end) {
				count++
			}
		}
		if count > p.BurstLimit {
			t.Fatalf("burst invariant violated: %d allowed in 1s ending %v", count, end)
		}
	}
}
