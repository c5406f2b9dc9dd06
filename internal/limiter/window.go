// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package limiter

import (
	"fmt"
	"time"
)

// burstWindow is the sub-window used for burst enforcement.
const burstWindow = time.Second

// requestWindow is the ordered timestamp sequence for one
// (subject, endpoint) pair. Appended on allow only, pruned from the
// front, so it stays sorted ascending by construction.
type requestWindow struct {
	times []time.Time
}

// prune drops entries at or before now-window.
func (w *requestWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// record appends an allowed request timestamp.
func (w *requestWindow) record(now time.Time) {
	w.times = append(w.times, now)
}

// evaluate applies the cooldown, burst, and window checks in order
// against an effective policy. It prunes first and does not record;
// denied attempts never enter the sequence.
func (w *requestWindow) evaluate(p Policy, now time.Time) Decision {
	w.prune(now, p.Window)

	// Cooldown: minimum spacing since the last allowed request.
	// Cooldown 0 disables the check (privileged / high-frequency tiers).
	if p.Cooldown > 0 && len(w.times) > 0 {
		elapsed := now.Sub(w.times[len(w.times)-1])
		if elapsed < p.Cooldown {
			retry := p.Cooldown - elapsed
			return Decision{
				Allowed: false,
				Code:    DenyCooldown,
				Reason:  fmt.Sprintf("cooldown active, retry in %.1f seconds", retry.Seconds()),
				Tier:    p.Tier,
			}
		}
	}

	// Burst: requests strictly within the trailing one-second sub-window.
	burstCutoff := now.Add(-burstWindow)
	burstCount := 0
	for i := len(w.times) - 1; i >= 0; i-- {
		if !w.times[i].After(burstCutoff) {
			break
		}
		burstCount++
	}
	if burstCount >= p.BurstLimit {
		return Decision{
			Allowed: false,
			Code:    DenyBurst,
			Reason:  fmt.Sprintf("burst limit exceeded: %d requests in the last second (limit %d)", burstCount, p.BurstLimit),
			Tier:    p.Tier,
		}
	}

	// Window: total requests in the trailing window.
	if len(w.times) >= p.MaxRequests {
		return Decision{
			Allowed: false,
			Code:    DenyWindow,
			Reason: fmt.Sprintf("rate limit exceeded: %d requests in %.0f second window (limit %d)",
				len(w.times), p.Window.Seconds(), p.MaxRequests),
			Tier: p.Tier,
		}
	}

	return Decision{Allowed: true, Tier: p.Tier}
}
