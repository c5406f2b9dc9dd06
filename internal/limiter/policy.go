// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package limiter implements per-subject request gating: a sliding-window
// rate limiter with burst and cooldown controls, tiered endpoint policies,
// and an adaptive throttle that tightens effective limits for subjects
// with a violation history.
//
// The package holds no global state. Per-subject state lives in
// SubjectState values owned by the caller (the engine's subject store)
// and passed in by handle.
package limiter

import (
	"time"

	"github.com/guardline/guardline/internal/config"
)

// Tier identifies a rate-limit tier profile.
type Tier string

const (
	// TierCritical is the tightest tier: few requests, long cooldown.
	TierCritical Tier = "critical"

	// TierStandard is the default tier for unknown endpoints.
	TierStandard Tier = "standard"

	// TierHighFrequency is the loosest normal tier.
	TierHighFrequency Tier = "high_frequency"

	// TierPrivileged overrides the endpoint tier for privileged subjects.
	TierPrivileged Tier = "privileged"
)

// Policy is an immutable per-tier limit profile. Loaded once at startup,
// never mutated; AdaptiveThrottle.Scale returns derived copies.
type Policy struct {
	Tier        Tier
	MaxRequests int
	Window      time.Duration
	BurstLimit  int
	Cooldown    time.Duration
}

// PolicyTable maps endpoint names to limit tiers. The table is static
// configuration shared by all subjects; it is safe for concurrent reads.
type PolicyTable struct {
	tiers     map[Tier]Policy
	endpoints map[string]Tier
}

// NewPolicyTable builds the table from configuration.
func NewPolicyTable(cfg config.LimiterConfig) *PolicyTable {
	toPolicy := func(tier Tier, tc config.TierConfig) Policy {
		return Policy{
			Tier:        tier,
			MaxRequests: tc.MaxRequests,
			Window:      time.Duration(tc.Window * float64(time.Second)),
			BurstLimit:  tc.BurstLimit,
			Cooldown:    time.Duration(tc.Cooldown * float64(time.Second)),
		}
	}

	endpoints := make(map[string]Tier, len(cfg.Endpoints))
	for name, tier := range cfg.Endpoints {
		endpoints[name] = Tier(tier)
	}

	return &PolicyTable{
		tiers: map[Tier]Policy{
			TierCritical:      toPolicy(TierCritical, cfg.Critical),
			TierStandard:      toPolicy(TierStandard, cfg.Standard),
			TierHighFrequency: toPolicy(TierHighFrequency, cfg.HighFrequency),
			TierPrivileged:    toPolicy(TierPrivileged, cfg.Privileged),
		},
		endpoints: endpoints,
	}
}

// Resolve returns the policy for an endpoint. Privileged subjects always
// get the privileged tier regardless of the endpoint's normal tier;
// unknown endpoint names default to standard.
func (t *PolicyTable) Resolve(endpoint string, privileged bool) Policy {
	if privileged {
		return t.tiers[TierPrivileged]
	}
	tier, ok := t.endpoints[endpoint]
	if !ok {
		tier = TierStandard
	}
	policy, ok := t.tiers[tier]
	if !ok {
		policy = t.tiers[TierStandard]
	}
	return policy
}
