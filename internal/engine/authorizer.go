// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package engine

// Authorizer answers whether a subject is privileged and thus exempt
// from default tier limits. Identity is an external collaborator; this
// interface is the whole boundary.
type Authorizer interface {
	IsPrivileged(subjectID string) bool
}

// AllowlistAuthorizer is the default Authorizer: a static set of subject
// IDs from configuration. It is a convenience, not a security boundary;
// production deployments should plug in their real identity service.
type AllowlistAuthorizer struct {
	subjects map[string]struct{}
}

// NewAllowlistAuthorizer builds an authorizer from a list of subject IDs.
func NewAllowlistAuthorizer(subjectIDs []string) *AllowlistAuthorizer {
	set := make(map[string]struct{}, len(subjectIDs))
	for _, id := range subjectIDs {
		set[id] = struct{}{}
	}
	return &AllowlistAuthorizer{subjects: set}
}

// IsPrivileged reports whether the subject is on the allowlist.
func (a *AllowlistAuthorizer) IsPrivileged(subjectID string) bool {
	_, ok := a.subjects[subjectID]
	return ok
}
