package models

import "strings"

const (
	ScopeKindCommunity = "community"
	ScopeKindTeam      = "team"
)

// Scope names the population sharing one channel key: the whole community,
// or a single team tenant.
type Scope struct {
	Kind     string `json:"kind"`
	TenantID string `json:"tenant_id,omitempty"`
}

func CommunityScope() Scope {
	return Scope{Kind: ScopeKindCommunity}
}

func TeamScope(tenantID string) Scope {
	return Scope{Kind: ScopeKindTeam, TenantID: strings.TrimSpace(tenantID)}
}

// Key returns a stable cache/lookup key for the scope.
func (s Scope) Key() string {
	if s.Kind == ScopeKindTeam {
		return ScopeKindTeam + ":" + s.TenantID
	}
	return ScopeKindCommunity
}

func (s Scope) Valid() bool {
	switch s.Kind {
	case ScopeKindCommunity:
		return s.TenantID == ""
	case ScopeKindTeam:
		return s.TenantID != ""
	}
	return false
}
