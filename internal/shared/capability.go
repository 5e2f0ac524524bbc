package shared

import "strings"

// Capability is an atomic admin capability consulted by route guards.
type Capability string

// Capabilities used by the engine's admin surface.
const (
	CapSyncRun          Capability = "permissions.sync"
	CapConflictsView    Capability = "permissions.conflicts.view"
	CapConflictsResolve Capability = "permissions.conflicts.resolve"
	CapAuditView        Capability = "permissions.audit.view"
)

// CapabilitySet holds the capabilities resolved for an operator.
type CapabilitySet map[Capability]struct{}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(cap Capability) bool {
	_, ok := s[cap]
	return ok
}

// roleCapabilities maps normalized role names to their capabilities. The
// lookup replaces scattered case-sensitive role string comparisons: a role is
// normalized exactly once when the operator context is built.
var roleCapabilities = map[string][]Capability{
	"admin":      {CapSyncRun, CapConflictsView, CapConflictsResolve, CapAuditView},
	"superadmin": {CapSyncRun, CapConflictsView, CapConflictsResolve, CapAuditView},
	"auditor":    {CapConflictsView, CapAuditView},
	"operator":   {CapSyncRun, CapConflictsView, CapAuditView},
}

// NormalizeRole canonicalizes a role name for capability lookup.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// CapabilitiesForRoles resolves the union of capabilities for the given roles.
func CapabilitiesForRoles(roles []string) CapabilitySet {
	set := make(CapabilitySet)
	for _, role := range roles {
		for _, cap := range roleCapabilities[NormalizeRole(role)] {
			set[cap] = struct{}{}
		}
	}
	return set
}
