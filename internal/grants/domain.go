package grants

import "bytes"

// Grant is one permission record on a department. InheritedFrom nil marks a
// direct grant; non-nil names the department holding the originating direct
// grant, which is not necessarily the immediate parent.
type Grant struct {
	DepartmentID  int64
	PermissionID  int64
	Granted       bool
	Priority      int
	InheritedFrom *int64
	Conditions    []byte
}

// IsDirect reports whether the grant was set explicitly on the department.
func (g Grant) IsDirect() bool {
	return g.InheritedFrom == nil
}

// Origin returns the department a child inheriting this grant should record
// as its source: the original direct holder, preserved across hops.
func (g Grant) Origin() int64 {
	if g.InheritedFrom != nil {
		return *g.InheritedFrom
	}
	return g.DepartmentID
}

// SameValues reports whether two grants agree on everything a propagation
// write would touch. Conditions are opaque bytes compared verbatim.
func (g Grant) SameValues(other Grant) bool {
	return g.Granted == other.Granted &&
		g.Priority == other.Priority &&
		g.Origin() == other.Origin() &&
		bytes.Equal(g.Conditions, other.Conditions)
}

// PermissionDefinition is read-only reference data describing a permission.
type PermissionDefinition struct {
	ID       int64
	Name     string
	Category string
}
