package directory

// Department is a node in the organizational tree. Departments are owned and
// mutated by the external org store; this engine reads them only.
type Department struct {
	ID       int64
	ParentID *int64
	Level    int
	Path     string
	IsActive bool
}

// IsRoot reports whether the department has no parent.
func (d Department) IsRoot() bool {
	return d.ParentID == nil
}
