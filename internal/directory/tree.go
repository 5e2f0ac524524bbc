package directory

import "fmt"

// Issue records a department excluded from a run because its tree references
// are malformed. Issues are reported against the run, never silently dropped.
type Issue struct {
	DepartmentID int64
	Reason       string
}

func (i Issue) String() string {
	return fmt.Sprintf("department %d: %s", i.DepartmentID, i.Reason)
}

// Forest is the in-memory index of the department tree for one run: a flat
// map by id plus a children-by-parent adjacency map, built once so the walk
// is iterative and level-ordered rather than recursive.
type Forest struct {
	byID     map[int64]Department
	children map[int64][]int64
	levels   [][]Department
	issues   []Issue
}

// BuildForest indexes departments that arrive in level-ascending order.
// A department is admitted only when its parent reference resolves to an
// already admitted department and its level is exactly parent level + 1;
// rejecting a node implicitly rejects its whole subtree because descendants
// then fail the same parent check.
func BuildForest(departments []Department) *Forest {
	f := &Forest{
		byID:     make(map[int64]Department, len(departments)),
		children: make(map[int64][]int64),
	}
	for _, dept := range departments {
		if dept.ParentID == nil {
			if dept.Level != 0 {
				f.issues = append(f.issues, Issue{DepartmentID: dept.ID, Reason: fmt.Sprintf("root with level %d", dept.Level)})
				continue
			}
			f.admit(dept)
			continue
		}
		parent, ok := f.byID[*dept.ParentID]
		if !ok {
			f.issues = append(f.issues, Issue{DepartmentID: dept.ID, Reason: fmt.Sprintf("parent %d missing or excluded", *dept.ParentID)})
			continue
		}
		if dept.Level != parent.Level+1 {
			f.issues = append(f.issues, Issue{DepartmentID: dept.ID, Reason: fmt.Sprintf("level %d does not follow parent level %d", dept.Level, parent.Level)})
			continue
		}
		f.admit(dept)
		f.children[parent.ID] = append(f.children[parent.ID], dept.ID)
	}
	return f
}

func (f *Forest) admit(dept Department) {
	f.byID[dept.ID] = dept
	for len(f.levels) <= dept.Level {
		f.levels = append(f.levels, nil)
	}
	f.levels[dept.Level] = append(f.levels[dept.Level], dept)
}

// Levels returns admitted departments grouped by depth, shallowest first.
// Departments within one level are mutually independent.
func (f *Forest) Levels() [][]Department {
	return f.levels
}

// Get returns the admitted department with the given id.
func (f *Forest) Get(id int64) (Department, bool) {
	dept, ok := f.byID[id]
	return dept, ok
}

// Parent returns the admitted parent of the given department.
func (f *Forest) Parent(dept Department) (Department, bool) {
	if dept.ParentID == nil {
		return Department{}, false
	}
	return f.Get(*dept.ParentID)
}

// Subtree returns the ids of every admitted descendant of id, excluding id
// itself. The walk is iterative over the adjacency map.
func (f *Forest) Subtree(id int64) []int64 {
	var out []int64
	queue := append([]int64(nil), f.children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		out = append(out, next)
		queue = append(queue, f.children[next]...)
	}
	return out
}

// Size returns the number of admitted departments.
func (f *Forest) Size() int {
	return len(f.byID)
}

// Issues returns the departments excluded during the build.
func (f *Forest) Issues() []Issue {
	return f.issues
}
