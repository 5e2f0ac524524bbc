package conflicts

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgsync/orgsync/internal/directory"
	"github.com/orgsync/orgsync/internal/grants"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v int64) *int64 { return &v }

type fakeLister struct {
	departments []directory.Department
}

func (f *fakeLister) ListActiveOrdered(context.Context) ([]directory.Department, error) {
	return f.departments, nil
}

// fakeStore is read-only grant state for detector tests.
type fakeStore struct {
	direct    map[int64][]grants.Grant
	inherited map[int64][]grants.Grant
	deleted   map[int64][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		direct:    make(map[int64][]grants.Grant),
		inherited: make(map[int64][]grants.Grant),
		deleted:   make(map[int64][]int64),
	}
}

func (f *fakeStore) addDirect(dept, perm int64, granted bool, priority int) {
	f.direct[dept] = append(f.direct[dept], grants.Grant{
		DepartmentID: dept, PermissionID: perm, Granted: granted, Priority: priority,
	})
}

func (f *fakeStore) addInherited(dept, perm int64, granted bool, priority int, origin int64) {
	f.inherited[dept] = append(f.inherited[dept], grants.Grant{
		DepartmentID: dept, PermissionID: perm, Granted: granted, Priority: priority, InheritedFrom: &origin,
	})
}

func (f *fakeStore) DirectGrants(_ context.Context, deptID int64) ([]grants.Grant, error) {
	return f.direct[deptID], nil
}

func (f *fakeStore) InheritedGrants(_ context.Context, deptID int64) ([]grants.Grant, error) {
	return f.inherited[deptID], nil
}

func (f *fakeStore) ResolvedGrants(_ context.Context, deptID int64) ([]grants.Grant, error) {
	seen := make(map[int64]bool)
	var out []grants.Grant
	for _, g := range f.direct[deptID] {
		seen[g.PermissionID] = true
		out = append(out, g)
	}
	for _, g := range f.inherited[deptID] {
		if !seen[g.PermissionID] {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (f *fakeStore) ApplyDepartment(_ context.Context, deptID int64, upserts []grants.Grant, deletePermIDs []int64) error {
	f.deleted[deptID] = append(f.deleted[deptID], deletePermIDs...)
	var kept []grants.Grant
	drop := make(map[int64]bool, len(deletePermIDs))
	for _, perm := range deletePermIDs {
		drop[perm] = true
	}
	for _, g := range f.inherited[deptID] {
		if !drop[g.PermissionID] {
			kept = append(kept, g)
		}
	}
	f.inherited[deptID] = append(kept, upserts...)
	return nil
}

func (f *fakeStore) CountInherited(context.Context) (int64, error) {
	var n int64
	for _, rows := range f.inherited {
		n += int64(len(rows))
	}
	return n, nil
}

func (f *fakeStore) Permission(_ context.Context, permID int64) (grants.PermissionDefinition, error) {
	return grants.PermissionDefinition{ID: permID}, nil
}

func chain() *fakeLister {
	return &fakeLister{departments: []directory.Department{
		{ID: 1, Level: 0},
		{ID: 2, ParentID: ptr(1), Level: 1},
		{ID: 3, ParentID: ptr(2), Level: 2},
	}}
}

func TestDetectCleanStateHasNoFindings(t *testing.T) {
	store := newFakeStore()
	store.addDirect(1, 100, true, 10)
	store.addInherited(2, 100, true, 9, 1)
	store.addInherited(3, 100, true, 8, 1)

	findings, err := NewDetector(chain(), store, testLogger()).Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectStaleInheritedRow(t *testing.T) {
	store := newFakeStore()
	// Nothing flows from the root anymore, but the child still stores a row.
	store.addInherited(2, 100, true, 9, 1)

	findings, err := NewDetector(chain(), store, testLogger()).Detect(context.Background())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, KindStaleInherited, f.Kind)
	assert.Equal(t, SeverityLow, f.Severity)
	assert.Equal(t, int64(2), f.DepartmentID)
	assert.Equal(t, int64(100), f.PermissionID)
	assert.NotEmpty(t, f.Proposal)
	assert.JSONEq(t, `{"observed":{"granted":true,"priority":9,"inheritedFrom":1},"expected":null}`,
		string(f.ConflictingValues))
}

func TestDetectStaleRowWithChangedOriginIsStillExpected(t *testing.T) {
	store := newFakeStore()
	store.addDirect(1, 100, true, 10)
	// Stored row disagrees on priority and origin, but the permission still
	// flows, so the next sync repairs it in place; that is not a conflict.
	store.addInherited(2, 100, false, 3, 7)

	findings, err := NewDetector(chain(), store, testLogger()).Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectRevokingOverride(t *testing.T) {
	store := newFakeStore()
	store.addDirect(1, 100, true, 10)
	// The child revokes while the grandchild still holds a granted copy.
	store.addDirect(2, 100, false, 5)
	store.addInherited(3, 100, true, 8, 1)

	findings, err := NewDetector(chain(), store, testLogger()).Detect(context.Background())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, KindRevokingOverride, f.Kind)
	assert.Equal(t, SeverityHigh, f.Severity)
	assert.Equal(t, int64(2), f.DepartmentID)
	assert.Contains(t, string(f.ConflictingValues), `"orphanedDescendants":1`)
}

func TestDetectRevokingOverrideWithoutOrphansIsQuiet(t *testing.T) {
	store := newFakeStore()
	store.addDirect(1, 100, true, 10)
	store.addDirect(2, 100, false, 5)
	// The grandchild already carries the propagated revocation.
	store.addInherited(3, 100, false, 4, 2)

	findings, err := NewDetector(chain(), store, testLogger()).Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectRevocationAtRootIsNotAnOverride(t *testing.T) {
	// A root revocation shadows nothing, there is no upstream flow.
	store := newFakeStore()
	store.addDirect(1, 100, false, 5)
	store.addInherited(2, 100, false, 4, 1)
	store.addInherited(3, 100, false, 3, 1)

	findings, err := NewDetector(chain(), store, testLogger()).Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}
