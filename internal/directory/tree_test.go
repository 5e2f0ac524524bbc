package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestBuildForestGroupsByLevel(t *testing.T) {
	forest := BuildForest([]Department{
		{ID: 1, Level: 0},
		{ID: 5, Level: 0},
		{ID: 2, ParentID: ptr(1), Level: 1},
		{ID: 3, ParentID: ptr(5), Level: 1},
		{ID: 4, ParentID: ptr(2), Level: 2},
	})

	require.Equal(t, 5, forest.Size())
	levels := forest.Levels()
	require.Len(t, levels, 3)
	assert.Len(t, levels[0], 2)
	assert.Len(t, levels[1], 2)
	assert.Len(t, levels[2], 1)
	assert.Empty(t, forest.Issues())
}

func TestBuildForestRejectsRootWithNonzeroLevel(t *testing.T) {
	forest := BuildForest([]Department{
		{ID: 1, Level: 3},
	})

	assert.Zero(t, forest.Size())
	require.Len(t, forest.Issues(), 1)
	assert.Equal(t, int64(1), forest.Issues()[0].DepartmentID)
}

func TestBuildForestRejectsMissingParent(t *testing.T) {
	forest := BuildForest([]Department{
		{ID: 1, Level: 0},
		{ID: 2, ParentID: ptr(42), Level: 1},
	})

	assert.Equal(t, 1, forest.Size())
	require.Len(t, forest.Issues(), 1)
	assert.Contains(t, forest.Issues()[0].Reason, "parent 42")
}

func TestBuildForestRejectsLevelGap(t *testing.T) {
	forest := BuildForest([]Department{
		{ID: 1, Level: 0},
		{ID: 2, ParentID: ptr(1), Level: 2},
	})

	assert.Equal(t, 1, forest.Size())
	require.Len(t, forest.Issues(), 1)
	assert.Contains(t, forest.Issues()[0].Reason, "level 2")
}

func TestBuildForestRejectionCascades(t *testing.T) {
	// Excluding a department excludes its whole subtree, because children
	// then fail the parent check.
	forest := BuildForest([]Department{
		{ID: 1, Level: 0},
		{ID: 2, ParentID: ptr(1), Level: 2},
		{ID: 3, ParentID: ptr(2), Level: 3},
		{ID: 4, ParentID: ptr(3), Level: 4},
	})

	assert.Equal(t, 1, forest.Size())
	assert.Len(t, forest.Issues(), 3)
}

func TestForestParentAndSubtree(t *testing.T) {
	forest := BuildForest([]Department{
		{ID: 1, Level: 0},
		{ID: 2, ParentID: ptr(1), Level: 1},
		{ID: 3, ParentID: ptr(1), Level: 1},
		{ID: 4, ParentID: ptr(2), Level: 2},
	})

	child, ok := forest.Get(2)
	require.True(t, ok)
	parent, ok := forest.Parent(child)
	require.True(t, ok)
	assert.Equal(t, int64(1), parent.ID)

	root, _ := forest.Get(1)
	_, ok = forest.Parent(root)
	assert.False(t, ok)

	assert.ElementsMatch(t, []int64{2, 3, 4}, forest.Subtree(1))
	assert.ElementsMatch(t, []int64{4}, forest.Subtree(2))
	assert.Empty(t, forest.Subtree(4))
}
