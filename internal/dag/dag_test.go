package dag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowfile/dataflow-core/internal/dag"
)

func TestTopologicalSortLinearChain(t *testing.T) {
	adjacency := map[int64][]int64{
		1: {2},
		2: {3},
		3: {},
	}
	order, err := dag.TopologicalSort([]int64{1}, adjacency)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, order)
}

func TestTopologicalSortTieBreaksByAscendingID(t *testing.T) {
	adjacency := map[int64][]int64{
		1: {4},
		2: {4},
		3: {4},
		4: {},
	}
	order, err := dag.TopologicalSort([]int64{1, 2, 3}, adjacency)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, order)
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	adjacency := map[int64][]int64{
		1: {2},
		2: {1},
	}
	_, err := dag.TopologicalSort([]int64{1}, adjacency)
	assert.ErrorIs(t, err, dag.ErrCycle{})
}

func TestTopologicalSortRestrictsToReachableSubgraph(t *testing.T) {
	adjacency := map[int64][]int64{
		1: {2},
		2: {},
		99: {1},
	}
	order, err := dag.TopologicalSort([]int64{1}, adjacency)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, order, "node 99 is not reachable from root 1 and must be excluded")
}

func TestReachesFrom(t *testing.T) {
	adjacency := map[int64][]int64{
		1: {2},
		2: {3},
		3: {},
	}
	assert.True(t, dag.ReachesFrom(1, 3, adjacency))
	assert.False(t, dag.ReachesFrom(3, 1, adjacency))
	assert.True(t, dag.ReachesFrom(1, 1, adjacency), "a node trivially reaches itself")
}

func TestDescendantsBFSExcludesRoots(t *testing.T) {
	adjacency := map[int64][]int64{
		1: {2, 3},
		2: {4},
		3: {4},
		4: {},
	}
	descendants := dag.DescendantsBFS([]int64{1}, adjacency)
	assert.ElementsMatch(t, []int64{2, 3, 4}, descendants)
}

func TestDescendantsBFSEmptyForLeaf(t *testing.T) {
	adjacency := map[int64][]int64{1: {}}
	assert.Empty(t, dag.DescendantsBFS([]int64{1}, adjacency))
}
