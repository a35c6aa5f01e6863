package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBFSReachableFollowsChildToParentEdges(t *testing.T) {
	// a <- b <- c  (c is a child of b, b is a child of a)
	adj := map[string][]string{
		"c": {"b"},
		"b": {"a"},
	}

	visited := bfsReachable(adj, []string{"c"})

	assert.True(t, visited["c"])
	assert.True(t, visited["b"])
	assert.True(t, visited["a"])
}

func TestBFSReachableStopsAtUnrelatedCommits(t *testing.T) {
	adj := map[string][]string{
		"c": {"b"},
		"b": {"a"},
		"x": {"y"},
	}

	visited := bfsReachable(adj, []string{"c"})

	assert.False(t, visited["x"])
	assert.False(t, visited["y"])
}

func TestBFSReachableHandlesMergeCommits(t *testing.T) {
	// merge has two parents, both should be visited
	adj := map[string][]string{
		"merge": {"p1", "p2"},
		"p1":    {"base"},
		"p2":    {"base"},
	}

	visited := bfsReachable(adj, []string{"merge"})

	assert.True(t, visited["p1"])
	assert.True(t, visited["p2"])
	assert.True(t, visited["base"])
}
