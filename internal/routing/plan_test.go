package routing

import (
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghe-utils/reposync/internal/netpath"
	"github.com/ghe-utils/reposync/internal/testhelper"
)

func TestBuildPlanPartition(t *testing.T) {
	routes := []Route{
		{Path: "a1/b2/c3/1", Nodes: []string{"node1", "node2"}},
		{Path: "a1/b2/c3/2", Nodes: []string{"node2"}},
		{Path: "a1/nw/b2/c3/3", Nodes: []string{"node3", "node1"}},
		{Path: "a1/b2/c3/gist/4", Nodes: []string{"node1"}},
		// unplaced networks cannot be transferred
		{Path: "a1/b2/c3/5", Nodes: nil},
		// duplicate resolution keeps the first placement
		{Path: "a1/b2/c3/1", Nodes: []string{"node3"}},
	}

	plan := BuildPlan(routes)

	require.Equal(t, []string{"node1", "node2", "node3"}, plan.Nodes())

	// Each path is assigned to exactly one node, the primary.
	require.Equal(t, []netpath.NetworkPath{"a1/b2/c3/1", "a1/b2/c3/gist/4"}, plan.List("node1"))
	require.Equal(t, []netpath.NetworkPath{"a1/b2/c3/2"}, plan.List("node2"))
	require.Equal(t, []netpath.NetworkPath{"a1/nw/b2/c3/3"}, plan.List("node3"))

	// Lists are pairwise disjoint and their union is the resolved set.
	seen := make(map[netpath.NetworkPath]int)
	for _, node := range plan.Nodes() {
		for _, path := range plan.List(node) {
			seen[path]++
		}
	}
	for path, count := range seen {
		require.Equal(t, 1, count, "path %s assigned %d times", path, count)
	}
	require.Equal(t, []netpath.NetworkPath{
		"a1/b2/c3/1", "a1/b2/c3/2", "a1/b2/c3/gist/4", "a1/nw/b2/c3/3",
	}, plan.AllPaths())

	require.Equal(t, 4, plan.Total())
	require.Equal(t, 2, plan.Count("node1"))
	require.Equal(t, 0, plan.Count("node4"))
}

func TestPlanWriteLists(t *testing.T) {
	plan := BuildPlan([]Route{
		{Path: "a1/b2/c3/2", Nodes: []string{"node1"}},
		{Path: "a1/b2/c3/1", Nodes: []string{"node1"}},
		{Path: "a1/b2/c3/3", Nodes: []string{"node2"}},
	})

	dir := testhelper.TempDir(t)
	lists, err := plan.WriteLists(dir)
	require.NoError(t, err)
	require.Len(t, lists, 2)

	content, err := ioutil.ReadFile(lists["node1"])
	require.NoError(t, err)
	require.Equal(t, "a1/b2/c3/1\na1/b2/c3/2\n", string(content))

	content, err = ioutil.ReadFile(lists["node2"])
	require.NoError(t, err)
	require.Equal(t, "a1/b2/c3/3\n", string(content))
}

func TestPlanRestrict(t *testing.T) {
	plan := BuildPlan([]Route{
		{Path: "a1/b2/c3/1", Nodes: []string{"node1"}},
		{Path: "a1/b2/c3/2", Nodes: []string{"node2"}},
		{Path: "a1/b2/c3/3", Nodes: []string{"node3"}},
	})

	restricted := plan.Restrict([]string{"node1", "node3"})
	require.Equal(t, []string{"node1", "node3"}, restricted.Nodes())
	require.Equal(t, []netpath.NetworkPath{"a1/b2/c3/1", "a1/b2/c3/3"}, restricted.AllPaths())
	require.Equal(t, 2, restricted.Total())

	// The source plan is untouched.
	require.Equal(t, 3, plan.Total())

	require.Zero(t, plan.Restrict(nil).Total())
}

func TestBuildPlanEmpty(t *testing.T) {
	plan := BuildPlan(nil)
	require.Empty(t, plan.Nodes())
	require.Zero(t, plan.Total())
	require.Empty(t, plan.AllPaths())
}
