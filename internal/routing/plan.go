package routing

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"

	"github.com/ghe-utils/reposync/internal/netpath"
)

// Plan assigns every routed network path to exactly one node's
// transfer list. Lists are pairwise disjoint and their union is the
// resolved path set.
type Plan struct {
	lists map[string][]netpath.NetworkPath
}

// BuildPlan buckets each route under its primary node, the first entry
// of the route's node list. Routes with an empty node list are skipped:
// an unplaced network cannot be transferred.
func BuildPlan(routes []Route) *Plan {
	plan := &Plan{lists: make(map[string][]netpath.NetworkPath)}

	seen := make(map[netpath.NetworkPath]bool)
	for _, route := range routes {
		if len(route.Nodes) == 0 || seen[route.Path] {
			continue
		}
		seen[route.Path] = true

		primary := route.Nodes[0]
		plan.lists[primary] = append(plan.lists[primary], route.Path)
	}

	for node := range plan.lists {
		list := plan.lists[node]
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	}

	return plan
}

// Nodes returns all nodes with a non-empty list, sorted.
func (p *Plan) Nodes() []string {
	nodes := make([]string, 0, len(p.lists))
	for node := range p.lists {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// List returns the network paths assigned to node.
func (p *Plan) List(node string) []netpath.NetworkPath {
	return p.lists[node]
}

// Count returns the number of networks assigned to node.
func (p *Plan) Count(node string) int {
	return len(p.lists[node])
}

// Total returns the number of networks across all nodes.
func (p *Plan) Total() int {
	total := 0
	for _, list := range p.lists {
		total += len(list)
	}
	return total
}

// Restrict returns a plan reduced to the given nodes. When part of
// the fan-out sat out the run, downstream stages must not see the
// skipped nodes' networks.
func (p *Plan) Restrict(nodes []string) *Plan {
	keep := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		keep[node] = true
	}

	restricted := &Plan{lists: make(map[string][]netpath.NetworkPath, len(nodes))}
	for node, list := range p.lists {
		if keep[node] {
			restricted.lists[node] = list
		}
	}
	return restricted
}

// AllPaths returns the deduplicated union of all per-node lists,
// sorted.
func (p *Plan) AllPaths() []netpath.NetworkPath {
	var all []netpath.NetworkPath
	for _, list := range p.lists {
		all = append(all, list...)
	}
	return netpath.Dedup(all)
}

// WriteLists writes one newline-delimited list file per node into dir,
// for consumption by the transfer tool, and returns node -> file path.
func (p *Plan) WriteLists(dir string) (map[string]string, error) {
	files := make(map[string]string, len(p.lists))

	for i, node := range p.Nodes() {
		path := filepath.Join(dir, fmt.Sprintf("network-list-%d", i))
		if err := ioutil.WriteFile(path, []byte(netpath.Marshal(p.lists[node])), 0600); err != nil {
			return nil, fmt.Errorf("write transfer list for %s: %w", node, err)
		}
		files[node] = path
	}

	return files, nil
}
