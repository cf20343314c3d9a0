// Package routing resolves which storage node currently holds each
// repository network and partitions the result into per-node transfer
// lists.
package routing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/netpath"
)

// Route is the resolved placement of one network path. The first node
// is the primary.
type Route struct {
	Path  netpath.NetworkPath
	Nodes []string
}

// Resolver queries the appliance's routing authority. A nil path list
// requests the full current placement (backup direction); a non-nil
// list asks for the current destinations of those paths (restore
// direction, where placement may have changed since the snapshot was
// taken). An empty result means there is nothing to transfer and is
// not an error.
type Resolver interface {
	Resolve(ctx context.Context, paths []netpath.NetworkPath) ([]Route, error)
}

// SpokesResolver resolves routes through the clustered routing
// authority on the primary appliance.
type SpokesResolver struct {
	runner appliance.Runner
	target appliance.Target
}

// NewSpokesResolver creates a Resolver backed by `ghe-spokes route` on
// the target.
func NewSpokesResolver(runner appliance.Runner, target appliance.Target) *SpokesResolver {
	return &SpokesResolver{runner: runner, target: target}
}

// Resolve implements Resolver over the route protocol: request is a
// newline-delimited path list on stdin (or `--all`), response is one
// `<path> <node> [<node>...]` line per path.
func (r *SpokesResolver) Resolve(ctx context.Context, paths []netpath.NetworkPath) ([]Route, error) {
	var out []byte
	var err error

	if paths == nil {
		out, err = r.runner.Run(ctx, r.target, nil, "ghe-spokes", "route", "--all")
	} else {
		stdin := strings.NewReader(netpath.Marshal(paths))
		out, err = r.runner.Run(ctx, r.target, stdin, "ghe-spokes", "route")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve routes: %w", err)
	}

	return parseRoutes(string(out))
}

func parseRoutes(out string) ([]Route, error) {
	var routes []Route

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		path, err := netpath.Parse(fields[0])
		if err != nil {
			return nil, fmt.Errorf("parse route %q: %w", line, err)
		}

		routes = append(routes, Route{Path: path, Nodes: fields[1:]})
	}

	return routes, nil
}

// SingleHostResolver is the degenerate routing authority of a
// single-host appliance: every network lives on the one host.
type SingleHostResolver struct {
	runner  appliance.Runner
	target  appliance.Target
	dataDir string
}

// NewSingleHostResolver creates a Resolver for single-host mode.
// dataDir is the appliance-side repositories root, used to enumerate
// networks in the backup direction.
func NewSingleHostResolver(runner appliance.Runner, target appliance.Target, dataDir string) *SingleHostResolver {
	return &SingleHostResolver{runner: runner, target: target, dataDir: dataDir}
}

// Resolve implements Resolver. In the backup direction the host
// enumerates its own sharded tree; malformed directories are ignored.
func (r *SingleHostResolver) Resolve(ctx context.Context, paths []netpath.NetworkPath) ([]Route, error) {
	if paths == nil {
		out, err := r.runner.Run(ctx, r.target, nil,
			"find", r.dataDir, "-mindepth", "4", "-maxdepth", "5", "-type", "d")
		if err != nil {
			return nil, fmt.Errorf("resolve routes: %w", err)
		}

		for _, line := range strings.Split(string(out), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			rel, err := filepath.Rel(r.dataDir, line)
			if err != nil {
				continue
			}
			if path, err := netpath.Parse(filepath.ToSlash(rel)); err == nil {
				paths = append(paths, path)
			}
		}
		paths = netpath.Dedup(paths)
	}

	routes := make([]Route, 0, len(paths))
	for _, path := range paths {
		routes = append(routes, Route{Path: path, Nodes: []string{r.target.Host}})
	}
	return routes, nil
}
