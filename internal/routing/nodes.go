package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ghe-utils/reposync/internal/appliance"
)

// StorageNodes returns the hostnames of all storage nodes of the
// appliance. In single-host mode that is the appliance itself; in
// clustered mode the primary enumerates its cluster members.
func StorageNodes(ctx context.Context, runner appliance.Runner, target appliance.Target, clusterMode bool) ([]string, error) {
	if !clusterMode {
		return []string{target.Host}, nil
	}

	out, err := runner.Run(ctx, target, nil, "ghe-cluster-nodes", "--storage")
	if err != nil {
		return nil, fmt.Errorf("enumerate storage nodes: %w", err)
	}

	var nodes []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			nodes = append(nodes, line)
		}
	}
	sort.Strings(nodes)

	if len(nodes) == 0 {
		return nil, fmt.Errorf("cluster reported no storage nodes")
	}

	return nodes, nil
}
