// Package gc toggles garbage collection on storage nodes around the
// transfer window. While GC is disabled objects are only ever added,
// never removed, which is what makes the phased transfer ordering
// sound.
package gc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/log"
	"github.com/ghe-utils/reposync/internal/report"
)

// Quiescer disables and re-enables garbage collection per node. The
// per-node GC state is owned by the node; the quiescer only borrows
// it, and must hand it back enabled on every exit path.
type Quiescer struct {
	runner   appliance.Runner
	target   appliance.Target
	warnings *report.Log

	mu       sync.Mutex
	disabled map[string]bool
}

// NewQuiescer creates a Quiescer for the given appliance.
func NewQuiescer(runner appliance.Runner, target appliance.Target, warnings *report.Log) *Quiescer {
	return &Quiescer{
		runner:   runner,
		target:   target,
		warnings: warnings,
		disabled: make(map[string]bool),
	}
}

// Disable turns garbage collection off on node. No transfer to the
// node may begin before this succeeds.
func (q *Quiescer) Disable(ctx context.Context, node string) error {
	if _, err := q.runner.Run(ctx, q.target.WithHost(node), nil, "ghe-gc-disable"); err != nil {
		return fmt.Errorf("disable gc on %s: %w", node, err)
	}

	q.mu.Lock()
	q.disabled[node] = true
	q.mu.Unlock()

	log.Default().WithField("node", node).Info("garbage collection disabled")
	return nil
}

// EnableAll re-enables garbage collection on every node that was
// disabled. It is attempted for every node even if earlier nodes fail;
// failures become a distinguished warning class since they require
// manual remediation. The context is intentionally not the run
// context: re-enable must still happen after an interrupt.
func (q *Quiescer) EnableAll(ctx context.Context) {
	q.mu.Lock()
	nodes := make([]string, 0, len(q.disabled))
	for node := range q.disabled {
		nodes = append(nodes, node)
	}
	q.disabled = make(map[string]bool)
	q.mu.Unlock()

	sort.Strings(nodes)

	for _, node := range nodes {
		if _, err := q.runner.Run(ctx, q.target.WithHost(node), nil, "ghe-gc-enable"); err != nil {
			q.warnings.Add(report.ClassGCEnable, node, "re-enabling garbage collection failed: %v", err)
			continue
		}
		log.Default().WithField("node", node).Info("garbage collection enabled")
	}
}
