package routing

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/log"
	"github.com/ghe-utils/reposync/internal/report"
)

// Finalizer informs the cluster metadata authority which networks were
// restored. Submissions are split into fixed-size batches to bound the
// load on the authority, and batches run with bounded parallelism.
// Per-batch failures become warnings; finalization never fails the
// restore.
type Finalizer struct {
	runner    appliance.Runner
	target    appliance.Target
	dataDir   string
	batchSize int
	workers   int
	warnings  *report.Log
}

// NewFinalizer creates a Finalizer submitting to the target's metadata
// authority. dataDir is the appliance-side repositories root used to
// form full network paths.
func NewFinalizer(runner appliance.Runner, target appliance.Target, dataDir string, batchSize, workers int, warnings *report.Log) *Finalizer {
	return &Finalizer{
		runner:    runner,
		target:    target,
		dataDir:   dataDir,
		batchSize: batchSize,
		workers:   workers,
		warnings:  warnings,
	}
}

// Finalize submits one `<node> <full-network-path>` line per restored
// network, batched. It returns the number of batches submitted.
func (f *Finalizer) Finalize(ctx context.Context, plan *Plan) int {
	var entries []string
	for _, node := range plan.Nodes() {
		for _, path := range plan.List(node) {
			entries = append(entries, fmt.Sprintf("%s %s/%s", node, f.dataDir, path))
		}
	}
	if len(entries) == 0 {
		return 0
	}

	var batches [][]string
	for len(entries) > 0 {
		n := f.batchSize
		if n > len(entries) {
			n = len(entries)
		}
		batches, entries = append(batches, entries[:n]), entries[n:]
	}

	log.Default().WithField("batches", len(batches)).Info("finalizing restored networks")

	batchCh := make(chan []string)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < f.workers; i++ {
		g.Go(func() error {
			for batch := range batchCh {
				f.submit(ctx, batch)
			}
			return nil
		})
	}

	for _, batch := range batches {
		batchCh <- batch
	}
	close(batchCh)

	// Workers never return errors; failures are recorded as warnings.
	_ = g.Wait()

	return len(batches)
}

func (f *Finalizer) submit(ctx context.Context, batch []string) {
	stdin := strings.NewReader(strings.Join(batch, "\n") + "\n")
	if _, err := f.runner.Run(ctx, f.target, stdin, "ghe-spokes", "finalize"); err != nil {
		f.warnings.Add(report.ClassFinalize, f.target.Host, "finalize batch of %d networks failed: %v", len(batch), err)
	}
}
