package backup

import (
	"context"
	"path/filepath"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/log"
	"github.com/ghe-utils/reposync/internal/netpath"
	"github.com/ghe-utils/reposync/internal/report"
	"github.com/ghe-utils/reposync/internal/routing"
	"github.com/ghe-utils/reposync/internal/snapshot"
	"github.com/ghe-utils/reposync/internal/transfer"
)

// Restore restores the selected snapshot onto the target appliance.
// Placement is re-resolved at restore time: the cluster may have been
// rebalanced or rebuilt since the snapshot was taken.
func (r *Run) Restore(ctx context.Context) error {
	cfg := r.Cfg
	target := cfg.Target()

	if err := appliance.CheckVersion(ctx, r.Remote, target); err != nil {
		return err
	}

	snapPath, err := snapshot.Select(cfg.SnapshotRoot, cfg.Snapshot)
	if err != nil {
		return err
	}
	reposDir := filepath.Join(snapPath, "repositories")

	paths, err := netpath.ScanTree(reposDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		r.Warnings.Add(report.ClassSkip, target.Host, "snapshot contains no networks, nothing to restore")
		return nil
	}

	nodes, err := routing.StorageNodes(ctx, r.Remote, target, cfg.ClusterMode)
	if err != nil {
		return err
	}

	tmpDir, err := r.tempDir()
	if err != nil {
		return err
	}

	quiesced := r.quiesce(ctx, target, nodes)

	routes, err := r.resolver(target).Resolve(ctx, paths)
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		r.Warnings.Add(report.ClassSkip, target.Host, "no destinations resolved, nothing to restore")
		return nil
	}

	plan := routing.BuildPlan(routes)
	lists, err := plan.WriteLists(tmpDir)
	if err != nil {
		return err
	}

	log.Default().WithField("networks", plan.Total()).Info("starting restore transfer")

	syncer := transfer.NewSyncer(
		r.Transfer,
		target, cfg.SSHBin, cfg.RemoteDataDir, reposDir, "",
		r.Warnings,
	)

	planned := r.plannedNodes(plan, quiesced)
	if err := transfer.FanOut(ctx, planned, cfg.Parallel, func(ctx context.Context, node string) error {
		return syncer.RestoreNode(ctx, node, lists[node])
	}); err != nil {
		return err
	}

	if err := syncer.RestoreSpecial(ctx, nodes); err != nil {
		return err
	}

	if cfg.ClusterMode {
		// Announce only what was actually transferred: networks on
		// skipped nodes still hold pre-restore data.
		finalizer := routing.NewFinalizer(r.Remote, target, cfg.RemoteDataDir, cfg.FinalizeBatchSize, cfg.FinalizeWorkers, r.Warnings)
		finalizer.Finalize(ctx, plan.Restrict(planned))
	}

	return appliance.RestoreSecret(ctx, r.Remote, target, snapPath,
		"push log signing key", "push-log-key", "secrets.repositories.push-log-key")
}
