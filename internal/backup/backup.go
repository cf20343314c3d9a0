// Package backup orchestrates full backup and restore runs: quiescing
// garbage collection, resolving routes, planning per-node transfers,
// fanning out the phased sync, and verifying or finalizing the result.
package backup

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/cleanup"
	"github.com/ghe-utils/reposync/internal/gc"
	"github.com/ghe-utils/reposync/internal/log"
	"github.com/ghe-utils/reposync/internal/report"
	"github.com/ghe-utils/reposync/internal/routing"
	"github.com/ghe-utils/reposync/internal/snapshot"
	"github.com/ghe-utils/reposync/internal/transfer"
)

// gcEnableTimeout bounds GC re-enable during cleanup. Cleanup runs on
// a fresh context: the run context is already canceled when cleanup
// follows an interrupt.
const gcEnableTimeout = 5 * time.Minute

// Run holds the collaborators of one backup or restore run. Remote and
// Transfer default to the real ssh and rsync implementations; tests
// substitute fakes.
type Run struct {
	Cfg      appliance.Cfg
	Remote   appliance.Runner
	Transfer transfer.Runner
	Guard    *cleanup.Guard
	Warnings *report.Log
}

// NewRun creates a Run with production collaborators.
func NewRun(cfg appliance.Cfg, guard *cleanup.Guard, warnings *report.Log) *Run {
	return &Run{
		Cfg:      cfg,
		Remote:   appliance.NewSSHRunner(cfg.SSHBin),
		Transfer: transfer.NewRsyncRunner(cfg.RsyncBin),
		Guard:    guard,
		Warnings: warnings,
	}
}

// Create backs up all repository networks of the configured appliance
// into a new snapshot. It returns an error only for fatal setup
// failures; per-unit problems are recorded as warnings.
func (r *Run) Create(ctx context.Context) error {
	cfg := r.Cfg
	target := cfg.Target()

	if err := appliance.CheckVersion(ctx, r.Remote, target); err != nil {
		return err
	}

	nodes, err := routing.StorageNodes(ctx, r.Remote, target, cfg.ClusterMode)
	if err != nil {
		return err
	}

	tmpDir, err := r.tempDir()
	if err != nil {
		return err
	}

	prev := snapshot.Previous(cfg.SnapshotRoot)
	dir, err := snapshot.Create(cfg.SnapshotRoot)
	if err != nil {
		return err
	}
	r.Guard.Add(func() {
		if err := dir.Discard(); err != nil {
			log.Default().WithError(err).Warn("could not remove incomplete snapshot")
		}
	})
	if err := os.MkdirAll(dir.RepositoriesDir(), 0700); err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	quiesced := r.quiesce(ctx, target, nodes)

	routes, err := r.resolver(target).Resolve(ctx, nil)
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		r.Warnings.Add(report.ClassSkip, target.Host, "no networks resolved, nothing to transfer")
		return dir.Finalize()
	}

	plan := routing.BuildPlan(routes)
	lists, err := plan.WriteLists(tmpDir)
	if err != nil {
		return err
	}

	log.Default().WithField("networks", plan.Total()).Info("starting transfer")

	var linkDest string
	if prev != "" {
		linkDest = filepath.Join(prev, "repositories")
	}

	syncer := transfer.NewSyncer(
		r.Transfer,
		target, cfg.SSHBin, cfg.RemoteDataDir, dir.RepositoriesDir(), linkDest,
		r.Warnings,
	)

	planned := r.plannedNodes(plan, quiesced)
	if err := transfer.FanOut(ctx, planned, cfg.Parallel, func(ctx context.Context, node string) error {
		return syncer.BackupNode(ctx, node, lists[node])
	}); err != nil {
		return err
	}

	if err := syncer.BackupSpecial(ctx, nodes); err != nil {
		return err
	}

	if !cfg.SkipRouteVerify {
		if err := transfer.VerifyRoutes(dir.RepositoriesDir(), plan.AllPaths(), r.Warnings); err != nil {
			return err
		}
	}

	return dir.Finalize()
}

// quiesce disables GC on every node and registers the re-enable with
// the guard. A node whose GC cannot be disabled sits out the run:
// transferring from it would race object removal.
func (r *Run) quiesce(ctx context.Context, target appliance.Target, nodes []string) map[string]bool {
	quiescer := gc.NewQuiescer(r.Remote, target, r.Warnings)
	r.Guard.Add(func() {
		enableCtx, cancel := context.WithTimeout(context.Background(), gcEnableTimeout)
		defer cancel()
		quiescer.EnableAll(enableCtx)
	})

	quiesced := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		if err := quiescer.Disable(ctx, node); err != nil {
			r.Warnings.Add(report.ClassTransfer, node, "skipping node: %v", err)
			continue
		}
		quiesced[node] = true
	}
	return quiesced
}

// plannedNodes drops nodes whose GC could not be quiesced from the
// fan-out. Their networks surface in the verification diff.
func (r *Run) plannedNodes(plan *routing.Plan, quiesced map[string]bool) []string {
	var planned []string
	for _, node := range plan.Nodes() {
		if !quiesced[node] {
			r.Warnings.Add(report.ClassTransfer, node, "%d networks not transferred, node was skipped", plan.Count(node))
			continue
		}
		planned = append(planned, node)
	}
	return planned
}

func (r *Run) resolver(target appliance.Target) routing.Resolver {
	if r.Cfg.ClusterMode {
		return routing.NewSpokesResolver(r.Remote, target)
	}
	return routing.NewSingleHostResolver(r.Remote, target, r.Cfg.RemoteDataDir)
}

// tempDir creates the run's private working directory and hands its
// removal to the guard.
func (r *Run) tempDir() (string, error) {
	tmpDir, err := ioutil.TempDir("", "reposync-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	r.Guard.Add(func() { os.RemoveAll(tmpDir) })
	return tmpDir, nil
}
