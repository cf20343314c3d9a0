package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/log"
	"github.com/ghe-utils/reposync/internal/report"
)

// Syncer executes the per-node transfer pipeline. One Syncer serves a
// whole run; per-node state lives in the arguments.
type Syncer struct {
	runner   Runner
	remote   appliance.Target
	rsh      string
	dataDir  string
	localDir string
	linkDest string
	warnings *report.Log
}

// NewSyncer creates a Syncer. dataDir is the appliance-side
// repositories root, localDir the snapshot-side one. linkDest, when
// non-empty, points at the previous snapshot's repositories tree for
// zero-copy reuse of unchanged files.
func NewSyncer(runner Runner, remote appliance.Target, sshBin, dataDir, localDir, linkDest string, warnings *report.Log) *Syncer {
	return &Syncer{
		runner:   runner,
		remote:   remote,
		rsh:      remote.RemoteShell(sshBin),
		dataDir:  dataDir,
		localDir: localDir,
		linkDest: linkDest,
		warnings: warnings,
	}
}

// BackupNode pulls the node's assigned networks through all four
// phases, strictly in order. Backup transfers are additive: nothing is
// deleted from the snapshot tree. A failed phase becomes a warning and
// later phases still run; only setup failures abort.
func (s *Syncer) BackupNode(ctx context.Context, node, listFile string) error {
	nodeLog := log.Default().WithField("node", node)

	for _, phase := range Phases {
		task := Task{
			Source:      s.remote.WithHost(node).HostPath(s.dataDir) + "/",
			Dest:        s.localDir,
			RemoteShell: s.rsh,
			FilesFrom:   listFile,
			Rules:       phase.Rules(),
			Compress:    phase.Compress(),
			LinkDest:    s.linkDest,
		}

		start := time.Now()
		if err := s.runner.Run(ctx, task); err != nil {
			if errors.Is(err, ErrSetup) {
				return fmt.Errorf("node %s: %w", node, err)
			}
			s.warnings.Add(report.ClassTransfer, node, "phase %s: %v", phase, err)
			continue
		}

		nodeLog.WithFields(logrus.Fields{
			"phase":   phase.String(),
			"time_ms": time.Since(start).Milliseconds(),
		}).Info("phase complete")
	}

	return nil
}

// RestoreNode pushes the node's assigned networks in one mirroring
// invocation. Restore is not phased: the target is assumed not to be
// serving while being restored. Mirroring removes repositories that
// are absent from the snapshot.
func (s *Syncer) RestoreNode(ctx context.Context, node, listFile string) error {
	task := Task{
		Source:      s.localDir + "/",
		Dest:        s.remote.WithHost(node).HostPath(s.dataDir),
		RemoteShell: s.rsh,
		FilesFrom:   listFile,
		Compress:    true,
		Mirror:      true,
	}

	start := time.Now()
	if err := s.runner.Run(ctx, task); err != nil {
		if errors.Is(err, ErrSetup) {
			return fmt.Errorf("node %s: %w", node, err)
		}
		s.warnings.Add(report.ClassTransfer, node, "restore transfer: %v", err)
		return nil
	}

	log.Default().WithFields(logrus.Fields{
		"node":    node,
		"time_ms": time.Since(start).Milliseconds(),
	}).Info("restore transfer complete")

	return nil
}
