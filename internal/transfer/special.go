package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghe-utils/reposync/internal/report"
)

// SpecialDir is a host-wide, non-sharded directory transferred after
// the per-network fan-out. Excludes name cache-only content that is
// regenerable and safe to omit.
type SpecialDir struct {
	Name     string
	Excludes []string
}

// SpecialDirs are the directories transferred by the special syncer:
// the non-sharded repository metadata and the purgatory of data
// pending cleanup.
var SpecialDirs = []SpecialDir{
	{Name: "info", Excludes: []string{"/caches/***"}},
	{Name: "__purgatory__"},
}

// BackupSpecial pulls the special directories from each host into the
// snapshot, serially: these trees are shared per host rather than
// sharded by network, so they stay outside the fan-out.
func (s *Syncer) BackupSpecial(ctx context.Context, hosts []string) error {
	for _, host := range hosts {
		for _, dir := range SpecialDirs {
			task := s.specialTask(host, dir, false)
			if err := s.runner.Run(ctx, task); err != nil {
				if errors.Is(err, ErrSetup) {
					return fmt.Errorf("host %s: %w", host, err)
				}
				s.warnings.Add(report.ClassTransfer, host, "special directory %s: %v", dir.Name, err)
			}
		}
	}
	return nil
}

// RestoreSpecial pushes the special directories to each host,
// serially.
func (s *Syncer) RestoreSpecial(ctx context.Context, hosts []string) error {
	for _, host := range hosts {
		for _, dir := range SpecialDirs {
			if _, err := os.Stat(filepath.Join(s.localDir, dir.Name)); os.IsNotExist(err) {
				// Not every snapshot carries every special directory.
				continue
			}

			task := s.specialTask(host, dir, true)
			if err := s.runner.Run(ctx, task); err != nil {
				if errors.Is(err, ErrSetup) {
					return fmt.Errorf("host %s: %w", host, err)
				}
				s.warnings.Add(report.ClassTransfer, host, "special directory %s: %v", dir.Name, err)
			}
		}
	}
	return nil
}

func (s *Syncer) specialTask(host string, dir SpecialDir, restore bool) Task {
	var rules []Rule
	for _, exclude := range dir.Excludes {
		rules = append(rules, Exclude(exclude))
	}

	remotePath := s.remote.WithHost(host).HostPath(s.dataDir + "/" + dir.Name) + "/"
	localPath := s.localDir + "/" + dir.Name

	task := Task{
		RemoteShell: s.rsh,
		Rules:       rules,
		Compress:    true,
	}
	if restore {
		task.Source, task.Dest = localPath+"/", remotePath
		task.Mirror = true
	} else {
		task.Source, task.Dest = remotePath, localPath
		if s.linkDest != "" {
			task.LinkDest = s.linkDest + "/" + dir.Name
		}
	}
	return task
}
