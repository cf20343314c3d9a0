package transfer

import (
	"fmt"

	"github.com/ghe-utils/reposync/internal/log"
	"github.com/ghe-utils/reposync/internal/netpath"
	"github.com/ghe-utils/reposync/internal/report"
)

// VerifyRoutes diffs the networks a backup was expected to transfer
// against what actually landed in the destination tree. Expected is
// the deduplicated union of all per-node lists; actual comes from a
// bounded-depth scan of the destination. A non-empty difference is a
// warning naming each missing network, never a run failure.
func VerifyRoutes(destDir string, expected []netpath.NetworkPath, warnings *report.Log) error {
	actual, err := netpath.ScanTree(destDir)
	if err != nil {
		return fmt.Errorf("verify routes: %w", err)
	}

	present := make(map[netpath.NetworkPath]bool, len(actual))
	for _, path := range actual {
		present[path] = true
	}

	missing := 0
	for _, path := range netpath.Dedup(expected) {
		if !present[path] {
			warnings.Add(report.ClassVerification, path.String(), "%s missing from destination", path.Shape())
			missing++
		}
	}

	log.Default().WithField("missing", missing).Info("route verification complete")
	return nil
}
