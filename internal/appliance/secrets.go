package appliance

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghe-utils/reposync/internal/log"
)

// RestoreSecret copies one secret value from the snapshot into the
// appliance's configuration store. A secret absent from the snapshot is
// a no-op, not an error: older snapshots predate some secrets.
func RestoreSecret(ctx context.Context, runner Runner, target Target, snapshotPath, label, backupKey, configKey string) error {
	data, err := ioutil.ReadFile(filepath.Join(snapshotPath, backupKey))
	if os.IsNotExist(err) {
		log.Default().WithField("secret", label).Info("secret not present in snapshot, skipping")
		return nil
	} else if err != nil {
		return fmt.Errorf("restore secret %s: %w", label, err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		log.Default().WithField("secret", label).Info("secret empty in snapshot, skipping")
		return nil
	}

	if _, err := runner.Run(ctx, target, nil, "ghe-config", configKey, value); err != nil {
		return fmt.Errorf("restore secret %s: %w", label, err)
	}

	log.Default().WithField("secret", label).Info("restored secret")
	return nil
}
