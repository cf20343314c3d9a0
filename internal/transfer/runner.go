package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os/exec"
	"strings"

	"github.com/ghe-utils/reposync/internal/command"
	"github.com/ghe-utils/reposync/internal/log"
)

// ErrSetup tags transfer failures that must abort the whole run, as
// opposed to per-unit failures that become warnings.
var ErrSetup = errors.New("transfer setup failure")

const (
	// rsync exit codes we special-case.
	exitVanishedFiles = 24  // source files vanished mid-transfer
	exitProtocol      = 2   // protocol incompatibility
	exitUsage         = 1   // syntax or usage error
	exitRemoteShell   = 255 // the remote shell failed, target unreachable
)

// Runner executes transfer tasks.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// RsyncRunner executes tasks with the system rsync.
type RsyncRunner struct {
	Bin string
}

// NewRsyncRunner creates a Runner using the given rsync binary.
func NewRsyncRunner(bin string) *RsyncRunner {
	return &RsyncRunner{Bin: bin}
}

// Run executes the task. Files vanishing from a live source are
// tolerated. Unreachable targets and unusable invocations are setup
// failures.
func (r *RsyncRunner) Run(ctx context.Context, task Task) error {
	transferInvocations.Inc()

	cmd, err := command.New(ctx, exec.Command(r.Bin, task.Args()...), nil, ioutil.Discard, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}

	err = cmd.Wait()
	if err == nil {
		return nil
	}

	code, ok := command.ExitStatus(err)
	if ok && code == exitVanishedFiles {
		// The source is live and serving writes. Whatever vanished
		// will not be referenced by anything we transferred earlier.
		log.Default().WithField("source", task.Source).Info("source files vanished during transfer")
		return nil
	}

	transferFailures.Inc()

	stderr := strings.TrimSpace(cmd.Stderr())
	if stderr != "" {
		err = fmt.Errorf("rsync: %v: %s", err, stderr)
	} else {
		err = fmt.Errorf("rsync: %v", err)
	}

	if ok && (code == exitUsage || code == exitProtocol || code == exitRemoteShell) {
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}

	return err
}
