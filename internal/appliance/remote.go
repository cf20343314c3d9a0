package appliance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/ghe-utils/reposync/internal/command"
)

// Runner executes commands on appliance hosts. The production
// implementation rides ssh; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, target Target, stdin io.Reader, cmdline ...string) ([]byte, error)
}

// SSHRunner runs remote commands through the system ssh client.
type SSHRunner struct {
	SSHBin string
}

// NewSSHRunner creates a Runner using the given ssh binary.
func NewSSHRunner(sshBin string) *SSHRunner {
	return &SSHRunner{SSHBin: sshBin}
}

// Run executes cmdline on the target and returns its standard output.
// On failure the buffered standard error is folded into the returned
// error.
func (r *SSHRunner) Run(ctx context.Context, target Target, stdin io.Reader, cmdline ...string) ([]byte, error) {
	var stdout bytes.Buffer

	cmd, err := command.New(ctx, exec.Command(r.SSHBin, target.SSHArgs(cmdline...)...), stdin, &stdout, nil)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", target.Host, err)
	}

	if err := cmd.Wait(); err != nil {
		stderr := strings.TrimSpace(cmd.Stderr())
		if stderr != "" {
			return nil, fmt.Errorf("remote %s: %q: %w: %s", target.Host, strings.Join(cmdline, " "), err, stderr)
		}
		return nil, fmt.Errorf("remote %s: %q: %w", target.Host, strings.Join(cmdline, " "), err)
	}

	return stdout.Bytes(), nil
}

// CheckVersion performs the capability handshake with the appliance.
// Failure is fatal for the run: the appliance either is unreachable or
// does not speak our protocol version.
func CheckVersion(ctx context.Context, runner Runner, target Target) error {
	if _, err := runner.Run(ctx, target, nil, "ghe-negotiate-version", "reposync", Version); err != nil {
		return fmt.Errorf("version negotiation: %w", err)
	}
	return nil
}
