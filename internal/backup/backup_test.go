package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/cleanup"
	"github.com/ghe-utils/reposync/internal/report"
	"github.com/ghe-utils/reposync/internal/snapshot"
	"github.com/ghe-utils/reposync/internal/testhelper"
	"github.com/ghe-utils/reposync/internal/transfer"
)

type remoteCall struct {
	host    string
	stdin   string
	cmdline []string
}

// fakeRemote dispatches on the remote utility name. Unhandled commands
// succeed with empty output.
type fakeRemote struct {
	mu      sync.Mutex
	calls   []remoteCall
	handler func(host string, cmdline []string) ([]byte, error)
}

func (r *fakeRemote) Run(ctx context.Context, target appliance.Target, stdin io.Reader, cmdline ...string) ([]byte, error) {
	var in []byte
	if stdin != nil {
		var err error
		if in, err = ioutil.ReadAll(stdin); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, remoteCall{host: target.Host, stdin: string(in), cmdline: cmdline})
	r.mu.Unlock()

	if r.handler != nil {
		return r.handler(target.Host, cmdline)
	}
	return nil, nil
}

func (r *fakeRemote) commandCalls(command ...string) []remoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []remoteCall
	for _, call := range r.calls {
		if len(call.cmdline) >= len(command) && strings.Join(call.cmdline[:len(command)], " ") == strings.Join(command, " ") {
			matched = append(matched, call)
		}
	}
	return matched
}

// fakeTransfer records tasks without moving any data.
type fakeTransfer struct {
	mu    sync.Mutex
	tasks []transfer.Task
	fail  func(transfer.Task) error
}

func (f *fakeTransfer) Run(ctx context.Context, task transfer.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tasks = append(f.tasks, task)
	if f.fail != nil {
		return f.fail(task)
	}
	return nil
}

func (f *fakeTransfer) recorded() []transfer.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]transfer.Task(nil), f.tasks...)
}

func testCfg(t *testing.T, clusterMode bool) appliance.Cfg {
	return appliance.Cfg{
		Host:              "ghe.example.com",
		ClusterMode:       clusterMode,
		SnapshotRoot:      testhelper.TempDir(t),
		RemoteDataDir:     "/data/user/repositories",
		FinalizeBatchSize: appliance.DefaultFinalizeBatchSize,
		FinalizeWorkers:   4,
		RsyncBin:          "rsync",
		SSHBin:            "ssh",
	}
}

func testRun(cfg appliance.Cfg, remote *fakeRemote, trans *fakeTransfer) (*Run, *cleanup.Guard, *report.Log) {
	guard := cleanup.NewGuard()
	warnings := report.NewLog()
	return &Run{
		Cfg:      cfg,
		Remote:   remote,
		Transfer: trans,
		Guard:    guard,
		Warnings: warnings,
	}, guard, warnings
}

// clusterRemote serves a two node topology with two routed networks.
func clusterRemote() *fakeRemote {
	return &fakeRemote{
		handler: func(host string, cmdline []string) ([]byte, error) {
			switch cmdline[0] {
			case "ghe-cluster-nodes":
				return []byte("git-server-2\ngit-server-1\n"), nil
			case "ghe-spokes":
				if cmdline[1] == "route" {
					return []byte("0/12/ab/1234 git-server-1 git-server-2\n3/nw/45/cd/99 git-server-2\n"), nil
				}
				return nil, nil
			default:
				return nil, nil
			}
		},
	}
}

func TestCreateClustered(t *testing.T) {
	ctx, cancel := testhelper.Context()
	defer cancel()

	cfg := testCfg(t, true)
	cfg.SkipRouteVerify = true

	remote := clusterRemote()
	trans := &fakeTransfer{}
	run, guard, warnings := testRun(cfg, remote, trans)

	require.NoError(t, run.Create(ctx))
	guard.Run()

	require.True(t, warnings.Empty(), "warnings: %v", warnings.Warnings())

	// The snapshot is complete and current points at it.
	snapPath := snapshot.Previous(cfg.SnapshotRoot)
	require.NotEmpty(t, snapPath)
	require.NoFileExists(t, filepath.Join(snapPath, "incomplete"))

	// GC was quiesced on both nodes and re-enabled on both by cleanup.
	require.Len(t, remote.commandCalls("ghe-gc-disable"), 2)
	enables := remote.commandCalls("ghe-gc-enable")
	require.Len(t, enables, 2)

	// Four phases per node, then the special directories per node.
	tasks := trans.recorded()
	require.Len(t, tasks, 2*4+2*len(transfer.SpecialDirs))
	for _, task := range tasks {
		require.False(t, task.Mirror, "backup transfers must be additive")
	}

	// The negotiation ran before anything else.
	require.Equal(t, "ghe-negotiate-version", remote.calls[0].cmdline[0])
}

func TestCreateVerificationFlagsUndeliveredNetworks(t *testing.T) {
	ctx, cancel := testhelper.Context()
	defer cancel()

	cfg := testCfg(t, true)

	remote := clusterRemote()
	// The fake transfer moves nothing, so the destination tree stays
	// empty and verification must flag both networks.
	run, _, warnings := testRun(cfg, remote, &fakeTransfer{})

	require.NoError(t, run.Create(ctx))

	var verification []report.Warning
	for _, w := range warnings.Warnings() {
		if w.Class == report.ClassVerification {
			verification = append(verification, w)
		}
	}
	require.Len(t, verification, 2)

	// Missing networks are a warning, never a failed snapshot.
	require.NotEmpty(t, snapshot.Previous(cfg.SnapshotRoot))
}

func TestCreateEmptyTopology(t *testing.T) {
	ctx, cancel := testhelper.Context()
	defer cancel()

	cfg := testCfg(t, true)

	remote := &fakeRemote{
		handler: func(host string, cmdline []string) ([]byte, error) {
			if cmdline[0] == "ghe-cluster-nodes" {
				return []byte("git-server-1\n"), nil
			}
			return nil, nil
		},
	}
	trans := &fakeTransfer{}
	run, guard, warnings := testRun(cfg, remote, trans)

	require.NoError(t, run.Create(ctx))
	guard.Run()

	// Nothing to transfer is a skip warning and a successful, empty
	// snapshot.
	recorded := warnings.Warnings()
	require.Len(t, recorded, 1)
	require.Equal(t, report.ClassSkip, recorded[0].Class)
	require.Empty(t, trans.recorded())
	require.NotEmpty(t, snapshot.Previous(cfg.SnapshotRoot))
}

func TestCreateGCDisableFailureSkipsNode(t *testing.T) {
	ctx, cancel := testhelper.Context()
	defer cancel()

	cfg := testCfg(t, true)
	cfg.SkipRouteVerify = true

	remote := clusterRemote()
	inner := remote.handler
	remote.handler = func(host string, cmdline []string) ([]byte, error) {
		if cmdline[0] == "ghe-gc-disable" && host == "git-server-2" {
			return nil, context.DeadlineExceeded
		}
		return inner(host, cmdline)
	}

	trans := &fakeTransfer{}
	run, guard, warnings := testRun(cfg, remote, trans)

	require.NoError(t, run.Create(ctx))
	guard.Run()

	// Only the quiesced node was transferred in the fan-out; the
	// special directories still cover all nodes.
	var nodeTasks int
	for _, task := range trans.recorded() {
		if task.FilesFrom != "" {
			require.True(t, strings.HasPrefix(task.Source, "git-server-1:"), "unexpected transfer source %q", task.Source)
			nodeTasks++
		}
	}
	require.Equal(t, 4, nodeTasks)

	// GC is only re-enabled where disabling succeeded.
	enables := remote.commandCalls("ghe-gc-enable")
	require.Len(t, enables, 1)
	require.Equal(t, "git-server-1", enables[0].host)

	require.False(t, warnings.Empty())
}

func TestCreateFatalTransferFailureStillEnablesGC(t *testing.T) {
	ctx, cancel := testhelper.Context()
	defer cancel()

	cfg := testCfg(t, true)

	remote := clusterRemote()
	trans := &fakeTransfer{
		fail: func(transfer.Task) error {
			return fmt.Errorf("%w: rsync not found", transfer.ErrSetup)
		},
	}
	run, guard, _ := testRun(cfg, remote, trans)

	err := run.Create(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, transfer.ErrSetup))

	guard.Run()
	// Re-running cleanup must not toggle GC again.
	guard.Run()

	// Both quiesced nodes get GC back, exactly once each.
	enables := remote.commandCalls("ghe-gc-enable")
	require.Len(t, enables, 2)
	hosts := []string{enables[0].host, enables[1].host}
	require.ElementsMatch(t, []string{"git-server-1", "git-server-2"}, hosts)

	// The aborted run's snapshot does not linger.
	require.Empty(t, snapshot.Previous(cfg.SnapshotRoot))
	entries, err := ioutil.ReadDir(cfg.SnapshotRoot)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCreateVersionNegotiationFailure(t *testing.T) {
	ctx, cancel := testhelper.Context()
	defer cancel()

	cfg := testCfg(t, false)

	remote := &fakeRemote{
		handler: func(host string, cmdline []string) ([]byte, error) {
			if cmdline[0] == "ghe-negotiate-version" {
				return nil, os.ErrPermission
			}
			return nil, nil
		},
	}
	trans := &fakeTransfer{}
	run, guard, _ := testRun(cfg, remote, trans)

	require.Error(t, run.Create(ctx))
	guard.Run()

	// The run aborted before touching the snapshot root or any node.
	entries, err := ioutil.ReadDir(cfg.SnapshotRoot)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Empty(t, trans.recorded())
}

func TestCreateSingleHost(t *testing.T) {
	ctx, cancel := testhelper.Context()
	defer cancel()

	cfg := testCfg(t, false)
	cfg.SkipRouteVerify = true

	remote := &fakeRemote{
		handler: func(host string, cmdline []string) ([]byte, error) {
			if cmdline[0] == "find" {
				return []byte("/data/user/repositories/0/12/ab/1234\n/data/user/repositories/0/12/ab/1234/info\n"), nil
			}
			return nil, nil
		},
	}
	trans := &fakeTransfer{}
	run, guard, warnings := testRun(cfg, remote, trans)

	require.NoError(t, run.Create(ctx))
	guard.Run()

	require.True(t, warnings.Empty(), "warnings: %v", warnings.Warnings())

	// No cluster utilities in single-host mode.
	require.Empty(t, remote.commandCalls("ghe-cluster-nodes"))
	require.Empty(t, remote.commandCalls("ghe-spokes"))

	// One node, four phases, plus its special directories.
	require.Len(t, trans.recorded(), 4+len(transfer.SpecialDirs))
}
