package appliance

import (
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
	"golang.org/x/sys/unix"
)

// DefaultFinalizeBatchSize bounds how many restored network paths are
// announced to the cluster metadata authority per submission.
const DefaultFinalizeBatchSize = 1000

// Cfg is a container for all config derived from backup.toml and the
// environment. It is constructed once at startup and passed explicitly
// to every component.
type Cfg struct {
	// Host is the primary appliance, as "[user@]host[:port]".
	Host string `toml:"host" split_words:"true"`
	// ClusterMode selects clustered route resolution and finalization.
	ClusterMode bool `toml:"cluster_mode" split_words:"true"`

	// SnapshotRoot is the local directory holding snapshot trees.
	SnapshotRoot string `toml:"snapshot_root" split_words:"true"`
	// Snapshot selects the snapshot to restore from. Empty means the
	// most recent one.
	Snapshot string `toml:"snapshot" split_words:"true"`

	// RemoteDataDir is the appliance-side directory holding the sharded
	// repository tree.
	RemoteDataDir string `toml:"remote_data_dir" split_words:"true"`

	Parallel        bool `toml:"parallel" split_words:"true"`
	SkipRouteVerify bool `toml:"skip_route_verify" split_words:"true"`

	FinalizeBatchSize int `toml:"finalize_batch_size" split_words:"true"`
	FinalizeWorkers   int `toml:"finalize_workers" split_words:"true"`

	RsyncBin string `toml:"rsync_bin" split_words:"true"`
	SSHBin   string `toml:"ssh_bin" split_words:"true"`

	Logging Logging `toml:"logging"`
}

// Logging contains the logging configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Load initializes a Cfg from file and the environment. Environment
// variables take precedence over the file.
func Load(file io.Reader) (Cfg, error) {
	var cfg Cfg

	if file != nil {
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return Cfg{}, fmt.Errorf("load toml: %v", err)
		}
	}

	if err := envconfig.Process("ghe", &cfg); err != nil {
		return Cfg{}, fmt.Errorf("envconfig: %v", err)
	}

	cfg.setDefaults()

	cfg.SnapshotRoot = filepath.Clean(cfg.SnapshotRoot)

	return cfg, nil
}

func (cfg *Cfg) setDefaults() {
	if cfg.RemoteDataDir == "" {
		cfg.RemoteDataDir = "/data/user/repositories"
	}
	if cfg.FinalizeBatchSize == 0 {
		cfg.FinalizeBatchSize = DefaultFinalizeBatchSize
	}
	if cfg.FinalizeWorkers == 0 {
		cfg.FinalizeWorkers = 4
	}
	if cfg.RsyncBin == "" {
		cfg.RsyncBin = "rsync"
	}
	if cfg.SSHBin == "" {
		cfg.SSHBin = "ssh"
	}
}

// Validate checks the current Cfg for sanity.
func (cfg *Cfg) Validate() error {
	for _, run := range []func() error{
		cfg.validateHost,
		cfg.validateSnapshotRoot,
		cfg.validateTransferTool,
		cfg.validateFinalize,
	} {
		if err := run(); err != nil {
			return err
		}
	}

	return nil
}

func (cfg *Cfg) validateHost() error {
	if cfg.Host == "" {
		return fmt.Errorf("no appliance host configured")
	}
	if _, err := ParseTarget(cfg.Host); err != nil {
		return err
	}
	return nil
}

func (cfg *Cfg) validateSnapshotRoot() error {
	if cfg.SnapshotRoot == "" || cfg.SnapshotRoot == "." {
		return fmt.Errorf("no snapshot root configured")
	}
	if err := unix.Access(cfg.SnapshotRoot, unix.W_OK); err != nil {
		return fmt.Errorf("snapshot root %q: %w", cfg.SnapshotRoot, err)
	}
	return nil
}

// validateTransferTool ensures the transfer binaries can be resolved at
// all. A missing rsync is a setup failure, per the error taxonomy.
func (cfg *Cfg) validateTransferTool() error {
	for _, bin := range []string{cfg.RsyncBin, cfg.SSHBin} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("transfer tool unavailable: %w", err)
		}
	}
	return nil
}

func (cfg *Cfg) validateFinalize() error {
	if cfg.FinalizeBatchSize < 1 {
		return fmt.Errorf("finalize batch size must be positive, got %d", cfg.FinalizeBatchSize)
	}
	if cfg.FinalizeWorkers < 1 {
		return fmt.Errorf("finalize workers must be positive, got %d", cfg.FinalizeWorkers)
	}
	return nil
}

// Target returns the primary appliance target.
func (cfg *Cfg) Target() Target {
	target, err := ParseTarget(cfg.Host)
	if err != nil {
		// Validate() rejects unparseable hosts before any component
		// asks for the target.
		panic(err)
	}
	return target
}
