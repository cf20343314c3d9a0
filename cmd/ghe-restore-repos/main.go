// Command ghe-restore-repos restores a snapshot's repository data onto
// a target appliance. It takes the target host as its only argument,
// as "[user@]host[:port]".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/ghe-utils/reposync/internal/appliance"
	"github.com/ghe-utils/reposync/internal/backup"
	"github.com/ghe-utils/reposync/internal/cleanup"
	glog "github.com/ghe-utils/reposync/internal/log"
	"github.com/ghe-utils/reposync/internal/report"
)

func main() {
	flags := flag.NewFlagSet("ghe-restore-repos", flag.ExitOnError)
	configPath := flags.String("config", "", "path to backup.toml")
	snapshotID := flags.String("snapshot", "", "snapshot to restore, defaults to the most recent")
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-config backup.toml] [-snapshot ID] <target-host>\n", flags.Name())
		os.Exit(2)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	cfg.Host = flags.Arg(0)
	if *snapshotID != "" {
		cfg.Snapshot = *snapshotID
	}

	glog.Configure(glog.Loggers, cfg.Logging.Format, cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guard := cleanup.NewGuard()
	warnings := report.NewLog()

	err = backup.NewRun(cfg, guard, warnings).Restore(ctx)

	guard.Run()
	warnings.Render(os.Stderr)

	if err != nil {
		log.WithError(err).Fatal("restore failed")
	}
}

func loadConfig(path string) (appliance.Cfg, error) {
	if path == "" {
		return appliance.Load(nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return appliance.Cfg{}, err
	}
	defer file.Close()

	return appliance.Load(file)
}
