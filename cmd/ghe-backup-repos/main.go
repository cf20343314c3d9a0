// Command ghe-backup-repos backs up the repository data of the
// configured appliance into a new snapshot. It takes no arguments and
// operates against the appliance named in backup.toml or the
// environment.
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
	flags := flag.NewFlagSet("ghe-backup-repos", flag.ExitOnError)
	configPath := flags.String("config", "", "path to backup.toml")
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [-config backup.toml]\n", flags.Name())
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	glog.Configure(glog.Loggers, cfg.Logging.Format, cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guard := cleanup.NewGuard()
	warnings := report.NewLog()

	err = backup.NewRun(cfg, guard, warnings).Create(ctx)

	// The guard re-enables GC and removes temp resources on every exit
	// path, exactly once.
	guard.Run()
	warnings.Render(os.Stderr)

	if err != nil {
		log.WithError(err).Fatal("backup failed")
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
