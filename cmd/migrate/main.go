// Command migrate runs the embedded schema migrations against DB_DRIVER /
// DB_DSN outside the server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/store/sqlstore"
)

// errUsage signals a bad command line; main prints usage for it.
var errUsage = errors.New("usage")

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}

	err = run(cfg, logger, args)
	logger.Sync()
	switch {
	case errors.Is(err, errUsage):
		usage()
		os.Exit(1)
	case err != nil:
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

// run executes one migration command. The migrate instance is always
// closed before it returns.
func run(cfg *config.Config, logger *zap.Logger, args []string) error {
	m, err := sqlstore.NewMigrator(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer m.Close()

	m.Log = &migrateLogger{logger: logger.Sugar()}

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("up failed: %w", err)
		}
		logger.Info("migrations: up completed")

	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("down: invalid steps argument %q", args[1])
			}
			steps = n
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("down failed: %w", err)
		}
		logger.Info("migrations: down completed", zap.Int("steps", steps))

	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("version failed: %w", err)
		}
		fmt.Printf("version: %d  dirty: %v\n", v, dirty)

	case "force":
		if len(args) < 2 {
			return errors.New("force: version argument required")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("force: invalid version %q", args[1])
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		logger.Info("migrations: forced", zap.Int("version", v))

	default:
		return errUsage
	}
	return nil
}

type migrateLogger struct {
	logger *zap.SugaredLogger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate <command> [args]

Commands:
  up           Apply all pending migrations
  down [N]     Rollback N migrations (default: 1)
  version      Print current migration version
  force <V>    Force set migration version (bypass dirty state)

Environment:
  DB_DRIVER   sqlite3 (default) or postgres
  DB_DSN      Database path or connection string`)
}
