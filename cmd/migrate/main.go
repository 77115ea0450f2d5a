package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/saturnino-fabrica-de-software/findperson/internal/config"
	"github.com/saturnino-fabrica-de-software/findperson/internal/database"
)

const usage = `usage: migrate [-action up|down|status|force] [-steps N] [-version V]

  up      apply pending migrations (all, or -steps of them)
  down    roll back -steps migrations (default 1)
  status  print the applied version and the pending ones
  force   set -version without running anything, clears a dirty state`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, status, force")
	steps := flag.Int("steps", 0, "Number of migrations for up/down")
	version := flag.Int("version", -1, "Target version for force")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadMigrate()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	migrator, err := database.OpenMigrator(ctx, cfg.DatabaseURL, database.WithMigrationLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if *steps > 0 {
			err = migrator.Steps(*steps)
		} else {
			err = migrator.Up()
		}
		if err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}

	case "down":
		n := *steps
		if n <= 0 {
			n = 1
		}
		if err := migrator.Steps(-n); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}

	case "status":
		return printStatus(migrator)

	case "force":
		if *version < 0 {
			return errors.New("-version is required for force")
		}
		logger.Warn("forcing migration version", slog.Int("version", *version))
		if err := migrator.Force(*version); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}

	default:
		flag.Usage()
		return fmt.Errorf("invalid action %q", *action)
	}

	current, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("migrations done", slog.Uint64("version", uint64(current)), slog.Bool("dirty", dirty))
	return nil
}

func printStatus(m *database.Migrator) error {
	current, dirty, err := m.Version()
	if err != nil {
		return err
	}
	pending, err := m.Pending()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "DIRTY, fix the schema then force a version"
	}
	fmt.Printf("Version: %d (%s)\n", current, state)
	if len(pending) == 0 {
		fmt.Println("Pending: none")
		return nil
	}
	fmt.Printf("Pending: %v\n", pending)
	return nil
}
