package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/doc-summarizer/internal/config"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/doc-summarizer/internal/observability/logging"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|status|down]\n", os.Args[0])
	}
	flag.Parse()
	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("migrate", cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg.PostgresDSN, command); err != nil {
		logger.Error("migration_failed", "command", command, "error", err)
		os.Exit(1)
	}
	logger.Info("migration_done", "command", command)
}

func run(ctx context.Context, dsn, command string) error {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	switch command {
	case "up":
		return postgres.RunMigrations(ctx, db)
	case "status":
		return postgres.MigrationStatus(ctx, db)
	case "down":
		return postgres.RollbackMigration(ctx, db)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
