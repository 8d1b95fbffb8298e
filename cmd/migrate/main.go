package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohitnawani/taskdeck/internal/app/migrate"
	"github.com/mohitnawani/taskdeck/internal/config"
	"github.com/mohitnawani/taskdeck/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	command := os.Args[1]
	switch command {
	case "help", "-h", "--help":
		printUsage()
		return
	case "up", "status", "down":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		printUsage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	timeout := fs.Duration("timeout", time.Minute, "command timeout")
	target := fs.Int64("target", 0, "down: roll back to this version instead of one step")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	log := logger.New("migrate", slog.LevelInfo)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	var runErr error
	switch command {
	case "up":
		runErr = runner.Ensure(ctx)
	case "status":
		runErr = runner.Status(ctx)
	case "down":
		runErr = runner.Down(ctx, *target)
	}
	if runErr != nil {
		log.Error("migration command failed", "command", command, "error", runErr)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", command)
}

func printUsage() {
	fmt.Println(`migrate — schema migration tool

Usage:
  migrate <command> [flags]

Commands:
  up       Apply all pending migrations
  status   Show each migration and whether it has run
  down     Roll back the latest migration (or to -target)

Flags:
  -timeout duration   command timeout (default 1m)
  -target version     down: roll back to this version

The database comes from DATABASE_URL; migrations ship inside the binary.`)
}
