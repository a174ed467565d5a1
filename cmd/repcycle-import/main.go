package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/repcycle/internal/config"
	"github.com/claude/repcycle/internal/importer"
	"github.com/claude/repcycle/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	programDir := flag.String("path", "", "path to directory of program YAML files (required)")
	assignTo := flag.Int64("assign", 0, "client ID to assign imported programs to")
	coachID := flag.Int64("coach", 1, "coach ID for programs without one")
	dryRun := flag.Bool("dry-run", false, "report counts without inserting into database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *programDir == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcycle-import -config config.yaml -path /path/to/programs [-assign CLIENT] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*programDir)
	if err != nil || !info.IsDir() {
		log.Error("program path does not exist or is not a directory", "path", *programDir)
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()

	// Run migrations
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode — no data will be written to the database")
	}

	// Connect database
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Run import
	imp := importer.New(db, log, *dryRun)
	stats, err := imp.Import(ctx, *programDir, *assignTo, *coachID)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_errored", stats.FilesErrored,
		"programs_created", stats.ProgramsCreated,
		"sessions_created", stats.SessionsCreated,
		"exercises_created", stats.ExercisesCreated,
		"assignments_created", stats.AssignmentsCreated,
	)
}
