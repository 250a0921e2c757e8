package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kaiwa-dev/kaiwa/common/environment"
	"github.com/kaiwa-dev/kaiwa/common/version"
	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/archive"
	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/dialogue"
	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/persona"
)

func main() {
	fmt.Printf("Kaiwa Dialogue Memory\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	logger := newLogger()

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Kaiwa: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := memory.Config{
		MaxSizePerAgent:      environment.IntOr("KAIWA_MAX_SIZE_PER_AGENT", 0),
		MaxRecentMemories:    environment.IntOr("KAIWA_MAX_RECENT_MEMORIES", 0),
		CompressionInterval:  environment.DurationOr("KAIWA_COMPRESSION_INTERVAL", 0),
		EmotionDecayRate:     environment.Float64Or("KAIWA_EMOTION_DECAY_RATE", 0),
		ObservationDecayRate: environment.Float64Or("KAIWA_OBSERVATION_DECAY_RATE", 0),
		RecencyWeight:        environment.Float64Or("KAIWA_RECENCY_WEIGHT", 0),
	}

	store := memory.NewStore(cfg, memory.NewClassifier(), memory.NewRegistry(memory.DefaultMotifConfig()), logger)

	// Optional roster: seeds catchphrases and background facts.
	var roster *persona.Roster
	if path, ok := environment.String("KAIWA_ROSTER_PATH"); ok && path != "" {
		var err error
		roster, err = persona.Load(path)
		if err != nil {
			return err
		}
		seeded, err := roster.Seed(store)
		if err != nil {
			return err
		}
		logger.Info("roster loaded", "name", roster.Name, "agents", len(roster.Agents), "motifs_seeded", seeded)
	}

	// Optional durable archive: rehydrate past runs, persist periodically.
	var archiver archive.Archiver = archive.Noop{}
	if path := environment.StringOr("KAIWA_DATABASE_PATH", ""); path != "" {
		sq, err := archive.NewSQLite(path, logger)
		if err != nil {
			return err
		}
		archiver = sq
	}
	defer archiver.Close()

	persistInterval := environment.DurationOr("KAIWA_PERSIST_INTERVAL", time.Minute)
	archiveRunner := archive.NewRunner(store, archiver, persistInterval, logger)
	if restored, err := archiveRunner.RehydrateAll(ctx); err != nil {
		return err
	} else if restored > 0 {
		logger.Info("restored agent memories", "agents", restored)
	}
	archiveRunner.Start(ctx)
	defer archiveRunner.Stop()

	compactionRunner := memory.NewCompactionRunner(store, memory.RunnerConfig{}, logger)
	compactionRunner.Start(ctx)
	defer compactionRunner.Stop()

	// Drain stdin JSONL until EOF or signal.
	recorder := dialogue.NewRecorder(store, logger)
	stats, err := recorder.Record(ctx, dialogue.NewStreamProducer(os.Stdin, roster))
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("dialogue drained", "ingested", stats.Ingested, "dropped", stats.Dropped)

	// Final compaction and persist with a fresh context: the signal context
	// is already cancelled when we got here via SIGINT/SIGTERM.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	blobs := store.CompactAll()
	for _, b := range blobs {
		logger.Info("final blob",
			"agent_id", b.AgentID,
			"bytes", b.Metadata.TotalSizeBytes,
			"memories", b.Metadata.MemoryCount,
			"motifs", b.Metadata.MotifCount,
		)
	}
	if err := archiveRunner.PersistAll(shutdownCtx); err != nil {
		return fmt.Errorf("final persist: %w", err)
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(environment.StringOr("KAIWA_LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
