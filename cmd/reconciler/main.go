// The reconciler sweeps tasks stuck in processing past their deadline and
// fails them, so a crashed worker cannot strand a task in a non-terminal
// state forever. It runs alongside the API as a separate process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orchestrator/internal/adapter/repo"
	"orchestrator/internal/infra"
	"orchestrator/internal/task"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "reconciler")

	if cfg.MemoryMode() {
		logger.Fatal().Msg("reconciler: DATABASE_URL is required; in-memory stores have nothing to reconcile across processes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler: db connection failed")
	}
	defer pool.Close()

	// No executor: the reconciler only finalizes, never runs generations.
	// Sweep transitions go out through Postgres NOTIFY so api processes can
	// forward them to their live stream subscribers.
	notifier := repo.NewTaskNotifier(pool, logger)
	tasks := task.NewManager(repo.NewTaskRepository(pool), notifier, nil, logger)

	logger.Info().
		Dur("interval", cfg.ReconcileInterval).
		Dur("deadline", cfg.ProcessingTimeout).
		Msg("reconciler: started")

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("reconciler: stopped")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.ProcessingTimeout)
			swept, err := tasks.FailStale(ctx, cutoff)
			if err != nil {
				logger.Error().Err(err).Msg("reconciler: sweep failed")
				continue
			}
			if swept > 0 {
				logger.Info().Int("count", swept).Msg("reconciler: failed stale tasks")
			}
		}
	}
}
