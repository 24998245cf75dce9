package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"orchestrator/internal/adapter/memory"
	"orchestrator/internal/adapter/repo"
	"orchestrator/internal/classify"
	"orchestrator/internal/contextmgr"
	"orchestrator/internal/domain"
	"orchestrator/internal/gateway"
	"orchestrator/internal/http/handlers"
	"orchestrator/internal/http/httpapi"
	"orchestrator/internal/infra"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/pricing"
	"orchestrator/internal/quota"
	"orchestrator/internal/task"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		taskRepo    domain.TaskRepository
		usageRepo   domain.UsageRepository
		contextRepo domain.ContextRepository
		pool        *pgxpool.Pool
	)
	if cfg.MemoryMode() {
		logger.Warn().Msg("api: DATABASE_URL not set, using in-memory stores")
		taskRepo = memory.NewTaskStore()
		usageRepo = memory.NewUsageStore()
		contextRepo = memory.NewContextStore()
	} else {
		var err error
		pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: db connection failed")
		}
		defer pool.Close()
		taskRepo = repo.NewTaskRepository(pool)
		usageRepo = repo.NewUsageRepository(pool)
		contextRepo = repo.NewContextRepository(pool)
	}

	tables, err := pricing.Load(cfg.PricingConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: pricing config failed to load")
	}
	policy, err := quota.Load(cfg.QuotaConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: quota config failed to load")
	}

	var interpreter classify.InterpretationGateway
	if cfg.GeminiAPIKey != "" {
		interpreter, err = gateway.NewGeminiInterpreter(gateway.GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("api: gemini interpreter failed to configure")
		}
	} else {
		logger.Warn().Msg("api: GEMINI_API_KEY missing, classification runs on the local fast path only")
	}

	backends := gateway.SyntheticRegistry()
	if cfg.GenerateBaseURL != "" {
		client := &http.Client{Timeout: cfg.ProcessingTimeout}
		for _, taskType := range domain.KnownTaskTypes {
			backends[taskType] = gateway.NewHTTPGenerator(cfg.GenerateBaseURL+"/"+string(taskType), cfg.GenerateAPIKey, client)
		}
	} else {
		logger.Warn().Msg("api: GENERATE_BASE_URL missing, using synthetic generation")
	}

	hub := task.NewHub()
	if pool != nil {
		// Bridge transitions recorded by other processes (the reconciler's
		// sweep) into this hub so stream subscribers see them too.
		go repo.ListenTaskEvents(ctx, pool, hub, logger)
	}
	contexts := contextmgr.New(contextRepo, logger)
	enforcer := quota.NewEnforcer(policy, usageRepo, logger)

	var orch *orchestrator.Orchestrator
	tasks := task.NewManager(taskRepo, hub, func(ctx context.Context, tk domain.GenerationTask) (domain.TaskResult, error) {
		return orch.Executor()(ctx, tk)
	}, logger)
	orch = orchestrator.New(orchestrator.Options{
		Classifier: classify.New(interpreter, logger),
		Contexts:   contexts,
		Selector:   pricing.NewSelector(tables),
		Quota:      enforcer,
		Tasks:      tasks,
		Usage:      usageRepo,
		Backends:   backends,
		Cache:      orchestrator.NewStatusCache(cfg.StatusCacheTTL),
		Logger:     logger,
	})

	// Re-dispatch work interrupted by the previous shutdown. Processing
	// tasks are left to the reconciler's deadline sweep.
	if resumed, err := tasks.ResumePending(ctx); err != nil {
		logger.Error().Err(err).Msg("api: resume of pending tasks failed")
	} else if resumed > 0 {
		logger.Info().Int("count", resumed).Msg("api: resumed pending tasks")
	}

	app := handlers.NewApp(orch, tasks, enforcer, contexts, hub, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   "en",
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Let in-flight generations finish before the process exits.
	done := make(chan struct{})
	go func() {
		tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.ProcessingTimeout):
		logger.Warn().Msg("api: shutdown timed out waiting for in-flight tasks")
	}
	logger.Info().Msg("server stopped")
}
