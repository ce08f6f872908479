// cmd/orchestrator/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"eligibility-workers/internal/chat"
	"eligibility-workers/internal/clarify"
	"eligibility-workers/internal/common/config"
	"eligibility-workers/internal/common/database"
	"eligibility-workers/internal/common/logger"
	"eligibility-workers/internal/common/observability"
	"eligibility-workers/internal/notify"
	"eligibility-workers/internal/pipeline"
	"eligibility-workers/internal/server"
	"eligibility-workers/internal/store"

	extractdocuments "eligibility-workers/internal/stages/extract-documents"
	fusedecision "eligibility-workers/internal/stages/fuse-decision"
	reconcileprofile "eligibility-workers/internal/stages/reconcile-profile"
	scoreeligibility "eligibility-workers/internal/stages/score-eligibility"
	validateapplication "eligibility-workers/internal/stages/validate-application"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting eligibility orchestrator...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("eligibility-orchestrator")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rds *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rds, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rds.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rds.Close()
	zapLog.Info("Redis connected successfully")

	// --- Stores and clarification queue ---
	appStore := store.NewApplicationStore(pg.DB, log)
	extractStore := store.NewExtractStore(pg.DB, log)
	queue := clarify.NewQueue(rds.Client, cfg.Chat.TTL(), log)
	chatStore := chat.NewStore(rds.Client, cfg.Chat.TTL(), cfg.Chat.MaxMessages, log)

	// --- LLM runtime (optional; refinement and free chat degrade without it) ---
	var runtimeLLM *reconcileprofile.RuntimeClient
	if cfg.Services.LLMRuntime.BaseURL != "" {
		runtimeLLM = reconcileprofile.NewRuntimeClient(
			cfg.Services.LLMRuntime.BaseURL,
			cfg.Services.LLMRuntime.APIKey,
			config.GetDuration(cfg.Services.LLMRuntime.Timeout),
		)
	} else {
		zapLog.Warn("LLM runtime not configured; reconciliation refinement and free chat are disabled")
	}

	// --- Stage handlers ---
	extractor := extractdocuments.NewHandler(&extractdocuments.Config{
		BaseURL: cfg.Services.Extraction.BaseURL,
		Timeout: config.GetDuration(cfg.Services.Extraction.Timeout),
	}, log)

	validator := validateapplication.NewHandler(validateapplication.DefaultConfig(), log)

	reconcileCfg := reconcileprofile.DefaultConfig()
	reconcileCfg.ConfidenceThreshold = cfg.Pipeline.ConfidenceThreshold
	reconcileCfg.MaxQuestionsPerRun = cfg.Pipeline.MaxQuestionsPerRun
	reconcileCfg.LLMBaseURL = cfg.Services.LLMRuntime.BaseURL
	reconcileCfg.LLMAPIKey = cfg.Services.LLMRuntime.APIKey
	reconcileCfg.LLMTimeout = config.GetDuration(cfg.Services.LLMRuntime.Timeout)
	// The handler builds its own runtime client from the config fields.
	reconciler := reconcileprofile.NewHandler(reconcileCfg, nil, queue, log)

	scoreCfg := scoreeligibility.DefaultConfig()
	scoreCfg.BaseURL = cfg.Services.Score.BaseURL
	scoreCfg.Timeout = config.GetDuration(cfg.Services.Score.Timeout)
	scorer := scoreeligibility.NewHandler(scoreCfg, log)

	fuser := fusedecision.NewHandler(fusedecision.DefaultConfig(), log)

	// --- Decision notifier (best effort) ---
	var notifier pipeline.Notifier
	if n, err := notify.NewNotifier(ctx, cfg.Notifications, log); err != nil {
		zapLog.Warn("notifier init failed, decisions will not be announced", zap.Error(err))
	} else {
		notifier = n
	}

	orch := pipeline.NewOrchestrator(
		&pipeline.Config{
			StageTimeout: cfg.Pipeline.StageTimeoutDuration(),
			Obs:          obs,
		},
		extractor, validator, reconciler, scorer, fuser,
		queue, appStore, extractStore, notifier, log,
	)

	// --- Chat and HTTP surface ---
	applicantSvc := server.NewApplicantService(appStore, extractStore, orch)
	var chatLLM chat.LLMClient
	if runtimeLLM != nil {
		chatLLM = runtimeLLM
	}
	chatSvc := chat.NewService(chatStore, queue, applicantSvc, applicantSvc, chatLLM, log)

	srv := server.NewServer(appStore, applicantSvc, chatSvc, queue, log)
	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: srv.Router(),
	}

	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		})
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		zapLog.Info("Health/Metrics server listening", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Orchestrator stopped")
}
