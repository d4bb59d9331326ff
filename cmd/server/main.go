package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v58/github"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"revq.app/revq/common/id"
	"revq.app/revq/common/llm"
	"revq.app/revq/common/logger"
	"revq.app/revq/common/otel"
	"revq.app/revq/core/config"
	"revq.app/revq/core/db"
	"revq.app/revq/internal/analysis"
	"revq.app/revq/internal/analysis/strategies"
	"revq.app/revq/internal/diag"
	"revq.app/revq/internal/http/handler"
	"revq.app/revq/internal/http/middleware"
	httprouter "revq.app/revq/internal/http/router"
	"revq.app/revq/internal/pipeline"
	"revq.app/revq/internal/provider"
	"revq.app/revq/internal/review"
	"revq.app/revq/internal/service"
	"revq.app/revq/internal/store"
	"revq.app/revq/internal/webhook"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "revq starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	stores := store.New(database)
	if err := stores.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	tracer := diag.NewTracer(diag.MultiSink{
		diag.NewStreamSink(redisClient, diag.StreamSinkConfig{
			Stream: cfg.Redis.DiagnosticStream,
			MaxLen: cfg.Redis.StreamMaxLen,
		}),
		diag.NewStoreSink(stores),
	})

	githubClient := github.NewClient(nil)
	if cfg.GitHub.Enabled() {
		githubClient = githubClient.WithAuthToken(cfg.GitHub.Token)
	}

	var poster review.Poster = review.LogPoster{}
	if cfg.GitHub.Enabled() {
		poster = review.NewGitHubPoster(githubClient)
	} else {
		slog.WarnContext(ctx, "no github token configured, reviews will be logged only")
	}

	files := provider.NewGitHubProvider(githubClient, provider.GitHubProviderConfig{
		MaxFiles:     cfg.GitHub.MaxFiles,
		MaxFileBytes: cfg.GitHub.MaxFileBytes,
	})

	orchestrator := analysis.NewOrchestrator(buildRegistry(ctx, cfg), analysis.Config{
		StrategyTimeout: cfg.Analysis.StrategyTimeout,
		MaxConcurrent:   cfg.Analysis.MaxConcurrent,
	})

	runner := service.NewJobRunner(files, orchestrator, tracer, stores, poster)
	pipe := pipeline.New(pipeline.Config{
		Workers:         cfg.Pipeline.Workers,
		QueueDepth:      cfg.Pipeline.QueueDepth,
		DrainOnShutdown: cfg.Pipeline.DrainOnShutdown,
	}, runner)
	pipe.Start(ctx)
	slog.InfoContext(ctx, "pipeline started",
		"workers", cfg.Pipeline.Workers,
		"queue_depth", cfg.Pipeline.QueueDepth)

	intake := service.NewIntake(
		webhook.NewSignatureValidator(cfg.Webhook.Secret),
		webhook.NewDeduplicator(redisClient, cfg.Webhook.DedupTTL),
		webhook.NewClassifier(webhook.ClassifierConfig{
			BotUser:           cfg.Classifier.BotUser,
			SmallDiffLines:    cfg.Classifier.SmallDiffLines,
			WeightSmallDiff:   cfg.Classifier.WeightSmallDiff,
			WeightUrgentLabel: cfg.Classifier.WeightUrgentLabel,
			WeightFreshAction: cfg.Classifier.WeightFreshAction,
			UrgentLabels:      cfg.Classifier.UrgentLabels,
		}),
		pipe,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, intake, tracer, stores)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if err := pipe.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "pipeline shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// buildRegistry assembles the strategies decided by configuration. The LLM
// strategy joins only when an API key is present.
func buildRegistry(ctx context.Context, cfg config.Config) *analysis.Registry {
	list := []analysis.Strategy{
		strategies.NewSecurityStrategy(),
		strategies.NewStyleStrategy(strategies.StyleConfig{MaxLineLength: cfg.Analysis.MaxLineLength}),
		strategies.NewMarkerStrategy(),
	}

	if cfg.ReviewLLM.Enabled() {
		client, err := llm.NewClient(llm.Config{
			Provider:  cfg.ReviewLLM.Provider,
			APIKey:    cfg.ReviewLLM.APIKey,
			BaseURL:   cfg.ReviewLLM.BaseURL,
			Model:     cfg.ReviewLLM.Model,
			MaxTokens: cfg.ReviewLLM.MaxTokens,
		})
		if err != nil {
			slog.WarnContext(ctx, "llm strategy disabled", "error", err)
		} else {
			list = append(list, strategies.NewLLMStrategy(client))
			slog.InfoContext(ctx, "llm strategy enabled", "model", client.Model())
		}
	}

	return analysis.NewRegistry(list...)
}

func setupRouter(cfg config.Config, intake *service.Intake, tracer *diag.Tracer, stores *store.Store) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, httprouter.Handlers{
		Webhook:     handler.NewGitHubWebhookHandler(intake),
		Diagnostics: handler.NewDiagnosticsHandler(tracer),
		Results:     handler.NewResultsHandler(stores),
	})

	return router
}

const banner = `
██████╗ ███████╗██╗   ██╗ ██████╗
██╔══██╗██╔════╝██║   ██║██╔═══██╗
██████╔╝█████╗  ██║   ██║██║   ██║
██╔══██╗██╔══╝  ╚██╗ ██╔╝██║▄▄ ██║
██║  ██║███████╗ ╚████╔╝ ╚██████╔╝
╚═╝  ╚═╝╚══════╝  ╚═══╝   ╚══▀▀═╝
`
