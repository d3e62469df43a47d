package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/leadflow/cmd/mainconfig"
	"github.com/wolfman30/leadflow/internal/api/router"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/dispatch"
	"github.com/wolfman30/leadflow/internal/http/handlers"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/llm"
	"github.com/wolfman30/leadflow/internal/monitoring"
	"github.com/wolfman30/leadflow/internal/notify"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/orchestrator"
	"github.com/wolfman30/leadflow/internal/qualification"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		logging.Default().Error("failed to read .env", "error", err)
		os.Exit(1)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_store", cfg.SessionStore,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.SessionStore == "redis" || cfg.MonitorSink == "redis" {
		rdb = mainconfig.RedisClient(cfg)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to reach redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	metricsHandler, engineMetrics := setupMetrics()

	store, err := buildSessionStore(cfg, rdb)
	if err != nil {
		logger.Error("failed to build session store", "error", err)
		os.Exit(1)
	}

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	leadRepo := buildLeadRepository(pool)

	multipliers := qualification.DefaultMultipliers()
	if cfg.ScoringConfigPath != "" {
		multipliers, err = qualification.LoadMultipliersFile(cfg.ScoringConfigPath)
		if err != nil {
			logger.Error("failed to load scoring multipliers", "error", err, "path", cfg.ScoringConfigPath)
			os.Exit(1)
		}
	}

	responder, closeResponder, err := buildResponder(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build responder", "error", err)
		os.Exit(1)
	}
	defer closeResponder()

	monitor := buildMonitor(cfg, rdb, engineMetrics, logger)

	notifier, err := buildNotifier(cfg, awsCfg, leadRepo, logger)
	if err != nil {
		logger.Error("failed to build notifier", "error", err, "provider", cfg.NotifyProvider)
		os.Exit(1)
	}

	engine := orchestrator.New(orchestrator.Config{
		Store:        store,
		Scorer:       qualification.NewScorer(multipliers),
		Responder:    responder,
		Notifier:     notifier,
		Monitor:      monitor,
		Logger:       logger,
		Tracer:       otel.Tracer("leadflow.internal.orchestrator"),
		MaxRetries:   cfg.ResponderMaxRetries,
		RetryBackoff: 250 * time.Millisecond,
	})

	queue, err := buildQueue(cfg, awsCfg)
	if err != nil {
		logger.Error("failed to build dispatch queue", "error", err)
		os.Exit(1)
	}
	dispatcher := dispatch.New(engine, queue, logger,
		dispatch.WithLanes(cfg.DispatchLanes),
		dispatch.WithJobTimeout(cfg.RequestTimeout),
	)

	r := router.New(&router.Config{
		Logger:             logger,
		Sessions:           handlers.NewSessionHandler(dispatcher, engine, logger),
		Monitoring:         handlers.NewMonitoringHandler(monitor),
		Leads:              handlers.NewLeadsHandler(leadRepo, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MessageRateLimit:   cfg.MessageRateLimit,
		MessageBurst:       cfg.MessageBurst,
		RequestTimeout:     cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown incomplete", "error", err)
	}
	if err := monitor.Shutdown(shutdownCtx); err != nil {
		logger.Error("monitor sink did not drain", "error", err)
	}
	logger.Info("server stopped")
}

func setupMetrics() (http.Handler, *metrics.EngineMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewEngineMetrics(reg)
}

func buildSessionStore(cfg *appconfig.Config, rdb *redis.Client) (session.Store, error) {
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		return session.NewRedisStore(rdb, cfg.SessionTTL, otel.Tracer("leadflow.internal.session")), nil
	default:
		return nil, errors.New("unknown SESSION_STORE " + cfg.SessionStore)
	}
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Info("DATABASE_URL not set; qualified leads kept in memory")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

func buildLeadRepository(pool *pgxpool.Pool) leads.Repository {
	if pool == nil {
		return leads.NewInMemoryRepository()
	}
	return leads.NewPostgresRepository(pool)
}

// buildNotifier always stores and logs the lead; NOTIFY_PROVIDER adds an
// outbound channel.
func buildNotifier(cfg *appconfig.Config, awsCfg aws.Config, repo leads.Repository, logger *logging.Logger) (notify.Notifier, error) {
	recipients := splitList(cfg.NotifyRecipient)
	var outbound notify.Notifier
	switch cfg.NotifyProvider {
	case "", "none":
	case "sendgrid":
		sender, err := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if err != nil {
			return nil, err
		}
		outbound = notify.NewEmailNotifier(sender, recipients, logger)
	case "ses":
		sender, err := notify.NewSESSender(mainconfig.SESClient(awsCfg, cfg), notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.SendGridFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)
		if err != nil {
			return nil, err
		}
		outbound = notify.NewEmailNotifier(sender, recipients, logger)
	case "sqs":
		if cfg.NotifyQueueURL == "" {
			return nil, errors.New("NOTIFY_QUEUE_URL is required for the sqs provider")
		}
		outbound = notify.NewQueueNotifier(mainconfig.SQSClient(awsCfg, cfg), cfg.NotifyQueueURL)
	case "stub":
		outbound = notify.NewEmailNotifier(notify.NewStubEmailSender(logger), recipients, logger)
	default:
		return nil, errors.New("unknown NOTIFY_PROVIDER " + cfg.NotifyProvider)
	}
	return notify.NewChain(logger,
		notify.NewLeadStoreNotifier(repo),
		outbound,
		notify.NewLogNotifier(logger),
	), nil
}

// buildResponder returns the reply generator and a cleanup func. An LLM
// provider is wrapped so template copy answers when the model fails.
func buildResponder(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (orchestrator.Responder, func(), error) {
	noop := func() {}
	var client llm.Client
	cleanup := noop
	switch cfg.LLMProvider {
	case "", "template":
		return orchestrator.TemplateResponder{}, noop, nil
	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, noop, errors.New("BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		client = llm.NewBedrockClient(mainconfig.BedrockClient(awsCfg), cfg.BedrockModelID)
	case "gemini":
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, err
		}
		client = gemini
		cleanup = func() { _ = gemini.Close() }
	case "bedrock+gemini":
		if cfg.BedrockModelID == "" {
			return nil, noop, errors.New("BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, err
		}
		client = llm.NewFallbackClient(llm.NewBedrockClient(mainconfig.BedrockClient(awsCfg), cfg.BedrockModelID), gemini, logger)
		cleanup = func() { _ = gemini.Close() }
	default:
		return nil, noop, errors.New("unknown LLM_PROVIDER " + cfg.LLMProvider)
	}
	return orchestrator.NewLLMResponder(client, orchestrator.WithReplyTimeout(cfg.ResponderTimeout)), cleanup, nil
}

func buildMonitor(cfg *appconfig.Config, rdb *redis.Client, m *metrics.EngineMetrics, logger *logging.Logger) *monitoring.Monitor {
	var sink monitoring.Sink
	switch cfg.MonitorSink {
	case "log":
		sink = monitoring.NewLogSink(logger)
	case "redis":
		if rdb != nil {
			sink = monitoring.NewRedisStreamSink(rdb, cfg.MonitorStreamMax)
		}
	}
	return monitoring.New(monitoring.Config{
		MaxEntries:  cfg.MonitorMaxEntries,
		IdleTimeout: cfg.SessionTTL,
		Sink:        sink,
		Metrics:     m,
		Logger:      logger,
	})
}

func buildQueue(cfg *appconfig.Config, awsCfg aws.Config) (dispatch.Queue, error) {
	if cfg.UseMemoryQueue {
		return dispatch.NewMemoryQueue(1024), nil
	}
	if cfg.DispatchQueueURL == "" {
		return nil, errors.New("DISPATCH_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	return dispatch.NewSQSQueue(mainconfig.SQSClient(awsCfg, cfg), cfg.DispatchQueueURL), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
