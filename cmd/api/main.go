// Command api runs the buy-vs-subscribe debate API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/agent"
	"github.com/appliance-labs/debate-platform/internal/config"
	"github.com/appliance-labs/debate-platform/internal/debate"
	"github.com/appliance-labs/debate-platform/internal/handler"
	"github.com/appliance-labs/debate-platform/internal/llm"
	"github.com/appliance-labs/debate-platform/internal/middleware"
	"github.com/appliance-labs/debate-platform/internal/nats"
	"github.com/appliance-labs/debate-platform/internal/retrieval"
	"github.com/appliance-labs/debate-platform/internal/store"
	"github.com/appliance-labs/debate-platform/pkg/logger"
	"github.com/appliance-labs/debate-platform/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "debate-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("tracing disabled", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	durable, err := newStore(cfg, log)
	if err != nil {
		log.Fatal("store initialization failed", zap.Error(err))
	}
	defer func() { _ = durable.Close() }()

	var natsClient *nats.Client
	var feed *nats.Feed
	if cfg.NATSURL != "" {
		natsClient, err = nats.Connect(nats.Config{URL: cfg.NATSURL, Token: cfg.NATSToken}, log)
		if err != nil {
			log.Warn("event feed disabled", zap.Error(err))
		} else {
			defer natsClient.Close()
			feed = nats.NewFeed(natsClient)
			if err := feed.EnsureStream(ctx); err != nil {
				log.Warn("stream setup failed, feed disabled", zap.Error(err))
				feed = nil
			}
		}
	}

	completion, err := newCompletionClient(cfg, log)
	if err != nil {
		log.Fatal("completion client initialization failed", zap.Error(err))
	}

	catalog := retrieval.NewHTTPClient(cfg.CatalogSearchURL, cfg.CatalogSearchKey, log)

	purchase := agent.NewAdvocate(agent.PurchasePersona(), completion, catalog, log)
	subscribe := agent.NewAdvocate(agent.SubscriptionPersona(), completion, catalog, log)
	moderator := agent.NewModerator(completion, catalog, agent.NewKeywordTagger(), log)

	sessions := debate.NewSessions(durable, log)
	orch := debate.NewOrchestrator(sessions, purchase, subscribe, moderator, durable, feed, debate.Options{
		TurnDelay:     cfg.TurnDelay,
		FlushInterval: cfg.FlushInterval,
		IdleThreshold: cfg.IdleThreshold,
	}, log)

	go orch.RunReaper(ctx, cfg.ReaperPeriod)
	go orch.RunTaskWorker(ctx, cfg.ReaperPeriod)

	router := newRouter(cfg, log, orch, natsClient)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.ServerPort),
			zap.String("provider", cfg.PrimaryProvider),
			zap.Bool("fallback", cfg.EnableFallback))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	// Final flush so in-memory transcripts reach the durable store.
	orch.FlushAll(shutdownCtx)
	log.Info("server stopped")
}

func newStore(cfg *config.Config, log *logger.Logger) (store.Store, error) {
	if cfg.StoreDSN == "" {
		log.Info("using in-memory store")
		return store.NewMemoryStore(), nil
	}
	log.Info("using sqlite store", zap.String("dsn", cfg.StoreDSN))
	return store.NewSQLiteStore(cfg.StoreDSN)
}

// newCompletionClient builds the primary provider and, when enabled and a
// second API key exists, wraps it with single-retry failover.
func newCompletionClient(cfg *config.Config, log *logger.Logger) (llm.Client, error) {
	primaryProvider := llm.Provider(cfg.PrimaryProvider)
	secondaryProvider := llm.ProviderAnthropic
	primaryKey, secondaryKey := cfg.OpenAIAPIKey, cfg.AnthropicAPIKey
	if primaryProvider == llm.ProviderAnthropic {
		secondaryProvider = llm.ProviderOpenAI
		primaryKey, secondaryKey = cfg.AnthropicAPIKey, cfg.OpenAIAPIKey
	}

	primary, err := llm.NewClient(primaryProvider, primaryKey)
	if err != nil {
		return nil, err
	}

	if !cfg.EnableFallback || secondaryKey == "" {
		return primary, nil
	}

	secondary, err := llm.NewClient(secondaryProvider, secondaryKey)
	if err != nil {
		log.Warn("secondary provider unavailable, running without failover", zap.Error(err))
		return primary, nil
	}
	return llm.NewFailover(primary, secondary, log), nil
}

func newRouter(cfg *config.Config, log *logger.Logger, orch *debate.Orchestrator, natsClient *nats.Client) http.Handler {
	chatHandler := handler.NewChatHandler(orch, log)
	streamHandler := handler.NewStreamHandler(orch, log)
	healthHandler := handler.NewHealthHandler(natsClient)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.AuthRequired {
			r.Use(middleware.Auth(cfg.JWTSecret))
		}

		r.Route("/chat", func(r chi.Router) {
			r.Post("/init", chatHandler.Init)
			r.With(middleware.ValidateChatMessage).Post("/message", chatHandler.Message)
			r.With(middleware.ValidateChatMessage).Post("/message/stream", streamHandler.Message)
			r.Get("/history/{sessionId}", chatHandler.History)
			r.Post("/end", chatHandler.End)
			r.Delete("/session/{sessionId}", chatHandler.End)
			r.With(middleware.AdminKey(cfg.AdminKey)).Post("/cleanup", chatHandler.Cleanup)
		})
	})

	return r
}
