package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	coreapi "github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/caspar0/caspar/db"
	"github.com/caspar0/caspar/internal/agent"
	"github.com/caspar0/caspar/internal/api"
	"github.com/caspar0/caspar/internal/classifier"
	"github.com/caspar0/caspar/internal/config"
	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/detector"
	"github.com/caspar0/caspar/internal/handoff"
	"github.com/caspar0/caspar/internal/knowledge"
	"github.com/caspar0/caspar/internal/log"
	"github.com/caspar0/caspar/internal/observability"
	"github.com/caspar0/caspar/internal/tools"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger, opts Options) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initialization so spans reach
	// the exporter.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Registry, err = tools.NewDefaultRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	var caseStore handoff.CaseStore
	if opts.Memory {
		a.Store = conversation.NewMemoryStore()
		a.Retriever = knowledge.NewStatic(knowledge.DefaultPassages())
		logger.Info("running with in-memory storage")
	} else {
		pool, dbCleanup, err := provideDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbCleanup = dbCleanup
		a.DBPool = pool

		a.Store, err = conversation.NewPostgresStore(pool, logger)
		if err != nil {
			return nil, err
		}
		caseStore, err = handoff.NewPostgresCaseStore(pool, logger)
		if err != nil {
			return nil, err
		}

		a.Embedder = provideEmbedder(g, cfg)
		if a.Embedder == nil {
			return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
		}
		store, err := knowledge.NewStore(pool, a.Embedder, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Seed(ctx, knowledge.DefaultPassages()); err != nil {
			return nil, fmt.Errorf("seeding knowledge store: %w", err)
		}
		a.Retriever = store
	}

	a.Queue = handoff.NewQueue(handoff.Config{
		Tiers:        cfg.PriorityTiers,
		TriggerTiers: cfg.TriggerTiers,
		WaitPerCase:  cfg.WaitPerCase,
		VIPBoost:     cfg.VIPTierBoost,
		Notifier:     handoff.NewLogNotifier(logger),
	}, caseStore, logger)
	if err := a.Queue.Restore(ctx); err != nil {
		return nil, err
	}

	cls := classifier.New(g, a.Registry, classifier.Config{
		Model:                cfg.FullModelName(),
		FrustrationThreshold: cfg.FrustrationThreshold,
		FrustrationTurns:     cfg.FrustrationTurns,
		SentimentThreshold:   cfg.SentimentThreshold,
		Timeout:              cfg.ClassifyTimeout,
		RateLimit:            rate.Limit(cfg.ModelRateLimit),
		RateBurst:            cfg.ModelRateBurst,
	}, logger)

	a.Agent, err = agent.New(a.Store, cls, detector.New(), a.Registry, a.Retriever, a.Queue,
		agent.Config{
			MaxClarifyTurns:      cfg.MaxClarifyTurns,
			MaxConversationTurns: cfg.MaxConversationTurns,
			RetrievalK:           cfg.RetrievalK,
			RetrieveTimeout:      cfg.RetrieveTimeout,
			ToolTimeout:          cfg.ToolTimeout,
			ToolMaxRetries:       cfg.ToolMaxRetries,
			RetryInitialDelay:    cfg.RetryInitialDelay,
			RetryMaxDelay:        cfg.RetryMaxDelay,
			InactivityTimeout:    cfg.InactivityTimeout,
		}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	a.Server, err = api.NewServer(api.ServerConfig{
		Logger:      logger,
		Agent:       a.Agent,
		Pool:        a.DBPool,
		CORSOrigins: cfg.CORSOrigins,
		IsDev:       opts.Memory || cfg.PostgresSSLMode == "disable",
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return a, nil
}

// provideOtelShutdown sets up Datadog tracing before Genkit initialization
// and returns a cleanup that flushes pending spans.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	shutdown, err := observability.SetupDatadog(ctx, observability.Config{
		AgentHost:   cfg.Datadog.AgentHost,
		Environment: cfg.Datadog.Environment,
		ServiceName: cfg.Datadog.ServiceName,
	})
	if err != nil {
		logger.Warn("setting up tracing", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// The Ollama embedder is keyed by server address (registered in
		// provideGenkit).
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, coreapi.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
