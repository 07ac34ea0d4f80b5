package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-journey/internal/api"
	"go-journey/internal/assistant"
	"go-journey/internal/auth"
	"go-journey/internal/chat"
	"go-journey/internal/churn"
	"go-journey/internal/classifier"
	"go-journey/internal/config"
	"go-journey/internal/db"
	"go-journey/internal/events"
	"go-journey/internal/journey"
	"go-journey/internal/knowledge"
	"go-journey/internal/llm"
	"go-journey/internal/logging"
	"go-journey/internal/member"
	"go-journey/internal/memory"
	redisdb "go-journey/internal/redis"
	"go-journey/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, devMode)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

// closer runs shutdown steps in reverse order of registration
type closer struct {
	steps []func()
}

func (c *closer) add(fn func()) { c.steps = append(c.steps, fn) }

func (c *closer) run() {
	for i := len(c.steps) - 1; i >= 0; i-- {
		c.steps[i]()
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var cleanup closer
	defer cleanup.run()

	if err := db.Init(cfg, logger); err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	members := member.NewRepository(db.DB)
	if cfg.Journey.SeedMembers {
		if err := members.SeedDefaults(ctx); err != nil {
			return fmt.Errorf("failed to seed members: %w", err)
		}
	}

	catalog, err := loadCatalog(cfg.Journey.CatalogPath)
	if err != nil {
		return err
	}
	logger.Info("Catalog loaded", zap.Int("missions", len(catalog.ListMissions())))

	transcript, facts, err := buildTranscript(ctx, cfg, logger)
	if err != nil {
		return err
	}

	breaker := llm.NewCircuitBreaker(cfg.LLM.Breaker.MaxFailures, time.Duration(cfg.LLM.Breaker.ResetSeconds)*time.Second, logger)
	manager := llm.NewManager(&llm.Config{
		MaxConcurrent:        cfg.LLM.MaxConcurrent,
		InteractiveQueueSize: cfg.LLM.QueueSize,
		SweepQueueSize:       cfg.LLM.QueueSize,
		BreakerFailures:      cfg.LLM.Breaker.MaxFailures,
		BreakerReset:         time.Duration(cfg.LLM.Breaker.ResetSeconds) * time.Second,
	}, breaker, logger)
	cleanup.add(manager.Stop)
	client := llm.NewClient(manager, llm.PriorityInteractive, cfg.LLM.Timeout()).WithAPIKey(cfg.LLM.APIKey)
	model := llm.NewChatModel(client, cfg.LLM.URL, cfg.LLM.Model, classifier.SystemPrompt)

	opts := []classifier.Option{
		classifier.WithContextSize(cfg.LLM.ContextSize),
		classifier.WithTimeout(cfg.LLM.Timeout()),
		classifier.WithSnippetLimit(cfg.Knowledge.TopK),
	}
	assistantOpts := []assistant.Option{assistant.WithContextSize(cfg.LLM.ContextSize)}
	if cfg.Knowledge.Dir != "" {
		chunks, err := knowledge.LoadDir(cfg.Knowledge.Dir, cfg.Knowledge.ChunkSize, cfg.Knowledge.Overlap, logger)
		if err != nil {
			logger.Warn("Knowledge base unavailable", zap.String("dir", cfg.Knowledge.Dir), zap.Error(err))
		} else {
			index := knowledge.NewIndex(chunks)
			opts = append(opts, classifier.WithKnowledge(index))
			assistantOpts = append(assistantOpts, assistant.WithKnowledge(index, cfg.Knowledge.TopK))
		}
	}
	if facts != nil {
		assistantOpts = append(assistantOpts, assistant.WithRecall(facts, 0))
	}
	adapter := classifier.NewAdapter(model, catalog, logger, opts...)
	helper := assistant.New(llm.NewChatModel(client, cfg.LLM.URL, cfg.LLM.Model, ""), transcript, members, logger, assistantOpts...)

	var (
		snapshots journey.Snapshotter
		sessions  auth.Sessions = auth.NewMemorySessions()
	)
	if cfg.Redis.Addr != "" {
		rdb := redisdb.NewClient(cfg)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unavailable at %s: %w", cfg.Redis.Addr, err)
		}
		cleanup.add(func() { _ = rdb.Close() })
		snapshots = redisdb.NewStateStore(rdb, 0, logger)
		sessions = auth.NewRedisSessions(rdb)
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	facade := journey.New(journey.Deps{
		Catalog:    catalog,
		Profiles:   members,
		History:    transcript,
		Classifier: adapter,
		Snapshots:  snapshots,
		Logger:     logger,
	}, journey.Options{
		SwitchThreshold: cfg.Journey.SwitchThreshold,
		RefreshTimeout:  cfg.Journey.RefreshTimeout(),
	})

	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		cleanup.add(func() { _ = pub.Close() })
		facade.AddListener(pub.Listener())
		logger.Info("Publishing journey events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	if cfg.Churn.DSN != "" {
		pool, err := churn.Connect(ctx, cfg.Churn.DSN)
		if err != nil {
			return err
		}
		cleanup.add(pool.Close)
		rec := churn.NewRecorder(pool, logger)
		if err := rec.Migrate(ctx); err != nil {
			return err
		}
		facade.AddListener(rec.Listener())
	}
	hub := api.NewHub(logger)
	facade.AddListener(hub.Listener())
	cleanup.add(hub.Close)
	// facade.Close flushes pending events, so it runs before the listeners close
	cleanup.add(facade.Close)

	if cfg.Journey.SeedSignals {
		if err := facade.Seed(ctx, journey.DefaultSeedSignals(time.Now())); err != nil {
			return fmt.Errorf("failed to seed signals: %w", err)
		}
	}

	if cfg.Scheduler.Enabled {
		sweeper := scheduler.New(facade, members, cfg.Scheduler.Parallelism, logger)
		if err := sweeper.Start(llm.WithPriority(ctx, llm.PrioritySweep), cfg.Scheduler.Spec); err != nil {
			return err
		}
		cleanup.add(sweeper.Stop)
	}

	if !devMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(api.Deps{
		Config:     cfg,
		Facade:     facade,
		Members:    members,
		Transcript: transcript,
		Assistant:  helper,
		Sessions:   sessions,
		Hub:        hub,
		Logger:     logger,
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr), zap.String("subpath", cfg.Server.Subpath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// buildTranscript picks the conversation store named by journey.history_source.
// The fact store is nil unless long-term memory backs the transcript.
func buildTranscript(ctx context.Context, cfg *config.Config, logger *zap.Logger) (api.Transcript, *memory.FactStore, error) {
	if cfg.Journey.HistorySource != "memory" {
		return chat.NewStore(db.DB), nil, nil
	}
	if cfg.Qdrant.URL == "" || cfg.Embedding.URL == "" {
		return nil, nil, errors.New("history_source memory needs qdrant.url and embedding.url")
	}
	facts, err := memory.NewFactStore(ctx, cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Qdrant.APIKey,
		memory.NewEmbedder(cfg.Embedding.URL, cfg.Embedding.Name), logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using long-term memory as conversation history", zap.String("collection", cfg.Qdrant.Collection))
	return memory.NewHistorySource(facts), facts, nil
}
