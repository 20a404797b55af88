package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/agent"
	"github.com/xaenox/agent-worker/internal/delivery"
	"github.com/xaenox/agent-worker/internal/llm"
	"github.com/xaenox/agent-worker/internal/observability"
	"github.com/xaenox/agent-worker/internal/policy"
	"github.com/xaenox/agent-worker/internal/prompt"
	"github.com/xaenox/agent-worker/internal/storage"
	"github.com/xaenox/agent-worker/internal/tools"
	"github.com/xaenox/agent-worker/pkg/config"
)

// app holds the wired components shared by serve and worker.
type app struct {
	runner   *agent.Runner
	redis    *redis.Client
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	closers  []func() error
	logger   *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(reg)
	a.gatherer = reg

	opts := storage.Options{
		MaxMessages:  cfg.Agent.HistoryLimit,
		TTL:          cfg.Agent.ShortTermTTL,
		ProcessedTTL: cfg.Agent.ProcessedTTL,
	}

	var memory *storage.MemoryStorage
	inMemory := func() *storage.MemoryStorage {
		if memory == nil {
			memory = storage.NewMemoryStorage(opts)
		}
		return memory
	}

	// Short-term window and job markers
	var shortTerm storage.ShortTermStore
	if cfg.Redis.UseInMemory {
		logger.Info("Using in-memory short-term storage")
		shortTerm = inMemory()
	} else {
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			Addr:     cfg.Redis.Addr(),
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		})
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		shortTerm = storage.NewRedisShortTerm(client, opts, logger.Named("redis"))
	}

	// Durable history and tenant policy
	var longTerm storage.LongTermStore
	var resolver policy.Resolver
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory long-term storage")
		longTerm = inMemory()
		resolver = policy.NewStaticResolver()
	} else {
		logger.Info("Using PostgreSQL storage")
		pg, err := storage.NewPostgresStorage(ctx, cfg.Database.DSN(), logger.Named("postgres"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		longTerm = pg
		resolver = policy.NewPostgresResolver(pg.DB(), logger.Named("policy"))
	}

	backend := delivery.NewBackendClient(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Backend.Timeout, logger.Named("backend"))

	var sender delivery.Sender = backend
	if cfg.Delivery.Provider == config.ProviderTelegram {
		tg, err := delivery.NewTelegramSender(cfg.Delivery.TelegramToken, cfg.Delivery.HandoffChatID, cfg.Delivery.TelegramMarkup, cfg.Delivery.Timeout, logger.Named("telegram"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("error creating telegram sender: %w", err)
		}
		sender = tg
	}

	registry := tools.NewRegistry(logger.Named("tools"))
	registry.SetObserver(a.metrics)
	tools.RegisterBuiltins(registry, backend, sender)

	model := llm.NewOpenAIClient(llm.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     cfg.OpenAI.Timeout,
	}, logger.Named("llm"))

	loop := agent.NewLoop(model, registry, longTerm, cfg.Agent.DefaultMaxIterations, logger.Named("loop"))
	loop.SetObserver(a.metrics)

	a.runner = agent.NewRunner(agent.Dependencies{
		ShortTerm:  shortTerm,
		LongTerm:   longTerm,
		Policies:   resolver,
		Assembler:  prompt.NewAssembler(cfg.Agent.Persona, cfg.Agent.HistoryLimit),
		Loop:       loop,
		Sender:     sender,
		Summarizer: llm.NewModelSummarizer(model, logger.Named("summary")),
	}, agent.RunnerOptions{
		HistoryLimit:   cfg.Agent.HistoryLimit,
		SummaryEvery:   cfg.Agent.SummaryEvery,
		SummaryTimeout: cfg.Agent.SummaryTimeout,
	}, logger.Named("runner"))
	a.runner.SetObserver(a.metrics)

	logger.Info("Agent initialized",
		zap.Strings("tools", registry.Names()),
		zap.String("delivery", cfg.Delivery.Provider))
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
