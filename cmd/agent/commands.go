package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/delivery"
	"github.com/xaenox/agent-worker/internal/models"
	"github.com/xaenox/agent-worker/internal/queue"
	"github.com/xaenox/agent-worker/internal/retry"
	"github.com/xaenox/agent-worker/internal/server"
	"github.com/xaenox/agent-worker/internal/tools"
	"github.com/xaenox/agent-worker/pkg/config"
)

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /process, GET /health and GET /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func buildWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume jobs from the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(*configPath)
		},
	}
}

func buildToolsCmd() *cobra.Command {
	var features string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool schemas offered for a feature set",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := models.DefaultFeatures()
			if features != "" {
				if err := json.Unmarshal([]byte(features), &fs); err != nil {
					return fmt.Errorf("invalid --features: %w", err)
				}
			}

			registry := tools.NewRegistry(zap.NewNop())
			tools.RegisterBuiltins(registry, delivery.NewBackendClient("http://localhost", "", 0, zap.NewNop()), nil)

			out, err := json.MarshalIndent(registry.AvailableTools(fs), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&features, "features", "", `Feature set as JSON, e.g. {"ask_for_pix":true}`)
	return cmd
}

func loadConfig(path string) (*config.Config, *zap.Logger) {
	logger, _ := zap.NewProduction()

	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", path))
	}
	if cfg.Log.Development {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}
	return cfg, logger
}

func runServe(configPath string) error {
	cfg, logger := loadConfig(configPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, a.runner, a.gatherer, a.metrics, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	a.runner.Wait()
	return nil
}

func runWorker(configPath string) error {
	cfg, logger := loadConfig(configPath)
	defer logger.Sync()

	if cfg.Redis.UseInMemory {
		logger.Fatal("The worker needs a Redis queue; disable redis.use_in_memory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	consumer := queue.NewConsumer(a.redis, a.runner, queue.Config{
		Key:           cfg.Queue.Key,
		DeadLetterKey: cfg.Queue.DeadLetterKey,
		Concurrency:   cfg.Queue.Concurrency,
		PollTimeout:   cfg.Queue.PollTimeout,
		JobTimeout:    cfg.Queue.JobTimeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.Queue.RetryAttempts,
			Initial:     cfg.Queue.RetryInitial,
			Max:         cfg.Queue.RetryMax,
			Factor:      cfg.Queue.RetryFactor,
			Jitter:      cfg.Queue.RetryJitter,
		},
	}, logger.Named("queue"))

	err = consumer.Run(ctx)

	waited := make(chan struct{})
	go func() {
		a.runner.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(cfg.Agent.SummaryTimeout):
		logger.Warn("Gave up waiting for summary updates")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
