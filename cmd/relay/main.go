// Package main is the entry point for the relay worker: it consumes
// queued envelopes and relays them to tenant AI backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/relayworks/threadrelay/internal/backend"
	"github.com/relayworks/threadrelay/internal/chat"
	"github.com/relayworks/threadrelay/internal/config"
	"github.com/relayworks/threadrelay/internal/queue"
	"github.com/relayworks/threadrelay/internal/registry"
	"github.com/relayworks/threadrelay/internal/relay"
	"github.com/relayworks/threadrelay/pkg/logger"
	"github.com/relayworks/threadrelay/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting relay worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "threadrelay-worker", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	natsClient, err := queue.Connect(queue.ClientConfig{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	inboundQueue, err := queue.NewJetStreamQueue(ctx, natsClient, cfg.QueueAckWait, log)
	if err != nil {
		log.Error("failed to set up queue", zap.Error(err))
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	consumer := relay.NewConsumer(
		inboundQueue,
		registry.NewPostgresRegistry(pool, log),
		backend.NewClient(cfg.BackendTimeout),
		chat.NewSlackPoster(cfg.SlackBotToken),
		log,
		relay.Options{
			BatchSize:      cfg.QueueBatchSize,
			MaxConcurrency: cfg.RelayMaxConcurrency,
			PollInterval:   cfg.RelayPollInterval,
		},
	)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", zap.Error(err))
		os.Exit(1)
	}

	log.Info("relay worker stopped")
}
