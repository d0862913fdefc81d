package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"tabbacklog/internal/servicetoken"
	"tabbacklog/internal/util"
	"tabbacklog/pkg/ai"
	"tabbacklog/pkg/events"
	"tabbacklog/pkg/queue"
	"tabbacklog/pkg/store"
	"tabbacklog/services/coordinator/internal/app"
	"tabbacklog/services/coordinator/internal/config"
	"tabbacklog/services/coordinator/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	signer, err := servicetoken.NewSigner("coordinator", cfg.InternalJWTPrivateKeyPath, 5*time.Minute)
	if err != nil {
		log.Fatalf("failed to init token signer: %v", err)
	}

	parserClient := app.NewHTTPParserClient(cfg.ParserBaseURL, signer, time.Duration(cfg.ParserTimeoutSecs)*time.Second)
	enrichClient := app.NewHTTPEnrichClient(cfg.EnrichBaseURL, signer, time.Duration(cfg.EnrichTimeoutSecs)*time.Second)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		publisher, err = events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer publisher.Close()
	}

	var enqueuer app.EmbeddingEnqueuer
	if cfg.RedisAddr != "" {
		jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.QueueStream,
			Group:    cfg.QueueGroup,
		})
		if err != nil {
			log.Fatalf("failed to init job queue: %v", err)
		}
		enqueuer = app.NewQueueEnqueuer(jobQueue)

		embedder, err := ai.NewEmbedder(cfg.EmbeddingProvider, cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			log.Fatalf("failed to init embedder: %v", err)
		}
		worker := app.NewEmbeddingWorker(st, embedder, cfg.EmbeddingModel)
		workers := cfg.QueueWorkers
		if workers <= 0 {
			workers = 2
		}
		jobQueue.Start(context.Background(), workers, worker.Handle)
		slog.Info("embedding worker started", "workers", workers, "model", cfg.EmbeddingModel)
	}

	appCore, err := app.New(app.Config{
		Store:             st,
		Parser:            parserClient,
		Enricher:          enrichClient,
		Events:            publisher,
		Embeddings:        enqueuer,
		BatchSize:         cfg.BatchSize,
		FetchConcurrency:  cfg.FetchConcurrency,
		EnrichConcurrency: cfg.EnrichConcurrency,
		StepTimeout:       time.Duration(cfg.StepTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		InternalJWTPublicKeyPath: cfg.InternalJWTPublicKeyPath,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("coordinator server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
