package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"tabbacklog/internal/ratelimit"
	"tabbacklog/internal/servicetoken"
	"tabbacklog/internal/util"
	"tabbacklog/pkg/ai"
	"tabbacklog/pkg/store"
	"tabbacklog/services/webui/internal/app"
	"tabbacklog/services/webui/internal/config"
	"tabbacklog/services/webui/internal/server"
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

	var embedder ai.Embedder
	if cfg.EmbeddingModel != "" {
		embedder, err = ai.NewEmbedder(cfg.EmbeddingProvider, cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			log.Fatalf("failed to init embedder: %v", err)
		}
	}

	appCore, err := app.New(app.Config{Store: st, Embedder: embedder})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.SearchRateLimit > 0 {
		window := time.Duration(cfg.SearchRateWindowSecs) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "tabbacklog:webui:search", cfg.SearchRateLimit, window)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var pipeline *server.PipelineProxy
	if cfg.CoordinatorBaseURL != "" {
		signer, err := servicetoken.NewSigner("webui", cfg.InternalJWTPrivateKeyPath, 5*time.Minute)
		if err != nil {
			log.Fatalf("failed to init token signer: %v", err)
		}
		pipeline = server.NewPipelineProxy(cfg.CoordinatorBaseURL, signer)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		OwnerID:        cfg.DefaultOwnerID,
		SearchLimiter:  limiter,
		TrustedProxies: trusted,
		Pipeline:       pipeline,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("webui server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
