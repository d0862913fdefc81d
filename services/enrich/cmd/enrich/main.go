package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"tabbacklog/internal/util"
	"tabbacklog/pkg/ai"
	"tabbacklog/services/enrich/internal/app"
	"tabbacklog/services/enrich/internal/config"
	"tabbacklog/services/enrich/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	generator, err := ai.NewTextGenerator(cfg.LLMProvider, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	if err != nil {
		log.Fatalf("failed to init text generator: %v", err)
	}

	appCore, err := app.New(app.Config{
		Generator:  generator,
		ModelName:  cfg.LLMModel,
		MaxRetries: cfg.MaxRetries,
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

	slog.Info("enrich server listening", "addr", addr, "model", cfg.LLMModel)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
