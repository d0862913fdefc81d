package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"tabbacklog/internal/util"
	"tabbacklog/pkg/storage"
	"tabbacklog/services/parser/internal/app"
	"tabbacklog/services/parser/internal/config"
	"tabbacklog/services/parser/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var snapshots storage.SnapshotStore = storage.NopSnapshotStore{}
	if cfg.SnapshotsEnabled {
		snapshots, err = storage.NewMinioSnapshotStore(
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
		)
		if err != nil {
			log.Fatalf("failed to init snapshot store: %v", err)
		}
	}

	appCore := app.New(app.Config{
		FetchTimeout: time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		Snapshots:    snapshots,
	})

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
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("parser server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
