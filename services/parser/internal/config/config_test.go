package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PARSER_FETCH_TIMEOUT_SECONDS", "45")
	t.Setenv("PARSER_SNAPSHOTS_ENABLED", "false")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "8091"
logLevel: "info"
fetchTimeoutSeconds: 30
internalJwtPublicKeyPath: "secrets/internal-jwt/public.pem"
snapshotsEnabled: true
minioEndpoint: "localhost:9000"
minioAccessKey: "minio"
minioSecretKey: "minio123"
minioBucket: "tabbacklog-snapshots"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.FetchTimeoutSeconds != 45 {
		t.Fatalf("fetchTimeoutSeconds = %d, want 45", cfg.FetchTimeoutSeconds)
	}
	if cfg.SnapshotsEnabled {
		t.Fatalf("snapshotsEnabled = true, want env override to false")
	}
}

func TestValidateConfigRejectsMissingPort(t *testing.T) {
	cfg := FileConfig{InternalJWTPublicKeyPath: "secrets/internal-jwt/public.pem"}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for missing port")
	}
}

func TestValidateConfigRejectsSnapshotsWithoutMinio(t *testing.T) {
	cfg := FileConfig{
		Port:                     "8091",
		InternalJWTPublicKeyPath: "secrets/internal-jwt/public.pem",
		SnapshotsEnabled:         true,
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for snapshots without minio settings")
	}
}
