package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LLM_MODEL", "llama3.1:8b")
	t.Setenv("ENRICH_MAX_RETRIES", "5")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "8092"
logLevel: "info"
llmProvider: "ollama"
llmBaseUrl: "http://localhost:11434"
llmModel: "qwen2.5:7b"
maxRetries: 3
internalJwtPublicKeyPath: "secrets/internal-jwt/public.pem"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LLMModel != "llama3.1:8b" {
		t.Fatalf("llmModel = %q, want env override", cfg.LLMModel)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("maxRetries = %d, want 5", cfg.MaxRetries)
	}
}

func TestValidateConfigRejectsMissingModel(t *testing.T) {
	cfg := FileConfig{Port: "8092", InternalJWTPublicKeyPath: "secrets/internal-jwt/public.pem"}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for missing llmModel")
	}
}

func TestValidateConfigRejectsOpenAIWithoutKey(t *testing.T) {
	cfg := FileConfig{
		Port:                     "8092",
		LLMProvider:              "openai-compat",
		LLMModel:                 "gpt-4o-mini",
		InternalJWTPublicKeyPath: "secrets/internal-jwt/public.pem",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for openai-compat without api key")
	}
}
