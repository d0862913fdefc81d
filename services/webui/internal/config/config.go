package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location inside the service container.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseDSN    string `yaml:"databaseDsn"`
	DefaultOwnerID string `yaml:"defaultOwnerId"`

	EmbeddingProvider   string `yaml:"embeddingProvider"`
	EmbeddingBaseURL    string `yaml:"embeddingBaseUrl"`
	EmbeddingAPIKey     string `yaml:"embeddingApiKey"`
	EmbeddingModel      string `yaml:"embeddingModel"`
	EmbeddingDimensions int    `yaml:"embeddingDimensions"`

	RedisAddr            string   `yaml:"redisAddr"`
	RedisPassword        string   `yaml:"redisPassword"`
	SearchRateLimit      int      `yaml:"searchRateLimit"`
	SearchRateWindowSecs int      `yaml:"searchRateWindowSeconds"`
	TrustedProxies       []string `yaml:"trustedProxies"`

	CoordinatorBaseURL        string `yaml:"coordinatorBaseUrl"`
	InternalJWTPrivateKeyPath string `yaml:"internalJwtPrivateKeyPath"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("WEBUI_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("DEFAULT_OWNER_ID"); v != "" {
		cfg.DefaultOwnerID = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.EmbeddingBaseURL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("WEBUI_SEARCH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SearchRateLimit = n
		}
	}
	if v := os.Getenv("COORDINATOR_BASE_URL"); v != "" {
		cfg.CoordinatorBaseURL = v
	}
	if v := os.Getenv("TABBACKLOG_INTERNAL_JWT_PRIVATE_KEY_PATH"); v != "" {
		cfg.InternalJWTPrivateKeyPath = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return errors.New("config: databaseDsn is required")
	}
	if _, err := uuid.Parse(cfg.DefaultOwnerID); err != nil {
		return fmt.Errorf("config: defaultOwnerId must be a UUID: %w", err)
	}
	if cfg.SearchRateLimit < 0 || cfg.SearchRateWindowSecs < 0 {
		return errors.New("config: search rate limit settings must be >= 0")
	}
	if cfg.SearchRateLimit > 0 && cfg.RedisAddr == "" {
		return errors.New("config: searchRateLimit requires redisAddr")
	}
	if cfg.CoordinatorBaseURL != "" && strings.TrimSpace(cfg.InternalJWTPrivateKeyPath) == "" {
		return errors.New("config: pipeline proxy requires TABBACKLOG_INTERNAL_JWT_PRIVATE_KEY_PATH")
	}
	return nil
}
