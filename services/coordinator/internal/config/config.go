package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location inside the service container.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseDSN string `yaml:"databaseDsn"`

	ParserBaseURL      string `yaml:"parserBaseUrl"`
	EnrichBaseURL      string `yaml:"enrichBaseUrl"`
	ParserTimeoutSecs  int    `yaml:"parserTimeoutSeconds"`
	EnrichTimeoutSecs  int    `yaml:"enrichTimeoutSeconds"`
	BatchSize          int    `yaml:"batchSize"`
	FetchConcurrency   int    `yaml:"fetchConcurrency"`
	EnrichConcurrency  int    `yaml:"enrichConcurrency"`
	StepTimeoutSeconds int    `yaml:"stepTimeoutSeconds"`

	InternalJWTPrivateKeyPath string `yaml:"internalJwtPrivateKeyPath"`
	InternalJWTPublicKeyPath  string `yaml:"internalJwtPublicKeyPath"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	QueueStream   string `yaml:"queueStream"`
	QueueGroup    string `yaml:"queueGroup"`
	QueueWorkers  int    `yaml:"queueWorkers"`

	EmbeddingProvider   string `yaml:"embeddingProvider"`
	EmbeddingBaseURL    string `yaml:"embeddingBaseUrl"`
	EmbeddingAPIKey     string `yaml:"embeddingApiKey"`
	EmbeddingModel      string `yaml:"embeddingModel"`
	EmbeddingDimensions int    `yaml:"embeddingDimensions"`

	AMQPURL      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`
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
	if v := os.Getenv("COORDINATOR_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("PARSER_BASE_URL"); v != "" {
		cfg.ParserBaseURL = v
	}
	if v := os.Getenv("ENRICH_BASE_URL"); v != "" {
		cfg.EnrichBaseURL = v
	}
	if v := os.Getenv("COORDINATOR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("COORDINATOR_FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchConcurrency = n
		}
	}
	if v := os.Getenv("COORDINATOR_ENRICH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EnrichConcurrency = n
		}
	}
	if v := os.Getenv("TABBACKLOG_INTERNAL_JWT_PRIVATE_KEY_PATH"); v != "" {
		cfg.InternalJWTPrivateKeyPath = v
	}
	if v := os.Getenv("TABBACKLOG_INTERNAL_JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.InternalJWTPublicKeyPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
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
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
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
	if strings.TrimSpace(cfg.ParserBaseURL) == "" || strings.TrimSpace(cfg.EnrichBaseURL) == "" {
		return errors.New("config: parserBaseUrl and enrichBaseUrl are required")
	}
	if strings.TrimSpace(cfg.InternalJWTPrivateKeyPath) == "" {
		return errors.New("config: internal service auth requires TABBACKLOG_INTERNAL_JWT_PRIVATE_KEY_PATH")
	}
	if strings.TrimSpace(cfg.InternalJWTPublicKeyPath) == "" {
		return errors.New("config: internal service auth requires TABBACKLOG_INTERNAL_JWT_PUBLIC_KEY_PATH")
	}
	if cfg.BatchSize < 0 || cfg.FetchConcurrency < 0 || cfg.EnrichConcurrency < 0 {
		return errors.New("config: batchSize and concurrency settings must be >= 0")
	}
	if cfg.RedisAddr != "" && strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return errors.New("config: embedding queue requires embeddingModel")
	}
	return nil
}
