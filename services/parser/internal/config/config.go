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
	Port                      string `yaml:"port"`
	LogLevel                  string `yaml:"logLevel"`
	FetchTimeoutSeconds       int    `yaml:"fetchTimeoutSeconds"`
	InternalJWTPublicKeyPath  string `yaml:"internalJwtPublicKeyPath"`
	SnapshotsEnabled          bool   `yaml:"snapshotsEnabled"`
	MinioEndpoint             string `yaml:"minioEndpoint"`
	MinioAccessKey            string `yaml:"minioAccessKey"`
	MinioSecretKey            string `yaml:"minioSecretKey"`
	MinioBucket               string `yaml:"minioBucket"`
	MinioUseSSL               bool   `yaml:"minioUseSSL"`
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
	if v := os.Getenv("PARSER_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("PARSER_FETCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchTimeoutSeconds = n
		}
	}
	if v := os.Getenv("TABBACKLOG_INTERNAL_JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.InternalJWTPublicKeyPath = v
	}
	if v := os.Getenv("PARSER_SNAPSHOTS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.SnapshotsEnabled = enabled
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
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
	if cfg.FetchTimeoutSeconds < 0 {
		return errors.New("config: fetchTimeoutSeconds must be >= 0")
	}
	if strings.TrimSpace(cfg.InternalJWTPublicKeyPath) == "" {
		return errors.New("config: internal service auth requires TABBACKLOG_INTERNAL_JWT_PUBLIC_KEY_PATH")
	}
	if cfg.SnapshotsEnabled {
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: snapshots require minioEndpoint, minioAccessKey, minioSecretKey, minioBucket")
		}
	}
	return nil
}
