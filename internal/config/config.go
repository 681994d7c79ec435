// Package config handles loading and parsing of MediaStore configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. The environment names match the deployment
// conventions of the surrounding platform (MINIO_*, COLLECTION_API_URL, ...).
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for MediaStore.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Collection CollectionConfig `yaml:"collection"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Bus        BusConfig        `yaml:"bus"`
	Auth       AuthConfig       `yaml:"auth"`
	Upload     UploadConfig     `yaml:"upload"`
	Health     HealthConfig     `yaml:"health"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
	// PublicBaseURL is the externally visible base URL of this gateway,
	// used to compute the download URL carried in file_uploaded events.
	PublicBaseURL string `yaml:"public_base_url" envconfig:"STORAGE_API_URL"`
	// ShutdownTimeout is the graceful shutdown timeout in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// StorageConfig holds object store settings.
type StorageConfig struct {
	// Backend is the object store backend ("s3" or "local").
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	// Endpoint is the S3-compatible endpoint URL (e.g., a MinIO host).
	Endpoint  string `yaml:"endpoint" envconfig:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" envconfig:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket" envconfig:"MINIO_BUCKET"`
	Region    string `yaml:"region" envconfig:"MINIO_REGION"`
	// PathStyle forces path-style addressing, required by most MinIO setups.
	PathStyle bool `yaml:"path_style" envconfig:"MINIO_PATH_STYLE"`
	// LocalRoot is the base directory for the local filesystem backend.
	LocalRoot string `yaml:"local_root" envconfig:"STORAGE_LOCAL_ROOT"`
}

// CollectionConfig holds collection (metadata) service settings.
type CollectionConfig struct {
	// BaseURL is the base URL of the external collection API that owns
	// mediafile records and upload tickets.
	BaseURL string `yaml:"base_url" envconfig:"COLLECTION_API_URL"`
}

// JobsConfig holds job-tracking service settings.
type JobsConfig struct {
	// BaseURL is the base URL of the job API. Empty disables job tracking.
	BaseURL string `yaml:"base_url" envconfig:"JOB_API_BASE_URL"`
}

// BusConfig holds message bus settings.
type BusConfig struct {
	// Brokers is the list of Kafka broker addresses. Empty disables the bus.
	Brokers []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	// Topic is the topic events are published to and consumed from.
	Topic string `yaml:"topic" envconfig:"KAFKA_TOPIC"`
	// Group is the consumer group id for inbound events.
	Group string `yaml:"group" envconfig:"KAFKA_GROUP"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// StaticToken is the fallback bearer token forwarded to the collection
	// and job services when the inbound request carries no Authorization.
	StaticToken string `yaml:"static_token" envconfig:"STATIC_JWT"`
}

// UploadConfig holds reconciliation engine settings.
type UploadConfig struct {
	// CheckDuplicates toggles fingerprint duplicate detection. On by default;
	// disabling it turns every upload into a plain write.
	CheckDuplicates *bool `yaml:"check_duplicates" envconfig:"CHECK_DUPLICATES"`
}

// HealthConfig holds health check settings.
type HealthConfig struct {
	// ProbeExternal toggles probing of the object store and collection
	// service from the health endpoint.
	ProbeExternal bool `yaml:"probe_external" envconfig:"HEALTH_CHECK_EXTERNAL"`
}

// Load reads the optional YAML configuration file at path, applies defaults,
// and then overlays environment variables. A missing config file is not an
// error; the environment alone is a complete configuration source.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case os.IsNotExist(err):
			// Fall through to env-only configuration.
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// CheckDuplicates reports whether duplicate detection is enabled.
func (c *Config) CheckDuplicates() bool {
	return c.Upload.CheckDuplicates == nil || *c.Upload.CheckDuplicates
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend:   "s3",
			Region:    "us-east-1",
			PathStyle: true,
			LocalRoot: "./data/objects",
		},
		Bus: BusConfig{
			Topic: "mediastore",
			Group: "mediastore-gateway",
		},
	}
}

// applyDefaults fills in any fields still at their zero value after YAML
// unmarshaling and env processing.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "s3"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.LocalRoot == "" {
		cfg.Storage.LocalRoot = "./data/objects"
	}
	if cfg.Bus.Topic == "" {
		cfg.Bus.Topic = "mediastore"
	}
	if cfg.Bus.Group == "" {
		cfg.Bus.Group = "mediastore-gateway"
	}
}
