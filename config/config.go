package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Satellite  SatelliteConfig  `yaml:"satellite"`
	API        APIConfig        `yaml:"api"`
	Subscriber SubscriberConfig `yaml:"subscriber"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SatelliteConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type APIConfig struct {
	Network   string          `yaml:"network"`
	URL       string          `yaml:"url"`
	Timeout   time.Duration   `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles outgoing API requests. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type SubscriberConfig struct {
	Path         string        `yaml:"path"`
	DefaultRetry time.Duration `yaml:"default_retry"`
	MaxLineBytes int           `yaml:"max_line_bytes"`
}

type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RawBuffer     int           `yaml:"raw_buffer"`
	BatchBuffer   int           `yaml:"batch_buffer"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Prefix        string        `yaml:"prefix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
	ReportInterval time.Duration    `yaml:"report_interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Satellite: SatelliteConfig{Name: "satellite", Version: "1.0.0"},
		API: APIConfig{
			Network:   NetworkMainnet,
			Timeout:   30 * time.Second,
			UserAgent: "satellite-cli/1.0",
		},
		Subscriber: SubscriberConfig{
			Path:         "/subscribe/transmissions",
			DefaultRetry: 3 * time.Second,
			MaxLineBytes: 1 << 20,
		},
		Archive: ArchiveConfig{
			RawBuffer:     256,
			BatchBuffer:   16,
			BatchSize:     100,
			BatchTimeout:  30 * time.Second,
			FlushInterval: time.Minute,
			Prefix:        "transmissions",
		},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{Namespace: "Satellite"},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
			Output: "stderr",
		},
	}
}

// LoadConfig reads a YAML file on top of Default and applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv(apiURLEnvVar); v != "" {
		config.API.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv(networkEnvVar); v != "" {
		config.API.Network = strings.TrimSpace(v)
	}

	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
}

func validateConfig(cfg *Config) error {
	if _, err := NormalizeNetwork(cfg.API.Network); err != nil {
		return err
	}

	if cfg.API.Timeout <= 0 {
		return errors.New("api.timeout must be greater than 0")
	}

	if cfg.API.RateLimit.RequestsPerSecond < 0 {
		return errors.New("api.rate_limit.requests_per_second must not be negative")
	}
	if cfg.API.RateLimit.RequestsPerSecond > 0 && cfg.API.RateLimit.BurstSize <= 0 {
		return errors.New("api.rate_limit.burst_size must be greater than 0 when rate limiting is enabled")
	}

	if !strings.HasPrefix(cfg.Subscriber.Path, "/") {
		return fmt.Errorf("subscriber.path '%s' must start with '/'", cfg.Subscriber.Path)
	}
	if cfg.Subscriber.DefaultRetry <= 0 {
		return errors.New("subscriber.default_retry must be greater than 0")
	}
	if cfg.Subscriber.MaxLineBytes <= 0 {
		return errors.New("subscriber.max_line_bytes must be greater than 0")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.RawBuffer <= 0 {
			return errors.New("archive.raw_buffer must be greater than 0")
		}
		if cfg.Archive.BatchBuffer <= 0 {
			return errors.New("archive.batch_buffer must be greater than 0")
		}
		if cfg.Archive.BatchSize <= 0 {
			return errors.New("archive.batch_size must be greater than 0")
		}
		if cfg.Archive.BatchTimeout <= 0 {
			return errors.New("archive.batch_timeout must be greater than 0")
		}
		if cfg.Archive.FlushInterval <= 0 {
			return errors.New("archive.flush_interval must be greater than 0")
		}
		if !cfg.Storage.S3.Enabled {
			return errors.New("archive requires storage.s3 to be enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return errors.New("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
