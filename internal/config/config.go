// Package config provides the runtime defaults, file and environment
// overlays, and validation for the chat server.
package config

import (
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `toml:"burst" yaml:"burst"`
	RefillInterval time.Duration `toml:"refill_interval" yaml:"refill_interval"`
}

// TokenConfig controls bearer token signing and lifetimes.
//
// When KeyPath points at a PEM encoded RSA private key tokens are signed
// with RS256, otherwise Secret is used with HS256.
type TokenConfig struct {
	Secret   string        `toml:"secret" yaml:"secret"`
	KeyPath  string        `toml:"key_path" yaml:"key_path"`
	TTL      time.Duration `toml:"ttl" yaml:"ttl"`
	ShortTTL time.Duration `toml:"short_ttl" yaml:"short_ttl"`
}

// UploadConfig bounds the chunked file transfer protocol.
type UploadConfig struct {
	SliceMin int64 `toml:"slice_min" yaml:"slice_min"`
	SliceMax int64 `toml:"slice_max" yaml:"slice_max"`
	MaxSize  int64 `toml:"max_size" yaml:"max_size"`
}

// StorageConfig selects where completed uploads are written. A non-empty
// S3Bucket selects the S3 backend, otherwise files go to Dir.
type StorageConfig struct {
	Dir         string `toml:"dir" yaml:"dir"`
	S3Bucket    string `toml:"s3_bucket" yaml:"s3_bucket"`
	S3Region    string `toml:"s3_region" yaml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint" yaml:"s3_endpoint"`
	S3AccessKey string `toml:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key" yaml:"s3_secret_key"`
	S3Prefix    string `toml:"s3_prefix" yaml:"s3_prefix"`
	S3PathStyle bool   `toml:"s3_path_style" yaml:"s3_path_style"`
}

// EventsConfig configures the AMQP event export. An empty URL disables it.
type EventsConfig struct {
	URL           string        `toml:"url" yaml:"url"`
	Exchange      string        `toml:"exchange" yaml:"exchange"`
	RetryAttempts int           `toml:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `toml:"retry_delay" yaml:"retry_delay"`
}

// LogConfig selects the log level and output format ("json" or "text").
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `toml:"port" yaml:"port"`
	AllowedOrigins  []string        `toml:"allowed_origins" yaml:"allowed_origins"`
	MaxMessageSize  int64           `toml:"max_message_size" yaml:"max_message_size"`
	RateLimit       RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	DatabaseDSN     string          `toml:"database_dsn" yaml:"database_dsn"`
	HistoryMax      int             `toml:"history_max" yaml:"history_max"`
	ShutdownTimeout time.Duration   `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	Token           TokenConfig     `toml:"token" yaml:"token"`
	Upload          UploadConfig    `toml:"upload" yaml:"upload"`
	Storage         StorageConfig   `toml:"storage" yaml:"storage"`
	Events          EventsConfig    `toml:"events" yaml:"events"`
	Log             LogConfig       `toml:"log" yaml:"log"`
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 2 << 20
	defaultBurst           = 5
	defaultRefillInterval  = time.Second
	defaultDatabaseDSN     = "data/db/chat.sqlite"
	defaultHistoryMax      = 500
	defaultShutdownTimeout = 10 * time.Second
	defaultTokenSecret     = "secretKey"
	defaultTokenTTL        = 7 * 24 * time.Hour
	defaultShortTokenTTL   = 5 * time.Minute
	defaultSliceMin        = 100000
	defaultSliceMax        = 1000000
	defaultUploadMaxSize   = 512 << 20
	defaultStorageDir      = "data/share"
	defaultS3Region        = "us-east-1"
	defaultExchange        = "chat.events"
	defaultRetryAttempts   = 5
	defaultRetryDelay      = time.Second
)

// Default returns a Config populated with development defaults.
// NOTE: the token secret is insecure and must be overridden in production.
func Default() *Config {
	return &Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		DatabaseDSN:     defaultDatabaseDSN,
		HistoryMax:      defaultHistoryMax,
		ShutdownTimeout: defaultShutdownTimeout,
		Token: TokenConfig{
			Secret:   defaultTokenSecret,
			TTL:      defaultTokenTTL,
			ShortTTL: defaultShortTokenTTL,
		},
		Upload: UploadConfig{
			SliceMin: defaultSliceMin,
			SliceMax: defaultSliceMax,
			MaxSize:  defaultUploadMaxSize,
		},
		Storage: StorageConfig{
			Dir:      defaultStorageDir,
			S3Region: defaultS3Region,
		},
		Events: EventsConfig{
			Exchange:      defaultExchange,
			RetryAttempts: defaultRetryAttempts,
			RetryDelay:    defaultRetryDelay,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config by applying defaults, then overlaying values from an
// optional TOML or YAML file and finally from environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize replaces missing or invalid values with defaults.
func (c *Config) Sanitize() {
	if c.Port == "" {
		c.Port = defaultPort
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultBurst
	}

	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}

	if c.DatabaseDSN == "" {
		c.DatabaseDSN = defaultDatabaseDSN
	}

	if c.HistoryMax <= 0 {
		c.HistoryMax = defaultHistoryMax
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	if c.Token.Secret == "" && c.Token.KeyPath == "" {
		c.Token.Secret = defaultTokenSecret
	}
	if c.Token.TTL <= 0 {
		c.Token.TTL = defaultTokenTTL
	}
	if c.Token.ShortTTL <= 0 {
		c.Token.ShortTTL = defaultShortTokenTTL
	}

	if c.Upload.SliceMin <= 0 {
		c.Upload.SliceMin = defaultSliceMin
	}
	if c.Upload.SliceMax < c.Upload.SliceMin {
		c.Upload.SliceMax = max(int64(defaultSliceMax), c.Upload.SliceMin)
	}
	if c.Upload.MaxSize <= 0 {
		c.Upload.MaxSize = defaultUploadMaxSize
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = defaultStorageDir
	}
	if c.Storage.S3Region == "" {
		c.Storage.S3Region = defaultS3Region
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = defaultExchange
	}
	if c.Events.RetryAttempts <= 0 {
		c.Events.RetryAttempts = defaultRetryAttempts
	}
	if c.Events.RetryDelay <= 0 {
		c.Events.RetryDelay = defaultRetryDelay
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
}
