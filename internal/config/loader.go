package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// loadFile decodes the file at path over cfg. The format is picked from the
// extension: .toml, .yaml or .yml.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse toml config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv overlays values from environment variables. Unset or unparsable
// variables leave the current value untouched.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.MaxMessageSize = parseInt64Value(maxSize, c.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		c.RateLimit.Burst = parseIntValue(burst, c.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.RateLimit.RefillInterval = parseSeconds(interval, c.RateLimit.RefillInterval)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		c.DatabaseDSN = dsn
	}

	if v := os.Getenv("HISTORY_MAX"); v != "" {
		c.HistoryMax = parseIntValue(v, c.HistoryMax)
	}

	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		c.Token.Secret = v
	}
	if v := os.Getenv("TOKEN_KEY_PATH"); v != "" {
		c.Token.KeyPath = v
	}

	if v := os.Getenv("UPLOAD_MAX_SIZE"); v != "" {
		c.Upload.MaxSize = parseInt64Value(v, c.Upload.MaxSize)
	}

	if v := os.Getenv("STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Storage.S3Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.Storage.S3Region = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Storage.S3Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.Storage.S3AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Storage.S3SecretKey = v
	}

	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Events.URL = v
	}
	if v := os.Getenv("AMQP_EXCHANGE"); v != "" {
		c.Events.Exchange = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
