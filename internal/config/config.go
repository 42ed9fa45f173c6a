// Package config loads labstock settings from an optional YAML file and
// LABSTOCK_* environment variables. The result is built once at startup and
// passed down; nothing here is read again later.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"labstock/internal/blob"
)

// EnvPrefix is prepended to every environment override, e.g.
// LABSTOCK_STORAGE_DRIVER or LABSTOCK_BLOB_S3_BUCKET.
const EnvPrefix = "LABSTOCK"

// Config is the complete runtime configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // memory|sqlite|postgres
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// BlobConfig selects where reagent attachments are kept.
type BlobConfig struct {
	Driver string        `mapstructure:"driver"` // fs|s3|memory
	FSRoot string        `mapstructure:"fs_root"`
	S3     blob.S3Config `mapstructure:"s3"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug|info|warn|error
	Format string `mapstructure:"format"` // console|json
	// File enables rotated file output in addition to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig configures operation metrics export.
type MetricsConfig struct {
	ExpvarName string `mapstructure:"expvar_name"`
	// Textfile receives the Prometheus registry when a command finishes.
	Textfile string `mapstructure:"textfile"`
}

var defaults = map[string]any{
	"storage.driver":            "sqlite",
	"storage.sqlite_path":       "labstock.db",
	"storage.postgres_dsn":      "postgres://localhost/labstock?sslmode=disable",
	"blob.driver":               "fs",
	"blob.fs_root":              "./blobdata",
	"blob.s3.region":            "us-east-1",
	"blob.s3.bucket":            "",
	"blob.s3.endpoint":          "",
	"blob.s3.access_key_id":     "",
	"blob.s3.secret_access_key": "",
	"blob.s3.session_token":     "",
	"blob.s3.path_style":        false,
	"log.level":                 "info",
	"log.format":                "console",
	"log.file":                  "",
	"log.max_size_mb":           10,
	"log.max_backups":           3,
	"log.max_age_days":          28,
	"metrics.expvar_name":       "labstock",
	"metrics.textfile":          "",
}

// Load reads configuration. An explicit path must exist; with an empty path a
// labstock.yaml in the working directory is used when present.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("labstock")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects unknown drivers and levels.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory:
	default:
		return fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver)
	}
	if blob.Driver(c.Blob.Driver) == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return errors.New("blob.s3.bucket: required for the s3 driver")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}
