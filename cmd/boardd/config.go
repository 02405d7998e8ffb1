package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the boardd configuration, read from a YAML file, BOARD_* environment
// variables and flags, in increasing order of precedence.
type Config struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`

	Uploads UploadsConfig `mapstructure:"uploads"`
	Files   FilesConfig   `mapstructure:"files"`
	Records RecordsConfig `mapstructure:"records"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type UploadsConfig struct {
	PublicPrefix  string        `mapstructure:"public_prefix"`
	MaxFileSize   int64         `mapstructure:"max_file_size"`
	MaxFiles      int           `mapstructure:"max_files"`
	AllowedKinds  []string      `mapstructure:"allowed_kinds"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepAge      time.Duration `mapstructure:"sweep_age"`
}

type FilesConfig struct {
	// Backend is one of local, s3, gcs.
	Backend string      `mapstructure:"backend"`
	Local   LocalConfig `mapstructure:"local"`
	S3      S3Config    `mapstructure:"s3"`
	GCS     GCSConfig   `mapstructure:"gcs"`
	Cache   CacheConfig `mapstructure:"cache"`
}

type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	RoleARN         string `mapstructure:"role_arn"`
	ExternalID      string `mapstructure:"external_id"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	MaxSize int64         `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RecordsConfig struct {
	// Backend is one of memory, postgres, mongo.
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("uploads.public_prefix", "/uploads")
	v.SetDefault("uploads.max_file_size", 10*1024*1024)
	v.SetDefault("uploads.max_files", 10)
	v.SetDefault("uploads.sweep_interval", time.Hour)
	v.SetDefault("uploads.sweep_age", 24*time.Hour)
	v.SetDefault("files.backend", "local")
	v.SetDefault("files.local.dir", "./uploads")
	v.SetDefault("files.s3.prefix", "uploads")
	v.SetDefault("files.gcs.prefix", "uploads")
	v.SetDefault("files.cache.max_size", 1<<30)
	v.SetDefault("files.cache.ttl", 24*time.Hour)
	v.SetDefault("records.backend", "memory")
	v.SetDefault("records.mongo.database", "board")
	v.SetDefault("records.mongo.collection", "uploads")
	v.SetDefault("records.postgres.table", "uploads")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// AutomaticEnv only reaches keys viper already knows about.
	for _, key := range []string{
		"files.s3.bucket", "files.s3.region", "files.s3.endpoint",
		"files.s3.access_key_id", "files.s3.secret_access_key", "files.s3.role_arn", "files.s3.external_id",
		"files.gcs.bucket", "files.gcs.endpoint", "files.gcs.credentials_file",
		"files.cache.dir", "records.postgres.dsn", "records.mongo.uri",
		"redis.addr", "redis.password",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("uploads.allowed_kinds", []string{})
	v.SetDefault("files.s3.path_style", false)
	v.SetDefault("files.cache.enabled", false)
	v.SetDefault("redis.db", 0)
}

// flagKeys maps serve flags to configuration keys.
var flagKeys = map[string]string{
	"listen":         "listen",
	"log-level":      "log_level",
	"files-backend":  "files.backend",
	"files-dir":      "files.local.dir",
	"records":        "records.backend",
	"postgres-dsn":   "records.postgres.dsn",
	"mongo-uri":      "records.mongo.uri",
	"redis-addr":     "redis.addr",
	"max-file-size":  "uploads.max_file_size",
	"max-files":      "uploads.max_files",
	"public-prefix":  "uploads.public_prefix",
	"sweep-interval": "uploads.sweep_interval",
}

func addServeFlags(fs *pflag.FlagSet) {
	fs.String("listen", ":8080", "HTTP listen address")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("files-backend", "local", "file store: local, s3, gcs")
	fs.String("files-dir", "./uploads", "directory of the local file store")
	fs.String("records", "memory", "record store: memory, postgres, mongo")
	fs.String("postgres-dsn", "", "PostgreSQL connection string")
	fs.String("mongo-uri", "", "MongoDB connection URI")
	fs.String("redis-addr", "", "Redis address for upload events")
	fs.Int64("max-file-size", 10*1024*1024, "largest accepted file in bytes")
	fs.Int("max-files", 10, "most files per request")
	fs.String("public-prefix", "/uploads", "URL path uploads are served under")
	fs.Duration("sweep-interval", time.Hour, "how often unreferenced uploads are swept, 0 disables")
}

// loadConfig merges defaults, the config file, BOARD_* variables and the
// flags that were set on the command line.
func loadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("boardd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/board")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Files.Backend {
	case "local":
		if c.Files.Local.Dir == "" {
			return errors.New("config: files.local.dir is required")
		}
	case "s3":
		if c.Files.S3.Bucket == "" {
			return errors.New("config: files.s3.bucket is required")
		}
	case "gcs":
		if c.Files.GCS.Bucket == "" {
			return errors.New("config: files.gcs.bucket is required")
		}
	default:
		return fmt.Errorf("config: unknown files.backend %q", c.Files.Backend)
	}

	switch c.Records.Backend {
	case "memory":
	case "postgres":
		if c.Records.Postgres.DSN == "" {
			return errors.New("config: records.postgres.dsn is required")
		}
	case "mongo":
		if c.Records.Mongo.URI == "" {
			return errors.New("config: records.mongo.uri is required")
		}
	default:
		return fmt.Errorf("config: unknown records.backend %q", c.Records.Backend)
	}

	if c.Uploads.MaxFileSize < 0 || c.Uploads.MaxFiles < 0 {
		return errors.New("config: upload limits must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", s)
	}
	return l, nil
}
