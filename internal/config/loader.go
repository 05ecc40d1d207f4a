package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpattn/incidentetl/internal/db"
	"github.com/spf13/viper"
)

// Config aggregates every configurable section of the service.
type Config struct {
	Database  db.Config
	Server    ServerConfig
	Ingestion IngestionConfig
	Archive   ArchiveConfig
	Logging   LoggingConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	MaxUploadBytes int64
}

// IngestionConfig configures the upload pipeline.
type IngestionConfig struct {
	Profile      string
	OnConflict   string
	DateLayouts  []string
	Location     string
	BatchTimeout time.Duration
	Workers      int
}

// ArchiveConfig selects where uploads and cleaned files are kept.
type ArchiveConfig struct {
	Driver      string
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	S3KeyPrefix string
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string
	Format string
}

// Default returns the configuration used when neither file nor env override a key.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   90 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxUploadBytes: 32 << 20,
		},
		Ingestion: IngestionConfig{
			Profile:      "auto",
			OnConflict:   "reject",
			Location:     "UTC",
			BatchTimeout: 60 * time.Second,
			Workers:      4,
		},
		Archive: ArchiveConfig{
			Driver: "fs",
			FSRoot: "uploads",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config.yaml from configPath (optional) and applies INCIDENTS_*
// environment overrides on top of Default. The legacy DB_* variables are
// honoured for the database section.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("INCIDENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	legacy := map[string]string{
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.dbname":   "DB_DBNAME",
		"database.sslmode":  "DB_SSLMODE",
	}
	for key, env := range legacy {
		envKey := "INCIDENTS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, env); err != nil {
			return cfg, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		slog.Debug("no config.yaml found, using defaults and env vars", slog.String("path", configPath))
	} else {
		slog.Debug("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.max_upload_bytes") {
		cfg.Server.MaxUploadBytes = v.GetInt64("server.max_upload_bytes")
	}

	if v.IsSet("ingestion.profile") {
		cfg.Ingestion.Profile = v.GetString("ingestion.profile")
	}
	if v.IsSet("ingestion.on_conflict") {
		cfg.Ingestion.OnConflict = v.GetString("ingestion.on_conflict")
	}
	if v.IsSet("ingestion.date_layouts") {
		cfg.Ingestion.DateLayouts = v.GetStringSlice("ingestion.date_layouts")
	}
	if v.IsSet("ingestion.location") {
		cfg.Ingestion.Location = v.GetString("ingestion.location")
	}
	if v.IsSet("ingestion.batch_timeout") {
		cfg.Ingestion.BatchTimeout = v.GetDuration("ingestion.batch_timeout")
	}
	if v.IsSet("ingestion.workers") {
		cfg.Ingestion.Workers = v.GetInt("ingestion.workers")
	}

	if v.IsSet("archive.driver") {
		cfg.Archive.Driver = v.GetString("archive.driver")
	}
	if v.IsSet("archive.fs_root") {
		cfg.Archive.FSRoot = v.GetString("archive.fs_root")
	}
	if v.IsSet("archive.s3.bucket") {
		cfg.Archive.S3Bucket = v.GetString("archive.s3.bucket")
	}
	if v.IsSet("archive.s3.region") {
		cfg.Archive.S3Region = v.GetString("archive.s3.region")
	}
	if v.IsSet("archive.s3.endpoint") {
		cfg.Archive.S3Endpoint = v.GetString("archive.s3.endpoint")
	}
	if v.IsSet("archive.s3.path_style") {
		cfg.Archive.S3PathStyle = v.GetBool("archive.s3.path_style")
	}
	if v.IsSet("archive.s3.key_prefix") {
		cfg.Archive.S3KeyPrefix = v.GetString("archive.s3.key_prefix")
	}

	if v.IsSet("logging.level") {
		cfg.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("logging.format") {
		cfg.Logging.Format = v.GetString("logging.format")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch c.Ingestion.Profile {
	case "auto", "current", "legacy":
	default:
		return fmt.Errorf("ingestion.profile must be auto, current or legacy, got %q", c.Ingestion.Profile)
	}
	switch c.Ingestion.OnConflict {
	case "reject", "warn":
	default:
		return fmt.Errorf("ingestion.on_conflict must be reject or warn, got %q", c.Ingestion.OnConflict)
	}
	if _, err := time.LoadLocation(c.Ingestion.Location); err != nil {
		return fmt.Errorf("ingestion.location: %w", err)
	}
	if c.Ingestion.Workers < 1 {
		return fmt.Errorf("ingestion.workers must be at least 1, got %d", c.Ingestion.Workers)
	}
	switch c.Archive.Driver {
	case "fs", "s3", "memory", "none":
	default:
		return fmt.Errorf("archive.driver must be fs, s3, memory or none, got %q", c.Archive.Driver)
	}
	if c.Archive.Driver == "s3" && c.Archive.S3Bucket == "" {
		return errors.New("archive.s3.bucket is required for the s3 driver")
	}
	return nil
}
