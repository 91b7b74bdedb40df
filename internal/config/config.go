// Package config loads dossier-files settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/pavel-fokin/dossier-files/internal/files"
)

// Metadata store drivers accepted by DOSSIER_DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the service settings read from DOSSIER_* variables.
type Config struct {
	Addr              string        `env:"DOSSIER_ADDR" envDefault:":8080"`
	DataDir           string        `env:"DOSSIER_DATA_DIR,required,notEmpty"`
	BaseDir           string        `env:"DOSSIER_BASE_DIR" envDefault:"dossier-files"`
	PublicURL         string        `env:"DOSSIER_PUBLIC_URL" envDefault:"/storage"`
	DBDriver          string        `env:"DOSSIER_DB_DRIVER" envDefault:"sqlite"`
	DBPath            string        `env:"DOSSIER_DB_PATH" envDefault:"dossier.db"`
	DatabaseURL       string        `env:"DOSSIER_DATABASE_URL"`
	MaxBodySize       int64         `env:"DOSSIER_MAX_BODY_SIZE" envDefault:"8388608"`
	AdminToken        string        `env:"DOSSIER_ADMIN_TOKEN"`
	AllowedOrigins    []string      `env:"DOSSIER_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	ReconcileInterval time.Duration `env:"DOSSIER_RECONCILE_INTERVAL" envDefault:"0"`
	ShutdownTimeout   time.Duration `env:"DOSSIER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel          slog.Level    `env:"DOSSIER_LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"DOSSIER_LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and parses the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that the env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DOSSIER_DB_PATH must be set for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DOSSIER_DATABASE_URL must be set for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DOSSIER_DB_DRIVER %q is not supported, use sqlite or postgres", c.DBDriver))
	}

	if c.MaxBodySize < files.MaxSize {
		errs = append(errs, fmt.Errorf("DOSSIER_MAX_BODY_SIZE must be at least %d bytes", files.MaxSize))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, errors.New("DOSSIER_RECONCILE_INTERVAL must not be negative"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("DOSSIER_LOG_FORMAT %q is not supported, use json or text", c.LogFormat))
	}
	if !strings.HasPrefix(c.PublicURL, "/") && !strings.Contains(c.PublicURL, "://") {
		errs = append(errs, errors.New("DOSSIER_PUBLIC_URL must be an absolute path or URL"))
	}

	return errors.Join(errs...)
}

// StoragePrefix is the route prefix the stored bytes are served under.
// An absolute PublicURL points at another host, so bytes are served
// locally under /storage.
func (c *Config) StoragePrefix() string {
	if strings.HasPrefix(c.PublicURL, "/") {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return "/storage"
}

// SetupLogger configures the default slog logger.
func SetupLogger(cfg *Config) *slog.Logger {
	logger := slog.New(NewHandler(os.Stdout, cfg.LogFormat, cfg.LogLevel))
	slog.SetDefault(logger)
	return logger
}

// NewHandler returns a JSON handler, or a charmbracelet/log handler for
// the text format.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if format == "text" {
		return log.NewWithOptions(w, log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "dossier",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}
