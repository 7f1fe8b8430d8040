package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DatabasePlaceholder is the token in DATABASE_URL_TEMPLATE replaced by a
// concrete database name to produce a per-tenant connection string.
const DatabasePlaceholder = "{database}"

// Config is the process-wide configuration, parsed once at startup and
// read-only afterwards. The admin DSN is privileged (CREATE/DROP DATABASE)
// and must never reach tenant-scoped code paths; hand it to provisioning
// components only.
type Config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	// ControlPlaneURL points at the shared database holding tenant metadata.
	ControlPlaneURL string `env:"DATABASE_URL,required"`
	// AdminDatabaseURL connects as a superuser-ish role used only for
	// provisioning and dropping per-tenant databases.
	AdminDatabaseURL string `env:"ADMIN_DATABASE_URL,required"`
	// DatabaseURLTemplate contains the {database} placeholder, e.g.
	// postgres://app:secret@db:5432/{database}?sslmode=disable
	DatabaseURLTemplate string `env:"DATABASE_URL_TEMPLATE,required"`

	AdminToken string `env:"ADMIN_TOKEN,required"`

	StorageBackend  string `env:"STORAGE_BACKEND" envDefault:"local"`
	StorageLocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./.data/storage"`

	ExportDir     string        `env:"EXPORT_DIR" envDefault:"./.data/exports"`
	ExportTimeout time.Duration `env:"EXPORT_TIMEOUT" envDefault:"10m"`

	RegistryIdleTimeout   time.Duration `env:"REGISTRY_IDLE_TIMEOUT" envDefault:"30m"`
	RegistrySweepInterval time.Duration `env:"REGISTRY_SWEEP_INTERVAL" envDefault:"5m"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
}

// Load parses the environment into a Config and validates the pieces that
// cannot be expressed as struct tags.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if !strings.Contains(cfg.DatabaseURLTemplate, DatabasePlaceholder) {
		return Config{}, fmt.Errorf("DATABASE_URL_TEMPLATE must contain %s", DatabasePlaceholder)
	}
	return cfg, nil
}

// URLForDatabase substitutes the database name into the URL template.
func (c Config) URLForDatabase(name string) (string, error) {
	return URLForDatabase(c.DatabaseURLTemplate, name)
}

// URLForDatabase builds a fully-qualified connection string from a template
// carrying the {database} placeholder.
func URLForDatabase(template, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("database name is required")
	}
	if !strings.Contains(template, DatabasePlaceholder) {
		return "", fmt.Errorf("url template is missing %s placeholder", DatabasePlaceholder)
	}
	return strings.ReplaceAll(template, DatabasePlaceholder, name), nil
}
