package config

import (
	"fmt"
	"regexp"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for trucost-engine.
// Values come from config.yaml with environment variable overrides; secrets
// (PGPASSWORD) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8280"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (central PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Partition configuration for per-account recommendation storage
	Partitions PartitionConfig `yaml:"partitions"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"trucost"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"trucost_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// PartitionConfig holds settings for account-scoped storage partitions.
type PartitionConfig struct {
	// SchemaPrefix is prepended to the usage account id to form the
	// partition's schema name.
	SchemaPrefix string `yaml:"schema_prefix" env:"PARTITION_SCHEMA_PREFIX" env-default:"acct_"`
}

var schemaPrefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if !schemaPrefixPattern.MatchString(cfg.Partitions.SchemaPrefix) {
		return nil, fmt.Errorf("invalid partition schema prefix %q", cfg.Partitions.SchemaPrefix)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
