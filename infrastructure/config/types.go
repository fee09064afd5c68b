package config

import (
	"fmt"
	"time"
)

// DatabaseConfig is the PostgreSQL connection block shared by the binaries.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_INDEXER_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_INDEXER_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_INDEXER_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_INDEXER_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_INDEXER_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_INDEXER_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN returns a lib/pq keyword/value connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// URL returns the postgres:// form used by golang-migrate.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// SetDefaults fills unset connection and pool settings.
func (c *DatabaseConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.User == "" {
		c.User = "postgres"
	}
	if c.Database == "" {
		c.Database = "indexer"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// Validate checks the fields a connection cannot do without.
func (c *DatabaseConfig) Validate() error {
	if err := ValidateRequired("database.host", c.Host); err != nil {
		return err
	}
	if err := ValidatePort("database.port", c.Port); err != nil {
		return err
	}
	if err := ValidateRequired("database.user", c.User); err != nil {
		return err
	}
	return ValidateRequired("database.database", c.Database)
}
