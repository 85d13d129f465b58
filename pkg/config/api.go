package config

import (
	"fmt"
	"time"
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server    APIServerConfig   `yaml:"server"`
	Auth      APIAuthConfig     `yaml:"auth"`
	Database  APIDatabaseConfig `yaml:"database"`
	Storage   APIStorageConfig  `yaml:"storage,omitempty"`
	Collector *CollectorConfig  `yaml:"collector,omitempty"`
}

// CollectorConfig configures the background collection service that polls
// the report endpoints and maintains the snapshot database.
type CollectorConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Interval    string `yaml:"interval,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// APIStorageConfig contains archive backend settings. Only one backend
// (S3 or local) may be enabled at a time.
type APIStorageConfig struct {
	S3    *APIS3Config           `yaml:"s3,omitempty"`
	Local *APILocalStorageConfig `yaml:"local,omitempty"`
}

// APILocalStorageConfig archives raw report documents under a local
// directory.
type APILocalStorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// APIS3Config contains S3 settings for the report archive.
type APIS3Config struct {
	Enabled         bool   `yaml:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty"`
	Public        RateLimitTier `yaml:"public,omitempty"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	SessionTTL    string          `yaml:"session_ttl"`
	AnonymousRead bool            `yaml:"anonymous_read"`
	Basic         BasicAuthConfig `yaml:"basic,omitempty"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty"`
}

// BasicAuthUser defines a basic auth user from config.
type BasicAuthUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// APIDatabaseConfig contains database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}

// ValidateAPI checks the api section for errors. The section itself is
// optional; callers that need it check for presence first.
func (c *Config) ValidateAPI() error {
	api := c.API
	if api == nil {
		return fmt.Errorf("api section is required")
	}

	if api.Server.Listen == "" {
		return fmt.Errorf("api.server.listen is required")
	}

	switch api.Database.Driver {
	case "sqlite":
		if api.Database.SQLite.Path == "" {
			return fmt.Errorf("api.database.sqlite.path is required")
		}
	case "postgres":
		if api.Database.Postgres.Host == "" {
			return fmt.Errorf("api.database.postgres.host is required")
		}
	default:
		return fmt.Errorf(
			"api.database.driver must be sqlite or postgres, got %q",
			api.Database.Driver,
		)
	}

	if api.Auth.SessionTTL != "" {
		if _, err := time.ParseDuration(api.Auth.SessionTTL); err != nil {
			return fmt.Errorf("parsing api.auth.session_ttl: %w", err)
		}
	}

	if api.Auth.Basic.Enabled {
		for i, u := range api.Auth.Basic.Users {
			if u.Username == "" || u.Password == "" {
				return fmt.Errorf(
					"api.auth.basic.users[%d]: username and password are required", i,
				)
			}

			if u.Role != "admin" && u.Role != "readonly" {
				return fmt.Errorf(
					"api.auth.basic.users[%d]: role must be admin or readonly, got %q",
					i, u.Role,
				)
			}
		}
	}

	s3Enabled := api.Storage.S3 != nil && api.Storage.S3.Enabled
	localEnabled := api.Storage.Local != nil && api.Storage.Local.Enabled

	if s3Enabled && localEnabled {
		return fmt.Errorf("only one storage backend may be enabled")
	}

	if s3Enabled && api.Storage.S3.Bucket == "" {
		return fmt.Errorf("api.storage.s3.bucket is required")
	}

	if localEnabled && api.Storage.Local.Path == "" {
		return fmt.Errorf("api.storage.local.path is required")
	}

	if api.Collector != nil && api.Collector.Enabled {
		if api.Collector.Interval != "" {
			if _, err := time.ParseDuration(api.Collector.Interval); err != nil {
				return fmt.Errorf("parsing api.collector.interval: %w", err)
			}
		}
	}

	return nil
}
