package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "global: {}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultBaseURL, cfg.Reports.BaseURL)
	assert.Equal(t, DefaultGitHubRepo, cfg.Reports.GitHubRepo)
	assert.Equal(t, []string{"master"}, cfg.Reports.Branches)
	assert.Equal(t, DefaultFetchTimeout, cfg.Reports.FetchTimeout)
	assert.Nil(t, cfg.API)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configContent := `
global:
  log_level: info
reports:
  base_url: https://reports.example.com/test262
  github_repo: boa-dev/boa
  branches:
    - master
`

	path := writeConfig(t, configContent)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t,
					"https://reports.example.com/test262",
					cfg.Reports.BaseURL)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"CONFORMOOR_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "nested field override - reports.base_url",
			envVars: map[string]string{
				"CONFORMOOR_REPORTS_BASE_URL": "https://other.example.com/t262",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t,
					"https://other.example.com/t262",
					cfg.Reports.BaseURL)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(path)
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_APISection(t *testing.T) {
	configContent := `
reports:
  branches: [master]
  tags: [v0.20, v0.19]
api:
  server:
    listen: ":8080"
    rate_limit:
      enabled: true
      public:
        requests_per_minute: 120
  auth:
    session_ttl: 24h
    anonymous_read: true
    basic:
      enabled: true
      users:
        - username: admin
          password: hunter2
          role: admin
  database:
    driver: sqlite
    sqlite:
      path: ./conformoor.db
  storage:
    local:
      enabled: true
      path: ./archive
  collector:
    enabled: true
    interval: 5m
    concurrency: 2
`

	cfg, err := Load(writeConfig(t, configContent))
	require.NoError(t, err)
	require.NotNil(t, cfg.API)

	assert.Equal(t, ":8080", cfg.API.Server.Listen)
	assert.True(t, cfg.API.Server.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.API.Server.RateLimit.Public.RequestsPerMinute)
	assert.Equal(t, "24h", cfg.API.Auth.SessionTTL)
	require.Len(t, cfg.API.Auth.Basic.Users, 1)
	assert.Equal(t, "admin", cfg.API.Auth.Basic.Users[0].Role)
	assert.Equal(t, "sqlite", cfg.API.Database.Driver)
	require.NotNil(t, cfg.API.Collector)
	assert.Equal(t, "5m", cfg.API.Collector.Interval)

	assert.Equal(t,
		[]string{"heads/master", "tags/v0.20", "tags/v0.19"},
		cfg.Reports.Refs())

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateAPI())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(_ *Config) {},
		},
		{
			name: "trailing slash in base url",
			mutate: func(cfg *Config) {
				cfg.Reports.BaseURL = "https://example.com/test262/"
			},
			wantErr: "must not end with a slash",
		},
		{
			name: "malformed github repo",
			mutate: func(cfg *Config) {
				cfg.Reports.GitHubRepo = "boa"
			},
			wantErr: "must be owner/name",
		},
		{
			name: "duplicate ref",
			mutate: func(cfg *Config) {
				cfg.Reports.Branches = []string{"master", "master"}
			},
			wantErr: "duplicate ref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateAPI(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API: &APIConfig{
				Server:   APIServerConfig{Listen: ":8080"},
				Database: APIDatabaseConfig{Driver: "sqlite", SQLite: SQLiteDatabaseConfig{Path: ":memory:"}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing listen",
			mutate:  func(cfg *Config) { cfg.API.Server.Listen = "" },
			wantErr: "listen is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.API.Database.Driver = "mysql" },
			wantErr: "must be sqlite or postgres",
		},
		{
			name: "sqlite path required",
			mutate: func(cfg *Config) {
				cfg.API.Database.SQLite.Path = ""
			},
			wantErr: "sqlite.path is required",
		},
		{
			name: "bad session ttl",
			mutate: func(cfg *Config) {
				cfg.API.Auth.SessionTTL = "sometime"
			},
			wantErr: "session_ttl",
		},
		{
			name: "invalid role",
			mutate: func(cfg *Config) {
				cfg.API.Auth.Basic.Enabled = true
				cfg.API.Auth.Basic.Users = []BasicAuthUser{
					{Username: "u", Password: "p", Role: "root"},
				}
			},
			wantErr: "role must be admin or readonly",
		},
		{
			name: "both storage backends enabled",
			mutate: func(cfg *Config) {
				cfg.API.Storage.Local = &APILocalStorageConfig{Enabled: true, Path: "./a"}
				cfg.API.Storage.S3 = &APIS3Config{Enabled: true, Bucket: "b"}
			},
			wantErr: "only one storage backend",
		},
		{
			name: "collector interval must parse",
			mutate: func(cfg *Config) {
				cfg.API.Collector = &CollectorConfig{Enabled: true, Interval: "often"}
			},
			wantErr: "collector.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateAPI()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
