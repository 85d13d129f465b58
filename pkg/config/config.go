package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// CONFORMOOR_GLOBAL_LOG_LEVEL overrides global.log_level.
const envPrefix = "CONFORMOOR"

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultBaseURL is the default report host serving info.json and
	// the per-ref latest.json / results.json documents.
	DefaultBaseURL = "https://boajs.dev/boa/test262"

	// DefaultGitHubRepo is the default owner/name repository whose
	// releases are tracked.
	DefaultGitHubRepo = "boa-dev/boa"

	// DefaultFetchTimeout is the default timeout for upstream fetches.
	DefaultFetchTimeout = "30s"
)

// Config is the root configuration for conformoor.
type Config struct {
	Global  GlobalConfig  `yaml:"global"`
	Reports ReportsConfig `yaml:"reports"`
	API     *APIConfig    `yaml:"api,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// ReportsConfig describes where conformance reports are fetched from and
// which refs are tracked.
type ReportsConfig struct {
	BaseURL      string   `yaml:"base_url"`
	GitHubRepo   string   `yaml:"github_repo"`
	Branches     []string `yaml:"branches,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
	FetchTimeout string   `yaml:"fetch_timeout,omitempty"`
}

// Refs returns all tracked refs as upstream ref paths
// ("heads/{branch}" and "tags/{tag}"), branches first.
func (r *ReportsConfig) Refs() []string {
	refs := make([]string, 0, len(r.Branches)+len(r.Tags))

	for _, b := range r.Branches {
		refs = append(refs, "heads/"+b)
	}

	for _, t := range r.Tags {
		refs = append(refs, "tags/"+t)
	}

	return refs
}

// Load reads and parses a configuration file from the given path.
// Environment variables prefixed with CONFORMOOR_ override file values
// for keys present in the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Re-set every key known from the file so AutomaticEnv overrides
	// are visible to AllSettings below.
	for _, key := range v.AllKeys() {
		v.Set(key, v.Get(key))
	}

	var cfg Config

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building config decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, for
// commands that can run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	return cfg
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Reports.BaseURL == "" {
		c.Reports.BaseURL = DefaultBaseURL
	}

	if c.Reports.GitHubRepo == "" {
		c.Reports.GitHubRepo = DefaultGitHubRepo
	}

	if len(c.Reports.Branches) == 0 && len(c.Reports.Tags) == 0 {
		c.Reports.Branches = []string{"master"}
	}

	if c.Reports.FetchTimeout == "" {
		c.Reports.FetchTimeout = DefaultFetchTimeout
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Reports.BaseURL == "" {
		return fmt.Errorf("reports.base_url is required")
	}

	if strings.HasSuffix(c.Reports.BaseURL, "/") {
		return fmt.Errorf("reports.base_url must not end with a slash")
	}

	if parts := strings.Split(c.Reports.GitHubRepo, "/"); len(parts) != 2 ||
		parts[0] == "" || parts[1] == "" {
		return fmt.Errorf(
			"reports.github_repo must be owner/name, got %q",
			c.Reports.GitHubRepo,
		)
	}

	seen := make(map[string]struct{}, len(c.Reports.Branches)+len(c.Reports.Tags))

	for _, ref := range c.Reports.Refs() {
		if _, exists := seen[ref]; exists {
			return fmt.Errorf("duplicate ref %q", ref)
		}

		seen[ref] = struct{}{}
	}

	return nil
}
