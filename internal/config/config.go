package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/filevars/webui/internal/errors"
)

// Config holds every value the backend consumes. Keys map one-to-one to
// environment variables (upper-cased) and to keys of the optional YAML file.
type Config struct {
	GitLabBaseURL    string        `mapstructure:"gitlab_base_url" yaml:"gitlab_base_url"`
	GitLabToken      string        `mapstructure:"gitlab_token" yaml:"gitlab_token"`
	PerPage          int           `mapstructure:"gitlab_per_page" yaml:"gitlab_per_page"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RewriteRedirects bool          `mapstructure:"gitlab_rewrite_redirects" yaml:"gitlab_rewrite_redirects"`
	// UpstreamRateLimit caps GitLab calls per second; 0 disables the limiter.
	UpstreamRateLimit float64 `mapstructure:"gitlab_rate_limit" yaml:"gitlab_rate_limit"`

	TreeTTL         time.Duration `mapstructure:"group_tree_ttl" yaml:"group_tree_ttl"`
	RefreshInterval time.Duration `mapstructure:"group_tree_refresh_interval" yaml:"group_tree_refresh_interval"`
	SnapshotPath    string        `mapstructure:"tree_snapshot_path" yaml:"tree_snapshot_path"`

	CountsCacheTTL       time.Duration `mapstructure:"counts_cache_ttl" yaml:"counts_cache_ttl"`
	ProjectsCacheTTL     time.Duration `mapstructure:"projects_cache_ttl" yaml:"projects_cache_ttl"`
	EnvironmentsCacheTTL time.Duration `mapstructure:"environments_cache_ttl" yaml:"environments_cache_ttl"`
	MinAccessLevel       int           `mapstructure:"projects_min_access_level" yaml:"projects_min_access_level"`

	HTTPAddr             string  `mapstructure:"http_addr" yaml:"http_addr"`
	CORSAllowOrigins     string  `mapstructure:"cors_allow_origins" yaml:"cors_allow_origins"`
	UIAutoRefreshEnabled bool    `mapstructure:"ui_auto_refresh_enabled" yaml:"ui_auto_refresh_enabled"`
	UIAutoRefreshSec     int     `mapstructure:"ui_auto_refresh_sec" yaml:"ui_auto_refresh_sec"`
	WriteRateLimit       float64 `mapstructure:"write_rate_limit" yaml:"write_rate_limit"`
	WriteRateBurst       int     `mapstructure:"write_rate_burst" yaml:"write_rate_burst"`

	LogLevel          string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string `mapstructure:"log_format" yaml:"log_format"`
	SentryDSN         string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	SentryEnvironment string `mapstructure:"sentry_environment" yaml:"sentry_environment"`
}

var defaults = map[string]any{
	"gitlab_base_url":             "",
	"gitlab_token":                "",
	"gitlab_per_page":             100,
	"request_timeout":             "30s",
	"gitlab_rewrite_redirects":    true,
	"gitlab_rate_limit":           0,
	"group_tree_ttl":              "10m",
	"group_tree_refresh_interval": "60s",
	"tree_snapshot_path":          filepath.Join(".cache", "group_tree.json"),
	"counts_cache_ttl":            "60s",
	"projects_cache_ttl":          "30s",
	"environments_cache_ttl":      "60s",
	"projects_min_access_level":   30,
	"http_addr":                   ":8080",
	"cors_allow_origins":          "*",
	"ui_auto_refresh_enabled":     true,
	"ui_auto_refresh_sec":         15,
	"write_rate_limit":            5,
	"write_rate_burst":            10,
	"log_level":                   "info",
	"log_format":                  "auto",
	"sentry_dsn":                  "",
	"sentry_environment":          "production",
}

// Load reads configuration from environment variables and, when present, a
// filevars.yaml file in the working directory or the user config dir.
// FILEVARS_CONFIG points at an explicit file instead.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicit := os.Getenv("FILEVARS_CONFIG"); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.ConfigErrorWithContext(err, "reading "+explicit)
		}
	} else {
		v.SetConfigName("filevars")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "filevars"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, apperrors.ConfigError(err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.ConfigError(fmt.Errorf("decoding config: %w", err))
	}
	cfg.GitLabBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GitLabBaseURL), "/")
	return cfg, nil
}

// Validate checks the values needed to talk to GitLab.
func (c *Config) Validate() error {
	if c.GitLabBaseURL == "" {
		return apperrors.ConfigErrorWithContext(errors.New("GITLAB_BASE_URL is required"),
			"set it to the API root, e.g. https://gitlab.example.com/api/v4")
	}
	u, err := url.Parse(c.GitLabBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperrors.ConfigError(fmt.Errorf("GITLAB_BASE_URL %q is not an absolute URL", c.GitLabBaseURL))
	}
	if c.GitLabToken == "" {
		return apperrors.ConfigErrorWithContext(errors.New("GITLAB_TOKEN is required"),
			"create a personal access token with the api scope")
	}
	if c.RequestTimeout <= 0 {
		return apperrors.ConfigError(fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	return nil
}

// UIAutoRefresh returns the UI polling interval in seconds, never below one.
func (c *Config) UIAutoRefresh() int {
	if c.UIAutoRefreshSec < 1 {
		return 1
	}
	return c.UIAutoRefreshSec
}

// CORSOrigins splits CORS_ALLOW_ORIGINS on commas.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.GitLabToken != "" {
		c.GitLabToken = "********"
	}
	if c.SentryDSN != "" {
		c.SentryDSN = "********"
	}
	return c
}
