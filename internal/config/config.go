// Package config loads the crawler configuration. Values are resolved once
// at startup with the following precedence:
//  1. Default values
//  2. TOML config file (if specified)
//  3. .env file (variables already set in the environment win)
//  4. Environment variables
//  5. Command-line flags (handled by the caller)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/Sternrassler/repo-crawler/pkg/client"
	"github.com/Sternrassler/repo-crawler/pkg/daterange"
	"github.com/Sternrassler/repo-crawler/pkg/logging"
)

// Mode is the run mode.
type Mode string

const (
	// ModePreview caps the target at PreviewTargetCap records.
	ModePreview Mode = "preview"
	// ModeFull runs with the configured target, or until the queue is empty.
	ModeFull Mode = "full"
)

// PreviewTargetCap is the largest target a preview run collects.
const PreviewTargetCap = 200

// maxCeiling is the GitHub search result window.
const maxCeiling = 1000

// Config represents the application configuration
type Config struct {
	Run      RunConfig      `toml:"run"`
	GitHub   GitHubConfig   `toml:"github"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Logging  LoggingConfig  `toml:"logging"`
}

// RunConfig holds crawl settings
type RunConfig struct {
	Mode      Mode   `toml:"mode"`
	Target    int    `toml:"target"`
	BatchSize int    `toml:"batch_size"`
	Qualifier string `toml:"qualifier"`
	// StartDate is the first day of the seed range (YYYY-MM-DD); empty means 2008-01-01.
	StartDate string `toml:"start_date"`
	Ceiling   int    `toml:"ceiling"`
}

// GitHubConfig holds GraphQL client settings
type GitHubConfig struct {
	Token             string        `toml:"token"`
	Endpoint          string        `toml:"endpoint"`
	MaxAttempts       int           `toml:"max_attempts"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Timeout           time.Duration `toml:"timeout"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
}

// RedisConfig holds lookup cache settings. An empty URL disables the cache.
type RedisConfig struct {
	URL      string        `toml:"url"`
	CacheTTL time.Duration `toml:"cache_ttl"`
}

// MetricsConfig holds metrics server settings. An empty address disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Requirements lists the settings a command cannot run without.
type Requirements struct {
	Token    bool
	Database bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Mode:      ModePreview,
			Target:    10,
			BatchSize: 100,
			Qualifier: daterange.DefaultQualifier,
			Ceiling:   maxCeiling,
		},
		GitHub: GitHubConfig{
			Endpoint:    client.DefaultEndpoint,
			MaxAttempts: 10,
			Timeout:     60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 4,
		},
		Redis: RedisConfig{
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a TOML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load resolves the configuration from defaults, the optional TOML file at
// configPath, the optional .env file at envPath and the environment.
func Load(configPath, envPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envPath, err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides fields from environment variables. All malformed values
// are reported together.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var result *multierror.Error

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %q is not an integer", name, v))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %q is not a number", name, v))
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %q is not a duration", name, v))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %q is not a boolean", name, v))
				return
			}
			*dst = b
		}
	}

	if v, ok := lookup("RUN_MODE"); ok {
		c.Run.Mode = Mode(strings.ToLower(strings.TrimSpace(v)))
	}
	integer("TARGET", &c.Run.Target)
	integer("BATCH_SIZE", &c.Run.BatchSize)
	str("SEARCH_QUALIFIER", &c.Run.Qualifier)
	str("START_DATE", &c.Run.StartDate)
	integer("CEILING", &c.Run.Ceiling)

	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("GITHUB_GRAPHQL_URL", &c.GitHub.Endpoint)
	integer("MAX_ATTEMPTS", &c.GitHub.MaxAttempts)
	float("REQUESTS_PER_SECOND", &c.GitHub.RequestsPerSecond)

	str("DATABASE_URL", &c.Database.URL)

	str("REDIS_URL", &c.Redis.URL)
	duration("CACHE_TTL", &c.Redis.CacheTTL)

	str("METRICS_ADDR", &c.Metrics.Addr)

	str("LOG_LEVEL", &c.Logging.Level)
	boolean("LOG_PRETTY", &c.Logging.Pretty)

	return result.ErrorOrNil()
}

// Validate checks if the configuration is valid. Every problem is reported.
func (c *Config) Validate(req Requirements) error {
	var result *multierror.Error

	if c.Run.Mode != ModePreview && c.Run.Mode != ModeFull {
		result = multierror.Append(result, fmt.Errorf("run mode must be %q or %q (got %q)", ModePreview, ModeFull, c.Run.Mode))
	}
	if c.Run.BatchSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch_size must be positive"))
	}
	if c.Run.Ceiling <= 0 || c.Run.Ceiling > maxCeiling {
		result = multierror.Append(result, fmt.Errorf("ceiling must be between 1 and %d", maxCeiling))
	}
	if c.Run.StartDate != "" {
		if _, err := time.Parse(daterange.Layout, c.Run.StartDate); err != nil {
			result = multierror.Append(result, fmt.Errorf("start_date must be YYYY-MM-DD: %w", err))
		}
	}

	if c.GitHub.Endpoint == "" {
		result = multierror.Append(result, fmt.Errorf("github endpoint must be specified"))
	}
	if c.GitHub.MaxAttempts < 1 {
		result = multierror.Append(result, fmt.Errorf("max_attempts must be at least 1"))
	}
	if c.GitHub.RequestsPerSecond < 0 {
		result = multierror.Append(result, fmt.Errorf("requests_per_second must not be negative"))
	}
	if c.GitHub.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("github timeout must be positive"))
	}
	if req.Token && c.GitHub.Token == "" {
		result = multierror.Append(result, fmt.Errorf("GITHUB_TOKEN must be specified"))
	}

	if req.Database && c.Database.URL == "" {
		result = multierror.Append(result, fmt.Errorf("DATABASE_URL must be specified"))
	}
	if c.Database.MaxConns < 0 {
		result = multierror.Append(result, fmt.Errorf("database max_conns must not be negative"))
	}

	if c.Redis.URL != "" && c.Redis.CacheTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache_ttl must be positive when redis is enabled"))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// EffectiveTarget returns the record target of the run: preview mode caps it
// at PreviewTargetCap, full mode uses Target as is (zero or negative means
// no target).
func (c *Config) EffectiveTarget() int {
	if c.Run.Mode == ModePreview {
		if c.Run.Target <= 0 || c.Run.Target > PreviewTargetCap {
			return PreviewTargetCap
		}
	}
	return c.Run.Target
}

// StartTime returns the parsed start date, zero when unset or invalid.
func (c *Config) StartTime() time.Time {
	if c.Run.StartDate == "" {
		return time.Time{}
	}
	t, err := time.Parse(daterange.Layout, c.Run.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}
