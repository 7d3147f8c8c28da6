package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Driver   string `yaml:"driver"`
		Timezone string `yaml:"timezone"`
	} `yaml:"database"`
	Retry struct {
		Attempts         int           `yaml:"attempts"`
		Backoff          time.Duration `yaml:"backoff"`
		Transient        []string      `yaml:"transient"`
		FailOnExhaustion bool          `yaml:"fail_on_exhaustion"`
	} `yaml:"retry"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Lock struct {
		RedisURL string        `yaml:"redis_url"`
		Key      string        `yaml:"key"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"lock"`
	Watch struct {
		Schedule string `yaml:"schedule"`
		Addr     string `yaml:"addr"`
	} `yaml:"watch"`
}

func Default() Config {
	var cfg Config
	cfg.Database.Driver = "mysql"
	cfg.Database.Timezone = "Local"
	cfg.Retry.Attempts = 10
	cfg.Retry.Backoff = 10 * time.Second
	cfg.Retry.Transient = []string{"server has gone away"}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Lock.Key = "sphinxfix:pass"
	cfg.Lock.TTL = 5 * time.Minute
	cfg.Watch.Addr = ":9464"
	return cfg
}

// Load reads the YAML file at path (a missing file means defaults), then applies
// SPHINXFIX_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := validateDocument(data); err != nil {
				return cfg, fmt.Errorf("%s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Location resolves database.timezone.
func (c Config) Location() (*time.Location, error) {
	switch c.Database.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Database.Timezone)
	}
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "pgx", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("database.timezone: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log.level %q", c.Log.Level)
	}
	if c.Retry.Attempts < 1 {
		return errors.New("retry.attempts must be at least 1")
	}
	if c.Retry.Backoff < 0 {
		return errors.New("retry.backoff must not be negative")
	}
	if c.Lock.RedisURL != "" && c.Lock.TTL <= 0 {
		return errors.New("lock.ttl must be positive when lock.redis_url is set")
	}
	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return fmt.Errorf("watch.schedule: %w", err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SPHINXFIX_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SPHINXFIX_DB_TIMEZONE"); v != "" {
		cfg.Database.Timezone = v
	}
	if v := os.Getenv("SPHINXFIX_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPHINXFIX_RETRY_ATTEMPTS: %w", err)
		}
		cfg.Retry.Attempts = n
	}
	if v := os.Getenv("SPHINXFIX_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SPHINXFIX_RETRY_BACKOFF: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if v := os.Getenv("SPHINXFIX_RETRY_TRANSIENT"); v != "" {
		cfg.Retry.Transient = splitCSV(v)
	}
	if v := os.Getenv("SPHINXFIX_RETRY_FAIL_ON_EXHAUSTION"); v != "" {
		cfg.Retry.FailOnExhaustion = parseBool(v, cfg.Retry.FailOnExhaustion)
	}
	if v := os.Getenv("SPHINXFIX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SPHINXFIX_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SPHINXFIX_LOCK_REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv("SPHINXFIX_LOCK_KEY"); v != "" {
		cfg.Lock.Key = v
	}
	if v := os.Getenv("SPHINXFIX_LOCK_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SPHINXFIX_LOCK_TTL: %w", err)
		}
		cfg.Lock.TTL = d
	}
	if v := os.Getenv("SPHINXFIX_WATCH_SCHEDULE"); v != "" {
		cfg.Watch.Schedule = v
	}
	if v := os.Getenv("SPHINXFIX_WATCH_ADDR"); v != "" {
		cfg.Watch.Addr = v
	}
	return nil
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val == "" {
			continue
		}
		out = append(out, val)
	}
	return out
}
