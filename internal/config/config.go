// Package config handles application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"billfred/internal/filter"
	"billfred/internal/model"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string `yaml:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	Room             string `yaml:"room" env:"ROOM" env-required:"true"`
	Nick             string `yaml:"nick" env:"NICK"`
	DatabasePath     string `yaml:"database_path" env:"DATABASE_PATH"`

	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFile       string `yaml:"log_file" env:"LOG_FILE"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	LogMaxBackups int    `yaml:"log_max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`

	// Reconnect is a pointer so an explicit "false" in the file survives
	// default handling.
	Reconnect      *bool         `yaml:"reconnect"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY" env-default:"30s"`

	Links Links `yaml:"links" env-prefix:"LINKS_"`
	Wiki  Wiki  `yaml:"wiki" env-prefix:"WIKI_"`

	FeedWorkers    int           `yaml:"feed_workers" env:"FEED_WORKERS" env-default:"2"`
	FeedStartDelay time.Duration `yaml:"feed_start_delay" env:"FEED_START_DELAY" env-default:"10s"`
	FeedStagger    time.Duration `yaml:"feed_stagger" env:"FEED_STAGGER" env-default:"5s"`
	Feeds          []Feed        `yaml:"feeds"`
}

// Links configures link title resolution.
type Links struct {
	Disabled bool          `yaml:"disabled" env:"DISABLED"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL" env-default:"3s"`
	Limit    int           `yaml:"limit" env:"LIMIT" env-default:"3"`
	Ignore   []string      `yaml:"ignore" env:"IGNORE" env-separator:","`
}

// Wiki configures the search command.
type Wiki struct {
	Lang     string        `yaml:"lang" env:"LANG" env-default:"ru"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL" env-default:"2s"`
	Limit    int           `yaml:"limit" env:"LIMIT" env-default:"3"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL" env-default:"https://{lang}.wikipedia.org"`
}

// Feed is one monitored feed.
type Feed struct {
	Prefix          string   `yaml:"prefix"`
	URL             string   `yaml:"url"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	IncludeBody     bool     `yaml:"include_body"`
	Include         []string `yaml:"include"`
	Exclude         []string `yaml:"exclude"`
	IncludeRe       []string `yaml:"include_re"`
	ExcludeRe       []string `yaml:"exclude_re"`
}

// Load reads the configuration. With a non-empty path (or CONFIG_PATH) the
// YAML file is read first and environment variables override it; otherwise
// only the environment is used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = cfg.Room + "_chatlog.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cleanenv cannot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect_delay must be positive", ErrInvalid)
	}
	if c.Links.Limit < 1 {
		return fmt.Errorf("%w: links.limit must be at least 1", ErrInvalid)
	}
	if c.Wiki.Limit < 1 {
		return fmt.Errorf("%w: wiki.limit must be at least 1", ErrInvalid)
	}
	if c.FeedWorkers < 1 {
		return fmt.Errorf("%w: feed_workers must be at least 1", ErrInvalid)
	}

	seen := make(map[string]struct{}, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.Prefix == "" {
			return fmt.Errorf("%w: feeds[%d]: prefix is required", ErrInvalid, i)
		}
		if _, dup := seen[f.Prefix]; dup {
			return fmt.Errorf("%w: feeds[%d]: duplicate prefix %q", ErrInvalid, i, f.Prefix)
		}
		seen[f.Prefix] = struct{}{}
		if f.URL == "" {
			return fmt.Errorf("%w: feed %s: url is required", ErrInvalid, f.Prefix)
		}
		if f.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: feed %s: interval_seconds must be positive", ErrInvalid, f.Prefix)
		}
		if err := filter.Validate(f.filters()); err != nil {
			return fmt.Errorf("%w: feed %s: %w", ErrInvalid, f.Prefix, err)
		}
	}
	return nil
}

// ReconnectEnabled reports whether a lost session should be re-established.
// It defaults to true.
func (c *Config) ReconnectEnabled() bool {
	return c.Reconnect == nil || *c.Reconnect
}

// IsIgnored reports whether link resolution is disabled for nick.
func (c *Config) IsIgnored(nick string) bool {
	for _, n := range c.Links.Ignore {
		if strings.TrimSpace(n) == nick {
			return true
		}
	}
	return false
}

// FeedTasks converts the configured feeds into poller tasks.
func (c *Config) FeedTasks() []model.FeedTask {
	tasks := make([]model.FeedTask, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		tasks = append(tasks, model.FeedTask{
			Prefix:       f.Prefix,
			URL:          f.URL,
			PollInterval: time.Duration(f.IntervalSeconds) * time.Second,
			IncludeBody:  f.IncludeBody,
			Filters:      f.filters(),
		})
	}
	return tasks
}

func (f Feed) filters() []model.Filter {
	var out []model.Filter
	add := func(kind model.FilterKind, values []string) {
		for _, v := range values {
			out = append(out, model.Filter{Kind: kind, Value: v})
		}
	}
	add(model.FilterInclude, f.Include)
	add(model.FilterExclude, f.Exclude)
	add(model.FilterIncludeRe, f.IncludeRe)
	add(model.FilterExcludeRe, f.ExcludeRe)
	return out
}
