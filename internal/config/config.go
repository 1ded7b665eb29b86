// Package config loads and validates sitemapper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/domainscope/sitemapper/internal/crawler"
	"github.com/domainscope/sitemapper/internal/progress"
)

// Config captures every knob the binary reads. Values come from the config
// file, the SITEMAPPER_* environment, and cobra flags bound by the caller,
// in ascending precedence.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
	Events  EventsConfig  `mapstructure:"events"`
}

// ServerConfig controls the serve-mode HTTP listener.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// CrawlConfig carries the crawl defaults. The crawl command's flags and the
// API's request body override them per invocation.
type CrawlConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxPages       int `mapstructure:"max_pages"`
}

// FetchConfig adjusts the HTTP fetcher.
type FetchConfig struct {
	UserAgent string `mapstructure:"user_agent"`
}

// LoggingConfig toggles verbose console logging.
type LoggingConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// EventsConfig tunes the progress hub and the recent-events ring.
type EventsConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	MaxBatch           int `mapstructure:"max_batch"`
	FlushIntervalMs    int `mapstructure:"flush_interval_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
	RingCapacity       int `mapstructure:"ring_capacity"`
}

// Load builds a Config from the supplied viper instance. Passing nil uses a
// fresh one. A config file named sitemapper.* is searched in the working
// directory, $HOME/.sitemapper and /etc/sitemapper unless the caller pinned
// an explicit file via SetConfigFile; a missing searched file is fine, a
// missing pinned file is an error.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("SITEMAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("sitemapper")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.sitemapper")
	v.AddConfigPath("/etc/sitemapper")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("crawl.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawl.timeout_seconds", int(crawler.DefaultTimeout/time.Second))
	v.SetDefault("crawl.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("logging.verbose", false)
	v.SetDefault("events.buffer_size", 4096)
	v.SetDefault("events.max_batch", 1000)
	v.SetDefault("events.flush_interval_ms", 500)
	v.SetDefault("events.sink_timeout_seconds", 10)
	v.SetDefault("events.ring_capacity", 1024)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Events.RingCapacity <= 0 {
		return fmt.Errorf("events.ring_capacity must be > 0")
	}
	return nil
}

// Timeout converts the configured per-fetch timeout into a Duration.
func (c CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful server shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// EngineConfig assembles a crawler.Config for the given seed from the crawl
// defaults.
func (c Config) EngineConfig(baseURL string) crawler.Config {
	return crawler.Config{
		BaseURL:     baseURL,
		Concurrency: c.Crawl.Concurrency,
		Timeout:     c.Crawl.Timeout(),
		MaxPages:    c.Crawl.MaxPages,
	}
}

// HubConfig assembles the progress hub settings. The caller supplies the
// logger and base context.
func (c Config) HubConfig() progress.Config {
	return progress.Config{
		BufferSize:     c.Events.BufferSize,
		MaxBatchEvents: c.Events.MaxBatch,
		MaxBatchWait:   time.Duration(c.Events.FlushIntervalMs) * time.Millisecond,
		SinkTimeout:    time.Duration(c.Events.SinkTimeoutSeconds) * time.Second,
	}
}
