// Package config loads and validates the surgewatch YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/surgewatch/internal/exchange"
	"github.com/sawpanic/surgewatch/internal/ops"
	"github.com/sawpanic/surgewatch/internal/sink"
	"github.com/sawpanic/surgewatch/internal/stream"
	"github.com/sawpanic/surgewatch/internal/warn"
)

// Config is the full service configuration.
type Config struct {
	LogLevel string   // trace|debug|info|warn|error
	Symbols  []string // initial tracked symbols

	Exchange exchange.Config
	Stream   stream.Config
	Detector warn.Config
	Sweep    warn.RunnerConfig
	Sink     sink.Config
	Ops      ops.Config
}

// Default returns a runnable configuration with production settings.
func Default() Config {
	return Config{
		LogLevel: "info",
		Exchange: exchange.DefaultConfig(),
		Stream:   stream.DefaultConfig(),
		Detector: warn.DefaultConfig(),
		Sweep:    warn.DefaultRunnerConfig(),
		Sink:     sink.DefaultConfig(),
		Ops:      ops.DefaultConfig(),
	}
}

// Load reads path, layers it over the defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	file.applyTo(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must list at least one symbol")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Stream.WSBaseURL == "" {
		return fmt.Errorf("stream.ws_base_url is required")
	}
	if c.Stream.BufferCap < 1 {
		return fmt.Errorf("stream.buffer_cap must be positive, got %d", c.Stream.BufferCap)
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 100 {
		return fmt.Errorf("detector.min_confidence must be within [0,100], got %v", c.Detector.MinConfidence)
	}
	if c.Sweep.Interval < time.Second {
		return fmt.Errorf("sweep.interval must be at least 1s, got %v", c.Sweep.Interval)
	}
	return nil
}

func (c *Config) normalize() {
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// fileConfig is the YAML-facing schema. All fields are optional; set fields
// override the defaults. Durations are parsed from Go notation ("250ms",
// "5m") because yaml.v3 cannot decode those strings into time.Duration
// directly.
type fileConfig struct {
	LogLevel *string  `yaml:"log_level"`
	Symbols  []string `yaml:"symbols"`

	Exchange struct {
		BaseURL        *string   `yaml:"base_url"`
		RequestTimeout *Duration `yaml:"request_timeout"`
		MinCallGap     *Duration `yaml:"min_call_gap"`
		UserAgent      *string   `yaml:"user_agent"`
	} `yaml:"exchange"`

	Stream struct {
		WSBaseURL     *string   `yaml:"ws_base_url"`
		BufferCap     *int      `yaml:"buffer_cap"`
		BackfillLimit *int      `yaml:"backfill_limit"`
		DebounceDelay *Duration `yaml:"debounce_delay"`
		DepthLevels   *int      `yaml:"depth_levels"`
	} `yaml:"stream"`

	Detector struct {
		Cooldown      *Duration `yaml:"cooldown"`
		MinConfidence *float64  `yaml:"min_confidence"`
	} `yaml:"detector"`

	Sweep struct {
		Interval    *Duration `yaml:"interval"`
		Concurrency *int      `yaml:"concurrency"`
	} `yaml:"sweep"`

	Sink struct {
		Addr           *string   `yaml:"addr"`
		Password       *string   `yaml:"password"`
		DB             *int      `yaml:"db"`
		Channel        *string   `yaml:"channel"`
		PublishTimeout *Duration `yaml:"publish_timeout"`
	} `yaml:"sink"`

	Ops struct {
		Addr            *string   `yaml:"addr"`
		ReadTimeout     *Duration `yaml:"read_timeout"`
		WriteTimeout    *Duration `yaml:"write_timeout"`
		ShutdownTimeout *Duration `yaml:"shutdown_timeout"`
	} `yaml:"ops"`
}

func (f *fileConfig) applyTo(cfg *Config) {
	setString(&cfg.LogLevel, f.LogLevel)
	if len(f.Symbols) > 0 {
		cfg.Symbols = f.Symbols
	}

	setString(&cfg.Exchange.BaseURL, f.Exchange.BaseURL)
	setDuration(&cfg.Exchange.RequestTimeout, f.Exchange.RequestTimeout)
	setDuration(&cfg.Exchange.MinCallGap, f.Exchange.MinCallGap)
	setString(&cfg.Exchange.UserAgent, f.Exchange.UserAgent)

	setString(&cfg.Stream.WSBaseURL, f.Stream.WSBaseURL)
	setInt(&cfg.Stream.BufferCap, f.Stream.BufferCap)
	setInt(&cfg.Stream.BackfillLimit, f.Stream.BackfillLimit)
	setDuration(&cfg.Stream.DebounceDelay, f.Stream.DebounceDelay)
	setInt(&cfg.Stream.DepthLevels, f.Stream.DepthLevels)

	setDuration(&cfg.Detector.Cooldown, f.Detector.Cooldown)
	if f.Detector.MinConfidence != nil {
		cfg.Detector.MinConfidence = *f.Detector.MinConfidence
	}

	setDuration(&cfg.Sweep.Interval, f.Sweep.Interval)
	setInt(&cfg.Sweep.Concurrency, f.Sweep.Concurrency)

	setString(&cfg.Sink.Addr, f.Sink.Addr)
	setString(&cfg.Sink.Password, f.Sink.Password)
	setInt(&cfg.Sink.DB, f.Sink.DB)
	setString(&cfg.Sink.Channel, f.Sink.Channel)
	setDuration(&cfg.Sink.PublishTimeout, f.Sink.PublishTimeout)

	setString(&cfg.Ops.Addr, f.Ops.Addr)
	setDuration(&cfg.Ops.ReadTimeout, f.Ops.ReadTimeout)
	setDuration(&cfg.Ops.WriteTimeout, f.Ops.WriteTimeout)
	setDuration(&cfg.Ops.ShutdownTimeout, f.Ops.ShutdownTimeout)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
