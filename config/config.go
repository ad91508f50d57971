// Package config loads blit pipeline settings.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (BLIT_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Example file:
//
//	engine:
//	  timeout: 8s
//	  queue_capacity: 64
//	device:
//	  pipes: 4
//	  latency: 2ms
//	logging:
//	  level: debug
//	  format: json
//	metrics:
//	  namespace: blit
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/softhw"
)

// EnvPrefix prefixes every environment override, e.g. BLIT_ENGINE_TIMEOUT.
const EnvPrefix = "BLIT"

// Config is the complete pipeline configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Device  DeviceConfig  `mapstructure:"device" yaml:"device"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig controls the executor.
type EngineConfig struct {
	// Timeout bounds the wait for a completion interrupt.
	// Default: 8s
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`

	// QueueCapacity bounds pending jobs. Zero is unbounded.
	QueueCapacity int `mapstructure:"queue_capacity" validate:"gte=0" yaml:"queue_capacity"`
}

// DeviceConfig controls the software accelerator's behavior.
type DeviceConfig struct {
	// Pipes is the number of pixel pipelines. 0 or 1 composites serially.
	Pipes int `mapstructure:"pipes" validate:"gte=0,lte=64" yaml:"pipes"`

	Latency     time.Duration `mapstructure:"latency" validate:"gte=0" yaml:"latency"`
	Hang        bool          `mapstructure:"hang" yaml:"hang"`
	LostIRQ     bool          `mapstructure:"lost_irq" yaml:"lost_irq"`
	SpuriousIRQ bool          `mapstructure:"spurious_irq" yaml:"spurious_irq"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" validate:"required" yaml:"namespace"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Engine:  EngineConfig{Timeout: blit.DefaultTimeout},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
		Metrics: MetricsConfig{Namespace: "blit"},
	}
}

// Load reads the configuration at path, applies BLIT_* environment
// overrides and validates the result. An empty path, or a path that does
// not exist, yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil && !notFound(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	d := Default()
	v.SetDefault("engine.timeout", d.Engine.Timeout)
	v.SetDefault("engine.queue_capacity", d.Engine.QueueCapacity)
	v.SetDefault("device.pipes", d.Device.Pipes)
	v.SetDefault("device.latency", d.Device.Latency)
	v.SetDefault("device.hang", d.Device.Hang)
	v.SetDefault("device.lost_irq", d.Device.LostIRQ)
	v.SetDefault("device.spurious_irq", d.Device.SpuriousIRQ)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	// BLIT_LOGGING_LEVEL=debug overrides logging.level.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
}

func notFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// DeviceOptions translates the device section into accelerator options.
func (c *Config) DeviceOptions() []softhw.Option {
	return []softhw.Option{
		softhw.WithPipes(c.Device.Pipes),
		softhw.WithLatency(c.Device.Latency),
		softhw.WithHang(c.Device.Hang),
		softhw.WithLostInterrupt(c.Device.LostIRQ),
		softhw.WithSpuriousInterrupt(c.Device.SpuriousIRQ),
	}
}

// ExecutorOptions translates the engine section into executor options.
// m may be nil.
func (c *Config) ExecutorOptions(m *blit.Metrics) []blit.Option {
	opts := []blit.Option{blit.WithTimeout(c.Engine.Timeout)}
	if m != nil {
		opts = append(opts, blit.WithMetrics(m))
	}
	return opts
}

// NewLogger builds a logger from the logging section. The returned closer
// releases the output file, if one was opened.
func (c *Config) NewLogger() (*slog.Logger, io.Closer, error) {
	var w io.Writer
	var closer io.Closer = nopCloser{}
	switch c.Logging.Output {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(c.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("config: open log output: %w", err)
		}
		w, closer = f, f
	}
	h, err := c.Logging.Handler(w)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return slog.New(h), closer, nil
}

// Handler returns a text or JSON handler writing to w at the configured
// level.
func (l LoggingConfig) Handler(w io.Writer) (slog.Handler, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("config: logging level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.NewJSONHandler(w, opts), nil
	}
	return slog.NewTextHandler(w, opts), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
