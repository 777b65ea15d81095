// Package config loads the execution core's configuration with the
// precedence defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/datamind-ai/datamind/internal/pool"
	"github.com/datamind-ai/datamind/sandbox"
	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/workflow"
)

// Config is the full configuration of the execution core.
type Config struct {
	Sandbox SandboxConfig        `yaml:"sandbox"`
	Store   workflow.StoreConfig `yaml:"store"`
	Redis   RedisConfig          `yaml:"redis"`
	Pool    pool.Config          `yaml:"pool"`
	Log     LogConfig            `yaml:"log"`
	Metrics MetricsConfig        `yaml:"metrics"`
}

// SandboxConfig groups the per-language resource ceilings.
type SandboxConfig struct {
	Python sandbox.PythonConfig `yaml:"python"`
	R      sandbox.RConfig      `yaml:"r"`
}

// RedisConfig controls the optional session snapshot cache.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// CacheConfig converts to the session package's shape.
func (c RedisConfig) CacheConfig() session.RedisCacheConfig {
	return session.RedisCacheConfig{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		TTL:      c.TTL,
	}
}

// MetricsConfig controls the Prometheus namespace.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Build constructs a zap logger from the config.
func (c LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Level, err)
	}
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Python: sandbox.DefaultPythonConfig(),
			R:      sandbox.DefaultRConfig(),
		},
		Store: workflow.DefaultStoreConfig(),
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     24 * time.Hour,
		},
		Pool: pool.DefaultConfig(),
		Log:  LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "datamind",
		},
	}
}

// Load applies the precedence defaults -> YAML file (when path is
// non-empty and exists) -> DATAMIND_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file falls back to defaults, same as no path.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem(), "DATAMIND"); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sandbox.Python.Timeout <= 0 {
		return fmt.Errorf("config invalid: sandbox.python.timeout must be positive")
	}
	if c.Sandbox.R.Timeout <= 0 {
		return fmt.Errorf("config invalid: sandbox.r.timeout must be positive")
	}
	if c.Pool.MaxWorkers < 0 || c.Pool.QueueSize < 0 {
		return fmt.Errorf("config invalid: pool sizes must not be negative")
	}
	return nil
}

// applyEnv overrides struct fields from environment variables named by
// joining the prefix and the uppercased yaml tags with underscores,
// e.g. DATAMIND_SANDBOX_PYTHON_CPU_SECONDS.
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + strings.ToUpper(tag)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("config env %s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
