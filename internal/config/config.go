// Package config resolves Pentagon's runtime settings from, in ascending
// precedence, defaults, an optional Settings.toml file, a development
// .env file, and APP_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	pentagonerrors "pentagon/pkg/errors"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Port            int           `mapstructure:"port"`
	RedisURL        string        `mapstructure:"redis_url"`
	BaseCodePath    string        `mapstructure:"base_code_path"`
	SandboxHelper   string        `mapstructure:"sandbox_helper_path"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	SysSampleEvery  time.Duration `mapstructure:"sys_sample_interval"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	StdoutStderrCap int64         `mapstructure:"stdout_stderr_max_bytes"`
}

// Load resolves configuration from Settings.toml (if present in dir),
// a .env file (if present), and APP_-prefixed environment variables,
// in that increasing order of precedence.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("base_code_path", "/var/lib/pentagon/workspaces")
	v.SetDefault("sandbox_helper_path", "/usr/local/bin/sandbox-init")
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("sys_sample_interval", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("stdout_stderr_max_bytes", int64(1<<20))

	v.SetConfigName("Settings")
	v.SetConfigType("toml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, pentagonerrors.Wrap(err, pentagonerrors.ConfigError, "read Settings.toml")
		}
	}

	// A .env file is a development convenience; missing is not an error.
	if env, err := godotenv.Read(); err == nil {
		for k, val := range env {
			v.SetDefault(strings.ToLower(k), val)
		}
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.AllowEmptyEnv(false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pentagonerrors.Wrap(err, pentagonerrors.ConfigError, "decode configuration")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return pentagonerrors.Newf(pentagonerrors.ConfigError, "port %d is out of range", c.Port)
	}
	if c.RedisURL == "" {
		return pentagonerrors.New(pentagonerrors.ConfigError, "redis_url must not be empty")
	}
	if c.BaseCodePath == "" {
		return pentagonerrors.New(pentagonerrors.ConfigError, "base_code_path must not be empty")
	}
	if c.SandboxHelper == "" {
		return pentagonerrors.New(pentagonerrors.ConfigError, "sandbox_helper_path must not be empty")
	}
	return nil
}
