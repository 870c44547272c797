package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type PipelineConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ReviewConfig struct {
	// SettleDelay is how long the dashboard waits after a successful review
	// before re-reading the backend.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type JournalConfig struct {
	// DSN of the review-journal database. Empty disables journaling.
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Review   ReviewConfig   `mapstructure:"review"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load reads config.yaml from the given directory (or the working directory
// when empty) with CHANGEDET_* environment variables taking precedence. A
// missing config file is fine, defaults cover everything except secrets.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("pipeline.base_url", "http://localhost:8000")
	v.SetDefault("pipeline.request_timeout", 30*time.Second)
	v.SetDefault("review.settle_delay", 500*time.Millisecond)
	v.SetDefault("journal.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHANGEDET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Pipeline.BaseURL == "" {
		return nil, fmt.Errorf("pipeline.base_url is required")
	}
	cfg.Pipeline.BaseURL = strings.TrimRight(cfg.Pipeline.BaseURL, "/")

	return &cfg, nil
}
