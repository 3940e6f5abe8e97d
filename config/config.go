// Package config loads server configuration from a YAML file and the
// environment. Environment variables override file values; every field
// has a usable default so the server starts with no config at all.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HTTP struct {
		Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	} `yaml:"http"`

	DB struct {
		Path string `yaml:"path" env:"DB_PATH" env-default:"./data/worktime.db"`
	} `yaml:"db"`

	Notify struct {
		AdminEmail string `yaml:"admin_email" env:"NOTIFY_ADMIN_EMAIL" env-default:"admin@localhost"`
	} `yaml:"notify"`

	Summary struct {
		CacheTTL time.Duration `yaml:"cache_ttl" env:"SUMMARY_CACHE_TTL" env-default:"5m"`
	} `yaml:"summary"`

	Sweep struct {
		WorkInterval  time.Duration `yaml:"work_interval" env:"SWEEP_WORK_INTERVAL" env-default:"30m"`
		BreakInterval time.Duration `yaml:"break_interval" env:"SWEEP_BREAK_INTERVAL" env-default:"2m"`
		DailyHour     int           `yaml:"daily_hour" env:"SWEEP_DAILY_HOUR" env-default:"0"`
	} `yaml:"sweep"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	} `yaml:"log"`
}

// Load reads the config file at path (skipped when empty or missing),
// then applies environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}
	return &cfg, nil
}
