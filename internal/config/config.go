// Package config loads service configuration from an optional YAML file
// overlaid by environment variables; env always wins.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`
	LogLevel    string `yaml:"logLevel"`
	Migrate     bool   `yaml:"migrate"`

	Auth struct {
		Mode       string `yaml:"mode"` // dev, hmac, jwks
		HMACSecret string `yaml:"hmacSecret"`
		JWKSURL    string `yaml:"jwksUrl"`
	} `yaml:"auth"`

	Delivery struct {
		// RatePerSec throttles outbound POSTs across all pipelines;
		// 0 disables the limiter.
		RatePerSec float64 `yaml:"ratePerSec"`
		Burst      int     `yaml:"burst"`
	} `yaml:"delivery"`
}

// Load reads path (or $CONFIG_FILE when path is empty) and applies env
// overrides. A missing file is not an error; env alone is enough to run.
func Load(path string) (Config, error) {
	cfg := Config{Port: "8080", LogLevel: "info", Migrate: true}
	cfg.Auth.Mode = "dev"

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	overlay(&cfg.Port, "PORT")
	overlay(&cfg.DatabaseURL, "DATABASE_URL")
	overlay(&cfg.RedisURL, "REDIS_URL")
	overlay(&cfg.LogLevel, "LOG_LEVEL")
	overlay(&cfg.Auth.Mode, "AUTH_MODE")
	overlay(&cfg.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	overlay(&cfg.Auth.JWKSURL, "AUTH_JWKS_URL")
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		cfg.Migrate = v != "false"
	}
	if v := os.Getenv("WEBHOOK_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Delivery.RatePerSec = f
		}
	}
	if v := os.Getenv("WEBHOOK_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.Burst = n
		}
	}
	return cfg, nil
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
