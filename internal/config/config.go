// Package config содержит логику чтения конфигурации сервиса бустер-паков.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса бустер-паков.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	MatchServiceAddress string `env:"MATCH_SERVICE_ADDRESS"`
	ProfilePoolAddress  string `env:"PROFILE_POOL_ADDRESS"`
	AuthSecret          string `env:"AUTH_SECRET"`
	PackSize            int    `env:"PACK_SIZE"`
	CooldownSeconds     int    `env:"COOLDOWN_SECONDS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envMatchAddress := cfg.MatchServiceAddress
	envPoolAddress := cfg.ProfilePoolAddress
	envAuthSecret := cfg.AuthSecret
	envPackSize := cfg.PackSize
	envCooldown := cfg.CooldownSeconds

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MatchServiceAddress, "m", "", "match service address")
	flag.StringVar(&cfg.ProfilePoolAddress, "p", "", "profile pool service address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "auth cookie secret")
	flag.IntVar(&cfg.PackSize, "n", 10, "number of cards per pack")
	flag.IntVar(&cfg.CooldownSeconds, "c", 3600, "pack cooldown per category, seconds")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envMatchAddress != "" {
		cfg.MatchServiceAddress = envMatchAddress
	}
	if envPoolAddress != "" {
		cfg.ProfilePoolAddress = envPoolAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envPackSize != 0 {
		cfg.PackSize = envPackSize
	}
	if envCooldown != 0 {
		cfg.CooldownSeconds = envCooldown
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PackSize <= 0 {
		return nil, fmt.Errorf("pack size must be positive, got %d", cfg.PackSize)
	}
	if cfg.CooldownSeconds <= 0 {
		return nil, fmt.Errorf("cooldown must be positive, got %d", cfg.CooldownSeconds)
	}

	return cfg, nil
}
