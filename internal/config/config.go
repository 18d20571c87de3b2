package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Auth      AuthConfig      `json:"auth"`
	Rewards   RewardsConfig   `json:"rewards"`
	Cache     CacheConfig     `json:"cache"`
	Tracing   TracingConfig   `json:"tracing"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port           string `json:"port"`
	Host           string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
	MaxBodySize    int64  `json:"max_body_size"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// AuthConfig holds token and password configuration.
type AuthConfig struct {
	JWTSecret   string `json:"jwt_secret"`
	TokenTTLMin int    `json:"token_ttl_min"`
}

// RewardsConfig holds the domain parameters of the rewards platform.
type RewardsConfig struct {
	// FreeDailyAds is the quota for accounts with no active package.
	FreeDailyAds int `json:"free_daily_ads"`
	// RegistrationBonusCents is the flat bonus credited to the referrer
	// when a referred account registers.
	RegistrationBonusCents int64 `json:"registration_bonus_cents"`
	// ReferralBonusRate is the purchase bonus as a fraction of the
	// bonus-eligible amount.
	ReferralBonusRate float64 `json:"referral_bonus_rate"`
	// ReferralBonusMinCents excludes small packages from the purchase
	// bonus. Zero means "use the lowest catalog tier".
	ReferralBonusMinCents int64 `json:"referral_bonus_min_cents"`
	// TeamCap stops crediting registration bonuses past this team size.
	TeamCap int `json:"team_cap"`
	// Withdrawal bounds.
	MinWithdrawCents int64 `json:"min_withdraw_cents"`
	MaxWithdrawCents int64 `json:"max_withdraw_cents"`
}

// CacheConfig holds cache-related configuration.
type CacheConfig struct {
	Enabled   bool   `json:"enabled"`
	RedisAddr string `json:"redis_addr"` // empty means in-memory
	RedisPass string `json:"redis_pass"`
	RedisDB   int    `json:"redis_db"`
	TTLSec    int    `json:"ttl_sec"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Environment string `json:"environment"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	Rate    int  `json:"rate"`
	Window  int  `json:"window"` // in seconds
}

// LoadConfig loads configuration from environment variables and/or config file.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaults()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	overrideFromEnv(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			Host:           "",
			AllowedOrigins: "*",
			MaxBodySize:    1 << 20, // 1MB
		},
		Database: DatabaseConfig{
			Path: "./clickrewards.db",
		},
		Auth: AuthConfig{
			JWTSecret:   "",
			TokenTTLMin: 24 * 60,
		},
		Rewards: RewardsConfig{
			FreeDailyAds:           3,
			RegistrationBonusCents: 100,
			ReferralBonusRate:      0.10,
			ReferralBonusMinCents:  0,
			TeamCap:                100,
			MinWithdrawCents:       500,
			MaxWithdrawCents:       100_000_00,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTLSec:  60,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Environment: "development",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    100,
			Window:  60,
		},
	}
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.Host, "SERVER_HOST")
	setString(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")
	setInt64(&cfg.Server.MaxBodySize, "MAX_REQUEST_BODY_SIZE")

	setString(&cfg.Database.Path, "DATABASE_PATH")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setInt(&cfg.Auth.TokenTTLMin, "TOKEN_TTL_MIN")

	setInt(&cfg.Rewards.FreeDailyAds, "FREE_DAILY_ADS")
	setInt64(&cfg.Rewards.RegistrationBonusCents, "REGISTRATION_BONUS_CENTS")
	setFloat(&cfg.Rewards.ReferralBonusRate, "REFERRAL_BONUS_RATE")
	setInt64(&cfg.Rewards.ReferralBonusMinCents, "REFERRAL_BONUS_MIN_CENTS")
	setInt(&cfg.Rewards.TeamCap, "REFERRAL_TEAM_CAP")
	setInt64(&cfg.Rewards.MinWithdrawCents, "MIN_WITHDRAW_CENTS")
	setInt64(&cfg.Rewards.MaxWithdrawCents, "MAX_WITHDRAW_CENTS")

	setBool(&cfg.Cache.Enabled, "CACHE_ENABLED")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPass, "REDIS_PASSWORD")
	setInt(&cfg.Cache.RedisDB, "REDIS_DB")
	setInt(&cfg.Cache.TTLSec, "CACHE_TTL_SEC")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "TRACING_ENDPOINT")
	setString(&cfg.Tracing.Environment, "TRACING_ENVIRONMENT")

	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Rate, "RATE_LIMIT_RATE")
	setInt(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true" || value == "1"
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			*dst = i
		}
	}
}

func setInt64(dst *int64, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, key string) {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = f
		}
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Rewards.ReferralBonusRate < 0 || c.Rewards.ReferralBonusRate > 1 {
		return fmt.Errorf("referral bonus rate must be between 0 and 1")
	}
	if c.Rewards.MinWithdrawCents <= 0 || c.Rewards.MaxWithdrawCents < c.Rewards.MinWithdrawCents {
		return fmt.Errorf("withdrawal bounds are invalid")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	return nil
}
