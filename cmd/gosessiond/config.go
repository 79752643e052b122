package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/viper"
)

// daemonConfig is loaded from the environment and an optional .env file.
type daemonConfig struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	Env      string `mapstructure:"APP_ENV"`

	// RedisAddr and DatabaseURL pick the backends. With both set, sessions
	// and keys live in Postgres and Redis only backs the refresh throttle.
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Preset is "default" or "high_security"; the fields below override it
	// when set.
	Preset           string        `mapstructure:"PRESET"`
	Algorithm        string        `mapstructure:"SIGNING_ALGORITHM"`
	Issuer           string        `mapstructure:"JWT_ISSUER"`
	Audience         string        `mapstructure:"JWT_AUDIENCE"`
	AccessTTL        time.Duration `mapstructure:"ACCESS_TTL"`
	RefreshTTL       time.Duration `mapstructure:"REFRESH_TTL"`
	HistoryRetention time.Duration `mapstructure:"HISTORY_RETENTION"`
	Blacklisting     bool          `mapstructure:"BLACKLISTING"`
	AntiCSRF         bool          `mapstructure:"ANTI_CSRF"`
	AuditEnabled     bool          `mapstructure:"AUDIT_ENABLED"`

	MaintenanceInterval time.Duration `mapstructure:"MAINTENANCE_INTERVAL"`
}

func loadConfig() (*daemonConfig, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("PRESET", "default")
	v.SetDefault("SIGNING_ALGORITHM", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("ACCESS_TTL", "0s")
	v.SetDefault("REFRESH_TTL", "0s")
	v.SetDefault("HISTORY_RETENTION", "0s")
	v.SetDefault("BLACKLISTING", false)
	v.SetDefault("ANTI_CSRF", false)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("MAINTENANCE_INTERVAL", "1m")

	var cfg daemonConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *daemonConfig) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.RedisAddr == "" && c.DatabaseURL == "" {
		return errors.New("config: REDIS_ADDR or DATABASE_URL must be set")
	}
	switch strings.ToLower(c.Preset) {
	case "", "default", "high_security":
	default:
		return fmt.Errorf("config: unknown PRESET %q", c.Preset)
	}
	if c.MaintenanceInterval <= 0 {
		return errors.New("config: MAINTENANCE_INTERVAL must be positive")
	}
	return nil
}

func (c *daemonConfig) production() bool {
	return c.Env == "production"
}

// engineConfig applies the preset, then the explicit overrides.
func (c *daemonConfig) engineConfig() goSession.Config {
	cfg := goSession.DefaultConfig()
	if strings.EqualFold(c.Preset, "high_security") {
		cfg = goSession.HighSecurityConfig()
	}

	if c.Algorithm != "" {
		cfg.SigningKeys.Algorithm = c.Algorithm
	}
	if c.Issuer != "" {
		cfg.AccessToken.Issuer = c.Issuer
	}
	if c.Audience != "" {
		cfg.AccessToken.Audience = c.Audience
	}
	if c.AccessTTL > 0 {
		cfg.AccessToken.TTL = c.AccessTTL
	}
	if c.RefreshTTL > 0 {
		cfg.RefreshToken.TTL = c.RefreshTTL
	}
	if c.HistoryRetention > 0 {
		cfg.RefreshToken.HistoryRetention = c.HistoryRetention
	}
	cfg.AccessToken.Blacklisting = cfg.AccessToken.Blacklisting || c.Blacklisting
	cfg.AccessToken.AntiCSRF = cfg.AccessToken.AntiCSRF || c.AntiCSRF
	cfg.Audit.Enabled = cfg.Audit.Enabled || c.AuditEnabled

	// The throttle needs Redis.
	if c.RedisAddr == "" {
		cfg.RefreshThrottle.Enabled = false
	}
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}
