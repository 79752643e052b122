package goSession

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every engine setting. Build validates a copy; later changes to
// the caller's value have no effect.
type Config struct {
	AccessToken     AccessTokenConfig
	RefreshToken    RefreshTokenConfig
	SigningKeys     SigningKeysConfig
	Session         SessionConfig
	RefreshThrottle RefreshThrottleConfig
	Audit           AuditConfig
	Metrics         MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// AccessTokenConfig controls the stateless half of a session.
type AccessTokenConfig struct {
	TTL time.Duration
	// Leeway tolerates clock skew on exp/nbf. At most 2 minutes.
	Leeway   time.Duration
	Issuer   string
	Audience string
	// Blacklisting makes VerifySession read the session row so revoked
	// sessions stop verifying before their access token expires.
	Blacklisting bool
	// AntiCSRF is the default for new sessions and for the HTTP guard.
	AntiCSRF bool
}

// RefreshTokenConfig controls the stateful half of a session.
type RefreshTokenConfig struct {
	TTL time.Duration
	// HistoryRetention is how long superseded lineage hashes are kept for
	// replay detection after their last advance.
	HistoryRetention time.Duration
}

// SigningKeysConfig controls the two signing key sets.
type SigningKeysConfig struct {
	Algorithm string // "ed25519" (default) or "hs256"
	// AccessKeyValidity is the age at which RotateSigningKeys replaces the
	// access key. Zero disables rotation.
	AccessKeyValidity  time.Duration
	RefreshKeyValidity time.Duration
	// ReloadInterval bounds keyring reloads triggered by unknown key ids.
	ReloadInterval time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls storage and verify behavior.
type SessionConfig struct {
	RedisPrefix     string
	MaxPayloadBytes int
	// ReissueOnKeyRotation makes VerifySession return a token signed by the
	// current key when the presented one was signed by a superseded key.
	ReissueOnKeyRotation bool
	// ReissueAfterRefresh makes VerifySession return a new access token on
	// the first use after a refresh.
	ReissueAfterRefresh bool
}

// RefreshThrottleConfig limits refresh attempts per session handle.
// Requires Redis.
type RefreshThrottleConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards routine events when the buffer is full. Token
	// theft and key rotation events always wait for buffer space.
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const maxLeeway = 2 * time.Minute

func defaultConfig() Config {
	return Config{
		AccessToken: AccessTokenConfig{
			TTL:    time.Hour,
			Leeway: 5 * time.Second,
		},
		RefreshToken: RefreshTokenConfig{
			TTL:              100 * 24 * time.Hour,
			HistoryRetention: 100 * 24 * time.Hour,
		},
		SigningKeys: SigningKeysConfig{
			Algorithm:          "ed25519",
			AccessKeyValidity:  7 * 24 * time.Hour,
			RefreshKeyValidity: 30 * 24 * time.Hour,
			ReloadInterval:     time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:          "gs",
			MaxPayloadBytes:      4096,
			ReissueOnKeyRotation: true,
			ReissueAfterRefresh:  true,
		},
		RefreshThrottle: RefreshThrottleConfig{
			Enabled:     false,
			MaxAttempts: 30,
			Window:      time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultConfig returns the defaults used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

// HighSecurityConfig shortens token lifetimes, turns on blacklisting and
// the refresh throttle, rotates access keys daily and never drops audit events.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.AccessToken.TTL = 10 * time.Minute
	cfg.AccessToken.Leeway = 5 * time.Second
	cfg.AccessToken.Blacklisting = true
	cfg.AccessToken.AntiCSRF = true
	cfg.RefreshToken.TTL = 14 * 24 * time.Hour
	cfg.RefreshToken.HistoryRetention = 30 * 24 * time.Hour
	cfg.SigningKeys.AccessKeyValidity = 24 * time.Hour
	cfg.SigningKeys.RefreshKeyValidity = 7 * 24 * time.Hour
	cfg.RefreshThrottle.Enabled = true
	cfg.RefreshThrottle.MaxAttempts = 10
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// Access token
	if c.AccessToken.TTL <= 0 {
		return errors.New("AccessToken TTL must be > 0")
	}
	if c.AccessToken.Leeway < 0 || c.AccessToken.Leeway > maxLeeway {
		return errors.New("AccessToken Leeway must be between 0 and 2m")
	}
	if c.AccessToken.Audience != "" && strings.TrimSpace(c.AccessToken.Audience) == "" {
		return errors.New("AccessToken Audience must not be blank")
	}

	// Refresh token
	if c.RefreshToken.TTL <= 0 {
		return errors.New("RefreshToken TTL must be > 0")
	}
	if c.RefreshToken.TTL <= c.AccessToken.TTL {
		return errors.New("RefreshToken TTL must exceed AccessToken TTL")
	}
	if c.RefreshToken.HistoryRetention <= 0 {
		return errors.New("RefreshToken HistoryRetention must be > 0")
	}

	// Signing keys
	switch strings.ToLower(c.SigningKeys.Algorithm) {
	case "ed25519", "hs256":
	default:
		return errors.New("unsupported signing algorithm")
	}
	if c.SigningKeys.AccessKeyValidity < 0 || c.SigningKeys.RefreshKeyValidity < 0 {
		return errors.New("SigningKeys validity must be >= 0")
	}
	if c.SigningKeys.ReloadInterval < 0 {
		return errors.New("SigningKeys ReloadInterval must be >= 0")
	}

	// Session
	if c.Session.MaxPayloadBytes <= 0 {
		return errors.New("Session MaxPayloadBytes must be > 0")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, " {}") {
		return errors.New("Session RedisPrefix must not contain spaces or braces")
	}

	if c.RefreshThrottle.Enabled {
		if c.RefreshThrottle.MaxAttempts <= 0 {
			return errors.New("RefreshThrottle MaxAttempts must be > 0")
		}
		if c.RefreshThrottle.Window <= 0 {
			return errors.New("RefreshThrottle Window must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
