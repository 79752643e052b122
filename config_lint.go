package goSession

import "time"

// LintWarning is a setting that is valid but probably not what a
// production deployment wants.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports risky but valid settings. It never fails; call Validate for that.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.AccessToken.Leeway > 30*time.Second {
		add("leeway_large", "access token leeway above 30s widens the replay window of expired tokens")
	}
	if c.AccessToken.TTL > time.Hour {
		add("access_ttl_long", "access tokens live longer than 1h and stay valid after revoke unless blacklisting is on")
	}
	if c.RefreshToken.HistoryRetention < c.RefreshToken.TTL {
		add("history_shorter_than_refresh", "replays of old refresh tokens after history purge read as unknown sessions, not theft")
	}
	if c.SigningKeys.AccessKeyValidity == 0 {
		add("access_key_rotation_disabled", "access signing key never rotates")
	}
	if c.SigningKeys.Algorithm == "hs256" {
		add("shared_secret_keys", "hs256 keys cannot be published through Handshake")
	}
	if !c.RefreshThrottle.Enabled {
		add("refresh_throttle_disabled", "refresh attempts are not throttled")
	}
	if c.Audit.Enabled && c.Audit.DropIfFull {
		add("audit_may_drop", "routine audit events are dropped when the buffer is full")
	}
	return ws
}
