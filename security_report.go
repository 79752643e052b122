package goSession

import "time"

// SecurityReport summarizes the security-relevant settings an Engine runs with.
type SecurityReport struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	HistoryRetention      time.Duration
	AccessKeyValidity     time.Duration
	RefreshKeyValidity    time.Duration
	BlacklistingEnabled   bool
	AntiCSRFDefault       bool
	ReissueOnKeyRotation  bool
	ReissueAfterRefresh   bool
	RefreshThrottleActive bool
	AuditEnabled          bool
	// LintCodes lists the Config.Lint warnings for the running config.
	LintCodes []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return SecurityReport{
		SigningAlgorithm:      cfg.SigningKeys.Algorithm,
		AccessTTL:             cfg.AccessToken.TTL,
		RefreshTTL:            cfg.RefreshToken.TTL,
		HistoryRetention:      cfg.RefreshToken.HistoryRetention,
		AccessKeyValidity:     cfg.SigningKeys.AccessKeyValidity,
		RefreshKeyValidity:    cfg.SigningKeys.RefreshKeyValidity,
		BlacklistingEnabled:   cfg.AccessToken.Blacklisting,
		AntiCSRFDefault:       cfg.AccessToken.AntiCSRF,
		ReissueOnKeyRotation:  cfg.Session.ReissueOnKeyRotation,
		ReissueAfterRefresh:   cfg.Session.ReissueAfterRefresh,
		RefreshThrottleActive: e.rateLimiter != nil,
		AuditEnabled:          e.audit != nil,
		LintCodes:             cfg.Lint().Codes(),
	}
}
