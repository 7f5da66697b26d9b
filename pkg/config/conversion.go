package config

import (
	"time"

	"github.com/deskmesh/deskmesh/internal/governance"
	"github.com/deskmesh/deskmesh/pkg/agents"
	"github.com/deskmesh/deskmesh/pkg/domain"
	"github.com/deskmesh/deskmesh/pkg/safety"
)

// LimiterConfig converts the rate limit section to the limiter's own
// configuration. Tier names not in the built-in table are ignored by the
// limiter's tier parsing.
func (c RateLimitConfig) LimiterConfig() governance.RateLimiterConfig {
	tiers := make(map[domain.Tier]governance.TierLimits, len(c.Tiers))
	for name, limits := range c.Tiers {
		tiers[domain.ParseTier(name)] = governance.TierLimits{
			RequestsPerMinute: limits.RequestsPerMinute,
			RequestsPerHour:   limits.RequestsPerHour,
			BurstSize:         limits.BurstSize,
		}
	}
	return governance.RateLimiterConfig{
		GlobalPerMinute: c.GlobalPerMinute,
		GlobalPerHour:   c.GlobalPerHour,
		EnableGlobal:    !c.DisableGlobal,
		Tiers:           tiers,
	}
}

// InputConfig converts the safety section to input validator settings.
func (c SafetyConfig) InputConfig() safety.InputConfig {
	return safety.InputConfig{
		MaxLength:  c.MaxInputLength,
		MinLength:  c.MinInputLength,
		StripHTML:  c.StripHTML,
		StrictMode: c.StrictInput,
	}
}

// OutputConfig converts the safety section to output validator settings.
func (c SafetyConfig) OutputConfig() safety.OutputConfig {
	return safety.OutputConfig{
		MinConfidence:      c.MinConfidence,
		RedactPII:          true,
		RedactInternalData: true,
		StrictMode:         c.StrictOutput,
	}
}

// EscalationConfig converts the workflow section to escalation settings.
func (c WorkflowConfig) EscalationConfig() agents.EscalationConfig {
	return agents.EscalationConfig{
		AutoResolveThreshold: c.AutoResolveThreshold,
		SkipNotifyEmails:     c.VIPEmails,
	}
}

// SendTimeout returns the per-hop bus timeout.
func (c WorkflowConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}
