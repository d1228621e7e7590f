package models

import "time"

// FallbackType selects the recovery strategy a template declares.
type FallbackType string

const (
	// FallbackRegenerate asks the generation collaborator for a new record.
	FallbackRegenerate FallbackType = "regenerate"
	// FallbackSimpleTemplate re-validates against a simpler template tier.
	FallbackSimpleTemplate FallbackType = "simple_template"
	// FallbackDefaultResponse substitutes a pre-validated canned record.
	FallbackDefaultResponse FallbackType = "default_response"
	// FallbackNone reports the failure honestly and substitutes nothing.
	FallbackNone FallbackType = "none"
)

// Valid returns true if the fallback type is a known value.
func (f FallbackType) Valid() bool {
	switch f {
	case FallbackRegenerate, FallbackSimpleTemplate, FallbackDefaultResponse, FallbackNone:
		return true
	default:
		return false
	}
}

// FallbackStrategy is the recovery policy attached to a template.
type FallbackStrategy struct {
	// Type selects the strategy.
	Type FallbackType `json:"type" yaml:"type"`
	// MaxRetries caps regeneration attempts.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// FallbackTemplateID names the template to downgrade to, if any.
	FallbackTemplateID string `json:"fallback_template_id,omitempty" yaml:"fallback_template_id,omitempty"`
	// RetryDelay is the base delay before a regeneration retry.
	RetryDelay time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	// BackoffMultiplier scales RetryDelay on each subsequent attempt.
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
}
