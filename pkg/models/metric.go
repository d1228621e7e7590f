package models

import "time"

// MetricRecord is the immutable per-call outcome stored by the metrics
// collector. Records are append-only; only retention cleanup removes them.
type MetricRecord struct {
	// ID is the unique record identifier.
	ID string `json:"id"`
	// TemplateID is the template the call validated against.
	TemplateID string `json:"template_id"`
	// PersonaType is the tier the call targeted.
	PersonaType PersonaType `json:"persona_type,omitempty"`
	// Timestamp is when the validation started.
	Timestamp time.Time `json:"timestamp"`
	// Duration is the wall time of the call.
	Duration time.Duration `json:"duration"`
	// IsValid is the final verdict.
	IsValid bool `json:"is_valid"`
	// Score is the final 0-100 score.
	Score int `json:"score"`
	// RetryCount is the number of regeneration attempts consumed.
	RetryCount int `json:"retry_count"`
	// FallbackUsed is true when recovery produced the output.
	FallbackUsed bool `json:"fallback_used"`
	// RulesExecuted lists rule IDs that ran.
	RulesExecuted []string `json:"rules_executed,omitempty"`
	// RulesFailed lists rule IDs that produced errors.
	RulesFailed []string `json:"rules_failed,omitempty"`
}

// AggregationPeriod selects the window for aggregated metrics queries.
type AggregationPeriod string

const (
	// PeriodHalfHour aggregates the trailing 30 minutes.
	PeriodHalfHour AggregationPeriod = "30m"
	// PeriodHour aggregates the trailing hour.
	PeriodHour AggregationPeriod = "1h"
	// PeriodDay aggregates the trailing 24 hours.
	PeriodDay AggregationPeriod = "24h"
	// PeriodWeek aggregates the trailing 7 days.
	PeriodWeek AggregationPeriod = "7d"
	// PeriodMonth aggregates the trailing 30 days.
	PeriodMonth AggregationPeriod = "30d"
)

// Valid returns true if the period is a known value.
func (p AggregationPeriod) Valid() bool {
	switch p {
	case PeriodHalfHour, PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return true
	default:
		return false
	}
}

// Duration converts the period into a time.Duration window.
func (p AggregationPeriod) Duration() time.Duration {
	switch p {
	case PeriodHalfHour:
		return 30 * time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// AggregatedMetrics is a windowed rollup over metric records. Alert rule
// conditions evaluate against these fields.
type AggregatedMetrics struct {
	// TemplateID is empty for a system-wide rollup.
	TemplateID string `json:"template_id,omitempty"`
	// Period is the window the rollup covers.
	Period AggregationPeriod `json:"period"`
	// Start and End bound the window.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// TotalValidations counts records in the window.
	TotalValidations int `json:"total_validations"`
	// SuccessRate is valid/total in [0,1]; 1 when the window is empty.
	SuccessRate float64 `json:"success_rate"`
	// ErrorRate is 1 - SuccessRate.
	ErrorRate float64 `json:"error_rate"`
	// AverageScore is the mean final score.
	AverageScore float64 `json:"average_score"`
	// AverageDurationMillis is the mean call duration in milliseconds.
	AverageDurationMillis float64 `json:"average_duration_ms"`
	// FallbackRate is the share of calls that used recovery, in [0,1].
	FallbackRate float64 `json:"fallback_rate"`
	// StructureErrorShare is the share of failed calls whose failures were
	// structural, in [0,1].
	StructureErrorShare float64 `json:"structure_error_share"`
}

// MetricValue returns the named metric for alert condition evaluation.
// Unknown names return (0, false).
func (a AggregatedMetrics) MetricValue(name string) (float64, bool) {
	switch name {
	case "error_rate":
		return a.ErrorRate, true
	case "success_rate":
		return a.SuccessRate, true
	case "fallback_rate":
		return a.FallbackRate, true
	case "avg_validation_time_ms":
		return a.AverageDurationMillis, true
	case "structure_error_share":
		return a.StructureErrorShare, true
	case "average_score":
		return a.AverageScore, true
	case "total_validations":
		return float64(a.TotalValidations), true
	default:
		return 0, false
	}
}
