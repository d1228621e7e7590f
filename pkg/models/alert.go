package models

import "time"

// AlertSeverity ranks how urgent an alert is.
type AlertSeverity string

const (
	// AlertLow marks informational alerts.
	AlertLow AlertSeverity = "low"
	// AlertMedium marks alerts worth a look during working hours.
	AlertMedium AlertSeverity = "medium"
	// AlertHigh marks alerts that need prompt attention.
	AlertHigh AlertSeverity = "high"
	// AlertCritical marks alerts that need immediate attention.
	AlertCritical AlertSeverity = "critical"
)

// Valid returns true if the severity is a known value.
func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertLow, AlertMedium, AlertHigh, AlertCritical:
		return true
	default:
		return false
	}
}

// Escalated returns the severity one step up; critical stays critical.
func (s AlertSeverity) Escalated() AlertSeverity {
	switch s {
	case AlertLow:
		return AlertMedium
	case AlertMedium:
		return AlertHigh
	default:
		return AlertCritical
	}
}

// AlertCondition is one threshold test inside an alert rule. A rule fires
// only when every one of its conditions holds simultaneously.
type AlertCondition struct {
	// Metric names the aggregated metric to test (see AggregatedMetrics.MetricValue).
	Metric string `json:"metric"`
	// Operator is one of ">", ">=", "<", "<=", "==".
	Operator string `json:"operator"`
	// Threshold is the value to compare against.
	Threshold float64 `json:"threshold"`
	// Period is the aggregation window the metric is computed over.
	Period AggregationPeriod `json:"period"`
}

// Holds evaluates the condition against a metric value.
func (c AlertCondition) Holds(value float64) bool {
	switch c.Operator {
	case ">":
		return value > c.Threshold
	case ">=":
		return value >= c.Threshold
	case "<":
		return value < c.Threshold
	case "<=":
		return value <= c.Threshold
	case "==":
		return value == c.Threshold
	default:
		return false
	}
}

// EscalationRule bumps an unresolved alert's severity after a delay.
type EscalationRule struct {
	// After is how long an alert may stay unresolved before escalation.
	After time.Duration `json:"after"`
	// To is the severity the alert is raised to.
	To AlertSeverity `json:"to"`
}

// AlertRule describes when and how an alert fires.
type AlertRule struct {
	// ID is the unique rule identifier.
	ID string `json:"id"`
	// Name is the human-readable rule name.
	Name string `json:"name"`
	// Enabled gates evaluation.
	Enabled bool `json:"enabled"`
	// Severity is assigned to alerts this rule fires.
	Severity AlertSeverity `json:"severity"`
	// Conditions must all hold for the rule to fire.
	Conditions []AlertCondition `json:"conditions"`
	// Cooldown is the minimum time between two firings of this rule.
	Cooldown time.Duration `json:"cooldown"`
	// Escalation optionally bumps unresolved alerts.
	Escalation *EscalationRule `json:"escalation,omitempty"`
	// Channels lists the channel types to notify.
	Channels []string `json:"channels"`
}

// Alert is a fired instance of an alert rule.
type Alert struct {
	// ID is the unique alert identifier.
	ID string `json:"id"`
	// RuleID is the rule that fired.
	RuleID string `json:"rule_id"`
	// Name is the rule name at firing time.
	Name string `json:"name"`
	// Severity is the current severity (may have been escalated).
	Severity AlertSeverity `json:"severity"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// Timestamp is when the alert fired.
	Timestamp time.Time `json:"timestamp"`
	// Metrics is the aggregated snapshot that triggered the firing.
	Metrics AggregatedMetrics `json:"metrics"`
	// IsResolved is true once resolved (manually or by the auto-resolve window).
	IsResolved bool `json:"is_resolved"`
	// ResolvedAt is when the alert was resolved, if it was.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	// EscalatedAt is when the alert was escalated; escalation happens at most once.
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
}
