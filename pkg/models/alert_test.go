package models

import "testing"

func TestAlertConditionHolds(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 0.3, true},
		{">", 0.2, false},
		{">=", 0.2, true},
		{"<", 0.1, true},
		{"<=", 0.2, true},
		{"==", 0.2, true},
		{"~=", 0.2, false},
	}

	for _, tt := range tests {
		c := AlertCondition{Metric: "error_rate", Operator: tt.op, Threshold: 0.2}
		if got := c.Holds(tt.value); got != tt.want {
			t.Errorf("Holds(%v) with op %q = %v, want %v", tt.value, tt.op, got, tt.want)
		}
	}
}

func TestAlertSeverityEscalated(t *testing.T) {
	if got := AlertHigh.Escalated(); got != AlertCritical {
		t.Errorf("high should escalate to critical, got %s", got)
	}
	if got := AlertCritical.Escalated(); got != AlertCritical {
		t.Errorf("critical should stay critical, got %s", got)
	}
}

func TestMetricValueLookup(t *testing.T) {
	agg := AggregatedMetrics{ErrorRate: 0.3, SuccessRate: 0.7, FallbackRate: 0.1, AverageDurationMillis: 1500}

	if v, ok := agg.MetricValue("error_rate"); !ok || v != 0.3 {
		t.Errorf("error_rate = %v, %v", v, ok)
	}
	if v, ok := agg.MetricValue("avg_validation_time_ms"); !ok || v != 1500 {
		t.Errorf("avg_validation_time_ms = %v, %v", v, ok)
	}
	if _, ok := agg.MetricValue("nonexistent"); ok {
		t.Error("unknown metric should not resolve")
	}
}

func TestErrorTypeClasses(t *testing.T) {
	if !ErrStructureInvalid.Critical() || !ErrRequiredFieldMissing.Critical() || !ErrBusinessRuleViolation.Critical() {
		t.Error("structure/required/business should be critical-class")
	}
	if ErrFormatInvalid.Critical() {
		t.Error("format errors are not critical-class")
	}
	if !ErrFormatInvalid.FormatClass() || !ErrTypeMismatch.FormatClass() {
		t.Error("format/type-mismatch should be format-class")
	}
}
