package models

import "time"

// MaxScore is the score assigned to a perfect (or flag-bypassed) validation.
const MaxScore = 100

// ValidationResult is the single return value of every validation call.
// The engine never surfaces an error to its caller; everything it knows ends
// up in here.
type ValidationResult struct {
	// IsValid is true exactly when Errors is empty.
	IsValid bool `json:"is_valid"`
	// Errors lists blocking failures.
	Errors []ValidationError `json:"errors,omitempty"`
	// Warnings lists non-blocking findings.
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	// Score is the 0-100 quality score, the rounded mean of per-rule scores
	// among rules that actually executed.
	Score int `json:"score"`
	// Output is the record the caller should use. It equals the input when
	// validation passed, or the recovered substitute when fallback ran.
	Output map[string]interface{} `json:"output,omitempty"`
	// Metadata describes how the result was produced.
	Metadata ResultMetadata `json:"metadata"`
}

// ResultMetadata flags whether a result is a trusted pass or a recovered one,
// and records what ran. The field set is closed; cross-cutting extras go in
// Annotations.
type ResultMetadata struct {
	// TemplateID is the template the record was checked against.
	TemplateID string `json:"template_id,omitempty"`
	// TemplateVersion is the semver of that template.
	TemplateVersion string `json:"template_version,omitempty"`
	// PersonaType is the tier the validation targeted.
	PersonaType PersonaType `json:"persona_type,omitempty"`
	// Duration is the wall time of the whole call.
	Duration time.Duration `json:"duration"`
	// RulesExecuted lists rule IDs that ran to completion or failed.
	RulesExecuted []string `json:"rules_executed,omitempty"`
	// RulesSkipped lists rule IDs that never ran (early halt, filtered).
	RulesSkipped []string `json:"rules_skipped,omitempty"`
	// RetryCount is the number of regeneration attempts consumed.
	RetryCount int `json:"retry_count,omitempty"`
	// FallbackUsed is true when any recovery path produced the output.
	FallbackUsed bool `json:"fallback_used,omitempty"`
	// FallbackStrategy names the recovery path taken, if any.
	FallbackStrategy FallbackType `json:"fallback_strategy,omitempty"`
	// RepairApplied is true when structural repair modified the record.
	RepairApplied bool `json:"repair_applied,omitempty"`
	// ValidationDisabled is true when a feature flag bypassed the check.
	ValidationDisabled bool `json:"validation_disabled,omitempty"`
	// Timestamp is when the call started.
	Timestamp time.Time `json:"timestamp"`
	// Annotations holds bounded string extras (diagnostic notes).
	Annotations map[string]string `json:"annotations,omitempty"`
}

// AddError appends an error and flips IsValid.
func (r *ValidationResult) AddError(e ValidationError) {
	r.Errors = append(r.Errors, e)
	r.IsValid = false
}

// AddWarning appends a warning without affecting validity.
func (r *ValidationResult) AddWarning(w ValidationWarning) {
	r.Warnings = append(r.Warnings, w)
}

// HasErrorType reports whether any error carries the given kind.
func (r *ValidationResult) HasErrorType(t ErrorType) bool {
	for _, e := range r.Errors {
		if e.Type == t {
			return true
		}
	}
	return false
}
