package models

import "time"

// RuleCategory classifies what aspect of a record a rule checks.
type RuleCategory string

const (
	// CategoryStructure covers shape checks: presence, nesting, types.
	CategoryStructure RuleCategory = "structure"
	// CategoryContent covers value-level checks on individual fields.
	CategoryContent RuleCategory = "content"
	// CategoryFormat covers syntactic format checks (patterns, encodings).
	CategoryFormat RuleCategory = "format"
	// CategoryBusiness covers cross-field and domain constraints.
	CategoryBusiness RuleCategory = "business"
)

// Valid returns true if the category is a known value.
func (c RuleCategory) Valid() bool {
	switch c {
	case CategoryStructure, CategoryContent, CategoryFormat, CategoryBusiness:
		return true
	default:
		return false
	}
}

// Severity ranks how serious a rule failure is.
type Severity string

const (
	// SeverityLow marks advisory findings.
	SeverityLow Severity = "low"
	// SeverityMedium marks findings that degrade quality.
	SeverityMedium Severity = "medium"
	// SeverityHigh marks findings that make the record unreliable.
	SeverityHigh Severity = "high"
	// SeverityCritical marks findings that make the record unusable.
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// rank maps severities onto a comparable scale.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast returns true if s is the same severity as other or more severe.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// RuleParams carries the typed payload for a rule kind. Only the fields the
// kind needs are set; everything else stays at its zero value.
type RuleParams struct {
	// Type is the expected value type for "type" rules: string, number,
	// boolean, list, object.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Min is the inclusive lower bound for "range" rules.
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	// Max is the inclusive upper bound for "range" rules.
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	// MinLength is the minimum string/list length for "length" rules.
	MinLength int `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	// MaxLength is the maximum string/list length for "length" rules (0 = unbounded).
	MaxLength int `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	// Pattern is the regular expression for "pattern" rules.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	// Allowed lists the permitted values for "enum" rules.
	Allowed []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	// Signal names the cultural signal a "cultural" rule compares against.
	Signal string `json:"signal,omitempty" yaml:"signal,omitempty"`
	// Expression names the registered business constraint for "business" rules.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// ValidationRule describes a single check within a template.
type ValidationRule struct {
	// ID is the unique identifier within the template's rule set.
	ID string `json:"id" yaml:"id"`
	// Category classifies the rule.
	Category RuleCategory `json:"category" yaml:"category"`
	// Field is the dot path into the record this rule inspects.
	Field string `json:"field" yaml:"field"`
	// Kind selects the validator implementation (required, type, range,
	// length, pattern, enum, cultural, business, or a custom registration).
	Kind string `json:"kind" yaml:"kind"`
	// Params is the typed payload for the selected kind.
	Params RuleParams `json:"params,omitempty" yaml:"params,omitempty"`
	// Severity is assigned to errors this rule produces.
	Severity Severity `json:"severity" yaml:"severity"`
	// Required marks failures as errors; non-required failures become warnings.
	Required bool `json:"required" yaml:"required"`
	// Dependencies lists rule IDs that must complete before this rule runs.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Priority orders rules within a wave (lower runs earlier in reports).
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
	// Timeout bounds this rule's execution; zero uses the processor default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// ErrorType optionally tags the error type this rule produces. When
	// empty, metrics fall back to classifying by the rule ID's naming
	// convention.
	ErrorType ErrorType `json:"error_type,omitempty" yaml:"error_type,omitempty"`
}

// Clone returns a deep copy of the rule.
func (r ValidationRule) Clone() ValidationRule {
	out := r
	if r.Dependencies != nil {
		out.Dependencies = append([]string(nil), r.Dependencies...)
	}
	if r.Params.Allowed != nil {
		out.Params.Allowed = append([]string(nil), r.Params.Allowed...)
	}
	if r.Params.Min != nil {
		v := *r.Params.Min
		out.Params.Min = &v
	}
	if r.Params.Max != nil {
		v := *r.Params.Max
		out.Params.Max = &v
	}
	return out
}
